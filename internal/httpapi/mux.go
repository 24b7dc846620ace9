package httpapi

import (
	"net/http"

	"wheatr-server/internal/metrics"
)

// NewMux registers the infrastructure routes: health, metrics and the static
// UI at /. Feature modules add their own routes afterwards.
func NewMux(db pinger, staticDir string, m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db)
	mux.Handle("GET /metrics", m.Handler())
	if staticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(staticDir)))
	}
	return mux
}
