package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"

	"wheatr-server/internal/config"
)

// NewHandler wraps mux with panic recovery, request ids, request logging and
// CORS, outermost first.
func NewHandler(cfg config.Config, mux http.Handler) http.Handler {
	cors := handlers.CORS(
		handlers.AllowedOrigins(cfg.CORSAllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", requestIDHeader}),
		handlers.ExposedHeaders([]string{requestIDHeader}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger: slog.Default()}),
		handlers.PrintRecoveryStack(cfg.AppEnv == "dev"),
	)
	return recovery(requestID(requestLogger(cors(mux))))
}

func NewServer(cfg config.Config, mux http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewHandler(cfg, mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
