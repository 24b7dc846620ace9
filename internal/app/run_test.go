package app

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"wheatr-server/internal/config"
)

func TestRun_ListenFailureStopsIngestion(t *testing.T) {
	var inflight atomic.Int32
	aemet := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inflight.Add(1)
		defer inflight.Add(-1)
		<-r.Context().Done()
	}))
	defer aemet.Close()

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	t.Setenv("HTTP_ADDR", busy.Addr().String())
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "wheatr.db"))
	t.Setenv("STATIC_DIR", t.TempDir())
	t.Setenv("AEMET_URL", aemet.URL)
	t.Setenv("AEMET_API_KEY", "test-key")
	t.Setenv("AEMET_MAX_RETRIES", "0")
	t.Setenv("INGEST_ON_START", "true")
	t.Setenv("INGEST_TIMEOUT", "1m")
	t.Setenv("MQTT_ENABLED", "false")
	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- Run(context.Background(), cfg) }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Run returned nil; want listen error")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after listen failure")
	}

	// A run left behind would hold its AEMET request open until
	// INGEST_TIMEOUT.
	time.Sleep(200 * time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for inflight.Load() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := inflight.Load(); n != 0 {
		t.Errorf("%d AEMET requests still open after Run returned", n)
	}
}
