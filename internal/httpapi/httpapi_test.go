package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"wheatr-server/internal/config"
	"wheatr-server/internal/metrics"
)

type fakePinger struct {
	err error
}

func (f fakePinger) PingContext(ctx context.Context) error {
	return f.err
}

func testConfig() config.Config {
	return config.Config{
		AppEnv:             "test",
		HTTPAddr:           ":0",
		CORSAllowedOrigins: []string{"*"},
	}
}

func TestHealthz(t *testing.T) {
	t.Run("ok when database answers", func(t *testing.T) {
		mux := NewMux(fakePinger{}, "", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		var body map[string]string
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["status"] != "ok" {
			t.Errorf("status field = %q; want ok", body["status"])
		}
	})

	t.Run("503 when ping fails", func(t *testing.T) {
		mux := NewMux(fakePinger{err: errors.New("db down")}, "", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusServiceUnavailable)
		}
	})

	t.Run("POST not allowed", func(t *testing.T) {
		mux := NewMux(fakePinger{}, "", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusMethodNotAllowed)
		}
	})
}

func TestMux_Metrics(t *testing.T) {
	m := metrics.New()
	m.EstimateOutcome("ok")
	mux := NewMux(fakePinger{}, "", m)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "wheatr_estimates_total") {
		t.Errorf("metrics output missing wheatr_estimates_total")
	}
}

func TestMux_Static(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>wheatr</h1>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	mux := NewMux(fakePinger{}, dir, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "wheatr") {
		t.Errorf("body = %q; want index.html contents", rec.Body.String())
	}
}

func TestHandler_RequestID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})
	h := NewHandler(testConfig(), inner)

	t.Run("assigns new id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		got := rec.Header().Get(requestIDHeader)
		if _, err := uuid.Parse(got); err != nil {
			t.Fatalf("X-Request-ID = %q; want uuid", got)
		}
		if seen != got {
			t.Errorf("context id = %q; want %q", seen, got)
		}
	})

	t.Run("keeps valid incoming id", func(t *testing.T) {
		id := uuid.New().String()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, id)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get(requestIDHeader); got != id {
			t.Errorf("X-Request-ID = %q; want %q", got, id)
		}
	})

	t.Run("replaces malformed id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, "not a uuid\r\n")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get(requestIDHeader); got == "not a uuid\r\n" {
			t.Errorf("malformed id echoed back")
		}
	})
}

func TestHandler_RecoversPanics(t *testing.T) {
	h := NewHandler(testConfig(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d; want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestHandler_CORS(t *testing.T) {
	cfg := testConfig()
	cfg.CORSAllowedOrigins = []string{"https://wheatr.example"}
	h := NewHandler(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/hi", nil)
	req.Header.Set("Origin", "https://wheatr.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://wheatr.example" {
		t.Errorf("Access-Control-Allow-Origin = %q; want https://wheatr.example", got)
	}
}

func TestNewServer(t *testing.T) {
	cfg := testConfig()
	cfg.HTTPAddr = ":9999"
	srv := NewServer(cfg, http.NewServeMux())

	if srv.Addr != ":9999" {
		t.Errorf("Addr = %q; want :9999", srv.Addr)
	}
	if srv.ReadHeaderTimeout == 0 {
		t.Errorf("ReadHeaderTimeout not set")
	}
	if srv.Handler == nil {
		t.Errorf("Handler not set")
	}
}
