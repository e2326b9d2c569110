package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gs "github.com/Keksclan/goRawrShaper"
	"github.com/Keksclan/goRawrShaper/cache"
	"github.com/Keksclan/goRawrShaper/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHTTPHandler(t *testing.T) {
	srv := gs.NewServer()
	h := httpHandler(srv)

	if rec := get(t, h, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("/healthz = %d, want 200", rec.Code)
	}
	if rec := get(t, h, "/metrics"); rec.Code != http.StatusOK {
		t.Fatalf("/metrics = %d, want 200", rec.Code)
	}

	srv.Shutdown(t.Context())
	if rec := get(t, h, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("/healthz after shutdown = %d, want 503", rec.Code)
	}
}

func TestSharedCache(t *testing.T) {
	c, closeFn, err := sharedCache(&config.Config{}, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	closeFn()
	if c != nil {
		t.Fatalf("expected no shared cache, got %T", c)
	}

	c, closeFn, err = sharedCache(&config.Config{L1MaxCost: 100}, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closeFn()
	if _, ok := c.(*cache.L1); !ok {
		t.Fatalf("expected *cache.L1, got %T", c)
	}
}

func TestServerOptions(t *testing.T) {
	cfg := &config.Config{
		RateLimitWindow:  time.Minute,
		RateLimitMax:     10,
		RateLimitBackend: config.BackendMemory,
		APIKeys:          "secret=agent-1",
	}
	opts, shutdown, err := serverOptions(cfg, zap.NewNop(), prometheus.NewRegistry(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shutdown != nil {
		t.Fatal("tracing is off, expected no shutdown func")
	}
	if srv := gs.NewServer(opts...); srv.Limiter() == nil {
		t.Fatal("expected a rate limiter")
	}

	cfg.TrustedProxies = []string{"not-a-cidr"}
	if _, _, err := serverOptions(cfg, zap.NewNop(), prometheus.NewRegistry(), nil); err == nil {
		t.Fatal("expected an error for an invalid trusted proxy")
	}
}
