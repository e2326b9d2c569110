package gorawrshaper

import (
	"github.com/Keksclan/goRawrShaper/auth"
	"github.com/Keksclan/goRawrShaper/internal/core"
	"github.com/Keksclan/goRawrShaper/keying"
	"github.com/Keksclan/goRawrShaper/policy"
	"github.com/Keksclan/goRawrShaper/ratelimit"
	"github.com/Keksclan/goRawrShaper/tracing"
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// config holds the internal configuration assembled via functional options.
type config struct {
	logger   *zap.Logger
	clock    clock.Clock
	registry *prometheus.Registry

	recovery bool
	authFn   auth.AuthFunc
	tracing  *tracing.Config

	// rateLimit builds an in-memory global limiter; limiter is a
	// caller-supplied one and wins when both are set.
	rateLimit *ratelimit.Config
	limiter   ratelimit.Consumer
	burst     *ratelimit.Bucket
	keyFunc   keying.KeyFunc
	groups    []*policy.GroupBuilder

	// user interceptors, kept in registration order at core.OrderUser.
	user core.MiddlewareBuilder

	serverOptions []grpc.ServerOption
}

func newConfig(opts []Option) config {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.clock == nil {
		cfg.clock = clock.New()
	}
	if cfg.registry == nil {
		cfg.registry = prometheus.NewRegistry()
	}
	return cfg
}

func (c *config) rateLimited() bool {
	return c.rateLimit != nil || c.limiter != nil || c.burst != nil || len(c.groups) > 0
}
