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

// Option configures a Server.
type Option func(*config)

// WithUnaryInterceptor appends a unary server interceptor. User interceptors
// run after all built-in middleware, in the order they were added.
func WithUnaryInterceptor(i grpc.UnaryServerInterceptor) Option {
	return func(c *config) {
		c.user.Add(core.OrderUser, i, nil)
	}
}

// WithStreamInterceptor appends a stream server interceptor.
func WithStreamInterceptor(i grpc.StreamServerInterceptor) Option {
	return func(c *config) {
		c.user.Add(core.OrderUser, nil, i)
	}
}

// WithRecovery installs the panic-recovery interceptors as the outermost
// middleware so that a panic inside a handler returns codes.Internal instead
// of crashing the process.
func WithRecovery() Option {
	return func(c *config) { c.recovery = true }
}

// WithLogger sets the logger used by the built-in middleware. Defaults to a
// no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithClock replaces the clock of the in-memory limiters.
func WithClock(clk clock.Clock) Option {
	return func(c *config) { c.clock = clk }
}

// WithAuth authenticates every non-public call with fn.
func WithAuth(fn auth.AuthFunc) Option {
	return func(c *config) { c.authFn = fn }
}

// WithRateLimit installs an in-memory fixed-window limiter applied per
// caller to every method without a group rate limit.
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(c *config) { c.rateLimit = &cfg }
}

// WithRateLimiter installs l as the global limiter, e.g. a
// [ratelimit.Redis] shared by several replicas. It takes precedence over
// WithRateLimit.
func WithRateLimiter(l ratelimit.Consumer) Option {
	return func(c *config) { c.limiter = l }
}

// WithRateLimitPolicy registers method groups. A group's Policy can carry
// its own RateLimitRule or mark its methods public.
func WithRateLimitPolicy(groups ...*policy.GroupBuilder) Option {
	return func(c *config) { c.groups = append(c.groups, groups...) }
}

// WithBurstGate caps the process at rps calls per second with the given
// burst, regardless of caller.
func WithBurstGate(rps float64, burst int) Option {
	return func(c *config) { c.burst = ratelimit.NewBucket(rps, burst) }
}

// WithKeyFunc sets how callers are identified for rate limiting. Defaults
// to [keying.ByActor].
func WithKeyFunc(fn keying.KeyFunc) Option {
	return func(c *config) { c.keyFunc = fn }
}

// WithOpenTelemetry creates a server span per RPC. A nil cfg uses the otel
// globals.
func WithOpenTelemetry(cfg *tracing.Config) Option {
	return func(c *config) {
		if cfg == nil {
			cfg = &tracing.Config{}
		}
		c.tracing = cfg
	}
}

// WithMetrics registers the server's collectors on reg instead of a private
// registry.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *config) { c.registry = reg }
}

// WithServerOptions passes extra options to grpc.NewServer.
func WithServerOptions(opts ...grpc.ServerOption) Option {
	return func(c *config) { c.serverOptions = append(c.serverOptions, opts...) }
}
