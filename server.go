// Package gorawrshaper builds gRPC servers that shape traffic: per-caller
// fixed-window rate limits, an optional burst gate, authentication, request
// IDs and tracing, assembled in a fixed order from functional options.
package gorawrshaper

import (
	"context"
	"net/http"
	"sync"

	"github.com/Keksclan/goRawrShaper/interceptors"
	"github.com/Keksclan/goRawrShaper/internal/core"
	"github.com/Keksclan/goRawrShaper/metrics"
	"github.com/Keksclan/goRawrShaper/policy"
	"github.com/Keksclan/goRawrShaper/ratelimit"
	"github.com/Keksclan/goRawrShaper/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthGroup is the policy group of the gRPC health service. Its methods
// are public.
const HealthGroup = "health"

// Server is a composable wrapper around a [grpc.Server] that layers
// middleware via functional [Option] values passed to [NewServer].
//
// After construction the underlying gRPC server is available through
// [Server.GRPC] so that service implementations can be registered normally:
//
//	srv := gs.NewServer(gs.DefaultOptions()...)
//	taskapi.Register(srv.GRPC(), handler)
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	limiter    *interceptors.RateLimiter
	global     *ratelimit.FixedWindow
	log        *zap.Logger
}

// NewServer creates a new [Server] by applying the supplied options and
// wiring the resulting interceptor chains into [grpc.NewServer]. Middleware
// execution order is fixed: recovery, request ID, tracing, auth, rate limit,
// then user interceptors, whatever order the options were passed in.
//
// Example:
//
//	srv := gs.NewServer(
//		gs.WithRecovery(),
//		gs.WithAuth(auth.StaticAPIKeys(keys)),
//		gs.WithRateLimit(ratelimit.GlobalConfig),
//		gs.WithBurstGate(500, 100),
//	)
func NewServer(opts ...Option) *Server {
	cfg := newConfig(opts)

	s := &Server{
		health:   health.NewServer(),
		registry: cfg.registry,
		metrics:  metrics.New(cfg.registry),
		log:      cfg.logger,
	}

	// The health service is always public; registered first so it wins
	// ties with caller-defined prefix groups.
	groups := append([]*policy.GroupBuilder{
		policy.Group(HealthGroup).
			Prefix("/" + healthpb.Health_ServiceDesc.ServiceName + "/").
			Policy(policy.Policy{Public: true}),
	}, cfg.groups...)
	resolver := policy.NewResolver(groups...)

	b := cfg.user
	if cfg.recovery {
		b.Add(core.OrderRecovery, interceptors.RecoveryUnary(cfg.logger), interceptors.RecoveryStream(cfg.logger))
	}
	b.Add(core.OrderRequestID, interceptors.RequestIDUnary(cfg.logger), interceptors.RequestIDStream(cfg.logger))
	if cfg.tracing != nil {
		b.Add(core.OrderTracing, tracing.UnaryServerInterceptor(cfg.tracing), tracing.StreamServerInterceptor(cfg.tracing))
	}
	if cfg.authFn != nil {
		b.Add(core.OrderAuth, interceptors.AuthUnary(cfg.authFn, resolver), interceptors.AuthStream(cfg.authFn, resolver))
	}
	if cfg.rateLimited() {
		s.limiter = s.newRateLimiter(&cfg, resolver)
		b.Add(core.OrderRateLimit, interceptors.RateLimitUnary(s.limiter), interceptors.RateLimitStream(s.limiter))
	}

	s.grpcServer = grpc.NewServer(b.ServerOptions(cfg.serverOptions...)...)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	return s
}

// observedConsumer reports the decisions of a caller-supplied limiter to
// the server's metrics.
type observedConsumer struct {
	ratelimit.Consumer
	obs ratelimit.Observer
}

func (o observedConsumer) ConsumeContext(ctx context.Context, key string, points int) bool {
	ok := o.Consumer.ConsumeContext(ctx, key, points)
	if ok {
		o.obs.Allowed()
	} else {
		o.obs.Rejected()
	}
	return ok
}

func (s *Server) newRateLimiter(cfg *config, resolver *policy.Resolver) *interceptors.RateLimiter {
	var global ratelimit.Consumer
	if cfg.limiter != nil {
		global = observedConsumer{Consumer: cfg.limiter, obs: s.metrics.Limiter("global")}
	} else if cfg.rateLimit != nil {
		rc := *cfg.rateLimit
		if rc.Clock == nil {
			rc.Clock = cfg.clock
		}
		if rc.Observer == nil {
			rc.Observer = s.metrics.Limiter("global")
		}
		if rc.Logger == nil {
			rc.Logger = cfg.logger
		}
		s.global = ratelimit.NewFixedWindow(rc)
		global = s.global
	}

	groupObserver := func(group string) ratelimit.Observer { return s.metrics.Limiter(group) }
	return interceptors.NewRateLimiter(interceptors.RateLimitConfig{
		Global:        global,
		Burst:         cfg.burst,
		Resolver:      resolver,
		KeyFunc:       cfg.keyFunc,
		GroupObserver: groupObserver,
		Clock:         cfg.clock,
		Logger:        cfg.logger,
	})
}

// GRPC returns the underlying *grpc.Server so callers can register services.
func (s *Server) GRPC() *grpc.Server {
	return s.grpcServer
}

// Health returns the gRPC health service registered on the server.
func (s *Server) Health() *health.Server {
	return s.health
}

// Limiter returns the rate limiter, or nil when no rate limit option was
// given.
func (s *Server) Limiter() *interceptors.RateLimiter {
	return s.limiter
}

// Registry returns the Prometheus registry holding the server's collectors.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Metrics returns the server's collectors, for wiring caches and other
// components into the same registry.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// MetricsHandler returns an http.Handler that serves the server's registry.
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// Run sweeps stale rate-limit windows until ctx is done.
func (s *Server) Run(ctx context.Context) {
	var wg sync.WaitGroup
	if s.global != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.global.Run(ctx)
		}()
	}
	if s.limiter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.limiter.Run(ctx)
		}()
	}
	wg.Wait()
}

// Shutdown marks the server as not serving and stops it gracefully. If ctx
// ends first, in-flight calls are cancelled.
func (s *Server) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("graceful stop timed out, forcing")
		s.grpcServer.Stop()
		<-done
	}
}
