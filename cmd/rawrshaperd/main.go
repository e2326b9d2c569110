// Command rawrshaperd serves the task API behind the rate-limiting gRPC
// server, with Prometheus metrics and a health endpoint on a separate HTTP
// listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gs "github.com/Keksclan/goRawrShaper"
	"github.com/Keksclan/goRawrShaper/auth"
	"github.com/Keksclan/goRawrShaper/breaker"
	"github.com/Keksclan/goRawrShaper/cache"
	"github.com/Keksclan/goRawrShaper/internal/config"
	"github.com/Keksclan/goRawrShaper/internal/logging"
	"github.com/Keksclan/goRawrShaper/keying"
	"github.com/Keksclan/goRawrShaper/policy"
	"github.com/Keksclan/goRawrShaper/ratelimit"
	"github.com/Keksclan/goRawrShaper/taskapi"
	"github.com/Keksclan/goRawrShaper/tasks"
	"github.com/Keksclan/goRawrShaper/tasks/postgres"
	"github.com/Keksclan/goRawrShaper/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	shutdownTimeout = 10 * time.Second
	// writeCost is the points a task mutation spends from the writes budget.
	writeCost = 5
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("rawrshaperd stopped", zap.Error(err))
		os.Exit(1)
	}
	log.Info("rawrshaperd stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
	}

	opts, shutdownTracing, err := serverOptions(cfg, log, registry, rdb)
	if err != nil {
		return err
	}
	if shutdownTracing != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				log.Warn("tracing shutdown failed", zap.Error(err))
			}
		}()
	}
	srv := gs.NewServer(opts...)

	repo, closeRepo, err := repository(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRepo()

	ttl := cache.NewTTL[[]tasks.Task](
		cache.WithDefaultTTL(cfg.CacheDefaultTTL),
		cache.WithSweepInterval(cfg.CacheSweepInterval),
		cache.WithObserver(srv.Metrics().Cache("tasks")),
		cache.WithLogger(log),
	)
	svcOpts := []tasks.ServiceOption{tasks.WithLogger(log)}
	shared, closeShared, err := sharedCache(cfg, log, rdb)
	if err != nil {
		return err
	}
	defer closeShared()
	if shared != nil {
		svcOpts = append(svcOpts, tasks.WithSharedCache(shared, cfg.CacheDefaultTTL))
	}
	svc := tasks.NewService(repo, tasks.NewCache(ttl), svcOpts...)
	taskapi.Register(srv.GRPC(), taskapi.NewHandler(svc))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}
	httpSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           httpHandler(srv),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("grpc listening", zap.String("addr", lis.Addr().String()))
		return srv.GRPC().Serve(lis)
	})
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.MetricsAddr))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		srv.Run(ctx)
		return nil
	})
	g.Go(func() error {
		ttl.Run(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(sctx)
		return httpSrv.Shutdown(sctx)
	})
	return g.Wait()
}

func serverOptions(cfg *config.Config, log *zap.Logger, registry *prometheus.Registry, rdb *redis.Client) ([]gs.Option, func(context.Context) error, error) {
	opts := []gs.Option{
		gs.WithRecovery(),
		gs.WithLogger(log),
		gs.WithMetrics(registry),
		gs.WithRateLimitPolicy(
			policy.Group("writes").
				Exact(taskapi.MethodCreateTask).
				Exact(taskapi.MethodUpdateTask).
				Exact(taskapi.MethodDeleteTask).
				Exact(taskapi.MethodInvalidateProject).
				Policy(policy.Policy{RateLimit: &policy.RateLimitRule{
					Window: cfg.RateLimitWindow,
					Max:    cfg.RateLimitMax,
					Points: writeCost,
				}}),
		),
	}

	byPeer, err := keying.ByPeer(cfg.TrustedProxies, keying.DefaultHeaderPriority)
	if err != nil {
		return nil, nil, fmt.Errorf("trusted proxies: %w", err)
	}
	opts = append(opts, gs.WithKeyFunc(keying.First(keying.ByActor(), byPeer)))

	if keys := auth.ParseAPIKeys(cfg.APIKeys); len(keys) > 0 {
		opts = append(opts, gs.WithAuth(auth.StaticAPIKeys(keys)))
	} else {
		log.Warn("no API keys configured, task API is unauthenticated")
	}

	switch cfg.RateLimitBackend {
	case config.BackendRedis:
		opts = append(opts, gs.WithRateLimiter(ratelimit.NewRedis(rdb, ratelimit.RedisConfig{
			Prefix:  "rawrshaper:rl:",
			Window:  cfg.RateLimitWindow,
			Max:     cfg.RateLimitMax,
			Breaker: breaker.New(breaker.DefaultConfig()),
			Logger:  log,
		})))
	default:
		opts = append(opts, gs.WithRateLimit(ratelimit.Config{
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		}))
	}
	if cfg.BurstEnabled() {
		opts = append(opts, gs.WithBurstGate(cfg.BurstRPS, cfg.Burst))
	}

	if !cfg.TracingStdout {
		return opts, nil, nil
	}
	tp, shutdown, err := tracing.NewStdoutProvider(os.Stdout)
	if err != nil {
		return nil, nil, err
	}
	return append(opts, gs.WithOpenTelemetry(&tracing.Config{TracerProvider: tp})), shutdown, nil
}

func repository(ctx context.Context, cfg *config.Config, log *zap.Logger) (tasks.Repository, func(), error) {
	if cfg.PostgresDSN == "" {
		log.Info("using in-memory task repository")
		return tasks.NewMemoryRepository(), func() {}, nil
	}
	if err := postgres.Migrate(cfg.PostgresDSN, log); err != nil {
		return nil, nil, err
	}
	repo, err := postgres.New(ctx, cfg.PostgresDSN, log)
	if err != nil {
		return nil, nil, err
	}
	return repo, repo.Close, nil
}

// sharedCache returns the cross-replica layer for task lists: ristretto
// when RAWR_L1_MAX_COST is set, Redis when RAWR_REDIS_ADDR is, both tiered
// when both are. Nil when neither is configured.
func sharedCache(cfg *config.Config, log *zap.Logger, rdb *redis.Client) (cache.Cache, func(), error) {
	var (
		l1 *cache.L1
		l2 *cache.L2
	)
	if cfg.L1MaxCost > 0 {
		var err error
		if l1, err = cache.NewL1(cfg.L1MaxCost); err != nil {
			return nil, nil, fmt.Errorf("l1 cache: %w", err)
		}
	}
	if rdb != nil {
		l2 = cache.NewL2(rdb,
			cache.WithNamespace("rawrshaper:cache:"),
			cache.WithBreaker(breaker.New(breaker.DefaultConfig())),
			cache.WithL2Logger(log),
		)
	}

	closeL1 := func() {
		if l1 != nil {
			l1.Close()
		}
	}
	switch {
	case l1 != nil && l2 != nil:
		return cache.NewTiered(l1, l2, cache.WithPromoteTTL(cfg.CacheDefaultTTL)), closeL1, nil
	case l1 != nil:
		return l1, closeL1, nil
	case l2 != nil:
		return l2, closeL1, nil
	}
	return nil, closeL1, nil
}

func httpHandler(srv *gs.Server) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", srv.MetricsHandler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		resp, err := srv.Health().Check(r.Context(), &healthpb.HealthCheckRequest{})
		if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			http.Error(w, "not serving", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
