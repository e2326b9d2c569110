package interceptors

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/Keksclan/goRawrShaper/contextx"
	"github.com/Keksclan/goRawrShaper/keying"
	"github.com/Keksclan/goRawrShaper/policy"
	"github.com/Keksclan/goRawrShaper/ratelimit"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Trailer keys set on rejected calls.
const (
	HeaderLimit     = "x-ratelimit-limit"
	HeaderRemaining = "x-ratelimit-remaining"
	HeaderReset     = "x-ratelimit-reset"
)

// AnonymousKey is counted against when the KeyFunc cannot identify the
// caller.
const AnonymousKey = "anonymous"

var (
	errRateLimited = status.Error(codes.ResourceExhausted, "rate limit exceeded")
	errOverloaded  = status.Error(codes.ResourceExhausted, "server overloaded")
)

// budget is implemented by limiters that can report a key's remaining
// points; [ratelimit.FixedWindow] does.
type budget interface {
	Max() int
	Remaining(key string) (int, time.Time)
}

// RateLimitConfig configures a [RateLimiter].
type RateLimitConfig struct {
	// Global applies to methods without a group rate limit. Nil disables
	// the global limit.
	Global ratelimit.Consumer
	// Burst, when set, is consulted before any keyed limiter.
	Burst *ratelimit.Bucket
	// Resolver maps methods to groups with their own RateLimitRule.
	Resolver *policy.Resolver
	// KeyFunc identifies the caller; defaults to keying.ByActor.
	KeyFunc keying.KeyFunc
	// GroupObserver returns the observer for a group's limiter.
	GroupObserver func(group string) ratelimit.Observer
	Clock         clock.Clock
	Logger        *zap.Logger
}

// RateLimiter decides whether a call may proceed. Each group with a
// RateLimitRule gets its own limiter when the RateLimiter is created.
type RateLimiter struct {
	cfg RateLimitConfig

	mu     sync.Mutex
	groups map[string]*ratelimit.FixedWindow
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = keying.ByActor()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	rl := &RateLimiter{cfg: cfg, groups: make(map[string]*ratelimit.FixedWindow)}
	for name, rule := range cfg.Resolver.RateLimits() {
		rl.group(name, rule)
	}
	return rl
}

func (rl *RateLimiter) group(name string, rule policy.RateLimitRule) *ratelimit.FixedWindow {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.groups[name]; ok {
		return l
	}
	var obs ratelimit.Observer
	if rl.cfg.GroupObserver != nil {
		obs = rl.cfg.GroupObserver(name)
	}
	l := ratelimit.NewFixedWindow(ratelimit.Config{
		Window:   rule.Window,
		Max:      rule.Max,
		Clock:    rl.cfg.Clock,
		Observer: obs,
		Logger:   rl.cfg.Logger.With(zap.String("group", name)),
	})
	rl.groups[name] = l
	return l
}

func (rl *RateLimiter) limiters() []*ratelimit.FixedWindow {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	out := make([]*ratelimit.FixedWindow, 0, len(rl.groups))
	for _, l := range rl.groups {
		out = append(out, l)
	}
	return out
}

// check returns the context annotated with the resolved group, and, on
// rejection, the error plus any trailer to send.
func (rl *RateLimiter) check(ctx context.Context, fullMethod string) (context.Context, metadata.MD, error) {
	if rl.cfg.Burst != nil && !rl.cfg.Burst.Allow() {
		return ctx, nil, errOverloaded
	}

	md, _ := metadata.FromIncomingContext(ctx)
	key, ok := rl.cfg.KeyFunc(ctx, md)
	if !ok {
		key = AnonymousKey
	}

	limiter, points := rl.cfg.Global, 1
	if name, pol, ok := rl.cfg.Resolver.Resolve(fullMethod); ok {
		ctx = contextx.WithGroup(ctx, name)
		if pol.RateLimit != nil {
			limiter = rl.group(name, *pol.RateLimit)
			points = pol.RateLimit.Cost()
		}
	}
	if limiter == nil || limiter.ConsumeContext(ctx, key, points) {
		return ctx, nil, nil
	}

	contextx.Logger(ctx).Debug("rate limited",
		zap.String("method", fullMethod),
		zap.String("key", key),
	)
	return ctx, rl.trailer(limiter, key), errRateLimited
}

func (rl *RateLimiter) trailer(limiter ratelimit.Consumer, key string) metadata.MD {
	b, ok := limiter.(budget)
	if !ok {
		return nil
	}
	remaining, reset := b.Remaining(key)
	md := metadata.Pairs(
		HeaderLimit, strconv.Itoa(b.Max()),
		HeaderRemaining, strconv.Itoa(remaining),
	)
	if !reset.IsZero() {
		secs := max(int(reset.Sub(rl.cfg.Clock.Now()).Round(time.Second)/time.Second), 0)
		md.Set(HeaderReset, strconv.Itoa(secs))
	}
	return md
}

// Sweep drops stale windows from every group limiter.
func (rl *RateLimiter) Sweep() int {
	n := 0
	for _, l := range rl.limiters() {
		n += l.Sweep()
	}
	return n
}

// Run sweeps each group limiter once per its own window until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, l := range rl.limiters() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Run(ctx)
		}()
	}
	wg.Wait()
}

// RateLimitUnary rejects calls over their limit with ResourceExhausted and
// x-ratelimit-* trailers.
func RateLimitUnary(rl *RateLimiter) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, trailer, err := rl.check(ctx, info.FullMethod)
		if err != nil {
			if trailer != nil {
				_ = grpc.SetTrailer(ctx, trailer)
			}
			return nil, err
		}
		return handler(ctx, req)
	}
}

// RateLimitStream is the stream counterpart of [RateLimitUnary]. A stream
// spends its points once, when it opens.
func RateLimitStream(rl *RateLimiter) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, trailer, err := rl.check(ss.Context(), info.FullMethod)
		if err != nil {
			if trailer != nil {
				ss.SetTrailer(trailer)
			}
			return err
		}
		return handler(srv, withContext(ss, ctx))
	}
}
