package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/Keksclan/goRawrShaper/breaker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// consumeScript applies the fixed-window rule atomically. KEYS[1] is the
// counter, ARGV is points, max and the window in milliseconds. The counter
// expires with its window, so Redis does the sweeping.
var consumeScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local points = tonumber(ARGV[1])
if points > tonumber(ARGV[2]) - current then
	return 0
end
redis.call("INCRBY", KEYS[1], points)
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
return 1
`)

// RedisConfig configures a [Redis] limiter.
type RedisConfig struct {
	// Prefix namespaces the counter keys.
	Prefix string
	Window time.Duration
	Max    int

	// Breaker guards Redis; a default breaker is used when nil.
	Breaker  *breaker.Breaker
	Observer Observer
	Logger   *zap.Logger
}

// Redis is a fixed-window limiter whose counters live in Redis, so that all
// replicas share one budget per key. It fails open: when Redis errors or its
// breaker is open, calls are allowed and the error is logged.
type Redis struct {
	rdb *redis.Client
	cfg RedisConfig
}

// NewRedis creates a Redis-backed limiter.
func NewRedis(rdb *redis.Client, cfg RedisConfig) *Redis {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Max <= 0 {
		cfg.Max = DefaultMax
	}
	if cfg.Breaker == nil {
		cfg.Breaker = breaker.New(breaker.DefaultConfig())
	}
	if cfg.Observer == nil {
		cfg.Observer = NoopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Redis{rdb: rdb, cfg: cfg}
}

// ConsumeContext implements [Consumer] with the same semantics as
// [FixedWindow.Consume].
func (r *Redis) ConsumeContext(ctx context.Context, key string, points int) bool {
	if points <= 0 {
		return true
	}

	var allowed bool
	err := r.cfg.Breaker.Do(func() error {
		n, err := consumeScript.Run(ctx, r.rdb,
			[]string{r.cfg.Prefix + key},
			points, r.cfg.Max, r.cfg.Window.Milliseconds(),
		).Int()
		allowed = n == 1
		return err
	})
	if err != nil {
		if !errors.Is(err, breaker.ErrOpen) {
			r.cfg.Logger.Warn("redis rate limit failed, allowing request",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		allowed = true
	}

	if allowed {
		r.cfg.Observer.Allowed()
	} else {
		r.cfg.Observer.Rejected()
	}
	return allowed
}

var (
	_ Consumer = (*FixedWindow)(nil)
	_ Consumer = (*Redis)(nil)
)
