package cache

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Keksclan/goRawrShaper/breaker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// scanBatch is the SCAN COUNT hint and the DEL batch size used by prefix
// invalidation.
const scanBatch = 100

// L2 is a Redis-backed cache layer. All operations fail soft: if Redis is
// unavailable, methods return a miss (or silently discard the write) instead
// of surfacing the error to the caller. A circuit breaker stops calls to
// Redis after repeated failures so a dead Redis does not add latency to
// every request.
type L2 struct {
	rdb       *redis.Client
	namespace string
	br        *breaker.Breaker
	log       *zap.Logger
	sf        singleflight.Group
}

// L2Option configures an [L2].
type L2Option func(*L2)

// WithNamespace prefixes every Redis key written by the layer, so several
// caches can share one database.
func WithNamespace(ns string) L2Option {
	return func(l *L2) { l.namespace = ns }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *breaker.Breaker) L2Option {
	return func(l *L2) { l.br = b }
}

// WithL2Logger sets the logger used to report swallowed Redis errors.
func WithL2Logger(log *zap.Logger) L2Option {
	return func(l *L2) { l.log = log }
}

// NewL2 creates a new Redis-backed L2 cache on top of rdb.
func NewL2(rdb *redis.Client, opts ...L2Option) *L2 {
	l := &L2{rdb: rdb, log: zap.NewNop()}
	for _, o := range opts {
		o(l)
	}
	if l.br == nil {
		l.br = breaker.New(breaker.DefaultConfig())
	}
	return l
}

// Get retrieves a value by key. Returns (nil, false, nil) on a miss or when
// Redis is unreachable.
func (l *L2) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		val   []byte
		found bool
	)
	err := l.br.Do(func() error {
		var err error
		val, err = l.rdb.Get(ctx, l.namespace+key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			return nil
		case err != nil:
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		l.failSoft("get", key, err)
		return nil, false, nil
	}
	return val, found, nil
}

// getWithTTL is Get plus the key's remaining lifetime, read in one round
// trip. The lifetime is <= 0 when the key has no expiration.
func (l *L2) getWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool) {
	var (
		get  *redis.StringCmd
		pttl *redis.DurationCmd
	)
	err := l.br.Do(func() error {
		_, err := l.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
			get = p.Get(ctx, l.namespace+key)
			pttl = p.PTTL(ctx, l.namespace+key)
			return nil
		})
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	})
	if err != nil {
		l.failSoft("get", key, err)
		return nil, 0, false
	}
	val, err := get.Bytes()
	if err != nil {
		return nil, 0, false
	}
	return val, pttl.Val(), true
}

// Set stores a value under key with the given TTL. A zero TTL means the entry
// has no automatic expiration. Errors are discarded (fail soft).
func (l *L2) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	err := l.br.Do(func() error {
		return l.rdb.Set(ctx, l.namespace+key, val, ttl).Err()
	})
	if err != nil {
		l.failSoft("set", key, err)
	}
	return nil
}

// GetOrSet returns the cached value for key, calling loader once on a miss.
// Loader errors are returned; Redis errors are not.
func (l *L2) GetOrSet(ctx context.Context, key string, ttl time.Duration, loader func(context.Context) ([]byte, error)) ([]byte, error) {
	if v, ok, _ := l.Get(ctx, key); ok {
		return v, nil
	}

	v, err, _ := l.sf.Do(key, func() (any, error) {
		val, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		_ = l.Set(ctx, key, val, ttl)
		return val, nil
	})
	if err != nil {
		return nil, err
	}
	return bytes.Clone(v.([]byte)), nil
}

// Invalidate deletes key. Errors are discarded (fail soft).
func (l *L2) Invalidate(ctx context.Context, key string) error {
	err := l.br.Do(func() error {
		return l.rdb.Del(ctx, l.namespace+key).Err()
	})
	if err != nil {
		l.failSoft("invalidate", key, err)
	}
	return nil
}

// InvalidateByPrefix scans for keys starting with prefix and deletes them in
// batches. Errors are discarded (fail soft); entries that survive a failed
// scan still expire through their TTL.
func (l *L2) InvalidateByPrefix(ctx context.Context, prefix string) error {
	err := l.br.Do(func() error {
		iter := l.rdb.Scan(ctx, 0, escapeGlob(l.namespace+prefix)+"*", scanBatch).Iterator()
		batch := make([]string, 0, scanBatch)
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == scanBatch {
				if err := l.rdb.Del(ctx, batch...).Err(); err != nil {
					return err
				}
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if len(batch) > 0 {
			return l.rdb.Del(ctx, batch...).Err()
		}
		return nil
	})
	if err != nil {
		l.failSoft("invalidate_prefix", prefix, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (l *L2) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (l *L2) Close() error {
	return l.rdb.Close()
}

func (l *L2) failSoft(op, key string, err error) {
	if errors.Is(err, breaker.ErrOpen) {
		return
	}
	l.log.Warn("redis cache operation failed",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}

// globReplacer escapes the characters Redis MATCH patterns treat specially.
var globReplacer = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`?`, `\?`,
	`[`, `\[`,
	`]`, `\]`,
)

func escapeGlob(s string) string {
	return globReplacer.Replace(s)
}
