package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// DefaultTTL is applied by [TTL.Set] unless overridden with [WithDefaultTTL].
const DefaultTTL = 5 * time.Minute

// entry is a cached value together with its lifetime.
type entry[V any] struct {
	value     V
	storedAt  time.Time
	expiresAt time.Time
}

// expired reports whether the entry is logically absent at now.
func (e entry[V]) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

type ttlConfig struct {
	defaultTTL    time.Duration
	sweepInterval time.Duration
	clock         clock.Clock
	observer      Observer
	logger        *zap.Logger
}

// TTLOption configures a [TTL] cache.
type TTLOption func(*ttlConfig)

// WithDefaultTTL sets the TTL used by [TTL.Set].
func WithDefaultTTL(d time.Duration) TTLOption {
	return func(c *ttlConfig) { c.defaultTTL = d }
}

// WithSweepInterval sets how often [TTL.Run] purges expired entries. It
// defaults to the default TTL.
func WithSweepInterval(d time.Duration) TTLOption {
	return func(c *ttlConfig) { c.sweepInterval = d }
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) TTLOption {
	return func(cfg *ttlConfig) { cfg.clock = c }
}

// WithObserver reports hits, misses and removals to o.
func WithObserver(o Observer) TTLOption {
	return func(c *ttlConfig) { c.observer = o }
}

// WithLogger sets the logger used by the background sweeper.
func WithLogger(l *zap.Logger) TTLOption {
	return func(c *ttlConfig) { c.logger = l }
}

// TTL is an in-memory key/value cache with per-entry expiration. Expired
// entries are removed lazily when read, and optionally by a sweeper started
// with [TTL.Run]. All methods are safe for concurrent use.
//
// A TTL of zero (or less) is accepted: the entry is stored already expired,
// so the next Get reports a miss and removes it.
type TTL[V any] struct {
	cfg ttlConfig

	mu      sync.Mutex
	entries map[string]entry[V]
}

// NewTTL creates an empty cache.
func NewTTL[V any](opts ...TTLOption) *TTL[V] {
	cfg := ttlConfig{
		defaultTTL: DefaultTTL,
		clock:      clock.New(),
		observer:   NoopObserver{},
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.sweepInterval <= 0 {
		cfg.sweepInterval = cfg.defaultTTL
	}
	return &TTL[V]{
		cfg:     cfg,
		entries: make(map[string]entry[V]),
	}
}

// Get returns the value stored under key if it has not expired. An expired
// entry is removed and reported as absent.
func (t *TTL[V]) Get(key string) (V, bool) {
	now := t.cfg.clock.Now()

	t.mu.Lock()
	e, ok := t.entries[key]
	expired := ok && e.expired(now)
	if expired {
		delete(t.entries, key)
	}
	t.mu.Unlock()

	var zero V
	switch {
	case !ok:
		t.cfg.observer.Miss()
		return zero, false
	case expired:
		t.cfg.observer.Expired()
		return zero, false
	}
	t.cfg.observer.Hit()
	return e.value, true
}

// Set stores value under key with the default TTL.
func (t *TTL[V]) Set(key string, value V) {
	t.SetWithTTL(key, value, t.cfg.defaultTTL)
}

// SetWithTTL stores value under key, replacing any existing entry and
// restarting its lifetime. Negative TTLs are treated as zero.
func (t *TTL[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	ttl = max(ttl, 0)
	now := t.cfg.clock.Now()

	t.mu.Lock()
	t.entries[key] = entry[V]{
		value:     value,
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}
	t.mu.Unlock()
}

// Invalidate removes key. It is a no-op if key is absent.
func (t *TTL[V]) Invalidate(key string) {
	t.mu.Lock()
	_, ok := t.entries[key]
	delete(t.entries, key)
	t.mu.Unlock()

	if ok {
		t.cfg.observer.Invalidated("key", 1)
	}
}

// InvalidateByPrefix removes every entry whose key starts with prefix and
// returns how many were removed. An empty prefix clears the cache.
func (t *TTL[V]) InvalidateByPrefix(prefix string) int {
	t.mu.Lock()
	n := 0
	for k := range t.entries {
		if strings.HasPrefix(k, prefix) {
			delete(t.entries, k)
			n++
		}
	}
	t.mu.Unlock()

	if n > 0 {
		t.cfg.observer.Invalidated("prefix", n)
	}
	return n
}

// Len returns the number of stored entries, including expired entries that
// have not been purged yet.
func (t *TTL[V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Sweep removes all expired entries and returns how many were removed.
func (t *TTL[V]) Sweep() int {
	now := t.cfg.clock.Now()

	t.mu.Lock()
	n := 0
	for k, e := range t.entries {
		if e.expired(now) {
			delete(t.entries, k)
			n++
		}
	}
	t.mu.Unlock()

	t.cfg.observer.Swept(n)
	return n
}

// Run sweeps expired entries at the configured interval until ctx is done.
// It blocks; callers usually start it in its own goroutine.
func (t *TTL[V]) Run(ctx context.Context) {
	ticker := t.cfg.clock.Ticker(t.cfg.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.Sweep(); n > 0 {
				t.cfg.logger.Debug("cache sweep", zap.Int("removed", n))
			}
		}
	}
}
