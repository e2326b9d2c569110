package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// numShards must be a power of two.
const numShards = 32

// Config configures a [FixedWindow]. Zero values fall back to the defaults.
type Config struct {
	// Window is the length of each counting window.
	Window time.Duration
	// Max is the number of points a key may spend per window.
	Max int
	// SweepInterval is how often Run drops stale windows. Defaults to Window.
	SweepInterval time.Duration

	Clock    clock.Clock
	Observer Observer
	Logger   *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Max <= 0 {
		c.Max = DefaultMax
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = c.Window
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Observer == nil {
		c.Observer = NoopObserver{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// window is the counter of one key.
type window struct {
	count     int
	resetTime time.Time
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// FixedWindow is a fixed-window counter per key. A key's window starts on its
// first Consume and rolls over lazily on the first Consume after resetTime,
// so different keys run with independent phases.
//
// The keyspace is striped over independent shards so that operations on
// different keys rarely contend. All methods are safe for concurrent use.
type FixedWindow struct {
	cfg    Config
	shards [numShards]shard
}

// NewFixedWindow creates a limiter. Call [FixedWindow.Run] to garbage-collect
// windows of keys that stopped calling.
func NewFixedWindow(cfg Config) *FixedWindow {
	l := &FixedWindow{cfg: cfg.withDefaults()}
	for i := range l.shards {
		l.shards[i].windows = make(map[string]*window)
	}
	return l
}

// Window returns the configured window length.
func (l *FixedWindow) Window() time.Duration { return l.cfg.Window }

// Max returns the configured number of points per window.
func (l *FixedWindow) Max() int { return l.cfg.Max }

// Allow is Consume(key, 1).
func (l *FixedWindow) Allow(key string) bool {
	return l.Consume(key, 1)
}

// Consume spends points from key's budget for the current window. It returns
// false, without spending anything, when the budget cannot cover all of
// points. A non-positive points value is always allowed and changes nothing.
func (l *FixedWindow) Consume(key string, points int) bool {
	if points <= 0 {
		return true
	}
	now := l.cfg.Clock.Now()
	s := l.shardFor(key)

	s.mu.Lock()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetTime) {
		w = &window{resetTime: now.Add(l.cfg.Window)}
		s.windows[key] = w
	}
	allowed := points <= l.cfg.Max-w.count
	if allowed {
		w.count += points
	}
	s.mu.Unlock()

	if allowed {
		l.cfg.Observer.Allowed()
	} else {
		l.cfg.Observer.Rejected()
	}
	return allowed
}

// ConsumeContext implements [Consumer]; ctx is unused because Consume never
// blocks.
func (l *FixedWindow) ConsumeContext(_ context.Context, key string, points int) bool {
	return l.Consume(key, points)
}

// Remaining returns the points key may still spend in its current window and
// when that window resets. A key without a live window has the full budget
// and a zero reset time.
func (l *FixedWindow) Remaining(key string) (int, time.Time) {
	now := l.cfg.Clock.Now()
	s := l.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetTime) {
		return l.cfg.Max, time.Time{}
	}
	return l.cfg.Max - w.count, w.resetTime
}

// Len returns the number of tracked windows, including stale ones not yet
// swept.
func (l *FixedWindow) Len() int {
	n := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		n += len(s.windows)
		s.mu.Unlock()
	}
	return n
}

// Sweep drops every window whose reset time has passed and returns how many
// were dropped.
func (l *FixedWindow) Sweep() int {
	now := l.cfg.Clock.Now()
	n := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		for k, w := range s.windows {
			if !now.Before(w.resetTime) {
				delete(s.windows, k)
				n++
			}
		}
		s.mu.Unlock()
	}
	l.cfg.Observer.Swept(n)
	return n
}

// Run sweeps stale windows every SweepInterval until ctx is done.
func (l *FixedWindow) Run(ctx context.Context) {
	ticker := l.cfg.Clock.Ticker(l.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.cfg.Logger.Debug("rate limit sweep", zap.Int("removed", n))
			}
		}
	}
}

func (l *FixedWindow) shardFor(key string) *shard {
	return &l.shards[xxhash.Sum64String(key)&(numShards-1)]
}
