package cache

import (
	"bytes"
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultPromoteTTL bounds how long a value copied from L2 into L1 may live.
const DefaultPromoteTTL = time.Minute

// Tiered combines an L1 (in-process) and L2 (Redis) cache. Reads check L1
// first, then L2, then the loader. Writes and invalidations hit both layers,
// L2 first so that a concurrent L1 miss cannot re-promote a stale value.
//
// L1 is not told about invalidations made by other processes, so a promoted
// copy lives no longer than the L2 entry's remaining TTL and never longer
// than the promote TTL.
type Tiered struct {
	l1      *L1
	l2      *L2
	promote time.Duration
	sf      singleflight.Group
}

// TieredOption configures a [Tiered].
type TieredOption func(*Tiered)

// WithPromoteTTL sets the ceiling on the TTL of values promoted from L2.
// Non-positive values keep [DefaultPromoteTTL].
func WithPromoteTTL(d time.Duration) TieredOption {
	return func(t *Tiered) {
		if d > 0 {
			t.promote = d
		}
	}
}

// NewTiered creates a two-level cache.
func NewTiered(l1 *L1, l2 *L2, opts ...TieredOption) *Tiered {
	t := &Tiered{l1: l1, l2: l2, promote: DefaultPromoteTTL}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Get checks L1, then L2. An L2 hit is promoted into L1 for the shorter of
// the entry's remaining Redis TTL and the promote TTL.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok, err := t.l1.Get(ctx, key); err != nil || ok {
		return v, ok, err
	}
	v, remaining, ok := t.l2.getWithTTL(ctx, key)
	if !ok {
		return nil, false, nil
	}
	_ = t.l1.Set(ctx, key, v, promoteTTL(remaining, t.promote))
	return v, true, nil
}

// promoteTTL returns the L1 lifetime for a value whose L2 copy expires in
// remaining. Redis reports a non-positive remaining for keys without expiry.
func promoteTTL(remaining, ceiling time.Duration) time.Duration {
	if remaining <= 0 {
		return ceiling
	}
	return min(remaining, ceiling)
}

// Set writes the value to both L2 and L1.
func (t *Tiered) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	_ = t.l2.Set(ctx, key, val, ttl)
	return t.l1.Set(ctx, key, val, ttl)
}

// GetOrSet follows the L1 → L2 → loader pattern, deduplicating concurrent
// loads for the same key.
func (t *Tiered) GetOrSet(ctx context.Context, key string, ttl time.Duration, loader func(context.Context) ([]byte, error)) ([]byte, error) {
	if v, ok, _ := t.l1.Get(ctx, key); ok {
		return v, nil
	}

	if v, remaining, ok := t.l2.getWithTTL(ctx, key); ok {
		_ = t.l1.Set(ctx, key, v, promoteTTL(remaining, t.promote))
		return bytes.Clone(v), nil
	}

	v, err, _ := t.sf.Do(key, func() (any, error) {
		val, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		_ = t.l2.Set(ctx, key, val, ttl)
		_ = t.l1.Set(ctx, key, val, ttl)
		return val, nil
	})
	if err != nil {
		return nil, err
	}
	return bytes.Clone(v.([]byte)), nil
}

// Invalidate removes key from both layers.
func (t *Tiered) Invalidate(ctx context.Context, key string) error {
	_ = t.l2.Invalidate(ctx, key)
	return t.l1.Invalidate(ctx, key)
}

// InvalidateByPrefix removes every key starting with prefix from both layers.
func (t *Tiered) InvalidateByPrefix(ctx context.Context, prefix string) error {
	_ = t.l2.InvalidateByPrefix(ctx, prefix)
	return t.l1.InvalidateByPrefix(ctx, prefix)
}
