// Package cache provides the caches used to avoid redundant upstream
// fetches.
//
// [TTL] is the generic in-process cache with per-entry expiration that the
// task service reads through. [Cache] is the byte-oriented contract for
// shared deployments, implemented by an in-process L1 backed by ristretto, a
// Redis-backed L2, and a [Tiered] combination of both.
package cache

import (
	"context"
	"time"
)

// Cache is the byte-oriented caching contract shared by L1, L2 and Tiered.
type Cache interface {
	// Get retrieves a value by key. The boolean indicates a cache hit.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value under key with the given TTL. A zero TTL means the
	// entry has no automatic expiration.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error

	// GetOrSet returns the cached value for key. On a cache miss it calls
	// loader once (concurrent callers for the same key share the call),
	// stores the result, and returns it.
	GetOrSet(ctx context.Context, key string, ttl time.Duration, loader func(context.Context) ([]byte, error)) ([]byte, error)

	// Invalidate removes key. Removing an absent key is not an error.
	Invalidate(ctx context.Context, key string) error

	// InvalidateByPrefix removes every key starting with prefix.
	InvalidateByPrefix(ctx context.Context, prefix string) error
}

var (
	_ Cache = (*L1)(nil)
	_ Cache = (*L2)(nil)
	_ Cache = (*Tiered)(nil)
)
