package cache

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"
)

// L1 is an in-process cache backed by ristretto.
//
// Ristretto cannot enumerate its keys, so L1 keeps an index of written keys
// for prefix invalidation. Keys evicted by ristretto stay in the index until
// the next prune, which runs once the index grows past twice the capacity.
type L1 struct {
	rc      *ristretto.Cache[string, []byte]
	maxCost int64
	sf      singleflight.Group

	// mu guards keys and serialises writes so the index never loses a key
	// that is concurrently being stored.
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewL1 creates a new L1 cache. maxCost controls the maximum cost the cache
// can hold (each entry has a cost of 1).
func NewL1(maxCost int64) (*L1, error) {
	rc, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        maxCost * 10,
		MaxCost:            maxCost,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &L1{
		rc:      rc,
		maxCost: maxCost,
		keys:    make(map[string]struct{}),
	}, nil
}

// Get retrieves a value by key.
func (l *L1) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := l.rc.Get(key)
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

// Set stores a value under key with the given TTL.
func (l *L1) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rc.SetWithTTL(key, bytes.Clone(val), 1, ttl)
	l.rc.Wait()
	l.keys[key] = struct{}{}
	if int64(len(l.keys)) > 2*l.maxCost {
		l.pruneLocked()
	}
	return nil
}

// GetOrSet returns the cached value for key. On a miss it calls loader once
// (deduplicating concurrent callers for the same key), stores the result, and
// returns it.
func (l *L1) GetOrSet(ctx context.Context, key string, ttl time.Duration, loader func(context.Context) ([]byte, error)) ([]byte, error) {
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

// Invalidate removes key.
func (l *L1) Invalidate(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rc.Del(key)
	l.rc.Wait()
	delete(l.keys, key)
	return nil
}

// InvalidateByPrefix removes every indexed key starting with prefix.
func (l *L1) InvalidateByPrefix(_ context.Context, prefix string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for k := range l.keys {
		if strings.HasPrefix(k, prefix) {
			l.rc.Del(k)
			delete(l.keys, k)
		}
	}
	l.rc.Wait()
	return nil
}

// Close stops ristretto's background goroutines.
func (l *L1) Close() {
	l.rc.Close()
}

// pruneLocked drops index entries ristretto no longer holds. Must be called
// with l.mu held.
func (l *L1) pruneLocked() {
	for k := range l.keys {
		if _, ok := l.rc.Get(k); !ok {
			delete(l.keys, k)
		}
	}
}
