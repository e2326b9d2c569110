package cache

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Keksclan/goRawrShaper/breaker"
	"github.com/redis/go-redis/v9"
)

func redisL2(t *testing.T) *L2 {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis integration test")
	}
	l2 := NewL2(redis.NewClient(&redis.Options{Addr: addr}), WithNamespace("rawrshaper-test:"))
	t.Cleanup(func() { _ = l2.Close() })
	if err := l2.Ping(t.Context()); err != nil {
		t.Fatalf("cannot reach Redis at %s: %v", addr, err)
	}
	return l2
}

func TestL2_GetSet(t *testing.T) {
	l2 := redisL2(t)
	ctx := t.Context()

	key := "test:l2:getset:" + t.Name()

	// Miss returns false.
	_, ok, err := l2.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if ok {
		t.Fatal("expected miss")
	}

	// Set then Get.
	if err := l2.Set(ctx, key, []byte("v1"), 10*time.Second); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	val, ok, err := l2.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !ok {
		t.Fatal("expected hit")
	}
	if string(val) != "v1" {
		t.Fatalf("got %q, want %q", val, "v1")
	}
}

func TestTiered_L1_L2_Loader(t *testing.T) {
	l2 := redisL2(t)
	l1 := mustNewL1(t)
	tc := NewTiered(l1, l2)
	ctx := t.Context()

	key := "test:tiered:" + t.Name()

	var calls atomic.Int32
	loader := func(_ context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("from-loader"), nil
	}

	// First call: loader invoked, stored in L1 and L2.
	v, err := tc.GetOrSet(ctx, key, 30*time.Second, loader)
	if err != nil {
		t.Fatalf("GetOrSet 1: %v", err)
	}
	if string(v) != "from-loader" {
		t.Fatalf("got %q, want %q", v, "from-loader")
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("loader called %d times, want 1", n)
	}

	// Second call is served from L1.
	v, err = tc.GetOrSet(ctx, key, 30*time.Second, loader)
	if err != nil {
		t.Fatalf("GetOrSet 2: %v", err)
	}
	if string(v) != "from-loader" {
		t.Fatalf("got %q, want %q", v, "from-loader")
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("loader called %d times, want 1", n)
	}

	// Evict L1, value should come from L2.
	l1Fresh := mustNewL1(t)
	tc2 := NewTiered(l1Fresh, l2)

	v, err = tc2.GetOrSet(ctx, key, 30*time.Second, loader)
	if err != nil {
		t.Fatalf("GetOrSet 3 (L2 hit): %v", err)
	}
	if string(v) != "from-loader" {
		t.Fatalf("got %q, want %q", v, "from-loader")
	}
	// Loader still called only once.
	if n := calls.Load(); n != 1 {
		t.Fatalf("loader called %d times, want 1", n)
	}
}

func TestTiered_PromotedEntryExpires(t *testing.T) {
	l2 := redisL2(t)
	l1 := mustNewL1(t)
	tc := NewTiered(l1, l2, WithPromoteTTL(200*time.Millisecond))
	ctx := t.Context()

	short := "test:tiered:short:" + t.Name()
	forever := "test:tiered:forever:" + t.Name()
	t.Cleanup(func() {
		_ = l2.Invalidate(context.Background(), short)
		_ = l2.Invalidate(context.Background(), forever)
	})

	// One entry expires in Redis before the ceiling, the other never does.
	_ = l2.Set(ctx, short, []byte("v"), 100*time.Millisecond)
	_ = l2.Set(ctx, forever, []byte("v"), 0)

	for _, key := range []string{short, forever} {
		if _, ok, _ := tc.Get(ctx, key); !ok {
			t.Fatalf("Get(%s): expected L2 hit", key)
		}
		if _, ok, _ := l1.Get(ctx, key); !ok {
			t.Fatalf("Get(%s): expected promotion into L1", key)
		}
	}

	// Another replica replaces the value without L1 hearing about it.
	_ = l2.Set(ctx, forever, []byte("v2"), 0)

	time.Sleep(150 * time.Millisecond)
	if _, ok, _ := l1.Get(ctx, short); ok {
		t.Fatal("promoted entry outlived its L2 TTL")
	}

	time.Sleep(150 * time.Millisecond)
	if _, ok, _ := l1.Get(ctx, forever); ok {
		t.Fatal("promoted entry outlived the promote TTL")
	}
	v, ok, _ := tc.Get(ctx, forever)
	if !ok || string(v) != "v2" {
		t.Fatalf("Get after expiry = %q, %v; want v2", v, ok)
	}
}

func TestL2_FailSoft(t *testing.T) {
	// Nothing listens here; operations must not panic or return errors.
	l2 := NewL2(redis.NewClient(&redis.Options{Addr: "localhost:1", MaxRetries: -1}))
	t.Cleanup(func() { _ = l2.Close() })

	ctx, cancel := context.WithTimeout(t.Context(), 500*time.Millisecond)
	defer cancel()

	_, ok, err := l2.Get(ctx, "no-such-key")
	if err != nil {
		t.Fatalf("expected nil error on unreachable Redis, got: %v", err)
	}
	if ok {
		t.Fatal("expected miss")
	}

	if err := l2.Set(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("expected nil error on unreachable Redis, got: %v", err)
	}
}

func TestL2_FailSoftOpensBreaker(t *testing.T) {
	br := breaker.New(breaker.Config{FailureThreshold: 2, OpenTimeout: time.Minute})
	l2 := NewL2(
		redis.NewClient(&redis.Options{Addr: "localhost:1", MaxRetries: -1}),
		WithBreaker(br),
	)
	t.Cleanup(func() { _ = l2.Close() })
	ctx := t.Context()

	for range 2 {
		if _, ok, err := l2.Get(ctx, "k"); ok || err != nil {
			t.Fatalf("expected soft miss, got ok=%v err=%v", ok, err)
		}
	}
	if s := br.State(); s != breaker.Open {
		t.Fatalf("expected breaker open after repeated failures, got %s", s)
	}

	// While open every call is a fast miss.
	if err := l2.InvalidateByPrefix(ctx, "tasks_"); err != nil {
		t.Fatalf("InvalidateByPrefix: %v", err)
	}
}

func TestL2_InvalidateByPrefix(t *testing.T) {
	l2 := redisL2(t)
	ctx := t.Context()

	prefix := "test:l2:prefix:" + t.Name() + ":"
	for _, k := range []string{"a", "b", "c"} {
		_ = l2.Set(ctx, prefix+k, []byte(k), 10*time.Second)
	}
	other := "test:l2:other:" + t.Name()
	_ = l2.Set(ctx, other, []byte("keep"), 10*time.Second)

	if err := l2.InvalidateByPrefix(ctx, prefix); err != nil {
		t.Fatalf("InvalidateByPrefix: %v", err)
	}
	for _, k := range []string{"a", "b", "c"} {
		if _, ok, _ := l2.Get(ctx, prefix+k); ok {
			t.Fatalf("%s should be gone", k)
		}
	}
	if _, ok, _ := l2.Get(ctx, other); !ok {
		t.Fatal("unrelated key should survive")
	}
	_ = l2.Invalidate(ctx, other)
}

func TestEscapeGlob(t *testing.T) {
	tests := []struct{ in, want string }{
		{"tasks_", "tasks_"},
		{"a*b", `a\*b`},
		{"q?[x]", `q\?\[x\]`},
		{`back\slash`, `back\\slash`},
	}
	for _, tt := range tests {
		if got := escapeGlob(tt.in); got != tt.want {
			t.Errorf("escapeGlob(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
