package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Keksclan/goRawrShaper/breaker"
	"github.com/redis/go-redis/v9"
)

func redisLimiter(t *testing.T, window time.Duration, limit int) *Redis {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	if err := rdb.Ping(t.Context()).Err(); err != nil {
		t.Fatalf("cannot reach Redis at %s: %v", addr, err)
	}
	prefix := "rawrshaper-test:rl:" + t.Name() + ":"
	t.Cleanup(func() { _ = rdb.Del(context.Background(), prefix+"k").Err() })
	return NewRedis(rdb, RedisConfig{Prefix: prefix, Window: window, Max: limit})
}

func TestRedis_FixedWindow(t *testing.T) {
	l := redisLimiter(t, 300*time.Millisecond, 3)
	ctx := t.Context()

	var got []bool
	for range 4 {
		got = append(got, l.ConsumeContext(ctx, "k", 1))
	}
	if !got[0] || !got[1] || !got[2] || got[3] {
		t.Fatalf("consume results = %v, want [true true true false]", got)
	}

	time.Sleep(400 * time.Millisecond)
	if !l.ConsumeContext(ctx, "k", 1) {
		t.Fatal("expected a fresh window once the key expired")
	}
}

func TestRedis_NoPartialConsumption(t *testing.T) {
	l := redisLimiter(t, time.Minute, 3)
	ctx := t.Context()

	if l.ConsumeContext(ctx, "k", 5) {
		t.Fatal("Consume(5) with max 3 must be rejected")
	}
	if !l.ConsumeContext(ctx, "k", 3) {
		t.Fatal("rejected call must not have spent points")
	}
}

func TestRedis_FailsOpen(t *testing.T) {
	br := breaker.New(breaker.Config{FailureThreshold: 1, OpenTimeout: time.Minute})
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:1", MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	l := NewRedis(rdb, RedisConfig{Window: time.Second, Max: 1, Breaker: br})

	for i := range 3 {
		if !l.ConsumeContext(t.Context(), "k", 1) {
			t.Fatalf("call %d: expected fail-open allow", i)
		}
	}
	if s := br.State(); s != breaker.Open {
		t.Fatalf("expected breaker open, got %s", s)
	}
}
