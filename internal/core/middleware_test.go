package core

import (
	"context"
	"slices"
	"testing"

	"google.golang.org/grpc"
)

func tagUnary(tag string, log *[]string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		*log = append(*log, tag)
		return handler(ctx, req)
	}
}

func run(t *testing.T, unary []grpc.UnaryServerInterceptor, log *[]string) {
	t.Helper()
	next := func(_ context.Context, req any) (any, error) {
		*log = append(*log, "handler")
		return req, nil
	}
	for i := len(unary) - 1; i >= 0; i-- {
		ic, inner := unary[i], next
		next = func(ctx context.Context, req any) (any, error) {
			return ic(ctx, req, &grpc.UnaryServerInfo{}, inner)
		}
	}
	if _, err := next(t.Context(), "req"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuildSortsByOrder(t *testing.T) {
	var log []string
	var b MiddlewareBuilder
	b.Add(OrderRateLimit, tagUnary("ratelimit", &log), nil)
	b.Add(OrderRecovery, tagUnary("recovery", &log), nil)
	b.Add(OrderAuth, tagUnary("auth", &log), nil)
	b.Add(OrderRequestID, tagUnary("requestid", &log), nil)

	unary, stream := b.Build()
	if len(stream) != 0 {
		t.Fatalf("expected no stream interceptors, got %d", len(stream))
	}
	run(t, unary, &log)

	want := []string{"recovery", "requestid", "auth", "ratelimit", "handler"}
	if !slices.Equal(log, want) {
		t.Fatalf("got %v, want %v", log, want)
	}
}

func TestBuildStableForEqualOrder(t *testing.T) {
	var log []string
	var b MiddlewareBuilder
	for _, tag := range []string{"first", "second", "third"} {
		b.Add(OrderUser, tagUnary(tag, &log), nil)
	}

	unary, _ := b.Build()
	run(t, unary, &log)

	if want := []string{"first", "second", "third", "handler"}; !slices.Equal(log, want) {
		t.Fatalf("got %v, want %v", log, want)
	}
}

func TestServerOptions(t *testing.T) {
	var b MiddlewareBuilder
	if opts := b.ServerOptions(); len(opts) != 0 {
		t.Fatalf("empty builder should yield no options, got %d", len(opts))
	}

	var log []string
	b.Add(OrderRecovery, tagUnary("a", &log), func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, h grpc.StreamHandler) error {
		return h(srv, ss)
	})
	opts := b.ServerOptions(grpc.MaxRecvMsgSize(1 << 20))
	if len(opts) != 3 {
		t.Fatalf("expected unary, stream and extra option, got %d", len(opts))
	}
	if b.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", b.Len())
	}
}
