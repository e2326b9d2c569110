// Package core assembles interceptors into gRPC server options in a fixed,
// priority-driven order, independent of the order options were applied.
package core

import (
	"cmp"
	"slices"

	"google.golang.org/grpc"
)

// Priorities of the built-in middleware. Lower runs first (outermost).
const (
	OrderRecovery  = 100
	OrderRequestID = 200
	OrderTracing   = 300
	OrderAuth      = 400
	OrderRateLimit = 500
	OrderUser      = 1000
)

type middleware struct {
	unary  grpc.UnaryServerInterceptor
	stream grpc.StreamServerInterceptor
	order  int
}

// MiddlewareBuilder collects interceptor pairs with their priority. The zero
// value is ready to use.
type MiddlewareBuilder struct {
	entries []middleware
}

// Add registers an interceptor pair at order. Either side may be nil.
func (b *MiddlewareBuilder) Add(order int, unary grpc.UnaryServerInterceptor, stream grpc.StreamServerInterceptor) {
	b.entries = append(b.entries, middleware{unary: unary, stream: stream, order: order})
}

// Len returns the number of registered pairs.
func (b *MiddlewareBuilder) Len() int { return len(b.entries) }

// Build returns the interceptors sorted by order; equal orders keep their
// registration order.
func (b *MiddlewareBuilder) Build() ([]grpc.UnaryServerInterceptor, []grpc.StreamServerInterceptor) {
	entries := slices.Clone(b.entries)
	slices.SortStableFunc(entries, func(a, c middleware) int {
		return cmp.Compare(a.order, c.order)
	})

	var (
		unary  []grpc.UnaryServerInterceptor
		stream []grpc.StreamServerInterceptor
	)
	for _, m := range entries {
		if m.unary != nil {
			unary = append(unary, m.unary)
		}
		if m.stream != nil {
			stream = append(stream, m.stream)
		}
	}
	return unary, stream
}
