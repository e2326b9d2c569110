// Package interceptors holds the server-side gRPC interceptors installed by
// gorawrshaper.NewServer: panic recovery, request IDs, authentication and
// rate limiting, plus helpers to chain them.
package interceptors

import (
	"context"
	"slices"

	"google.golang.org/grpc"
)

// ChainUnary composes ics into one interceptor; ics[0] runs outermost. Nil
// entries are skipped. It returns nil when nothing is left to chain.
func ChainUnary(ics []grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	ics = slices.DeleteFunc(slices.Clone(ics), func(ic grpc.UnaryServerInterceptor) bool { return ic == nil })
	switch len(ics) {
	case 0:
		return nil
	case 1:
		return ics[0]
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		next := handler
		for i := len(ics) - 1; i > 0; i-- {
			ic, inner := ics[i], next
			next = func(ctx context.Context, req any) (any, error) {
				return ic(ctx, req, info, inner)
			}
		}
		return ics[0](ctx, req, info, next)
	}
}

// ChainStream is the stream counterpart of [ChainUnary].
func ChainStream(ics []grpc.StreamServerInterceptor) grpc.StreamServerInterceptor {
	ics = slices.DeleteFunc(slices.Clone(ics), func(ic grpc.StreamServerInterceptor) bool { return ic == nil })
	switch len(ics) {
	case 0:
		return nil
	case 1:
		return ics[0]
	}

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		next := handler
		for i := len(ics) - 1; i > 0; i-- {
			ic, inner := ics[i], next
			next = func(srv any, ss grpc.ServerStream) error {
				return ic(srv, ss, info, inner)
			}
		}
		return ics[0](srv, ss, info, next)
	}
}
