package interceptors

import (
	"context"

	"github.com/Keksclan/goRawrShaper/contextx"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "x-request-id"

const maxRequestIDLen = 128

// requestID reuses a caller-supplied ID when present and sane, else mints a
// UUIDv4.
func requestID(ctx context.Context) string {
	if id := contextx.RequestIDFromContext(ctx); id != "" {
		return id
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(RequestIDHeader); len(vals) > 0 && vals[0] != "" && len(vals[0]) <= maxRequestIDLen {
			return vals[0]
		}
	}
	return uuid.NewString()
}

func withRequestID(ctx context.Context, log *zap.Logger) (context.Context, string) {
	id := requestID(ctx)
	ctx = contextx.WithLogger(ctx, log)
	ctx = contextx.WithRequestID(ctx, id)
	return ctx, id
}

// RequestIDUnary ensures every call has a request ID, echoes it in the
// response header and attaches a logger carrying it to the context.
func RequestIDUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = zap.NewNop()
	}
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, id := withRequestID(ctx, log)
		// Fails outside a real server transport, e.g. in unit tests.
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, id))
		return handler(ctx, req)
	}
}

// RequestIDStream is the stream counterpart of [RequestIDUnary].
func RequestIDStream(log *zap.Logger) grpc.StreamServerInterceptor {
	if log == nil {
		log = zap.NewNop()
	}
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, id := withRequestID(ss.Context(), log)
		_ = ss.SetHeader(metadata.Pairs(RequestIDHeader, id))
		return handler(srv, withContext(ss, ctx))
	}
}
