package interceptors

import (
	"context"

	"github.com/Keksclan/goRawrShaper/contextx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errInternal = status.Error(codes.Internal, "internal server error")

func logPanic(ctx context.Context, log *zap.Logger, method string, r any) {
	if id := contextx.RequestIDFromContext(ctx); id != "" {
		log = log.With(zap.String("request_id", id))
	}
	log.Error("panic in handler",
		zap.String("method", method),
		zap.Any("panic", r),
		zap.Stack("stack"),
	)
}

// RecoveryUnary turns a handler panic into codes.Internal and logs it with
// its stack. A nil logger disables logging.
func RecoveryUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = zap.NewNop()
	}
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logPanic(ctx, log, info.FullMethod, r)
				resp, err = nil, errInternal
			}
		}()
		return handler(ctx, req)
	}
}

// RecoveryStream is the stream counterpart of [RecoveryUnary].
func RecoveryStream(log *zap.Logger) grpc.StreamServerInterceptor {
	if log == nil {
		log = zap.NewNop()
	}
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		defer func() {
			if r := recover(); r != nil {
				ctx := context.Background()
				if ss != nil {
					ctx = ss.Context()
				}
				logPanic(ctx, log, info.FullMethod, r)
				err = errInternal
			}
		}()
		return handler(srv, ss)
	}
}
