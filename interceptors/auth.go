package interceptors

import (
	"context"

	"github.com/Keksclan/goRawrShaper/auth"
	"github.com/Keksclan/goRawrShaper/contextx"
	"github.com/Keksclan/goRawrShaper/policy"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var errUnauthenticated = status.Error(codes.Unauthenticated, "unauthenticated")

// authError keeps status errors from the AuthFunc and hides everything else
// behind a bare Unauthenticated.
func authError(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	return errUnauthenticated
}

func authenticate(ctx context.Context, fn auth.AuthFunc, r *policy.Resolver, fullMethod string) (context.Context, error) {
	if r.IsPublic(fullMethod) {
		return ctx, nil
	}
	md, _ := metadata.FromIncomingContext(ctx)
	actor, err := fn(ctx, fullMethod, md)
	if err != nil {
		contextx.Logger(ctx).Debug("authentication failed")
		return nil, authError(err)
	}
	return contextx.WithActor(ctx, actor), nil
}

// AuthUnary authenticates every call whose method does not resolve to a
// public policy group and stores the resulting actor in the context. r may
// be nil, in which case every method is authenticated.
func AuthUnary(fn auth.AuthFunc, r *policy.Resolver) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := authenticate(ctx, fn, r, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// AuthStream is the stream counterpart of [AuthUnary].
func AuthStream(fn auth.AuthFunc, r *policy.Resolver) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := authenticate(ss.Context(), fn, r, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, withContext(ss, ctx))
	}
}
