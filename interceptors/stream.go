package interceptors

import (
	"context"

	"google.golang.org/grpc"
)

// serverStream overrides the context of a wrapped stream so stream
// interceptors can pass values downstream the way unary ones do.
type serverStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *serverStream) Context() context.Context { return s.ctx }

func withContext(ss grpc.ServerStream, ctx context.Context) grpc.ServerStream {
	return &serverStream{ServerStream: ss, ctx: ctx}
}
