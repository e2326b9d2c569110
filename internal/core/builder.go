package core

import (
	"github.com/Keksclan/goRawrShaper/interceptors"
	"google.golang.org/grpc"
)

// ServerOptions chains the built interceptors and returns them as server
// options, followed by extra.
func (b *MiddlewareBuilder) ServerOptions(extra ...grpc.ServerOption) []grpc.ServerOption {
	unary, stream := b.Build()

	var opts []grpc.ServerOption
	if u := interceptors.ChainUnary(unary); u != nil {
		opts = append(opts, grpc.UnaryInterceptor(u))
	}
	if s := interceptors.ChainStream(stream); s != nil {
		opts = append(opts, grpc.StreamInterceptor(s))
	}
	return append(opts, extra...)
}
