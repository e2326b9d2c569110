package contextx

import (
	"context"

	"go.uber.org/zap"
)

// WithLogger returns a copy of ctx carrying l. [WithRequestID] and
// [WithGroup] called afterwards add their values to it.
func WithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// Logger returns the request logger, or a no-op logger when none is set.
func Logger(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

func annotate(ctx context.Context, fields ...zap.Field) context.Context {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok && l != nil {
		return WithLogger(ctx, l.With(fields...))
	}
	return ctx
}
