package contextx

import (
	"context"

	"go.uber.org/zap"
)

// WithRequestID returns a copy of ctx carrying id, with "request_id" added
// to the request logger when there is one.
func WithRequestID(ctx context.Context, id string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, id)
	return annotate(ctx, zap.String("request_id", id))
}

// RequestIDFromContext returns the request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
