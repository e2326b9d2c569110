package contextx

import (
	"context"

	"go.uber.org/zap"
)

// WithGroup records the policy group a method resolved to. The request
// logger, if ctx has one, gains a "group" field.
func WithGroup(ctx context.Context, group string) context.Context {
	ctx = context.WithValue(ctx, groupKey, group)
	return annotate(ctx, zap.String("group", group))
}

// GroupFromContext returns the policy group, or "" when the method did not
// match one.
func GroupFromContext(ctx context.Context) string {
	g, _ := ctx.Value(groupKey).(string)
	return g
}
