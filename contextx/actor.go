package contextx

import (
	"context"
	"slices"
)

// Actor is the authenticated caller behind a request. The auth interceptor
// stores it with [WithActor]; handlers and the rate limiter read it back
// with [ActorFromContext].
//
//	ctx = contextx.WithActor(ctx, contextx.Actor{ClientID: "planner-agent"})
type Actor struct {
	// ClientID identifies the calling application or agent.
	ClientID string
	// Subject identifies the end user, if any.
	Subject string
	Scopes  []string
}

// Key returns a stable identity for per-caller bookkeeping: the client ID,
// else the subject. It is empty for an anonymous actor.
func (a Actor) Key() string {
	if a.ClientID != "" {
		return a.ClientID
	}
	return a.Subject
}

// HasScope reports whether the actor was granted scope.
func (a Actor) HasScope(scope string) bool {
	return slices.Contains(a.Scopes, scope)
}

// WithActor returns a copy of ctx carrying a.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext returns the Actor stored in ctx, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}
