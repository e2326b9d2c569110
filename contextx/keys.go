// Package contextx carries request-scoped values (caller identity, request
// ID, rate-limit group and a request logger) through a context.Context.
package contextx

type contextKey int

const (
	actorKey contextKey = iota
	requestIDKey
	groupKey
	loggerKey
)
