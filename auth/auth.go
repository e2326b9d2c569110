// Package auth defines how the server identifies callers. An [AuthFunc]
// turns request metadata into a [contextx.Actor]; the auth interceptor
// stores that actor in the request context.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/Keksclan/goRawrShaper/contextx"
	"google.golang.org/grpc/metadata"
)

// APIKeyHeader is the metadata key read by [StaticAPIKeys].
const APIKeyHeader = "x-api-key"

var (
	// ErrMissingCredentials is returned when no credentials were sent.
	ErrMissingCredentials = errors.New("auth: missing credentials")
	// ErrInvalidCredentials is returned when credentials do not match.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// AuthFunc authenticates a call to fullMethod. Returning a gRPC status error
// lets the implementation choose the code; any other error is reported as
// Unauthenticated.
type AuthFunc func(ctx context.Context, fullMethod string, md metadata.MD) (contextx.Actor, error)

// StaticAPIKeys authenticates the x-api-key header against a fixed key →
// client ID table. Keys are compared in constant time.
func StaticAPIKeys(keys map[string]string) AuthFunc {
	type cred struct {
		key      []byte
		clientID string
	}
	creds := make([]cred, 0, len(keys))
	for k, id := range keys {
		creds = append(creds, cred{key: []byte(k), clientID: id})
	}

	return func(_ context.Context, _ string, md metadata.MD) (contextx.Actor, error) {
		vals := md.Get(APIKeyHeader)
		if len(vals) == 0 || strings.TrimSpace(vals[0]) == "" {
			return contextx.Actor{}, ErrMissingCredentials
		}
		got := []byte(strings.TrimSpace(vals[0]))

		var match string
		for _, c := range creds {
			if subtle.ConstantTimeCompare(got, c.key) == 1 {
				match = c.clientID
			}
		}
		if match == "" {
			return contextx.Actor{}, ErrInvalidCredentials
		}
		return contextx.Actor{ClientID: match}, nil
	}
}

// ParseAPIKeys parses "key=clientID" pairs separated by commas, the format
// of RAWR_API_KEYS. A pair without "=" uses the key as its own client ID.
func ParseAPIKeys(s string) map[string]string {
	out := make(map[string]string)
	for pair := range strings.SplitSeq(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, id, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok {
			id = key
		}
		if key != "" {
			out[key] = strings.TrimSpace(id)
		}
	}
	return out
}
