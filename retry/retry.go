package retry

import (
	"context"
	"slices"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Config controls [Do].
type Config struct {
	// MaxAttempts counts the first call. Values ≤ 1 disable retries.
	MaxAttempts int

	// BaseDelay is the delay before the first retry; retry n waits
	// BaseDelay * 2^n.
	BaseDelay time.Duration

	// MaxDelay caps the back-off. Zero means uncapped.
	MaxDelay time.Duration

	// Jitter spreads each delay by ± this fraction (0.2 = ±20 %).
	Jitter float64

	// Retryable decides whether err is worth another attempt. A nil
	// predicate retries nothing.
	Retryable func(error) bool
}

// DefaultConfig is a short schedule suited to a local database round trip.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   20 * time.Millisecond,
		MaxDelay:    200 * time.Millisecond,
		Jitter:      0.2,
	}
}

// GRPCCodes returns a predicate matching gRPC status errors carrying one of
// the given codes.
func GRPCCodes(cs ...codes.Code) func(error) bool {
	return func(err error) bool {
		st, ok := status.FromError(err)
		return ok && slices.Contains(cs, st.Code())
	}
}

// Do calls fn until it succeeds, returns a non-retryable error or
// cfg.MaxAttempts is reached. The last error is returned as is. If ctx ends
// while waiting between attempts, Do returns ctx.Err().
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.MaxAttempts, 1)

	for i := range attempts {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if i == attempts-1 || cfg.Retryable == nil || !cfg.Retryable(err) {
			return zero, err
		}

		timer := time.NewTimer(backoff(cfg, i))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, nil
}
