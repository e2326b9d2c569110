// Package ratelimit bounds how many operations a caller may perform.
//
// [FixedWindow] is the keyed fixed-window counter used to cap calls per
// caller. [Redis] implements the same algorithm on top of Redis for
// deployments with several replicas, and [Bucket] is a keyless token bucket
// used as an optional process-wide burst gate.
package ratelimit

import (
	"context"
	"time"
)

const (
	// DefaultWindow applies when a Config leaves Window unset.
	DefaultWindow = time.Minute
	// DefaultMax applies when a Config leaves Max unset.
	DefaultMax = 100
)

// GlobalConfig is the configuration of the application-wide limiter: 100
// points per caller every 15 minutes.
var GlobalConfig = Config{Window: 15 * time.Minute, Max: 100}

// Consumer is implemented by keyed limiters. ConsumeContext reports whether
// points may be spent by key; on false nothing was spent.
type Consumer interface {
	ConsumeContext(ctx context.Context, key string, points int) bool
}

// Observer receives limiter decisions. Implementations must be safe for
// concurrent use.
type Observer interface {
	Allowed()
	Rejected()
	Swept(n int)
}

// NoopObserver ignores all events.
type NoopObserver struct{}

func (NoopObserver) Allowed()  {}
func (NoopObserver) Rejected() {}
func (NoopObserver) Swept(int) {}
