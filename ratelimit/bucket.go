package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// Bucket is a keyless token bucket. The server uses it as a process-wide
// burst gate in front of the keyed limiters, so a flood spread over many
// callers still cannot exceed what the process is sized for.
type Bucket struct {
	lim *rate.Limiter
}

// NewBucket creates a Bucket that refills at rps tokens per second and holds
// at most burst tokens.
func NewBucket(rps float64, burst int) *Bucket {
	return &Bucket{lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Allow reports whether a single request may proceed.
func (b *Bucket) Allow() bool {
	return b.lim.Allow()
}

// AllowN reports whether a request costing n tokens may proceed. Tokens are
// only taken when it returns true.
func (b *Bucket) AllowN(n int) bool {
	return b.lim.AllowN(time.Now(), n)
}
