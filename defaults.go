package gorawrshaper

import "github.com/Keksclan/goRawrShaper/ratelimit"

// DefaultOptions returns the recommended set of options for production use:
// panic recovery and the global limit of 100 calls per caller every 15
// minutes.
func DefaultOptions() []Option {
	return []Option{
		WithRecovery(),
		WithRateLimit(ratelimit.GlobalConfig),
	}
}
