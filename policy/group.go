// Package policy maps full gRPC method names to per-group settings: whether
// the method is public and which fixed-window rate limit applies to it.
package policy

import (
	"regexp"
	"time"
)

// RateLimitRule is a fixed-window limit shared by every method in a group.
// Each caller key gets its own window.
type RateLimitRule struct {
	// Window is the length of one counting window.
	Window time.Duration
	// Max is the number of points a caller may spend per window.
	Max int
	// Points is the cost of one call. Zero means 1.
	Points int
}

// Cost returns the points one call spends.
func (r RateLimitRule) Cost() int {
	if r.Points <= 0 {
		return 1
	}
	return r.Points
}

// Policy holds the settings for a matched method group.
type Policy struct {
	// RateLimit overrides the server-wide limiter when set.
	RateLimit *RateLimitRule
	// Public methods skip authentication.
	Public bool
}

type matchKind int

const (
	kindExact matchKind = iota
	kindPrefix
	kindRegex
)

type rule struct {
	kind    matchKind
	pattern string
	re      *regexp.Regexp
}

// GroupBuilder collects matching rules and the policy for one named group.
type GroupBuilder struct {
	name   string
	rules  []rule
	policy *Policy
}

// Group starts a new method group.
func Group(name string) *GroupBuilder {
	return &GroupBuilder{name: name}
}

// Name returns the group name.
func (g *GroupBuilder) Name() string { return g.name }

// Exact matches fullMethod exactly, e.g. "/rawr.shaper.v1.Tasks/ListTasks".
func (g *GroupBuilder) Exact(method string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindExact, pattern: method})
	return g
}

// Prefix matches every method starting with prefix, e.g. "/rawr.shaper.v1.Tasks/".
func (g *GroupBuilder) Prefix(prefix string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindPrefix, pattern: prefix})
	return g
}

// Regex matches methods containing a match for expr. It panics if expr does
// not compile.
func (g *GroupBuilder) Regex(expr string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindRegex, pattern: expr, re: regexp.MustCompile(expr)})
	return g
}

// Policy sets the group's policy.
func (g *GroupBuilder) Policy(p Policy) *GroupBuilder {
	g.policy = &p
	return g
}
