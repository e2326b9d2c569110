package policy

// Resolver picks the best-matching group for a full method name.
type Resolver struct {
	groups []*GroupBuilder
}

// NewResolver creates a Resolver over groups in registration order.
func NewResolver(groups ...*GroupBuilder) *Resolver {
	return &Resolver{groups: groups}
}

// Resolve returns the group that best matches fullMethod:
//   - exact beats prefix, prefix beats regex;
//   - within a kind the longer match wins;
//   - remaining ties go to the group registered first.
//
// A nil Resolver matches nothing. A group without a policy resolves to a
// zero Policy.
func (res *Resolver) Resolve(fullMethod string) (group string, pol Policy, ok bool) {
	if res == nil {
		return "", Policy{}, false
	}

	var (
		best     *GroupBuilder
		bestSpec specificity
	)
	for _, g := range res.groups {
		for i := range g.rules {
			spec, ok := g.rules[i].match(fullMethod)
			if ok && (best == nil || spec.beats(bestSpec)) {
				best, bestSpec = g, spec
			}
		}
	}
	if best == nil {
		return "", Policy{}, false
	}
	if best.policy != nil {
		pol = *best.policy
	}
	return best.name, pol, true
}

// IsPublic reports whether fullMethod resolves to a public group.
func (res *Resolver) IsPublic(fullMethod string) bool {
	_, pol, ok := res.Resolve(fullMethod)
	return ok && pol.Public
}

// RateLimits returns the rate-limit rule of every group that has one, keyed
// by group name. When two groups share a name the first registered wins.
func (res *Resolver) RateLimits() map[string]RateLimitRule {
	out := make(map[string]RateLimitRule)
	if res == nil {
		return out
	}
	for _, g := range res.groups {
		if _, seen := out[g.name]; seen || g.policy == nil || g.policy.RateLimit == nil {
			continue
		}
		out[g.name] = *g.policy.RateLimit
	}
	return out
}
