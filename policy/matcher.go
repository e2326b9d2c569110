package policy

import "strings"

// specificity ranks a rule match. Lower kinds are more specific; within a
// kind a longer match is.
type specificity struct {
	kind   matchKind
	length int
}

func (s specificity) beats(o specificity) bool {
	return s.kind < o.kind || (s.kind == o.kind && s.length > o.length)
}

// match reports how specifically r matches fullMethod.
func (r *rule) match(fullMethod string) (specificity, bool) {
	switch r.kind {
	case kindExact:
		if fullMethod != r.pattern {
			return specificity{}, false
		}
	case kindPrefix:
		if !strings.HasPrefix(fullMethod, r.pattern) {
			return specificity{}, false
		}
	case kindRegex:
		loc := r.re.FindStringIndex(fullMethod)
		if loc == nil {
			return specificity{}, false
		}
		return specificity{kind: kindRegex, length: loc[1] - loc[0]}, true
	}
	return specificity{kind: r.kind, length: len(r.pattern)}, true
}
