package multiverse

import (
	"fmt"

	"github.com/itchyny/gojq"
)

// expand computes the ordered set of valid universes from the registry.
//
// Parameters are processed in declaration order over a frontier of partial
// assignments: each surviving partial is extended with every option whose
// condition holds under it, and partials with no surviving extension are
// dropped. This prunes whole subtrees instead of filtering the full
// Cartesian product after the fact, but yields exactly the same set. The
// result is deterministic: ids are assigned 1-based in generation order.
func (r *registry) expand(maxUniverses int) ([]Universe, error) {
	frontier := [][]string{{}}
	for _, p := range r.params {
		next := make([][]string, 0, len(frontier))
		for _, partial := range frontier {
			for i := range p.Options {
				opt := &p.Options[i]
				ok, err := condTrue(opt.cond, partial)
				if err != nil {
					return nil, fmt.Errorf("evaluating condition for %s.%s: %w", p.Name, opt.Label, err)
				}
				if !ok {
					continue
				}
				ext := make([]string, len(partial), len(partial)+1)
				copy(ext, partial)
				next = append(next, append(ext, opt.Label))
			}
		}
		if len(next) == 0 {
			return nil, ErrNoValidUniverse
		}
		if maxUniverses > 0 && len(next) > maxUniverses {
			return nil, &UniverseLimitError{Count: len(next), Limit: maxUniverses}
		}
		frontier = next
	}

	universes := make([]Universe, len(frontier))
	for i, labels := range frontier {
		universes[i] = Universe{ID: i + 1, Assignment: r.assignmentMap(labels)}
	}
	return universes, nil
}

// defaultAssignment selects the default universe: for each parameter in
// declaration order, the first declared option whose condition holds under
// the choices made so far. When the greedy walk completes it is by
// construction a member of the valid universe set; a dead end surfaces as
// ErrNoValidUniverse even if backtracking could have found a universe,
// since the default exists for cheap interactive feedback, not search.
func (r *registry) defaultAssignment() ([]string, error) {
	labels := make([]string, 0, len(r.params))
	for _, p := range r.params {
		chosen := ""
		for i := range p.Options {
			opt := &p.Options[i]
			ok, err := condTrue(opt.cond, labels)
			if err != nil {
				return nil, fmt.Errorf("evaluating condition for %s.%s: %w", p.Name, opt.Label, err)
			}
			if ok {
				chosen = opt.Label
				break
			}
		}
		if chosen == "" {
			return nil, fmt.Errorf("no eligible option for parameter %q under the default choices: %w", p.Name, ErrNoValidUniverse)
		}
		labels = append(labels, chosen)
	}
	return labels, nil
}

// condTrue evaluates a compiled option condition under the labels chosen for
// the parameters declared before the option's own. A nil condition is always
// true; otherwise the first output must be jq-truthy (neither false nor
// null). An empty output stream counts as false.
func condTrue(code *gojq.Code, labels []string) (bool, error) {
	if code == nil {
		return true, nil
	}
	vals := make([]any, len(labels))
	for i, l := range labels {
		vals[i] = l
	}
	iter := code.Run(nil, vals...)
	v, ok := iter.Next()
	if !ok {
		return false, nil
	}
	if err, isErr := v.(error); isErr {
		return false, err
	}
	return v != nil && v != false, nil
}
