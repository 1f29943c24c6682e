package multiverse

import "github.com/itchyny/gojq"

// Option is one concrete choice for a branch parameter. It carries the jq
// expression substituted at the branch site and an optional eligibility
// condition over earlier parameters' chosen labels.
type Option struct {
	Label      string
	Expression string
	Condition  string // "" means always eligible

	// cond is the compiled condition, nil when Condition is empty. It is
	// compiled at merge time against exactly the parameters declared before
	// this option's parameter, in declaration order.
	cond *gojq.Code
}

// Parameter is a declared decision point: a name with its ordered options.
// Option order preserves declaration order and determines default selection.
type Parameter struct {
	Name    string
	Options []Option

	// index is the parameter's position in first-seen declaration order.
	index int
}

// option returns the option with the given label, or nil.
func (p *Parameter) option(label string) *Option {
	for i := range p.Options {
		if p.Options[i].Label == label {
			return &p.Options[i]
		}
	}
	return nil
}

// ParameterInfo is the read-only view of a parameter returned by Parameters.
type ParameterInfo struct {
	Name    string
	Options []string
}

// Universe is one concrete combination of option choices, one per parameter,
// satisfying all conditions. IDs are 1-based in generation order and stable
// for a given code state; they are renumbered whenever code is appended.
type Universe struct {
	ID         int
	Assignment map[string]string // parameter name -> chosen option label
}

// ExecutionStatus reports how a universe's run terminated.
type ExecutionStatus int

const (
	StatusSuccess ExecutionStatus = iota
	StatusError
)

func (s ExecutionStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ExecutionResult holds the bindings produced by evaluating one universe's
// steps. On failure, bindings produced by steps before the failing one remain
// available for extraction.
//
// UniverseID is 0 for default-universe runs: the default universe is executed
// without materializing the full universe set, so its ordinal is only known
// relative to a later expansion. Extraction joins results by assignment, not
// by id.
type ExecutionResult struct {
	UniverseID int
	Assignment map[string]string
	Bindings   map[string]any
	Status     ExecutionStatus
	Err        *ExecutionError // nil on success
}

// codeStep is one appended code fragment, pre-scanned into statements with
// their branch sites.
type codeStep struct {
	index  int
	source string
	stmts  []statement
}

// statement is one binding statement or bare expression within a step.
type statement struct {
	lhs   string // binding name, "" for bare expressions
	expr  string // jq source with branch sites still in place
	sites []branchSite
}

// branchSite is one branch(...) occurrence inside a statement, recorded as a
// byte range over the statement's expr for later substitution.
type branchSite struct {
	param      string
	start, end int
}
