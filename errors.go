package multiverse

import (
	"errors"
	"fmt"
)

// ErrNoValidUniverse is returned when every combination of options is pruned
// by branch conditions and the valid universe set is empty.
var ErrNoValidUniverse = errors.New("no valid universe satisfies all branch conditions")

// ParseError reports malformed branch syntax in a code fragment. The fragment
// is rejected as a whole and nothing is merged into the registry.
type ParseError struct {
	Offset int // byte offset into the fragment, -1 when unknown
	Msg    string
}

func (e *ParseError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("parse error at offset %d: %s", e.Offset, e.Msg)
	}
	return fmt.Sprintf("parse error: %s", e.Msg)
}

// DuplicateOptionLabelError reports two options of the same parameter sharing
// a label within a single branch declaration.
type DuplicateOptionLabelError struct {
	Parameter string
	Label     string
}

func (e *DuplicateOptionLabelError) Error() string {
	return fmt.Sprintf("duplicate option label %q for branch parameter %q", e.Label, e.Parameter)
}

// InconsistentBranchDefinitionError reports a re-declaration of an existing
// option label with a different expression or condition.
type InconsistentBranchDefinitionError struct {
	Parameter string
	Label     string
}

func (e *InconsistentBranchDefinitionError) Error() string {
	return fmt.Sprintf("branch parameter %q redefines option %q with a different expression or condition", e.Parameter, e.Label)
}

// UnknownParameterReferenceError reports a %when% condition referencing a
// parameter that is not declared before the condition's own parameter.
// Conditions may only look at parameters earlier in declaration order, so
// this is rejected at merge time rather than silently treated as true.
type UnknownParameterReferenceError struct {
	Parameter string // the parameter whose option carries the condition
	Reference string // the name the condition refers to
}

func (e *UnknownParameterReferenceError) Error() string {
	return fmt.Sprintf("condition on branch parameter %q references %q, which is not declared before it", e.Parameter, e.Reference)
}

// UniverseLimitError reports an expansion exceeding Options.MaxUniverses.
type UniverseLimitError struct {
	Count int // universes the expansion would have produced (lower bound)
	Limit int
}

func (e *UniverseLimitError) Error() string {
	return fmt.Sprintf("expansion produced %d universes, exceeding the configured limit of %d", e.Count, e.Limit)
}

// ExecutionError reports a failure while evaluating one universe's steps.
// It is confined to that universe: it is recorded on the ExecutionResult and
// surfaced through extraction, never raised from ExecuteAll.
type ExecutionError struct {
	UniverseID int // 0 for default-universe runs, see ExecutionResult
	Step       int // index of the failing step, -1 if the failure precedes step evaluation
	Cause      error
}

func (e *ExecutionError) Error() string {
	if e.Step < 0 {
		return fmt.Sprintf("universe %d: %v", e.UniverseID, e.Cause)
	}
	return fmt.Sprintf("universe %d: step %d: %v", e.UniverseID, e.Step, e.Cause)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}
