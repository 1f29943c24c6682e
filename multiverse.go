package multiverse

import (
	"context"
	"strings"
	"sync"
)

// Multiverse is the full collection of code, branch parameters, and derived
// universes. It is an explicit value owned by the caller; there is no
// process-wide state. The code store and registry grow monotonically through
// AddCode; the universe set is derived, recomputed lazily after each change.
type Multiverse struct {
	mu     sync.Mutex
	opts   Options
	logger Logger

	// input is the shared upstream data, exposed to every statement as jq
	// input `.`. It must stay unmodified for the multiverse's lifetime;
	// evaluation never mutates it.
	input any

	steps  []codeStep
	reg    *registry
	codeFP string

	version          int
	universes        []Universe
	universesErr     error
	universesVersion int // version the cached expansion was computed at, -1 when dirty

	results    *resultCache
	defaultRes *ExecutionResult
}

// New creates a fresh multiverse: an empty code store and parameter registry
// over the given shared input value.
func New(input any, opts ...Options) *Multiverse {
	opt := DefaultOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	return &Multiverse{
		opts:             opt,
		logger:           opt.logger(),
		input:            input,
		reg:              newRegistry(),
		codeFP:           codeFingerprint(nil),
		universesVersion: -1,
		results:          newResultCache(),
	}
}

// AddCode parses a code fragment, merges its branch declarations, appends
// the step, invalidates cached results and eagerly executes the default
// universe for immediate feedback.
//
// Structural errors (parse failures, conflicting or duplicate declarations,
// unknown condition references) reject the fragment atomically: the code
// store and registry are left exactly as they were. Default-universe
// execution failures are not structural; they are recorded and inspectable
// via DefaultResult.
func (m *Multiverse) AddCode(ctx context.Context, fragment string) error {
	stmts, decls, err := parseFragment(fragment)
	if err != nil {
		return err
	}

	m.mu.Lock()
	staged := m.reg.clone()
	if err := staged.merge(decls); err != nil {
		m.mu.Unlock()
		return err
	}
	m.reg = staged
	m.steps = append(m.steps, codeStep{index: len(m.steps), source: fragment, stmts: stmts})
	m.version++
	m.codeFP = codeFingerprint(m.steps)
	m.universesVersion = -1
	m.results.invalidate()

	run := m.snapshotLocked()
	codeFP := m.codeFP
	version := m.version
	m.mu.Unlock()

	m.logger.Debugf("appended step %d, %d parameters registered", len(run.steps)-1, len(run.reg.params))

	// Default universe: first surviving option at each level, executed
	// synchronously so the caller sees the effect of the fragment they just
	// appended.
	var res *ExecutionResult
	labels, derr := run.reg.defaultAssignment()
	if derr != nil {
		res = &ExecutionResult{
			Status: StatusError,
			Err:    &ExecutionError{Step: -1, Cause: derr},
		}
	} else {
		res = run.run(ctx, 0, run.reg.assignmentMap(labels))
	}

	m.mu.Lock()
	if m.version == version {
		m.defaultRes = res
		if derr == nil && ctx.Err() == nil {
			m.results.put(codeFP, run.reg.assignmentFingerprint(res.Assignment), res)
		}
	}
	m.mu.Unlock()
	return nil
}

// Code returns the raw accumulated code text, unevaluated.
func (m *Multiverse) Code() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	sources := make([]string, len(m.steps))
	for i, s := range m.steps {
		sources[i] = s.source
	}
	return strings.Join(sources, "\n")
}

// Parameters returns the declared parameters with their option labels, both
// in declaration order.
func (m *Multiverse) Parameters() []ParameterInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reg.infos()
}

// Expand returns the ordered valid universe set. The expansion is derived
// state: recomputed lazily after a code append and cached until the next
// one, so two calls without an intervening AddCode return identical
// id-to-assignment tables. With no parameters declared there is exactly one
// universe, carrying an empty assignment.
func (m *Multiverse) Expand() ([]Universe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.universesVersion != m.version {
		m.universes, m.universesErr = m.reg.expand(m.opts.MaxUniverses)
		m.universesVersion = m.version
		if m.universesErr == nil {
			m.logger.Debugf("expanded %d universes from %d parameters", len(m.universes), len(m.reg.params))
		}
	}
	if m.universesErr != nil {
		return nil, m.universesErr
	}
	out := make([]Universe, len(m.universes))
	for i, u := range m.universes {
		a := make(map[string]string, len(u.Assignment))
		for k, v := range u.Assignment {
			a[k] = v
		}
		out[i] = Universe{ID: u.ID, Assignment: a}
	}
	return out, nil
}

// DefaultResult returns the result of the most recent default-universe run,
// or nil before any code has been appended. Its UniverseID is 0; see
// ExecutionResult.
func (m *Multiverse) DefaultResult() *ExecutionResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultRes
}

// snapshotLocked captures an immutable execution snapshot. Callers must hold
// m.mu. The runner shares the registry (replaced wholesale on merge, never
// mutated in place) and the steps slice (append-only, capacity clamped).
func (m *Multiverse) snapshotLocked() *runner {
	return &runner{
		steps:  m.steps[:len(m.steps):len(m.steps)],
		reg:    m.reg,
		input:  m.input,
		logger: m.logger,
	}
}
