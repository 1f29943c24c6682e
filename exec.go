package multiverse

import (
	"context"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
	"golang.org/x/sync/errgroup"
)

// runner is an immutable snapshot of everything one universe execution
// needs: the step sequence, the registry, and the shared input value. The
// snapshot is shared read-only between concurrently executing universes;
// each run owns its bindings and touches no other universe's state.
type runner struct {
	steps  []codeStep
	reg    *registry
	input  any
	logger Logger
}

// run evaluates every step under one assignment in a fresh environment.
// Steps are strictly sequential: step i+1 observes exactly the bindings left
// by step i. The first failure terminates the run; bindings produced by
// earlier steps remain on the result for extraction.
func (r *runner) run(ctx context.Context, id int, assignment map[string]string) *ExecutionResult {
	res := &ExecutionResult{
		UniverseID: id,
		Assignment: assignment,
		Bindings:   make(map[string]any),
		Status:     StatusSuccess,
	}
	log := r.logger.With(map[string]any{"universe": id})

	paramVars := r.reg.varNames()
	paramVals := r.reg.labelValues(assignment)
	var bindNames []string // first-bind order; values live in res.Bindings

	for _, step := range r.steps {
		for si := range step.stmts {
			if err := r.runStatement(ctx, &step.stmts[si], res, log, paramVars, paramVals, &bindNames); err != nil {
				res.Status = StatusError
				res.Err = &ExecutionError{UniverseID: id, Step: step.index, Cause: err}
				log.Infof("universe terminated at step %d: %v", step.index, err)
				return res
			}
		}
	}
	return res
}

func (r *runner) runStatement(ctx context.Context, stmt *statement, res *ExecutionResult, log Logger, paramVars []string, paramVals []any, bindNames *[]string) error {
	if stmt.lhs != "" {
		if _, isParam := r.reg.byName[stmt.lhs]; isParam {
			return fmt.Errorf("binding %q collides with a branch parameter of the same name", stmt.lhs)
		}
	}

	src, err := r.rewrite(stmt, res.Assignment)
	if err != nil {
		return err
	}
	q, err := gojq.Parse(src)
	if err != nil {
		return fmt.Errorf("parsing %q: %w", src, err)
	}

	vars := make([]string, 0, len(paramVars)+len(*bindNames))
	vals := make([]any, 0, len(paramVars)+len(*bindNames))
	vars = append(vars, paramVars...)
	vals = append(vals, paramVals...)
	for _, n := range *bindNames {
		vars = append(vars, "$"+n)
		vals = append(vals, res.Bindings[n])
	}

	code, err := gojq.Compile(q, gojq.WithVariables(vars))
	if err != nil {
		return fmt.Errorf("compiling %q: %w", src, err)
	}

	iter := code.RunWithContext(ctx, r.input, vals...)
	var outs []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return err
		}
		outs = append(outs, v)
	}

	// A single output binds as-is, zero outputs bind null, and a generator
	// producing several outputs binds them as an array.
	var value any
	switch len(outs) {
	case 0:
		value = nil
	case 1:
		value = outs[0]
	default:
		value = outs
	}

	if stmt.lhs != "" {
		if _, seen := res.Bindings[stmt.lhs]; !seen {
			*bindNames = append(*bindNames, stmt.lhs)
		}
		res.Bindings[stmt.lhs] = value
		log.Debugf("bound %s = %s", stmt.lhs, previewValue(value, 80))
	}
	return nil
}

// rewrite substitutes each branch site with the chosen option's expression,
// parenthesized to keep operator precedence intact. A site whose parameter
// carries no assignment here means the step referenced a parameter that was
// never declared with options; the expansion discipline rules this out for
// declared ones.
func (r *runner) rewrite(stmt *statement, assignment map[string]string) (string, error) {
	if len(stmt.sites) == 0 {
		return stmt.expr, nil
	}
	var b strings.Builder
	last := 0
	for _, site := range stmt.sites {
		p, ok := r.reg.byName[site.param]
		if !ok {
			return "", fmt.Errorf("branch references parameter %q, which has no declared options", site.param)
		}
		label, ok := assignment[site.param]
		if !ok {
			return "", fmt.Errorf("no option assigned for parameter %q", site.param)
		}
		opt := p.option(label)
		if opt == nil {
			return "", fmt.Errorf("parameter %q has no option labeled %q", site.param, label)
		}
		b.WriteString(stmt.expr[last:site.start])
		b.WriteByte('(')
		b.WriteString(opt.Expression)
		b.WriteByte(')')
		last = site.end
	}
	b.WriteString(stmt.expr[last:])
	return b.String(), nil
}

// ExecuteAll runs full execution: every valid universe, each in a fresh
// isolated environment, concurrently across a bounded worker pool. One
// universe's failure never aborts the pass; failures are recorded on that
// universe's result and surfaced through extraction. Results cached since
// the last code append (including the default universe's) are reused.
func (m *Multiverse) ExecuteAll(ctx context.Context) error {
	universes, err := m.Expand()
	if err != nil {
		return err
	}

	m.mu.Lock()
	run := m.snapshotLocked()
	codeFP := m.codeFP
	cache := m.results
	workers := m.opts.workers()
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, u := range universes {
		u := u
		fp := run.reg.assignmentFingerprint(u.Assignment)
		g.Go(func() error {
			if cached, ok := cache.get(codeFP, fp); ok {
				if cached.UniverseID != u.ID {
					// Reused default-universe result: adopt this expansion's id.
					fixed := *cached
					fixed.UniverseID = u.ID
					if cached.Err != nil {
						e := *cached.Err
						e.UniverseID = u.ID
						fixed.Err = &e
					}
					cache.put(codeFP, fp, &fixed)
				}
				return nil
			}
			res := run.run(gctx, u.ID, u.Assignment)
			if gctx.Err() == nil {
				// A run cut short by cancellation is not a reusable result.
				cache.put(codeFP, fp, res)
			}
			return nil
		})
	}
	// Workers record failures per-universe and never return errors.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	run.logger.Infof("executed %d universes", len(universes))
	return nil
}
