package multiverse

import (
	"fmt"

	"github.com/itchyny/gojq"
)

// registry is the accumulated table of branch parameters in first-seen
// declaration order. An installed registry is never mutated: AddCode merges
// into a clone and swaps it in only when the whole merge succeeds, so failed
// merges are atomic and in-flight executions keep a coherent snapshot.
type registry struct {
	params []*Parameter
	byName map[string]*Parameter
}

func newRegistry() *registry {
	return &registry{byName: make(map[string]*Parameter)}
}

func (r *registry) clone() *registry {
	c := &registry{
		params: make([]*Parameter, len(r.params)),
		byName: make(map[string]*Parameter, len(r.params)),
	}
	for i, p := range r.params {
		cp := &Parameter{
			Name:    p.Name,
			Options: append([]Option(nil), p.Options...),
			index:   p.index,
		}
		c.params[i] = cp
		c.byName[cp.Name] = cp
	}
	return c
}

// merge folds parser output into the table.
func (r *registry) merge(decls []declaration) error {
	for _, d := range decls {
		if err := r.mergeOne(d); err != nil {
			return err
		}
	}
	return nil
}

func (r *registry) mergeOne(d declaration) error {
	p, exists := r.byName[d.param]
	if !exists {
		p = &Parameter{Name: d.param, index: len(r.params)}
		r.params = append(r.params, p)
		r.byName[p.Name] = p
	}
	for i := range d.options {
		opt := d.options[i]
		if existing := p.option(opt.Label); existing != nil {
			if existing.Expression != opt.Expression || existing.Condition != opt.Condition {
				return &InconsistentBranchDefinitionError{Parameter: p.Name, Label: opt.Label}
			}
			// Identical re-declaration is a no-op.
			continue
		}
		if err := r.compileCondition(p, &opt); err != nil {
			return err
		}
		p.Options = append(p.Options, opt)
	}
	return nil
}

// compileCondition validates and compiles an option's %when% condition
// against exactly the parameters declared before the option's parameter.
// Referencing anything else fails here, at merge time, never silently later.
func (r *registry) compileCondition(p *Parameter, opt *Option) error {
	if opt.Condition == "" {
		return nil
	}
	allowed := make(map[string]bool, p.index)
	vars := make([]string, 0, p.index)
	for _, prior := range r.params[:p.index] {
		allowed[prior.Name] = true
		vars = append(vars, "$"+prior.Name)
	}
	for _, ref := range condRefs(opt.Condition) {
		if !allowed[ref] {
			return &UnknownParameterReferenceError{Parameter: p.Name, Reference: ref}
		}
	}
	q, err := gojq.Parse(opt.Condition)
	if err != nil {
		return &ParseError{Offset: -1, Msg: fmt.Sprintf("condition for branch %q: %v", p.Name, err)}
	}
	code, err := gojq.Compile(q, gojq.WithVariables(vars))
	if err != nil {
		return &ParseError{Offset: -1, Msg: fmt.Sprintf("condition for branch %q: %v", p.Name, err)}
	}
	opt.cond = code
	return nil
}

// infos returns the read-only parameter view in declaration order.
func (r *registry) infos() []ParameterInfo {
	out := make([]ParameterInfo, len(r.params))
	for i, p := range r.params {
		labels := make([]string, len(p.Options))
		for j, o := range p.Options {
			labels[j] = o.Label
		}
		out[i] = ParameterInfo{Name: p.Name, Options: labels}
	}
	return out
}

// varNames returns every parameter as a $-prefixed jq variable name in
// declaration order. This is the fixed prefix of each statement's variable
// list.
func (r *registry) varNames() []string {
	vars := make([]string, len(r.params))
	for i, p := range r.params {
		vars[i] = "$" + p.Name
	}
	return vars
}

// labelValues flattens an assignment into label values in declaration order.
func (r *registry) labelValues(assignment map[string]string) []any {
	vals := make([]any, len(r.params))
	for i, p := range r.params {
		vals[i] = assignment[p.Name]
	}
	return vals
}

// assignmentMap converts an ordered label path into a name->label map.
func (r *registry) assignmentMap(labels []string) map[string]string {
	m := make(map[string]string, len(labels))
	for i, l := range labels {
		m[r.params[i].Name] = l
	}
	return m
}
