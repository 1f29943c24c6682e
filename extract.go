package multiverse

// VariableRow is one row of an extraction: a universe's parameter assignment
// joined with the value bound to the requested variable in that universe,
// the universe's recorded execution error, or a not-executed marker.
type VariableRow struct {
	UniverseID int
	Assignment map[string]string

	// Index distinguishes sub-rows when a tabular (array) value is
	// flattened one level: one row per element.
	Index int

	Value any

	// Bound is false when the universe executed but never bound the
	// variable, including runs that failed before reaching it.
	Bound bool

	// Executed is false when the universe has not been executed yet. The
	// row is then a marker; extraction never triggers execution.
	Executed bool

	// Err carries the universe's recorded execution error, if any.
	Err error
}

// Extraction is the result table of ExtractVariable.
type Extraction struct {
	Variable string
	Rows     []VariableRow
}

// ExtractVariable gathers the value bound to name from every universe that
// has already been executed (default or full), joined against the
// universe's parameter assignment. It is read-only over already-produced
// results: a universe that has not executed yields a marker row rather than
// being run as a side effect. Per-universe execution errors appear as a
// field on the affected row, never as a failure of the whole call.
func (m *Multiverse) ExtractVariable(name string) (*Extraction, error) {
	universes, err := m.Expand()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	reg := m.reg
	codeFP := m.codeFP
	cache := m.results
	m.mu.Unlock()

	ex := &Extraction{Variable: name}
	for _, u := range universes {
		res, ok := cache.get(codeFP, reg.assignmentFingerprint(u.Assignment))
		if !ok {
			ex.Rows = append(ex.Rows, VariableRow{UniverseID: u.ID, Assignment: u.Assignment})
			continue
		}
		row := VariableRow{UniverseID: u.ID, Assignment: u.Assignment, Executed: true}
		if res.Err != nil {
			row.Err = res.Err
		}
		value, bound := res.Bindings[name]
		if !bound {
			ex.Rows = append(ex.Rows, row)
			continue
		}
		row.Bound = true
		if elems, isArray := value.([]any); isArray && len(elems) > 0 {
			for i, el := range elems {
				sub := row
				sub.Index = i
				sub.Value = el
				ex.Rows = append(ex.Rows, sub)
			}
			continue
		}
		row.Value = value
		ex.Rows = append(ex.Rows, row)
	}
	return ex, nil
}
