// Package multiverse expands an analysis script containing explicit decision
// points into the full set of resulting analysis variants (universes),
// executes each variant in isolation and collects comparable results.
//
// Analysis steps are jq statements evaluated against a shared input value.
// A decision point is written inline as a branch call:
//
//	m := multiverse.New(data)
//	err := m.AddCode(ctx, `
//	    scores = [.observations[] | branch(outlier_rule,
//	        keep ~ .score,
//	        clip ~ ([.score, 100] | min))]
//	`)
//
// Each option is `label ~ expression`, optionally guarded by a condition
// over the chosen labels of parameters declared earlier:
//
//	summary = $scores | branch(agg,
//	    mean %when% $outlier_rule == "keep" ~ add / length,
//	    median ~ sort | .[length/2 | floor])
//
// Appending code re-runs the default universe (first eligible option of each
// parameter) for immediate feedback. ExecuteAll runs every valid universe
// concurrently, each with a fresh, isolated environment; earlier steps'
// bindings are visible to later steps of the same universe as $variables,
// alongside every parameter's chosen label. ExtractVariable joins a bound
// variable's per-universe value against the expanded assignment table.
package multiverse
