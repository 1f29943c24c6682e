package multiverse

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtract_NotExecutedMarkersBeforeFullExecution(t *testing.T) {
	m := newTestMultiverse(t, nil)
	mustAddCode(t, m,
		`x = branch(p, a ~ 1, b ~ 2, c ~ 3)`,
	)
	ex, err := m.ExtractVariable("x")
	if err != nil {
		t.Fatalf("ExtractVariable failed: %v", err)
	}
	if len(ex.Rows) != 3 {
		t.Fatalf("expected a row per universe, got %d", len(ex.Rows))
	}
	for _, row := range ex.Rows {
		if row.Assignment["p"] == "a" {
			// The default universe already ran eagerly during AddCode.
			if !row.Executed || !row.Bound || row.Value != 1 {
				t.Errorf("default universe row should carry its eager result, got %+v", row)
			}
			continue
		}
		if row.Executed || row.Bound || row.Value != nil {
			t.Errorf("universe %d must be a not-executed marker, got %+v", row.UniverseID, row)
		}
	}
}

func TestExtract_ReadOnlyDoesNotTriggerExecution(t *testing.T) {
	m := newTestMultiverse(t, nil)
	mustAddCode(t, m, `x = branch(p, a ~ 1, b ~ 2)`)

	if _, err := m.ExtractVariable("x"); err != nil {
		t.Fatalf("ExtractVariable failed: %v", err)
	}
	// A second extraction still sees the non-default universe unexecuted.
	ex, err := m.ExtractVariable("x")
	if err != nil {
		t.Fatalf("ExtractVariable failed: %v", err)
	}
	for _, row := range ex.Rows {
		if row.Assignment["p"] == "b" && row.Executed {
			t.Errorf("extraction must not execute universes as a side effect")
		}
	}
}

func TestExtract_FlattensTabularValuesOneLevel(t *testing.T) {
	input := map[string]any{"coefs": []any{
		map[string]any{"term": "intercept", "estimate": 1.5},
		map[string]any{"term": "slope", "estimate": 0.25},
	}}
	m := newTestMultiverse(t, input)
	mustAddCode(t, m, `fit = .coefs`)

	ex, err := m.ExtractVariable("fit")
	if err != nil {
		t.Fatalf("ExtractVariable failed: %v", err)
	}
	if len(ex.Rows) != 2 {
		t.Fatalf("expected one row per sub-row, got %d", len(ex.Rows))
	}
	for i, row := range ex.Rows {
		if row.Index != i {
			t.Errorf("row %d has index %d", i, row.Index)
		}
		sub, ok := row.Value.(map[string]any)
		if !ok {
			t.Fatalf("row %d value is %T, want a map sub-row", i, row.Value)
		}
		if i == 1 && sub["term"] != "slope" {
			t.Errorf("sub-rows out of order: %+v", sub)
		}
	}
}

func TestExtract_UnboundVariableAfterSuccess(t *testing.T) {
	m := newTestMultiverse(t, nil)
	mustAddCode(t, m, `x = 1`)
	if err := m.ExecuteAll(context.Background()); err != nil {
		t.Fatalf("ExecuteAll failed: %v", err)
	}
	ex, err := m.ExtractVariable("never_bound")
	if err != nil {
		t.Fatalf("ExtractVariable failed: %v", err)
	}
	row := ex.Rows[0]
	if !row.Executed || row.Bound || row.Err != nil {
		t.Errorf("expected an executed, unbound, error-free row, got %+v", row)
	}
}

func TestExtract_CacheInvalidatedByAppend(t *testing.T) {
	m := newTestMultiverse(t, nil)
	mustAddCode(t, m, `x = branch(p, a ~ 1, b ~ 2)`)
	if err := m.ExecuteAll(context.Background()); err != nil {
		t.Fatalf("ExecuteAll failed: %v", err)
	}

	// Appending code invalidates every cached result; only the re-run
	// default universe is fresh afterwards.
	mustAddCode(t, m, `y = $x + 1`)
	ex, err := m.ExtractVariable("y")
	if err != nil {
		t.Fatalf("ExtractVariable failed: %v", err)
	}
	for _, row := range ex.Rows {
		switch row.Assignment["p"] {
		case "a":
			if !row.Executed || row.Value != 2 {
				t.Errorf("default universe should be fresh after append, got %+v", row)
			}
		case "b":
			if row.Executed {
				t.Errorf("stale result survived a code append: %+v", row)
			}
		}
	}
}

func TestExtract_JoinsFullAssignment(t *testing.T) {
	m := newTestMultiverse(t, nil)
	mustAddCode(t, m,
		`x = branch(p, a ~ 1, b ~ 2)`,
		`y = branch(q, c ~ 3, d ~ 4)`,
	)
	if err := m.ExecuteAll(context.Background()); err != nil {
		t.Fatalf("ExecuteAll failed: %v", err)
	}
	ex, err := m.ExtractVariable("y")
	if err != nil {
		t.Fatalf("ExtractVariable failed: %v", err)
	}
	universes, err := m.Expand()
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(ex.Rows) != len(universes) {
		t.Fatalf("extraction has %d rows for %d universes", len(ex.Rows), len(universes))
	}
	for i, row := range ex.Rows {
		if row.UniverseID != universes[i].ID {
			t.Errorf("row %d id %d does not match expansion id %d", i, row.UniverseID, universes[i].ID)
		}
		if diff := cmp.Diff(universes[i].Assignment, row.Assignment); diff != "" {
			t.Errorf("row %d assignment mismatch (-expand +extract):\n%s", i, diff)
		}
	}
}
