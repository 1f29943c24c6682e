package multiverse

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestMultiverse(t *testing.T, input any) *Multiverse {
	t.Helper()
	opts := DefaultOptions()
	opts.Logger = NewNopLogger()
	return New(input, opts)
}

func mustAddCode(t *testing.T, m *Multiverse, fragments ...string) {
	t.Helper()
	for _, frag := range fragments {
		if err := m.AddCode(context.Background(), frag); err != nil {
			t.Fatalf("AddCode(%q) failed: %v", frag, err)
		}
	}
}

func TestRegistry_DeclarationOrderPreserved(t *testing.T) {
	m := newTestMultiverse(t, nil)
	mustAddCode(t, m,
		`a = branch(window, narrow ~ 1, wide ~ 2)`,
		`b = branch(method, raw ~ 1, trimmed ~ 2, winsorized ~ 3)`,
	)
	want := []ParameterInfo{
		{Name: "window", Options: []string{"narrow", "wide"}},
		{Name: "method", Options: []string{"raw", "trimmed", "winsorized"}},
	}
	if diff := cmp.Diff(want, m.Parameters()); diff != "" {
		t.Errorf("parameters mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_ExtendExistingParameter(t *testing.T) {
	m := newTestMultiverse(t, nil)
	mustAddCode(t, m,
		`a = branch(method, raw ~ 1)`,
		`b = branch(method, raw ~ 1, trimmed ~ 2)`,
	)
	want := []ParameterInfo{{Name: "method", Options: []string{"raw", "trimmed"}}}
	if diff := cmp.Diff(want, m.Parameters()); diff != "" {
		t.Errorf("parameters mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_InconsistentRedefinition(t *testing.T) {
	m := newTestMultiverse(t, nil)
	mustAddCode(t, m, `a = branch(method, raw ~ 1)`)
	err := m.AddCode(context.Background(), `b = branch(method, raw ~ 99)`)
	var ie *InconsistentBranchDefinitionError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InconsistentBranchDefinitionError, got %T: %v", err, err)
	}
	if ie.Parameter != "method" || ie.Label != "raw" {
		t.Errorf("error names %q/%q, want method/raw", ie.Parameter, ie.Label)
	}
}

func TestRegistry_UnknownConditionReferenceFailsFast(t *testing.T) {
	m := newTestMultiverse(t, nil)
	mustAddCode(t, m, `a = branch(method, raw ~ 1, trimmed ~ 2)`)

	before := m.Parameters()
	code := m.Code()

	err := m.AddCode(context.Background(), `b = branch(window, narrow %when% $later == "x" ~ 1, wide ~ 2)`)
	var ue *UnknownParameterReferenceError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnknownParameterReferenceError, got %T: %v", err, err)
	}
	if ue.Parameter != "window" || ue.Reference != "later" {
		t.Errorf("error names %q/%q, want window/later", ue.Parameter, ue.Reference)
	}

	// Atomicity: the failed call must leave the registry and code store
	// exactly as they were.
	if diff := cmp.Diff(before, m.Parameters()); diff != "" {
		t.Errorf("registry changed by failed merge (-want +got):\n%s", diff)
	}
	if m.Code() != code {
		t.Errorf("code store changed by failed merge:\n%s", m.Code())
	}
}

func TestRegistry_ConditionMayNotReferenceOwnOrLaterParameter(t *testing.T) {
	m := newTestMultiverse(t, nil)
	// window references itself: only parameters declared strictly before it
	// are in scope.
	err := m.AddCode(context.Background(), `a = branch(window, narrow %when% $window == "wide" ~ 1, wide ~ 2)`)
	var ue *UnknownParameterReferenceError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnknownParameterReferenceError, got %T: %v", err, err)
	}
}

func TestRegistry_ConditionSeesParameterFromSameFragment(t *testing.T) {
	m := newTestMultiverse(t, nil)
	mustAddCode(t, m, `
a = branch(method, raw ~ 1, trimmed ~ 2)
b = branch(window, narrow %when% $method == "raw" ~ 1, wide ~ 2)
`)
	universes, err := m.Expand()
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	// narrow is only eligible under method=raw: 2*2 - 1 = 3 universes.
	if len(universes) != 3 {
		t.Errorf("expected 3 universes, got %d", len(universes))
	}
}

func TestRegistry_IdempotentRedeclaration(t *testing.T) {
	m := newTestMultiverse(t, nil)
	mustAddCode(t, m,
		`a = branch(method, raw ~ 1, trimmed ~ 2)`,
		`b = branch(method, raw ~ 1, trimmed ~ 2) + 1`,
	)
	want := []ParameterInfo{{Name: "method", Options: []string{"raw", "trimmed"}}}
	if diff := cmp.Diff(want, m.Parameters()); diff != "" {
		t.Errorf("parameters mismatch (-want +got):\n%s", diff)
	}
}
