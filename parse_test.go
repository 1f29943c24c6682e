package multiverse

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestParseFragment_SingleBranch(t *testing.T) {
	stmts, decls, err := parseFragment(`x = branch(method, raw ~ .value, scaled ~ .value * 2)`)
	if err != nil {
		t.Fatalf("parseFragment failed: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(stmts))
	}
	if stmts[0].lhs != "x" {
		t.Errorf("lhs = %q, want %q", stmts[0].lhs, "x")
	}
	if len(stmts[0].sites) != 1 || stmts[0].sites[0].param != "method" {
		t.Fatalf("expected one branch site for %q, got %+v", "method", stmts[0].sites)
	}

	if len(decls) != 1 {
		t.Fatalf("expected 1 declaration, got %d", len(decls))
	}
	want := []Option{
		{Label: "raw", Expression: ".value"},
		{Label: "scaled", Expression: ".value * 2"},
	}
	if diff := cmp.Diff(want, decls[0].options, cmpopts.IgnoreUnexported(Option{})); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFragment_WhenConditionAndQuotedLabel(t *testing.T) {
	_, decls, err := parseFragment(`y = branch(window, "5 years" ~ .wide, narrow %when% $method == "raw" ~ .narrow)`)
	if err != nil {
		t.Fatalf("parseFragment failed: %v", err)
	}
	want := []Option{
		{Label: "5 years", Expression: ".wide"},
		{Label: "narrow", Expression: ".narrow", Condition: `$method == "raw"`},
	}
	if diff := cmp.Diff(want, decls[0].options, cmpopts.IgnoreUnexported(Option{})); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFragment_ReferenceOnlySite(t *testing.T) {
	stmts, decls, err := parseFragment(`w = branch(method) + 1`)
	if err != nil {
		t.Fatalf("parseFragment failed: %v", err)
	}
	if len(decls) != 0 {
		t.Errorf("reference-only site must not declare options, got %d declarations", len(decls))
	}
	if len(stmts[0].sites) != 1 || stmts[0].sites[0].param != "method" {
		t.Errorf("expected a site for %q, got %+v", "method", stmts[0].sites)
	}
}

func TestParseFragment_StatementSplitting(t *testing.T) {
	src := `
a = .values | add   # total
b = [.values[] |
     select(. > 0)]; c = $a + 1
`
	stmts, _, err := parseFragment(src)
	if err != nil {
		t.Fatalf("parseFragment failed: %v", err)
	}
	var names []string
	for _, s := range stmts {
		names = append(names, s.lhs)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, names); diff != "" {
		t.Errorf("statement bindings mismatch (-want +got):\n%s", diff)
	}
	if stmts[0].expr != ".values | add" {
		t.Errorf("comment not stripped: %q", stmts[0].expr)
	}
}

func TestParseFragment_EqualityIsNotABinding(t *testing.T) {
	stmts, _, err := parseFragment(`flag == 1`)
	if err != nil {
		t.Fatalf("parseFragment failed: %v", err)
	}
	if stmts[0].lhs != "" {
		t.Errorf("== must not parse as a binding, got lhs %q", stmts[0].lhs)
	}
}

func TestParseFragment_BranchWordInStringOrIdentifier(t *testing.T) {
	stmts, decls, err := parseFragment(`s = "branch(not, a ~ 1)" + (.branches | length | tostring)`)
	if err != nil {
		t.Fatalf("parseFragment failed: %v", err)
	}
	if len(decls) != 0 || len(stmts[0].sites) != 0 {
		t.Errorf("matched branch inside a string or identifier: sites=%+v decls=%d", stmts[0].sites, len(decls))
	}
}

func TestParseFragment_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want any // pointer to the expected error type
	}{
		{"missing expression", `x = branch(p, a)`, &ParseError{}},
		{"missing label", `x = branch(p, ~ .v)`, &ParseError{}},
		{"empty condition", `x = branch(p, a %when% ~ .v)`, &ParseError{}},
		{"invalid parameter name", `x = branch(2p, a ~ .v)`, &ParseError{}},
		{"unterminated call", `x = branch(p, a ~ .v`, &ParseError{}},
		{"nested branch", `x = branch(p, a ~ branch(q, b ~ 1))`, &ParseError{}},
		{"empty fragment", "   \n\t", &ParseError{}},
		{"binding without expression", `x =   `, &ParseError{}},
		{"duplicate label", `x = branch(p, a ~ 1, a ~ 2)`, &DuplicateOptionLabelError{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseFragment(tt.src)
			if err == nil {
				t.Fatalf("expected an error for %q", tt.src)
			}
			switch want := tt.want.(type) {
			case *ParseError:
				var pe *ParseError
				if !errors.As(err, &pe) {
					t.Errorf("expected ParseError, got %T: %v", err, err)
				}
			case *DuplicateOptionLabelError:
				var de *DuplicateOptionLabelError
				if !errors.As(err, &de) {
					t.Errorf("expected DuplicateOptionLabelError, got %T: %v", err, err)
				}
			default:
				t.Fatalf("unhandled expectation %T", want)
			}
		})
	}
}

func TestCondRefs(t *testing.T) {
	refs := condRefs(`$method == "raw" and ($window != "narrow" or $method == "scaled") and "$quoted" == "x"`)
	if diff := cmp.Diff([]string{"method", "window"}, refs); diff != "" {
		t.Errorf("condRefs mismatch (-want +got):\n%s", diff)
	}
}

func TestScanHelpers_StringsAndInterpolation(t *testing.T) {
	// A ')' inside a string or \(...) interpolation must not close the group.
	src := `x = branch(p, a ~ ("y)" + "\(1+2))" + ")("), b ~ 2)`
	_, decls, err := parseFragment(src)
	if err != nil {
		t.Fatalf("parseFragment failed: %v", err)
	}
	if len(decls) != 1 || len(decls[0].options) != 2 {
		t.Fatalf("expected 2 options, got %+v", decls)
	}
	if decls[0].options[1].Expression != "2" {
		t.Errorf("second option parsed as %q", decls[0].options[1].Expression)
	}
}
