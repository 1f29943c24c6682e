package multiverse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// The branch parser scans code fragments for decision points without
// evaluating anything. A branch declaration looks like
//
//	branch(method, raw ~ .score, trimmed %when% $window == "wide" ~ .score * 0.9)
//
// where each option is `label ~ expression` or `label %when% condition ~
// expression`. A reference-only occurrence `branch(method)` reuses a
// parameter declared elsewhere. Everything between the option separators is
// opaque jq source; the scanner only needs to respect strings (including
// \(...) interpolation), comments, and bracket nesting.

// declaration is the parser's output for one branch(...) occurrence that
// carries options. Reference-only occurrences produce sites but no
// declaration.
type declaration struct {
	param   string
	options []Option
}

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// bindingRE matches a leading `ident =` that is not `==`.
var bindingRE = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)[ \t]*=([^=]|$)`)

// parseFragment splits a fragment into statements and collects the branch
// declarations found in them. It evaluates nothing and touches no registry
// state, so a failed parse leaves the multiverse unchanged.
func parseFragment(src string) ([]statement, []declaration, error) {
	clean := stripComments(src)

	var stmts []statement
	var decls []declaration
	for _, raw := range splitTop(clean, "\n;") {
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}
		lhs, rhs, err := splitBinding(text)
		if err != nil {
			return nil, nil, err
		}
		sites, stmtDecls, err := scanBranches(rhs)
		if err != nil {
			return nil, nil, err
		}
		decls = append(decls, stmtDecls...)
		stmts = append(stmts, statement{lhs: lhs, expr: rhs, sites: sites})
	}
	if len(stmts) == 0 {
		return nil, nil, &ParseError{Offset: -1, Msg: "empty code fragment"}
	}
	return stmts, decls, nil
}

// splitBinding separates an optional leading `ident =` from a statement.
func splitBinding(text string) (lhs, rhs string, err error) {
	m := bindingRE.FindStringSubmatchIndex(text)
	if m == nil {
		return "", text, nil
	}
	lhs = text[m[2]:m[3]]
	eq := m[3] + strings.IndexByte(text[m[3]:], '=')
	rhs = strings.TrimSpace(text[eq+1:])
	if rhs == "" {
		return "", "", &ParseError{Offset: -1, Msg: fmt.Sprintf("binding %q has no expression after '='", lhs)}
	}
	return lhs, rhs, nil
}

// scanBranches finds every branch(...) occurrence in a statement expression,
// parsing declared options and recording the byte range of each site for
// later substitution.
func scanBranches(expr string) ([]branchSite, []declaration, error) {
	var sites []branchSite
	var decls []declaration
	for i := 0; i < len(expr); {
		c := expr[i]
		if c == '"' {
			i = skipJQString(expr, i)
			continue
		}
		if !strings.HasPrefix(expr[i:], "branch") {
			i++
			continue
		}
		if i > 0 && (isIdentChar(expr[i-1]) || expr[i-1] == '.' || expr[i-1] == '$') {
			i++
			continue
		}
		j := i + len("branch")
		if j < len(expr) && isIdentChar(expr[j]) {
			i = j
			continue
		}
		k := j
		for k < len(expr) && (expr[k] == ' ' || expr[k] == '\t') {
			k++
		}
		if k >= len(expr) || expr[k] != '(' {
			i = j
			continue
		}
		end, ok := skipGroup(expr, k)
		if !ok {
			return nil, nil, &ParseError{Offset: i, Msg: "unterminated branch(...) call"}
		}
		param, opts, err := parseBranchArgs(expr[k+1:end-1], i)
		if err != nil {
			return nil, nil, err
		}
		sites = append(sites, branchSite{param: param, start: i, end: end})
		if opts != nil {
			decls = append(decls, declaration{param: param, options: opts})
		}
		i = end
	}
	return sites, decls, nil
}

// parseBranchArgs parses the comma-separated argument list of one branch
// call: the parameter name followed by zero or more option entries.
func parseBranchArgs(inner string, offset int) (string, []Option, error) {
	args := splitTop(inner, ",")
	param := strings.TrimSpace(args[0])
	if p, ok := unquoteLabel(param); ok {
		param = p
	}
	if !identRE.MatchString(param) {
		return "", nil, &ParseError{Offset: offset, Msg: fmt.Sprintf("invalid branch parameter name %q", param)}
	}
	if len(args) == 1 {
		// Reference-only: substitute the option declared elsewhere.
		return param, nil, nil
	}

	opts := make([]Option, 0, len(args)-1)
	seen := make(map[string]bool, len(args)-1)
	for _, arg := range args[1:] {
		opt, err := parseOptionEntry(arg, param, offset)
		if err != nil {
			return "", nil, err
		}
		if seen[opt.Label] {
			return "", nil, &DuplicateOptionLabelError{Parameter: param, Label: opt.Label}
		}
		seen[opt.Label] = true
		opts = append(opts, *opt)
	}
	return param, opts, nil
}

// parseOptionEntry parses `label ~ expr` or `label %when% cond ~ expr`.
func parseOptionEntry(entry, param string, offset int) (*Option, error) {
	ti := findTop(entry, "~")
	if ti < 0 {
		return nil, &ParseError{Offset: offset, Msg: fmt.Sprintf("option for branch %q is missing a '~ expression' part", param)}
	}
	header := entry[:ti]
	expr := strings.TrimSpace(entry[ti+1:])
	if expr == "" {
		return nil, &ParseError{Offset: offset, Msg: fmt.Sprintf("option for branch %q has an empty expression", param)}
	}
	if containsBranchCall(expr) {
		return nil, &ParseError{Offset: offset, Msg: fmt.Sprintf("nested branch declarations are not supported (branch %q)", param)}
	}

	cond := ""
	label := header
	if wi := findTop(header, "%when%"); wi >= 0 {
		label = header[:wi]
		cond = strings.TrimSpace(header[wi+len("%when%"):])
		if cond == "" {
			return nil, &ParseError{Offset: offset, Msg: fmt.Sprintf("empty %%when%% condition for branch %q", param)}
		}
		if containsBranchCall(cond) {
			return nil, &ParseError{Offset: offset, Msg: fmt.Sprintf("nested branch declarations are not supported (branch %q)", param)}
		}
	}

	label = strings.TrimSpace(label)
	quoted := false
	if l, ok := unquoteLabel(label); ok {
		label = l
		quoted = true
	}
	if label == "" {
		return nil, &ParseError{Offset: offset, Msg: fmt.Sprintf("option for branch %q is missing a label", param)}
	}
	if !quoted && !identRE.MatchString(label) {
		return nil, &ParseError{Offset: offset, Msg: fmt.Sprintf("option label %q for branch %q must be an identifier or a quoted string", label, param)}
	}
	return &Option{Label: label, Expression: expr, Condition: cond}, nil
}

// containsBranchCall reports whether s contains a branch(...) call outside
// strings.
func containsBranchCall(s string) bool {
	for i := 0; i < len(s); {
		if s[i] == '"' {
			i = skipJQString(s, i)
			continue
		}
		if !strings.HasPrefix(s[i:], "branch") {
			i++
			continue
		}
		if i > 0 && (isIdentChar(s[i-1]) || s[i-1] == '.' || s[i-1] == '$') {
			i++
			continue
		}
		j := i + len("branch")
		if j < len(s) && isIdentChar(s[j]) {
			i = j
			continue
		}
		k := j
		for k < len(s) && (s[k] == ' ' || s[k] == '\t') {
			k++
		}
		if k < len(s) && s[k] == '(' {
			return true
		}
		i = j
	}
	return false
}

// condRefs collects the distinct $names referenced by a condition, in order
// of first occurrence.
func condRefs(cond string) []string {
	var refs []string
	seen := make(map[string]bool)
	for i := 0; i < len(cond); {
		c := cond[i]
		if c == '"' {
			i = skipJQString(cond, i)
			continue
		}
		if c != '$' {
			i++
			continue
		}
		j := i + 1
		for j < len(cond) && isIdentChar(cond[j]) {
			j++
		}
		if j > i+1 {
			name := cond[i+1 : j]
			if !seen[name] {
				seen[name] = true
				refs = append(refs, name)
			}
		}
		i = j
	}
	return refs
}

// ----------------------------------------------------------------------------
// Low-level scanning helpers
// ----------------------------------------------------------------------------

func isIdentChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// skipJQString returns the index just past the jq string starting at s[i].
// Handles backslash escapes and \(...) interpolation. An unterminated string
// runs to the end of s; the evaluator reports it properly later.
func skipJQString(s string, i int) int {
	i++ // opening quote
	for i < len(s) {
		switch s[i] {
		case '"':
			return i + 1
		case '\\':
			if i+1 < len(s) && s[i+1] == '(' {
				i, _ = skipGroup(s, i+1)
				continue
			}
			i += 2
			continue
		}
		i++
	}
	return i
}

// skipGroup returns the index just past the bracket group opening at s[i],
// and whether the group was closed before the end of s.
func skipGroup(s string, i int) (int, bool) {
	depth := 0
	for i < len(s) {
		switch s[i] {
		case '"':
			i = skipJQString(s, i)
			continue
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
		i++
	}
	return i, false
}

// splitTop splits s at any separator byte occurring outside strings at
// bracket depth zero.
func splitTop(s, seps string) []string {
	var parts []string
	depth := 0
	last := 0
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"':
			i = skipJQString(s, i)
			continue
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case depth == 0 && strings.IndexByte(seps, c) >= 0:
			parts = append(parts, s[last:i])
			last = i + 1
		}
		i++
	}
	return append(parts, s[last:])
}

// findTop returns the first index of sub in s outside strings at bracket
// depth zero, or -1.
func findTop(s, sub string) int {
	depth := 0
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"':
			i = skipJQString(s, i)
			continue
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case depth == 0 && strings.HasPrefix(s[i:], sub):
			return i
		}
		i++
	}
	return -1
}

// stripComments removes jq # comments outside strings.
func stripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		switch s[i] {
		case '"':
			j := skipJQString(s, i)
			b.WriteString(s[i:j])
			i = j
		case '#':
			for i < len(s) && s[i] != '\n' {
				i++
			}
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String()
}

// unquoteLabel strips surrounding double quotes from a label if present.
func unquoteLabel(s string) (string, bool) {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u, true
		}
		return strings.Trim(s, `"`), true
	}
	return s, false
}
