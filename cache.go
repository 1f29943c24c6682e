package multiverse

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
)

// Execution results are cached per (code fingerprint, assignment
// fingerprint). Keying on the assignment rather than the universe id lets a
// default-universe run be reused by a later full execution even though ids
// are only assigned during expansion, and keeps cached results valid across
// renumbering. Any code append changes the code fingerprint and clears the
// cache wholesale: new fragments can introduce new substitutions and a
// different universe numbering.

// codeFingerprint returns a stable hex digest of the accumulated code text.
func codeFingerprint(steps []codeStep) string {
	h := sha256.New()
	for _, s := range steps {
		h.Write([]byte(s.source))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// assignmentFingerprint canonicalizes an assignment as name=label pairs in
// parameter declaration order.
func (r *registry) assignmentFingerprint(assignment map[string]string) string {
	var b strings.Builder
	for _, p := range r.params {
		b.WriteString(p.Name)
		b.WriteByte('=')
		b.WriteString(assignment[p.Name])
		b.WriteByte(0)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", sum[:])
}

// resultCache stores execution results keyed by code + assignment
// fingerprints.
type resultCache struct {
	mu      sync.Mutex
	results map[string]*ExecutionResult
}

func newResultCache() *resultCache {
	return &resultCache{results: make(map[string]*ExecutionResult)}
}

func cacheKey(codeFP, assignFP string) string {
	return codeFP + "|" + assignFP
}

func (c *resultCache) get(codeFP, assignFP string) (*ExecutionResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.results[cacheKey(codeFP, assignFP)]
	return res, ok
}

func (c *resultCache) put(codeFP, assignFP string, res *ExecutionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[cacheKey(codeFP, assignFP)] = res
}

// invalidate drops every cached result.
func (c *resultCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = make(map[string]*ExecutionResult)
}
