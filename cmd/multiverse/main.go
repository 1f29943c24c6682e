// Command multiverse runs a multiverse analysis script from the command
// line: it expands the script's branches, executes every valid universe and
// prints the expansion and extraction tables.
//
// The script file contains jq statements with inline branch(...) decision
// points; fragments are separated by blank lines and appended in order.
// Input data is read from a JSON or YAML file and exposed to every
// statement as `.`.
//
// Usage:
//
//	multiverse -script analysis.mv -data observations.yaml -extract estimate,ci
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	yaml "github.com/itchyny/go-yaml"

	"github.com/speakeasy-api/multiverse"
	"github.com/speakeasy-api/multiverse/pkg/report"
)

func main() {
	var (
		scriptPath   = flag.String("script", "", "analysis script (fragments separated by blank lines)")
		dataPath     = flag.String("data", "", "input data file, .json or .yaml (default: null input)")
		extract      = flag.String("extract", "", "comma-separated variable names to extract after execution")
		workers      = flag.Int("workers", 0, "maximum universes executed concurrently (default: number of CPUs)")
		maxUniverses = flag.Int("max-universes", 10000, "abort expansion past this many universes (0 = unlimited)")
		logLevel     = flag.String("log-level", "warn", "log level: error, warn, info, debug")
	)
	flag.Parse()

	if *scriptPath == "" {
		fmt.Fprintln(os.Stderr, "multiverse: -script is required")
		flag.Usage()
		os.Exit(2)
	}

	input, err := loadInput(*dataPath)
	if err != nil {
		fatal(err)
	}
	fragments, err := loadScript(*scriptPath)
	if err != nil {
		fatal(err)
	}

	opts := multiverse.DefaultOptions()
	opts.Workers = *workers
	opts.MaxUniverses = *maxUniverses
	opts.LogLevel = *logLevel

	ctx := context.Background()
	m := multiverse.New(input, opts)
	for i, frag := range fragments {
		if err := m.AddCode(ctx, frag); err != nil {
			fatal(fmt.Errorf("fragment %d: %w", i+1, err))
		}
	}

	universes, err := m.Expand()
	if err != nil {
		fatal(err)
	}
	params := m.Parameters()

	fmt.Printf("%d universes from %d parameters\n\n", len(universes), len(params))
	report.Universes(os.Stdout, universes, params)

	if err := m.ExecuteAll(ctx); err != nil {
		fatal(err)
	}

	for _, name := range splitNames(*extract) {
		ex, err := m.ExtractVariable(name)
		if err != nil {
			fatal(err)
		}
		fmt.Println()
		report.Extraction(os.Stdout, ex, params)
	}
}

// loadInput reads the shared input value. YAML is decoded for .yaml/.yml
// files, JSON otherwise. An empty path yields null input.
func loadInput(path string) (any, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	}
	return v, nil
}

var fragmentSep = regexp.MustCompile(`\n[ \t]*\n`)

// loadScript splits a script file into fragments on blank lines.
func loadScript(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fragments []string
	for _, part := range fragmentSep.Split(string(raw), -1) {
		if strings.TrimSpace(part) != "" {
			fragments = append(fragments, part)
		}
	}
	if len(fragments) == 0 {
		return nil, fmt.Errorf("%s: script contains no statements", path)
	}
	return fragments, nil
}

func splitNames(s string) []string {
	var names []string
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "multiverse:", err)
	os.Exit(1)
}
