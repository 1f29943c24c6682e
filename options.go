package multiverse

import "runtime"

// Options configures engine behavior.
type Options struct {
	// Workers bounds the number of universes executed concurrently by
	// ExecuteAll. Zero or negative means runtime.NumCPU().
	Workers int

	// MaxUniverses is a guardrail against combinatorial explosion: Expand
	// fails with a UniverseLimitError once the valid universe set grows past
	// it. Zero means unlimited. Cross products reach hundreds of universes
	// trivially, so callers with open-ended branch sets should keep a
	// ceiling in place.
	MaxUniverses int

	// LogLevel selects the severity threshold when Logger is nil:
	// "error", "warn", "info", "debug" (default: "warn").
	LogLevel string

	// Logger overrides the stderr logger built from LogLevel.
	Logger Logger
}

// DefaultOptions returns the default engine configuration.
func DefaultOptions() Options {
	return Options{
		Workers:      runtime.NumCPU(),
		MaxUniverses: 10000,
		LogLevel:     "warn",
	}
}

// logger resolves the effective logger for the options.
func (o Options) logger() Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return NewLogger(ParseLogLevel(o.LogLevel), nil)
}

// workers resolves the effective worker count.
func (o Options) workers() int {
	if o.Workers <= 0 {
		return runtime.NumCPU()
	}
	return o.Workers
}
