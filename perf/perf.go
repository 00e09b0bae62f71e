package perf

import (
	"context"

	"github.com/wesleyorama2/volley/internal/performance"
	"github.com/wesleyorama2/volley/internal/performance/config"
	"github.com/wesleyorama2/volley/internal/performance/engine"
	"github.com/wesleyorama2/volley/internal/performance/metrics"
)

type (
	// Config describes a load test.
	Config = config.TestConfig
	// Threshold is one pass/fail expression on a metric.
	Threshold = config.ThresholdConfig
	// Result is the outcome of a finished run.
	Result = engine.Result
	// Option customizes a run.
	Option = engine.Option

	// Scenario is one iteration of work, invoked repeatedly by a VU.
	Scenario = performance.Scenario
	// ScenarioFunc adapts a function to Scenario.
	ScenarioFunc = performance.ScenarioFunc
	// ScenarioFactory builds the Scenario owned by one VU.
	ScenarioFactory = performance.ScenarioFactory
	// VUEnv is what a factory receives: VU ID, HTTP client, base URL, logger.
	VUEnv = performance.VUEnv
	// Outcome reports what one iteration did.
	Outcome = metrics.Outcome
)

// Run options.
var (
	WithLogger       = engine.WithLogger
	WithScenario     = engine.WithScenario
	WithPollInterval = engine.WithPollInterval
)

// Timed wraps a function as a Scenario whose outcome carries the call's
// duration and error.
func Timed(fn func(ctx context.Context) error) Scenario {
	return performance.Timed(fn)
}

// Exit codes of a run, compatible with k6.
const (
	ExitPassed           = engine.ExitPassed
	ExitThresholdsFailed = engine.ExitThresholdsFailed
	ExitConfigError      = engine.ExitConfigError
	ExitAborted          = engine.ExitAborted
)

// LoadConfig reads a YAML or JSON test config.
func LoadConfig(path string) (*Config, error) {
	return config.LoadConfig(path)
}

// LoadPreset returns a built-in load profile by name.
func LoadPreset(name string) (*Config, error) {
	return config.LoadPreset(name)
}

// Presets lists the built-in load profiles.
func Presets() []string {
	return config.Presets()
}

// RunTest validates cfg and runs it to completion. A config problem is
// returned as an error; threshold failures and cancellation are reported
// through the result.
func RunTest(ctx context.Context, cfg *Config, opts ...Option) (*Result, error) {
	e, err := engine.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx)
}
