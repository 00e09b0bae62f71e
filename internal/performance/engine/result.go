package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wesleyorama2/volley/internal/performance"
	"github.com/wesleyorama2/volley/internal/performance/config"
	"github.com/wesleyorama2/volley/internal/performance/metrics"
	"github.com/wesleyorama2/volley/internal/performance/threshold"
)

// Process exit codes, compatible with k6.
const (
	ExitPassed           = 0
	ExitGenericError     = 1
	ExitThresholdsFailed = 99
	ExitConfigError      = 104
	ExitAborted          = 105
)

// State is the lifecycle state of a run.
type State string

const (
	StateIdle     State = "idle"
	StateRamping  State = "ramping"
	StateSteady   State = "steady"
	StateDraining State = "draining"
	StateComplete State = "complete"
	StatePassed   State = "passed"
	StateFailed   State = "failed"
	StateAborted  State = "aborted"
)

// Terminal reports whether the run has finished.
func (s State) Terminal() bool {
	return s == StatePassed || s == StateFailed || s == StateAborted
}

// ConfigError is returned by New when the configuration cannot be run.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ErrAlreadyRun is returned when Run is called twice on one Engine.
var ErrAlreadyRun = errors.New("engine has already been run")

// Result is the outcome of a run.
type Result struct {
	RunID       uuid.UUID     `json:"runId"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     time.Time     `json:"endTime"`
	Duration    time.Duration `json:"duration"`

	State   State             `json:"state"`
	Verdict threshold.Verdict `json:"verdict"`

	Metrics    *metrics.Snapshot     `json:"metrics"`
	TimeSeries []*metrics.TimeBucket `json:"timeSeries,omitempty"`
	Phases     []metrics.PhaseChange `json:"phases,omitempty"`
	Pool       performance.PoolStats `json:"pool"`
	Plan       performance.StagePlan `json:"plan"`

	// SteadyStateRPS is the mean request rate while the plan held its
	// target, or zero when the run never reached a steady phase.
	SteadyStateRPS float64 `json:"steadyStateRps"`

	// AbortReason explains why the run ended before its plan did.
	AbortReason string `json:"abortReason,omitempty"`

	// GracefulDrain is false when in-flight iterations had to be cancelled.
	GracefulDrain bool `json:"gracefulDrain"`
}

// Passed reports whether the run finished and met every threshold.
func (r *Result) Passed() bool {
	return r.State == StatePassed
}

// ExitCode maps the result to a process exit code.
func (r *Result) ExitCode() int {
	switch r.State {
	case StatePassed:
		return ExitPassed
	case StateFailed:
		return ExitThresholdsFailed
	case StateAborted:
		return ExitAborted
	default:
		return ExitGenericError
	}
}

// ExitCodeForError maps an error returned before or instead of a Result to
// an exit code.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitPassed
	}

	var cfgErr *ConfigError
	var validationErrs *config.ValidationErrors
	var parseErr *threshold.ParseError
	switch {
	case errors.As(err, &cfgErr), errors.As(err, &validationErrs), errors.As(err, &parseErr):
		return ExitConfigError
	default:
		return ExitGenericError
	}
}
