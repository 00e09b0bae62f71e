// Package performance runs closed-model load tests: a pool of virtual users
// follows a stage plan, each invoking a scenario in a loop.
package performance

import (
	"fmt"
	"time"

	"github.com/wesleyorama2/volley/internal/performance/metrics"
)

// Stage is one window of a StagePlan. Concurrency ramps linearly from the
// previous target to Target over Duration.
type Stage struct {
	Duration time.Duration `json:"duration"`
	Target   int           `json:"target"`
	Name     string        `json:"name,omitempty"`
}

// StagePlan describes target concurrency over time.
//
// Example:
//
//	stages:
//	  - duration: 2m
//	    target: 20     # Ramp from 0 to 20 VUs over 2m
//	  - duration: 5m
//	    target: 20     # Stay at 20 VUs for 5 minutes
//	  - duration: 2m
//	    target: 0      # Ramp down to 0 VUs over 2m
type StagePlan struct {
	// StartTarget is the concurrency at t=0, before the first stage.
	StartTarget int `json:"startTarget"`

	Stages []Stage `json:"stages"`
}

// ConstantPlan returns a plan that holds vus for d, starting at full
// concurrency instead of ramping from zero.
func ConstantPlan(vus int, d time.Duration) StagePlan {
	return StagePlan{
		StartTarget: vus,
		Stages:      []Stage{{Duration: d, Target: vus}},
	}
}

// Validate checks that the plan can be executed.
func (p StagePlan) Validate() error {
	if p.StartTarget < 0 {
		return fmt.Errorf("start target must be non-negative, got %d", p.StartTarget)
	}
	if len(p.Stages) == 0 {
		return fmt.Errorf("plan has no stages")
	}
	for i, s := range p.Stages {
		if s.Duration < 0 {
			return fmt.Errorf("stage %d: duration must be non-negative, got %s", i, s.Duration)
		}
		if s.Target < 0 {
			return fmt.Errorf("stage %d: target must be non-negative, got %d", i, s.Target)
		}
	}
	if p.TotalDuration() == 0 {
		return fmt.Errorf("plan has zero total duration")
	}
	return nil
}

// TotalDuration returns the sum of all stage durations.
func (p StagePlan) TotalDuration() time.Duration {
	var total time.Duration
	for _, s := range p.Stages {
		total += s.Duration
	}
	return total
}

// MaxTarget returns the highest concurrency the plan reaches.
func (p StagePlan) MaxTarget() int {
	highest := p.StartTarget
	for _, s := range p.Stages {
		if s.Target > highest {
			highest = s.Target
		}
	}
	return highest
}

// TargetAt returns the target concurrency at elapsed run time.
//
// Within a stage the target moves linearly from the previous target to the
// stage target, rounded to the nearest integer. Zero-length stages jump
// straight to their target. Past the end of the plan the target is 0.
func (p StagePlan) TargetAt(elapsed time.Duration) int {
	if elapsed < 0 {
		return p.StartTarget
	}

	var stageStart time.Duration
	prevTarget := p.StartTarget

	for _, stage := range p.Stages {
		stageEnd := stageStart + stage.Duration

		if elapsed < stageEnd {
			// Progress within this stage (0.0 to 1.0)
			progress := float64(elapsed-stageStart) / float64(stage.Duration)

			target := float64(prevTarget) + float64(stage.Target-prevTarget)*progress
			return int(target + 0.5) // Round to nearest
		}

		prevTarget = stage.Target
		stageStart = stageEnd
	}

	return 0
}

// StageAt returns the index of the stage active at elapsed. ok is false
// before the plan starts and after it ends.
func (p StagePlan) StageAt(elapsed time.Duration) (index int, ok bool) {
	if elapsed < 0 {
		return 0, false
	}

	var stageStart time.Duration
	for i, stage := range p.Stages {
		stageEnd := stageStart + stage.Duration
		if elapsed < stageEnd {
			return i, true
		}
		stageStart = stageEnd
	}
	return 0, false
}

// PhaseAt classifies elapsed run time by the direction of the active stage.
func (p StagePlan) PhaseAt(elapsed time.Duration) metrics.Phase {
	if elapsed < 0 {
		return metrics.PhaseInit
	}

	idx, ok := p.StageAt(elapsed)
	if !ok {
		return metrics.PhaseDone
	}

	prevTarget := p.StartTarget
	if idx > 0 {
		prevTarget = p.Stages[idx-1].Target
	}

	target := p.Stages[idx].Target
	switch {
	case target > prevTarget:
		return metrics.PhaseRampUp
	case target < prevTarget:
		return metrics.PhaseRampDown
	default:
		return metrics.PhaseSteady
	}
}
