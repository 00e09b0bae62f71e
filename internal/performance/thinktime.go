package performance

import (
	"fmt"
	"math/rand"
	"time"
)

// ThinkTimeType selects how long a VU pauses between iterations.
type ThinkTimeType string

const (
	// ThinkTimeNone runs iterations back to back.
	ThinkTimeNone ThinkTimeType = "none"

	// ThinkTimeConstant waits a fixed duration.
	ThinkTimeConstant ThinkTimeType = "constant"

	// ThinkTimeRandom waits a uniformly random duration in [Min, Max).
	ThinkTimeRandom ThinkTimeType = "random"
)

// ThinkTime is the pause policy applied after every iteration.
type ThinkTime struct {
	Type     ThinkTimeType `json:"type"`
	Duration time.Duration `json:"duration,omitempty"`
	Min      time.Duration `json:"min,omitempty"`
	Max      time.Duration `json:"max,omitempty"`
}

// ConstantThinkTime returns a fixed pause of d.
func ConstantThinkTime(d time.Duration) ThinkTime {
	return ThinkTime{Type: ThinkTimeConstant, Duration: d}
}

// RandomThinkTime returns a pause drawn uniformly from [lo, hi).
func RandomThinkTime(lo, hi time.Duration) ThinkTime {
	return ThinkTime{Type: ThinkTimeRandom, Min: lo, Max: hi}
}

// Validate checks the policy bounds.
func (t ThinkTime) Validate() error {
	switch t.Type {
	case "", ThinkTimeNone:
		return nil
	case ThinkTimeConstant:
		if t.Duration < 0 {
			return fmt.Errorf("think time duration must be non-negative, got %s", t.Duration)
		}
	case ThinkTimeRandom:
		if t.Min < 0 || t.Max < 0 {
			return fmt.Errorf("think time bounds must be non-negative")
		}
		if t.Max < t.Min {
			return fmt.Errorf("think time max (%s) is less than min (%s)", t.Max, t.Min)
		}
	default:
		return fmt.Errorf("unknown think time type %q", t.Type)
	}
	return nil
}

// Next returns the pause before the next iteration.
func (t ThinkTime) Next() time.Duration {
	switch t.Type {
	case ThinkTimeConstant:
		return t.Duration
	case ThinkTimeRandom:
		diff := t.Max - t.Min
		if diff > 0 {
			return t.Min + time.Duration(rand.Int63n(int64(diff)))
		}
		return t.Min
	default:
		return 0
	}
}
