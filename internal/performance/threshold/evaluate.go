package threshold

import (
	"fmt"
	"time"

	"github.com/wesleyorama2/volley/internal/performance/metrics"
)

// Status is the outcome of one threshold.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"

	// StatusIndeterminate means the metric had no samples. It does not fail
	// the verdict.
	StatusIndeterminate Status = "indeterminate"
)

// Result is the evaluation of one threshold.
type Result struct {
	Metric      string  `json:"metric"`
	Expression  string  `json:"expression"`
	Status      Status  `json:"status"`
	Observed    float64 `json:"observed"`
	Message     string  `json:"message,omitempty"`
	AbortOnFail bool    `json:"abortOnFail,omitempty"`
}

// Verdict is the evaluation of all thresholds.
type Verdict struct {
	Results []Result `json:"results"`
	Passed  bool     `json:"passed"`
}

// Failed returns the failed results.
func (v Verdict) Failed() []Result {
	var out []Result
	for _, r := range v.Results {
		if r.Status == StatusFailed {
			out = append(out, r)
		}
	}
	return out
}

// Evaluate checks every threshold against snap. It has no side effects, so
// the same snapshot always yields the same verdict.
func Evaluate(snap *metrics.Snapshot, thresholds []*Threshold) Verdict {
	v := Verdict{Passed: true, Results: make([]Result, 0, len(thresholds))}
	for _, t := range thresholds {
		r := evaluateOne(snap, t)
		if r.Status == StatusFailed {
			v.Passed = false
		}
		v.Results = append(v.Results, r)
	}
	return v
}

func evaluateOne(snap *metrics.Snapshot, t *Threshold) Result {
	r := Result{
		Metric:      t.Metric,
		Expression:  t.Expression,
		AbortOnFail: t.AbortOnFail,
	}

	m, ok := snap.Metric(t.Metric)
	if !ok || m.Count == 0 {
		r.Status = StatusIndeterminate
		r.Message = "no samples"
		return r
	}

	observed, err := t.Observe(m)
	if err != nil {
		r.Status = StatusIndeterminate
		r.Message = fmt.Sprintf("cannot evaluate: %v", err)
		return r
	}

	r.Observed = observed
	if compareValues(observed, t.Op, t.Value) {
		r.Status = StatusPassed
	} else {
		r.Status = StatusFailed
		r.Message = fmt.Sprintf("%s is %.4g, threshold: %s %g", t.Aggregation, observed, t.Op, t.Value)
	}
	return r
}

// ShouldAbort evaluates the abort-on-fail thresholds whose delay has passed
// and returns the first failure.
func ShouldAbort(snap *metrics.Snapshot, thresholds []*Threshold, elapsed time.Duration) (Result, bool) {
	for _, t := range thresholds {
		if !t.AbortOnFail || elapsed < t.DelayAbortEval {
			continue
		}
		if r := evaluateOne(snap, t); r.Status == StatusFailed {
			return r, true
		}
	}
	return Result{}, false
}

// HasAbortOnFail reports whether any threshold can abort a run.
func HasAbortOnFail(thresholds []*Threshold) bool {
	for _, t := range thresholds {
		if t.AbortOnFail {
			return true
		}
	}
	return false
}

// compareValues compares two values using the given operator.
func compareValues(actual float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "==":
		return actual == threshold
	case "!=":
		return actual != threshold
	default:
		return false
	}
}
