package metrics

import "time"

// Outcome is the result of one scenario invocation by a virtual user.
//
// Outcomes are handed to Collector.Record as soon as the iteration finishes
// and are not retained afterwards.
type Outcome struct {
	VUID      int           `json:"vuId"`
	Iteration int64         `json:"iteration"`
	Duration  time.Duration `json:"duration"`

	// Err is set when the iteration as a whole failed: it was cancelled
	// before all requests ran, the scenario panicked, or a custom scenario
	// reported an error. Failures of single requests, transport errors
	// included, are carried by their RequestSample instead.
	Err error `json:"-"`

	Requests []RequestSample `json:"requests,omitempty"`
	Checks   []CheckResult   `json:"checks,omitempty"`

	// Terminate asks the pool not to schedule further iterations on this VU.
	Terminate bool `json:"terminate,omitempty"`
}

// Success reports whether the iteration completed without a scenario
// error and without failed requests. Failed checks do not fail an iteration.
func (o Outcome) Success() bool {
	if o.Err != nil {
		return false
	}
	for _, r := range o.Requests {
		if r.Failed {
			return false
		}
	}
	return true
}

// RequestSample is the measurement of a single HTTP request.
type RequestSample struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Status   int           `json:"status"`
	Bytes    int64         `json:"bytes"`
	Failed   bool          `json:"failed"`
	Err      error         `json:"-"`
}

// CheckResult is one named boolean assertion.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}
