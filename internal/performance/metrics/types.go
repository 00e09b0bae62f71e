package metrics

import "time"

// Phase represents a phase of the load test.
type Phase string

const (
	// PhaseInit is the initialization phase before the test starts
	PhaseInit Phase = "init"

	// PhaseRampUp is the ramp-up phase when load is increasing
	PhaseRampUp Phase = "ramp-up"

	// PhaseSteady is the steady-state phase at target load
	PhaseSteady Phase = "steady"

	// PhaseRampDown is the ramp-down phase when load is decreasing
	PhaseRampDown Phase = "ramp-down"

	// PhaseDone indicates the test has completed
	PhaseDone Phase = "done"
)

// MetricType is the aggregation kind of a metric.
type MetricType string

const (
	// Counter sums every sample.
	Counter MetricType = "counter"

	// Rate tracks the fraction of non-zero samples.
	Rate MetricType = "rate"

	// Trend keeps a latency distribution for percentile queries.
	Trend MetricType = "trend"
)

// Built-in metric names. They follow k6 naming so existing threshold
// definitions keep working unchanged.
const (
	HTTPReqs          = "http_reqs"
	HTTPReqDuration   = "http_req_duration"
	HTTPReqFailed     = "http_req_failed"
	Iterations        = "iterations"
	IterationDuration = "iteration_duration"
	IterationFailed   = "iteration_failed"
	Checks            = "checks"
	DataReceived      = "data_received"
)

// BuiltinMetrics maps every built-in metric to its type.
var BuiltinMetrics = map[string]MetricType{
	HTTPReqs:          Counter,
	HTTPReqDuration:   Trend,
	HTTPReqFailed:     Rate,
	Iterations:        Counter,
	IterationDuration: Trend,
	IterationFailed:   Rate,
	Checks:            Rate,
	DataReceived:      Counter,
}

// LookupType returns the type of a built-in metric.
func LookupType(name string) (MetricType, bool) {
	t, ok := BuiltinMetrics[name]
	return t, ok
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// TimeBucket represents metrics for one emitter interval.
//
// Each bucket captures both cumulative totals and interval-specific deltas.
type TimeBucket struct {
	// Timestamp when this bucket was created
	Timestamp time.Time `json:"timestamp"`

	// Cumulative counters (total since test start)
	TotalRequests int64 `json:"totalRequests"`
	TotalFailures int64 `json:"totalFailures"`
	TotalIters    int64 `json:"totalIterations"`
	TotalBytes    int64 `json:"totalBytes"`

	// Interval metrics (for this bucket only)
	IntervalRequests int64   `json:"intervalRequests"`
	IntervalRPS      float64 `json:"intervalRPS"`

	// Latency percentiles at this point in time
	LatencyP50 time.Duration `json:"latencyP50"`
	LatencyP95 time.Duration `json:"latencyP95"`
	LatencyP99 time.Duration `json:"latencyP99"`

	// Active state
	ActiveVUs int   `json:"activeVUs"`
	Phase     Phase `json:"phase"`

	// Error rate for this interval
	IntervalErrorRate float64 `json:"intervalErrorRate"`
}

// PhaseChange records when a phase transition occurred.
type PhaseChange struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
	Requests  int64     `json:"requests"`
}

// CollectorConfig contains configuration for the metrics collector.
type CollectorConfig struct {
	// Shards is the number of independently locked aggregation shards.
	// Zero selects a value based on GOMAXPROCS.
	Shards int

	// BucketInterval is the interval for time-series buckets (default: 1s)
	BucketInterval time.Duration

	// MaxBuckets is the maximum number of buckets to retain (default: 3600)
	MaxBuckets int

	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 3600000000 = 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultCollectorConfig returns the default configuration.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		BucketInterval:   time.Second,
		MaxBuckets:       3600,
		HistogramMin:     1,
		HistogramMax:     3600000000, // 1 hour in microseconds
		HistogramSigFigs: 3,
	}
}
