package metrics

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Snapshot is an immutable view of the aggregates at one point in time.
type Snapshot struct {
	Metrics   map[string]*Metric `json:"metrics"`
	Checks    []CheckStats       `json:"checks,omitempty"`
	ActiveVUs int                `json:"activeVUs"`
	Phase     Phase              `json:"phase"`
	StartTime time.Time          `json:"startTime"`
	Elapsed   time.Duration      `json:"elapsed"`
	Timestamp time.Time          `json:"timestamp"`
}

// Metric is the merged aggregate of one metric. Trend values are reported
// in milliseconds.
type Metric struct {
	Name string     `json:"-"`
	Type MetricType `json:"type"`

	// Count is the number of samples.
	Count int64 `json:"count"`

	// Sum is the counter total, the number of non-zero samples for a rate,
	// or the sum of recorded microseconds for a trend.
	Sum float64 `json:"-"`

	min     int64
	max     int64
	hist    *hdrhistogram.Histogram
	elapsed time.Duration
}

// CheckStats holds pass/fail counts of one named check.
type CheckStats struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// Rate returns the pass ratio of the check.
func (c CheckStats) Rate() float64 {
	total := c.Passes + c.Fails
	if total == 0 {
		return 0
	}
	return float64(c.Passes) / float64(total)
}

func sortedChecks(m map[string]*CheckStats) []CheckStats {
	if len(m) == 0 {
		return nil
	}
	out := make([]CheckStats, 0, len(m))
	for _, c := range m {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Metric returns the named metric if it has been recorded.
func (s *Snapshot) Metric(name string) (*Metric, bool) {
	m, ok := s.Metrics[name]
	return m, ok
}

// TotalRequests returns the number of HTTP requests recorded.
func (s *Snapshot) TotalRequests() int64 {
	if m, ok := s.Metrics[HTTPReqs]; ok {
		return int64(m.Sum)
	}
	return 0
}

// FailedRequests returns the number of failed HTTP requests.
func (s *Snapshot) FailedRequests() int64 {
	if m, ok := s.Metrics[HTTPReqFailed]; ok {
		return int64(m.Sum)
	}
	return 0
}

// TotalIterations returns the number of completed iterations.
func (s *Snapshot) TotalIterations() int64 {
	if m, ok := s.Metrics[Iterations]; ok {
		return int64(m.Sum)
	}
	return 0
}

// TotalBytes returns the number of response bytes received.
func (s *Snapshot) TotalBytes() int64 {
	if m, ok := s.Metrics[DataReceived]; ok {
		return int64(m.Sum)
	}
	return 0
}

// ErrorRate returns the fraction of failed HTTP requests.
func (s *Snapshot) ErrorRate() float64 {
	if m, ok := s.Metrics[HTTPReqFailed]; ok {
		return m.Rate()
	}
	return 0
}

// RPS returns the average request rate over the elapsed time.
func (s *Snapshot) RPS() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.TotalRequests()) / s.Elapsed.Seconds()
}

// Latency returns request latency statistics.
func (s *Snapshot) Latency() LatencyStats {
	m, ok := s.Metrics[HTTPReqDuration]
	if !ok || m.hist == nil {
		return LatencyStats{}
	}
	if m.hist.TotalCount() == 0 {
		return LatencyStats{}
	}
	ms := func(v float64) time.Duration {
		return time.Duration(v * float64(time.Millisecond))
	}
	return LatencyStats{
		Min:    time.Duration(m.min) * time.Microsecond,
		Max:    time.Duration(m.max) * time.Microsecond,
		Mean:   ms(m.Avg()),
		StdDev: time.Duration(m.hist.StdDev()) * time.Microsecond,
		P50:    ms(m.Percentile(50)),
		P90:    ms(m.Percentile(90)),
		P95:    ms(m.Percentile(95)),
		P99:    ms(m.Percentile(99)),
		Count:  m.hist.TotalCount(),
	}
}

// Rate returns the fraction of non-zero samples for a rate metric, or the
// per-second rate for a counter.
func (m *Metric) Rate() float64 {
	switch m.Type {
	case Rate:
		if m.Count == 0 {
			return 0
		}
		return m.Sum / float64(m.Count)
	case Counter:
		if m.elapsed <= 0 {
			return 0
		}
		return m.Sum / m.elapsed.Seconds()
	default:
		return 0
	}
}

// Percentile returns the p-th percentile (0-100) of a trend in milliseconds.
// Percentiles are approximate but never fall outside the exact min and max.
func (m *Metric) Percentile(p float64) float64 {
	if m.hist == nil || m.hist.TotalCount() == 0 {
		return 0
	}
	v := min(max(m.hist.ValueAtQuantile(p), m.min), m.max)
	return float64(v) / 1000
}

// Avg returns the exact mean of a trend in milliseconds.
func (m *Metric) Avg() float64 {
	if m.hist == nil || m.Count == 0 {
		return 0
	}
	return m.Sum / float64(m.Count) / 1000
}

// Min returns the smallest trend sample in milliseconds.
func (m *Metric) Min() float64 {
	if m.hist == nil || m.Count == 0 {
		return 0
	}
	return float64(m.min) / 1000
}

// Max returns the largest trend sample in milliseconds.
func (m *Metric) Max() float64 {
	if m.hist == nil || m.Count == 0 {
		return 0
	}
	return float64(m.max) / 1000
}

// Med returns the median of a trend in milliseconds.
func (m *Metric) Med() float64 {
	return m.Percentile(50)
}

// Values returns the summary values of the metric, keyed the way they
// appear in threshold expressions.
func (m *Metric) Values() map[string]float64 {
	switch m.Type {
	case Trend:
		return map[string]float64{
			"avg":   m.Avg(),
			"min":   m.Min(),
			"med":   m.Med(),
			"max":   m.Max(),
			"p(90)": m.Percentile(90),
			"p(95)": m.Percentile(95),
			"p(99)": m.Percentile(99),
			"count": float64(m.Count),
		}
	case Rate:
		return map[string]float64{
			"rate":   m.Rate(),
			"passes": m.Sum,
			"fails":  float64(m.Count) - m.Sum,
		}
	default:
		return map[string]float64{
			"count": m.Sum,
			"rate":  m.Rate(),
		}
	}
}

// MarshalJSON renders the metric in summary form.
func (m *Metric) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   MetricType         `json:"type"`
		Values map[string]float64 `json:"values"`
	}{
		Type:   m.Type,
		Values: m.Values(),
	})
}
