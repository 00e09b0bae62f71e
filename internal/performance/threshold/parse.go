// Package threshold parses pass/fail expressions over aggregated metrics and
// evaluates them against collector snapshots.
package threshold

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/PaesslerAG/gval"

	"github.com/wesleyorama2/volley/internal/performance/metrics"
)

// Spec is a threshold as written in configuration.
type Spec struct {
	Metric     string `json:"metric"`
	Expression string `json:"threshold"`

	// AbortOnFail stops the run as soon as the threshold fails mid-run.
	AbortOnFail bool `json:"abortOnFail,omitempty"`

	// DelayAbortEval postpones mid-run evaluation so early noise does not
	// abort the run.
	DelayAbortEval time.Duration `json:"delayAbortEval,omitempty"`
}

// Threshold is a parsed, ready to evaluate Spec.
type Threshold struct {
	Spec

	// Aggregation is the left-hand side, e.g. "p(95)" or "rate".
	Aggregation string
	Op          string
	Value       float64

	eval gval.Evaluable
}

// ParseError reports a malformed threshold.
type ParseError struct {
	Metric     string
	Expression string
	Reason     string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("threshold %s %q: %s", e.Metric, e.Expression, e.Reason)
}

var exprPattern = regexp.MustCompile(`^\s*(p\(\s*[0-9.]+\s*\)|[a-z]+)\s*(<=|>=|==|!=|<|>)\s*(\S+)\s*$`)

var percentilePattern = regexp.MustCompile(`^p\(\s*([0-9.]+)\s*\)$`)

// Aggregations allowed per metric type.
var allowed = map[metrics.MetricType][]string{
	metrics.Trend:   {"p", "avg", "min", "max", "med", "count"},
	metrics.Rate:    {"rate", "count"},
	metrics.Counter: {"count", "rate"},
}

type metricKey struct{}

// language evaluates aggregations. Plain names are parameters; p(N) reads
// the percentile of the metric carried in the context.
var language = gval.NewLanguage(
	gval.Base(),
	gval.Function("p", func(ctx context.Context, args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("p() takes one argument")
		}
		q, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("p() argument must be a number")
		}
		m, ok := ctx.Value(metricKey{}).(*metrics.Metric)
		if !ok {
			return nil, fmt.Errorf("no metric to aggregate")
		}
		return m.Percentile(q), nil
	}),
)

// Parse parses "<aggregation> <op> <value>", e.g. "p(95)<500" or
// "rate < 0.01". Durations such as "500ms" are converted to milliseconds.
func Parse(spec Spec) (*Threshold, error) {
	fail := func(format string, args ...interface{}) error {
		return &ParseError{Metric: spec.Metric, Expression: spec.Expression, Reason: fmt.Sprintf(format, args...)}
	}

	if strings.TrimSpace(spec.Metric) == "" {
		return nil, fail("metric name is required")
	}
	if spec.DelayAbortEval < 0 {
		return nil, fail("delayAbortEval must be non-negative")
	}

	m := exprPattern.FindStringSubmatch(spec.Expression)
	if m == nil {
		return nil, fail("expected <aggregation> <op> <value>")
	}
	agg, op, raw := strings.ReplaceAll(m[1], " ", ""), m[2], m[3]

	name := agg
	if pm := percentilePattern.FindStringSubmatch(agg); pm != nil {
		q, err := strconv.ParseFloat(pm[1], 64)
		if err != nil || q < 0 || q > 100 {
			return nil, fail("percentile must be between 0 and 100")
		}
		name = "p"
	}

	typ, known := metrics.LookupType(spec.Metric)
	if !known {
		return nil, fail("unknown metric %s", spec.Metric)
	}
	if !slices.Contains(allowed[typ], name) {
		return nil, fail("aggregation %s is not valid for %s metric", agg, typ)
	}

	value, err := parseValue(raw)
	if err != nil {
		return nil, fail("%v", err)
	}

	eval, err := language.NewEvaluable(agg)
	if err != nil {
		return nil, fail("%v", err)
	}

	return &Threshold{
		Spec:        spec,
		Aggregation: agg,
		Op:          op,
		Value:       value,
		eval:        eval,
	}, nil
}

// ParseAll parses every spec and joins all errors.
func ParseAll(specs []Spec) ([]*Threshold, error) {
	out := make([]*Threshold, 0, len(specs))
	var errs []error
	for _, s := range specs {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, t)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func parseValue(raw string) (float64, error) {
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", raw)
	}
	return float64(d) / float64(time.Millisecond), nil
}

// Observe computes the aggregation over m.
func (t *Threshold) Observe(m *metrics.Metric) (float64, error) {
	ctx := context.WithValue(context.Background(), metricKey{}, m)
	return t.eval.EvalFloat64(ctx, parameters(m))
}

func parameters(m *metrics.Metric) map[string]interface{} {
	count := float64(m.Count)
	if m.Type == metrics.Counter {
		count = m.Sum
	}
	return map[string]interface{}{
		"count": count,
		"rate":  m.Rate(),
		"avg":   m.Avg(),
		"min":   m.Min(),
		"max":   m.Max(),
		"med":   m.Med(),
	}
}

// String returns the threshold as metric and expression.
func (t *Threshold) String() string {
	return fmt.Sprintf("%s: %s %s %g", t.Metric, t.Aggregation, t.Op, t.Value)
}
