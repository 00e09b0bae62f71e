package performance

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/volley/internal/performance/metrics"
)

// Scenario is the work one virtual user performs per iteration.
//
// Invoke must honour ctx: when it is cancelled, in-flight network calls
// should return promptly. The VU fills in VUID and Iteration on the
// returned outcome, and measures Duration if the scenario leaves it zero.
type Scenario interface {
	Invoke(ctx context.Context) metrics.Outcome
}

// ScenarioFunc adapts a plain function to the Scenario interface.
type ScenarioFunc func(ctx context.Context) metrics.Outcome

// Invoke calls f(ctx).
func (f ScenarioFunc) Invoke(ctx context.Context) metrics.Outcome {
	return f(ctx)
}

// VUEnv is what a scenario gets injected when its VU is created.
type VUEnv struct {
	VUID    int
	Client  *http.Client
	BaseURL string
	Vars    map[string]string
	Logger  logrus.FieldLogger
}

// ScenarioFactory builds the scenario instance owned by one VU. It is called
// once per VU, so per-VU state lives in the returned value.
type ScenarioFactory func(env *VUEnv) (Scenario, error)

type iterationKey struct{}

// WithIteration returns a context carrying the current iteration number.
func WithIteration(ctx context.Context, n int64) context.Context {
	return context.WithValue(ctx, iterationKey{}, n)
}

// IterationFrom returns the iteration number stored by WithIteration.
func IterationFrom(ctx context.Context) int64 {
	n, _ := ctx.Value(iterationKey{}).(int64)
	return n
}

type limited struct {
	next  Scenario
	limit int64
	done  atomic.Int64
}

// Limit wraps s so the VU terminates after n invocations.
func Limit(s Scenario, n int64) Scenario {
	return &limited{next: s, limit: n}
}

func (l *limited) Invoke(ctx context.Context) metrics.Outcome {
	o := l.next.Invoke(ctx)
	if l.done.Add(1) >= l.limit {
		o.Terminate = true
	}
	return o
}

// Once wraps s so the VU runs exactly one iteration.
func Once(s Scenario) Scenario {
	return Limit(s, 1)
}

// Timed runs fn and returns an outcome with its duration and error set.
// It is a convenience for code-defined scenarios.
func Timed(fn func(ctx context.Context) error) Scenario {
	return ScenarioFunc(func(ctx context.Context) metrics.Outcome {
		start := time.Now()
		err := fn(ctx)
		return metrics.Outcome{Duration: time.Since(start), Err: err}
	})
}
