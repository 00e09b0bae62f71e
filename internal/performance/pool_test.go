package performance_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/volley/internal/performance"
	"github.com/wesleyorama2/volley/internal/performance/metrics"
)

func factoryOf(s func() performance.Scenario) performance.ScenarioFactory {
	return func(env *performance.VUEnv) (performance.Scenario, error) {
		return s(), nil
	}
}

func sleepingScenario(d time.Duration) performance.Scenario {
	return performance.ScenarioFunc(func(ctx context.Context) metrics.Outcome {
		select {
		case <-ctx.Done():
			return metrics.Outcome{Err: ctx.Err()}
		case <-time.After(d):
			return metrics.Outcome{}
		}
	})
}

func newTestPool(t *testing.T, factory performance.ScenarioFactory) (*performance.Pool, *metrics.Collector) {
	t.Helper()
	c := metrics.NewCollector()
	t.Cleanup(c.Stop)
	p := performance.NewPool(performance.PoolConfig{
		Factory:   factory,
		Collector: c,
		HTTP:      performance.DefaultHTTPClientConfig(),
	})
	return p, c
}

func TestDefaultHTTPClientConfig(t *testing.T) {
	cfg := performance.DefaultHTTPClientConfig()
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 1000, cfg.MaxIdleConns)
	assert.Equal(t, 100, cfg.MaxIdleConnsPerHost)
	assert.False(t, cfg.PerVUClient)

	client := cfg.NewHTTPClient()
	assert.Equal(t, 30*time.Second, client.Timeout)
}

func TestPool_ReconcileUpAndDown(t *testing.T) {
	p, _ := newTestPool(t, factoryOf(func() performance.Scenario { return sleepingScenario(5 * time.Millisecond) }))
	defer p.Drain(time.Second)

	assert.Equal(t, 5, p.Reconcile(context.Background(), 5))
	require.Eventually(t, func() bool { return p.Active() == 5 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, p.Reconcile(context.Background(), 2))
	require.Eventually(t, func() bool { return p.Active() == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 4, p.Reconcile(context.Background(), 4))
	require.Eventually(t, func() bool { return p.Active() == 4 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, int64(7), p.Stats().Spawned)
}

func TestPool_ReconcileToZero(t *testing.T) {
	p, _ := newTestPool(t, factoryOf(func() performance.Scenario { return sleepingScenario(time.Millisecond) }))
	defer p.Drain(time.Second)

	p.Reconcile(context.Background(), 3)
	assert.Equal(t, 0, p.Reconcile(context.Background(), 0))
	require.Eventually(t, func() bool { return p.Active() == 0 }, time.Second, 5*time.Millisecond)
}

func TestPool_TerminatedVUsAreNotRespawned(t *testing.T) {
	p, c := newTestPool(t, factoryOf(func() performance.Scenario { return performance.Once(okScenario()) }))
	defer p.Drain(time.Second)

	p.Reconcile(context.Background(), 3)
	require.Eventually(t, p.Exhausted, time.Second, 5*time.Millisecond)

	p.Reconcile(context.Background(), 3)
	stats := p.Stats()
	assert.Equal(t, int64(3), stats.Spawned)
	assert.Equal(t, int64(3), stats.CompletedIterations)
	assert.Equal(t, int64(3), c.Snapshot().TotalIterations())
}

func TestPool_NoLostOutcomes(t *testing.T) {
	const vus = 20
	const perVU = 50

	p, c := newTestPool(t, factoryOf(func() performance.Scenario { return performance.Limit(okScenario(), perVU) }))

	p.Reconcile(context.Background(), vus)
	require.Eventually(t, p.Exhausted, 5*time.Second, 5*time.Millisecond)
	require.True(t, p.Drain(time.Second))

	assert.Equal(t, int64(vus*perVU), c.Snapshot().TotalIterations())
	assert.Equal(t, int64(vus*perVU), p.Stats().CompletedIterations)
}

func TestPool_PanicsDoNotStopPool(t *testing.T) {
	var calls atomic.Int64
	factory := factoryOf(func() performance.Scenario {
		return performance.ScenarioFunc(func(ctx context.Context) metrics.Outcome {
			if calls.Add(1)%2 == 0 {
				panic("scenario bug")
			}
			return metrics.Outcome{}
		})
	})
	p, c := newTestPool(t, factory)

	p.Reconcile(context.Background(), 2)
	require.Eventually(t, func() bool { return calls.Load() > 20 }, time.Second, time.Millisecond)
	require.True(t, p.Drain(time.Second))

	snap := c.Snapshot()
	m, ok := snap.Metric(metrics.IterationFailed)
	require.True(t, ok)
	assert.Greater(t, m.Sum, 0.0)
	assert.Less(t, m.Sum, float64(m.Count))
	assert.Equal(t, 0, p.Stats().Active)
}

func TestPool_DrainGraceful(t *testing.T) {
	p, c := newTestPool(t, factoryOf(func() performance.Scenario { return sleepingScenario(20 * time.Millisecond) }))

	p.Reconcile(context.Background(), 4)
	time.Sleep(30 * time.Millisecond)

	assert.True(t, p.Drain(time.Second))

	stats := p.Stats()
	assert.Equal(t, int64(0), stats.InterruptedIterations)
	assert.Equal(t, stats.CompletedIterations, c.Snapshot().TotalIterations())

	// no respawn after drain
	assert.Equal(t, 0, p.Reconcile(context.Background(), 4))
}

func TestPool_DrainTimeoutInterrupts(t *testing.T) {
	p, c := newTestPool(t, factoryOf(func() performance.Scenario { return sleepingScenario(time.Hour) }))

	p.Reconcile(context.Background(), 3)
	require.Eventually(t, func() bool { return p.Active() == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	assert.False(t, p.Drain(50*time.Millisecond))
	assert.Less(t, time.Since(start), time.Second)

	assert.Equal(t, int64(3), p.Stats().InterruptedIterations)
	assert.Equal(t, int64(0), c.Snapshot().TotalIterations())
}

func TestPool_SpawnError(t *testing.T) {
	factory := func(env *performance.VUEnv) (performance.Scenario, error) {
		return nil, errors.New("no scenario")
	}
	p, _ := newTestPool(t, factory)
	defer p.Drain(time.Second)

	assert.Equal(t, 0, p.Reconcile(context.Background(), 2))
	assert.Equal(t, int64(1), p.Stats().SpawnErrors)
}

func TestPool_ThinkTime(t *testing.T) {
	c := metrics.NewCollector()
	defer c.Stop()

	p := performance.NewPool(performance.PoolConfig{
		Factory:   factoryOf(okScenario),
		Collector: c,
		ThinkTime: performance.ConstantThinkTime(50 * time.Millisecond),
		HTTP:      performance.DefaultHTTPClientConfig(),
	})

	p.Reconcile(context.Background(), 1)
	time.Sleep(120 * time.Millisecond)
	require.True(t, p.Drain(time.Second))

	// roughly one iteration per 50ms
	got := c.Snapshot().TotalIterations()
	assert.GreaterOrEqual(t, got, int64(2))
	assert.LessOrEqual(t, got, int64(4))
}
