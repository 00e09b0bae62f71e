// Package engine runs a load test from configuration to verdict.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/volley/internal/performance"
	"github.com/wesleyorama2/volley/internal/performance/config"
	"github.com/wesleyorama2/volley/internal/performance/metrics"
	"github.com/wesleyorama2/volley/internal/performance/threshold"
)

// DefaultPollInterval is how often the controller re-targets the pool.
const DefaultPollInterval = 100 * time.Millisecond

// Engine drives one run: it follows the stage plan, keeps the VU pool at
// the planned concurrency, watches abort-on-fail thresholds and produces a
// Result once the plan ends or the run is cancelled.
//
// Example usage:
//
//	cfg, _ := config.LoadPreset("smoke")
//	e, err := engine.New(cfg, engine.WithLogger(logger))
//	if err != nil {
//		os.Exit(engine.ExitCodeForError(err))
//	}
//	result, _ := e.Run(ctx)
//	os.Exit(result.ExitCode())
type Engine struct {
	cfg   *config.TestConfig
	runID uuid.UUID

	plan         performance.StagePlan
	thinkTime    performance.ThinkTime
	gracefulStop time.Duration
	thresholds   []*threshold.Threshold
	httpConfig   performance.HTTPClientConfig

	factory        performance.ScenarioFactory
	customScenario bool

	collectorConfig metrics.CollectorConfig
	collector       *metrics.Collector
	logger          logrus.FieldLogger
	pollInterval    time.Duration

	target atomic.Int64

	mu        sync.RWMutex
	state     State
	started   bool
	startTime time.Time
	pool      *performance.Pool
}

// Progress is a live view of a running test.
type Progress struct {
	State      State         `json:"state"`
	Phase      metrics.Phase `json:"phase"`
	Elapsed    time.Duration `json:"elapsed"`
	Total      time.Duration `json:"total"`
	Stage      int           `json:"stage"`
	TargetVUs  int           `json:"targetVUs"`
	ActiveVUs  int           `json:"activeVUs"`
	Requests   int64         `json:"requests"`
	CurrentRPS float64       `json:"currentRps"`
	ErrorRate  float64       `json:"errorRate"`
}

// Percent returns how much of the plan has elapsed, from 0 to 100.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	pct := float64(p.Elapsed) / float64(p.Total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// New validates cfg and prepares a run. Any problem with the configuration
// is returned as a *ConfigError before a single VU is started.
func New(cfg *config.TestConfig, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:             cfg,
		runID:           uuid.New(),
		collectorConfig: metrics.DefaultCollectorConfig(),
		logger:          discardLogger(),
		pollInterval:    DefaultPollInterval,
		state:           StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}

	config.ApplyDefaults(cfg)

	validate := cfg.Validate
	if e.customScenario {
		validate = cfg.ValidateProfile
	}
	if err := validate(); err != nil {
		return nil, &ConfigError{Err: err}
	}
	if err := e.build(); err != nil {
		return nil, &ConfigError{Err: err}
	}

	e.collector = metrics.NewCollectorWithConfig(e.collectorConfig)
	return e, nil
}

// RunID identifies this run in logs and run history.
func (e *Engine) RunID() uuid.UUID {
	return e.runID
}

// Plan returns the stage plan the run follows.
func (e *Engine) Plan() performance.StagePlan {
	return e.plan
}

// Collector returns the metrics collector of the run, e.g. to export it.
func (e *Engine) Collector() *metrics.Collector {
	return e.collector
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Snapshot returns the current aggregates.
func (e *Engine) Snapshot() *metrics.Snapshot {
	return e.collector.Snapshot()
}

// Progress returns a cheap live view of the run.
func (e *Engine) Progress() Progress {
	e.mu.RLock()
	state, start, started := e.state, e.startTime, e.started
	e.mu.RUnlock()

	p := Progress{
		State:     state,
		Phase:     e.collector.Phase(),
		Total:     e.plan.TotalDuration(),
		TargetVUs: int(e.target.Load()),
		ActiveVUs: e.collector.ActiveVUs(),
		Requests:  e.collector.TotalRequests(),
	}
	if started {
		p.Elapsed = time.Since(start)
		if idx, ok := e.plan.StageAt(p.Elapsed); ok {
			p.Stage = idx
		}
	}
	if b := e.collector.LatestBucket(); b != nil {
		p.CurrentRPS = b.IntervalRPS
		p.ErrorRate = b.IntervalErrorRate
	}
	return p
}

// Run executes the test. It blocks until the plan completes, ctx is
// cancelled or an abort-on-fail threshold fails, then drains the pool and
// evaluates thresholds. Cancelling ctx yields a Result in StateAborted, not
// an error.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil, ErrAlreadyRun
	}
	e.started = true
	e.startTime = time.Now()
	e.mu.Unlock()

	log := e.logger.WithFields(logrus.Fields{
		"run_id": e.runID.String(),
		"name":   e.cfg.Name,
	})

	pool := performance.NewPool(poolConfig(e, log))
	e.mu.Lock()
	e.pool = pool
	e.mu.Unlock()

	e.collector.Start()
	start := time.Now()
	log.WithFields(logrus.Fields{
		"duration":      e.plan.TotalDuration(),
		"max_vus":       e.plan.MaxTarget(),
		"thresholds":    len(e.thresholds),
		"think_time":    e.thinkTime.Type,
		"graceful_stop": e.gracefulStop,
	}).Info("starting run")

	end := e.control(ctx, pool, start, log)

	e.setState(StateDraining, log)
	graceful := pool.Drain(e.gracefulStop)
	e.collector.SetActiveVUs(0)
	e.collector.SetPhase(metrics.PhaseDone)
	e.collector.Stop()

	snap := e.collector.Snapshot()
	verdict := threshold.Evaluate(snap, e.thresholds)
	e.setState(StateComplete, log)

	final := StatePassed
	switch {
	case end.aborted:
		final = StateAborted
	case end.thresholdAbort || !verdict.Passed:
		final = StateFailed
	}

	finished := time.Now()
	result := &Result{
		RunID:          e.runID,
		Name:           e.cfg.Name,
		Description:    e.cfg.Description,
		StartTime:      start,
		EndTime:        finished,
		Duration:       finished.Sub(start),
		State:          final,
		Verdict:        verdict,
		Metrics:        snap,
		TimeSeries:     e.collector.TimeSeries(),
		Phases:         e.collector.PhaseHistory(),
		Pool:           pool.Stats(),
		Plan:           e.plan,
		SteadyStateRPS: e.collector.SteadyStateRPS(),
		AbortReason:    end.reason,
		GracefulDrain:  graceful,
	}

	e.setState(final, log)
	log.WithFields(logrus.Fields{
		"requests":    snap.TotalRequests(),
		"iterations":  snap.TotalIterations(),
		"error_rate":  snap.ErrorRate(),
		"interrupted": result.Pool.InterruptedIterations,
		"graceful":    graceful,
	}).Info("run finished")

	return result, nil
}

// runEnd records why the control loop stopped.
type runEnd struct {
	aborted        bool
	thresholdAbort bool
	reason         string
}

// control is the single controller goroutine: every poll interval it
// computes the planned target and reconciles the pool to it.
func (e *Engine) control(ctx context.Context, pool *performance.Pool, start time.Time, log logrus.FieldLogger) runEnd {
	total := e.plan.TotalDuration()
	watchAborts := threshold.HasAbortOnFail(e.thresholds)

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	e.reconcile(ctx, pool, 0, log)

	for {
		select {
		case <-ctx.Done():
			log.WithError(ctx.Err()).Warn("run cancelled")
			return runEnd{aborted: true, reason: "run cancelled: " + ctx.Err().Error()}
		case <-ticker.C:
		}

		elapsed := time.Since(start)
		if elapsed >= total {
			return runEnd{}
		}

		e.reconcile(ctx, pool, elapsed, log)

		if pool.Exhausted() {
			log.Info("every VU finished its iterations")
			return runEnd{}
		}

		if watchAborts {
			if r, abort := threshold.ShouldAbort(e.collector.Snapshot(), e.thresholds, elapsed); abort {
				log.WithFields(logrus.Fields{
					"metric":    r.Metric,
					"threshold": r.Expression,
					"observed":  r.Observed,
				}).Warn("threshold crossed, aborting run")
				return runEnd{thresholdAbort: true, reason: "threshold " + r.Metric + " " + r.Expression + " failed: " + r.Message}
			}
		}
	}
}

func (e *Engine) reconcile(ctx context.Context, pool *performance.Pool, elapsed time.Duration, log logrus.FieldLogger) {
	target := e.plan.TargetAt(elapsed)
	e.target.Store(int64(target))
	pool.Reconcile(ctx, target)
	e.collector.SetActiveVUs(pool.Active())

	phase := e.plan.PhaseAt(elapsed)
	e.collector.SetPhase(phase)

	state := StateRamping
	if phase == metrics.PhaseSteady {
		state = StateSteady
	}
	e.setState(state, log)
}

func (e *Engine) setState(s State, log logrus.FieldLogger) {
	e.mu.Lock()
	prev := e.state
	e.state = s
	e.mu.Unlock()

	if prev == s {
		return
	}
	log.WithFields(logrus.Fields{
		"state":  s,
		"from":   prev,
		"target": e.target.Load(),
		"vus":    e.collector.ActiveVUs(),
	}).Info("run state changed")
}
