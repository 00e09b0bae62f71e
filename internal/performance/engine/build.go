package engine

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/volley/internal/performance"
	"github.com/wesleyorama2/volley/internal/performance/metrics"
	"github.com/wesleyorama2/volley/internal/performance/threshold"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for lifecycle and VU logs.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithScenario replaces the HTTP scenario described by the configuration
// with one built in code. The configuration's requests are then ignored.
func WithScenario(factory performance.ScenarioFactory) Option {
	return func(e *Engine) {
		e.factory = factory
		e.customScenario = factory != nil
	}
}

// WithPollInterval sets how often the controller reconciles the pool.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithCollectorConfig tunes the metrics collector.
func WithCollectorConfig(cfg metrics.CollectorConfig) Option {
	return func(e *Engine) {
		e.collectorConfig = cfg
	}
}

// build converts the validated configuration into runtime components.
func (e *Engine) build() error {
	var err error

	if e.plan, err = e.cfg.StagePlan(); err != nil {
		return err
	}
	if e.gracefulStop, err = e.cfg.GracefulStopDuration(); err != nil {
		return err
	}
	if e.thinkTime, err = e.cfg.ThinkTimePolicy(); err != nil {
		return err
	}

	specs, err := e.cfg.ThresholdSpecs()
	if err != nil {
		return err
	}
	if e.thresholds, err = threshold.ParseAll(specs); err != nil {
		return err
	}

	e.httpConfig = e.cfg.HTTPClientConfig()

	if !e.customScenario {
		reqs, err := performance.CompileRequests(e.cfg.Requests())
		if err != nil {
			return fmt.Errorf("scenario: %w", err)
		}
		e.factory = performance.HTTPScenarioFactory(reqs)
	}
	if n := e.cfg.Iterations; n > 0 {
		e.factory = limitFactory(e.factory, n)
	}

	return nil
}

// limitFactory caps every VU built by factory at n iterations.
func limitFactory(factory performance.ScenarioFactory, n int64) performance.ScenarioFactory {
	return func(env *performance.VUEnv) (performance.Scenario, error) {
		s, err := factory(env)
		if err != nil {
			return nil, err
		}
		return performance.Limit(s, n), nil
	}
}

func poolConfig(e *Engine, logger logrus.FieldLogger) performance.PoolConfig {
	return performance.PoolConfig{
		Factory:   e.factory,
		Collector: e.collector,
		ThinkTime: e.thinkTime,
		HTTP:      e.httpConfig,
		BaseURL:   e.cfg.BaseURL,
		Vars:      e.cfg.Variables,
		Logger:    logger,
	}
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
