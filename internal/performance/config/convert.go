package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/wesleyorama2/volley/internal/performance"
	"github.com/wesleyorama2/volley/internal/performance/threshold"
)

// StagePlan converts the load profile into a plan. Flat vus start at full
// concurrency; stages ramp from zero.
func (c *TestConfig) StagePlan() (performance.StagePlan, error) {
	if len(c.Stages) > 0 {
		plan := performance.StagePlan{Stages: make([]performance.Stage, 0, len(c.Stages))}
		for i, s := range c.Stages {
			d, err := ParseDurationString(s.Duration)
			if err != nil {
				return performance.StagePlan{}, fmt.Errorf("stages[%d]: %w", i, err)
			}
			plan.Stages = append(plan.Stages, performance.Stage{Duration: d, Target: s.Target, Name: s.Name})
		}
		return plan, nil
	}

	d, err := ParseDurationString(c.Duration)
	if err != nil {
		return performance.StagePlan{}, fmt.Errorf("duration: %w", err)
	}
	return performance.ConstantPlan(c.VUs, d), nil
}

// GracefulStopDuration returns how long the pool may drain before in-flight
// iterations are cancelled.
func (c *TestConfig) GracefulStopDuration() (time.Duration, error) {
	if c.GracefulStop == "" {
		return DefaultGracefulStop, nil
	}
	d, err := ParseDurationString(c.GracefulStop)
	if err != nil {
		return 0, fmt.Errorf("gracefulStop: %w", err)
	}
	return d, nil
}

// ThinkTimePolicy converts the think time section. A missing section means
// no think time.
func (c *TestConfig) ThinkTimePolicy() (performance.ThinkTime, error) {
	tt := c.ThinkTime
	if tt == nil {
		return performance.ThinkTime{Type: performance.ThinkTimeNone}, nil
	}

	policy := performance.ThinkTime{Type: performance.ThinkTimeType(tt.Type)}
	var err error
	if policy.Duration, err = ParseDurationString(tt.Duration); err != nil {
		return policy, fmt.Errorf("thinkTime.duration: %w", err)
	}
	if policy.Min, err = ParseDurationString(tt.Min); err != nil {
		return policy, fmt.Errorf("thinkTime.min: %w", err)
	}
	if policy.Max, err = ParseDurationString(tt.Max); err != nil {
		return policy, fmt.Errorf("thinkTime.max: %w", err)
	}
	return policy, policy.Validate()
}

// ThresholdSpecs flattens the thresholds map, ordered by metric name and
// then by position.
func (c *TestConfig) ThresholdSpecs() ([]threshold.Spec, error) {
	names := make([]string, 0, len(c.Thresholds))
	for name := range c.Thresholds {
		names = append(names, name)
	}
	sort.Strings(names)

	var specs []threshold.Spec
	for _, name := range names {
		for i, t := range c.Thresholds[name] {
			delay, err := ParseDurationString(t.DelayAbortEval)
			if err != nil {
				return nil, fmt.Errorf("thresholds.%s[%d].delayAbortEval: %w", name, i, err)
			}
			specs = append(specs, threshold.Spec{
				Metric:         name,
				Expression:     t.Threshold,
				AbortOnFail:    t.AbortOnFail,
				DelayAbortEval: delay,
			})
		}
	}
	return specs, nil
}

// Requests converts the scenario requests.
func (c *TestConfig) Requests() []performance.Request {
	out := make([]performance.Request, 0, len(c.Scenario.Requests))
	for _, r := range c.Scenario.Requests {
		req := performance.Request{
			Name:    r.Name,
			Method:  r.Method,
			URL:     r.URL,
			Headers: r.Headers,
			Body:    r.Body,
			Timeout: time.Duration(r.Timeout),
		}
		for _, chk := range r.Checks {
			req.Checks = append(req.Checks, performance.Check{
				Name:      chk.Name,
				Type:      performance.CheckType(chk.Type),
				Condition: chk.Condition,
				Path:      chk.Path,
				Value:     chk.Value,
			})
		}
		out = append(out, req)
	}
	return out
}

// HTTPClientConfig converts the HTTP settings on top of the client defaults.
func (c *TestConfig) HTTPClientConfig() performance.HTTPClientConfig {
	hc := performance.DefaultHTTPClientConfig()
	hc.Timeout = c.HTTP.Timeout.GetDuration(hc.Timeout)
	if c.HTTP.MaxIdleConnsPerHost > 0 {
		hc.MaxIdleConnsPerHost = c.HTTP.MaxIdleConnsPerHost
	}
	hc.MaxConnsPerHost = c.HTTP.MaxConnsPerHost
	hc.DisableKeepAlives = c.HTTP.DisableKeepAlives
	hc.InsecureSkipVerify = c.HTTP.InsecureSkipVerify
	hc.PerVUClient = c.HTTP.PerVUClient
	return hc
}
