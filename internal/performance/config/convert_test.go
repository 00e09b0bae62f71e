package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/volley/internal/performance"
)

func TestStagePlan_FlatStartsAtFullConcurrency(t *testing.T) {
	c := &TestConfig{VUs: 10, Duration: "30m"}
	plan, err := c.StagePlan()
	require.NoError(t, err)

	assert.Equal(t, 10, plan.TargetAt(0))
	assert.Equal(t, 10, plan.TargetAt(29*time.Minute))
	assert.Equal(t, 30*time.Minute, plan.TotalDuration())
}

func TestStagePlan_Stages(t *testing.T) {
	c := &TestConfig{Stages: []StageConfig{
		{Duration: "2m", Target: 20},
		{Duration: "5m", Target: 50, Name: "climb"},
	}}
	plan, err := c.StagePlan()
	require.NoError(t, err)

	assert.Equal(t, 0, plan.StartTarget)
	require.Len(t, plan.Stages, 2)
	assert.Equal(t, performance.Stage{Duration: 5 * time.Minute, Target: 50, Name: "climb"}, plan.Stages[1])
	assert.Equal(t, 10, plan.TargetAt(time.Minute))
}

func TestThinkTimePolicy(t *testing.T) {
	c := &TestConfig{}
	tt, err := c.ThinkTimePolicy()
	require.NoError(t, err)
	assert.Equal(t, performance.ThinkTimeNone, tt.Type)

	c.ThinkTime = &ThinkTimeConfig{Type: "random", Min: "0s", Max: "300ms"}
	tt, err = c.ThinkTimePolicy()
	require.NoError(t, err)
	assert.Equal(t, performance.RandomThinkTime(0, 300*time.Millisecond), tt)

	c.ThinkTime = &ThinkTimeConfig{Type: "sometimes"}
	_, err = c.ThinkTimePolicy()
	assert.Error(t, err)
}

func TestThresholdSpecs_OrderedByMetric(t *testing.T) {
	c := &TestConfig{Thresholds: map[string][]ThresholdConfig{
		"http_req_failed":   {{Threshold: "rate<0.02"}},
		"http_req_duration": {{Threshold: "p(99)<1000"}, {Threshold: "p(95)<500", AbortOnFail: true, DelayAbortEval: "10s"}},
	}}

	specs, err := c.ThresholdSpecs()
	require.NoError(t, err)
	require.Len(t, specs, 3)

	assert.Equal(t, "http_req_duration", specs[0].Metric)
	assert.Equal(t, "p(99)<1000", specs[0].Expression)
	assert.True(t, specs[1].AbortOnFail)
	assert.Equal(t, 10*time.Second, specs[1].DelayAbortEval)
	assert.Equal(t, "http_req_failed", specs[2].Metric)
}

func TestRequestsAndHTTPClientConfig(t *testing.T) {
	c := &TestConfig{
		Scenario: ScenarioConfig{Requests: []RequestConfig{{
			Name:    "home",
			Method:  "GET",
			URL:     "{{baseUrl}}",
			Timeout: Duration(2 * time.Second),
			Checks:  []CheckConfig{{Name: "ok", Type: "status", Value: "200"}},
		}}},
		HTTP: HTTPSettings{MaxConnsPerHost: 50, InsecureSkipVerify: true},
	}

	reqs := c.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 2*time.Second, reqs[0].Timeout)
	assert.Equal(t, performance.CheckStatus, reqs[0].Checks[0].Type)

	hc := c.HTTPClientConfig()
	assert.Equal(t, 30*time.Second, hc.Timeout)
	assert.Equal(t, 100, hc.MaxIdleConnsPerHost)
	assert.Equal(t, 50, hc.MaxConnsPerHost)
	assert.True(t, hc.InsecureSkipVerify)
}
