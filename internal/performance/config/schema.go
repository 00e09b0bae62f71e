// Package config loads and validates load test definitions.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TestConfig is the root configuration of one load test.
type TestConfig struct {
	// Name identifies the test in reports and run history
	Name string `json:"name" yaml:"name"`

	// Description is free text shown in reports
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// BaseURL is the default target. BASE_URL overrides it.
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// VUs is the flat number of virtual users. Mutually exclusive with Stages.
	VUs int `json:"vus,omitempty" yaml:"vus,omitempty"`

	// Duration is how long to run flat VUs (e.g., "30s", "2m", "1h")
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Stages ramps the number of VUs over time
	Stages []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	// Iterations caps the iterations of each VU, 0 means unlimited
	Iterations int64 `json:"iterations,omitempty" yaml:"iterations,omitempty"`

	// GracefulStop is how long in-flight iterations may take to finish
	GracefulStop string `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// ThinkTime is the pause between iterations of one VU
	ThinkTime *ThinkTimeConfig `json:"thinkTime,omitempty" yaml:"thinkTime,omitempty"`

	// Thresholds maps a metric name to its pass/fail criteria
	Thresholds map[string][]ThresholdConfig `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Scenario is the work each VU repeats
	Scenario ScenarioConfig `json:"scenario" yaml:"scenario"`

	// HTTP tunes the client shared by the VUs
	HTTP HTTPSettings `json:"http,omitempty" yaml:"http,omitempty"`

	// Variables are substituted into request templates as {{name}}
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// StageConfig is one ramp stage.
type StageConfig struct {
	// Duration of this stage (e.g., "30s", "2m")
	Duration string `json:"duration" yaml:"duration"`

	// Target VU count at the end of this stage
	Target int `json:"target" yaml:"target"`

	// Name is an optional label for reports
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// ThinkTimeConfig configures the pause between iterations.
type ThinkTimeConfig struct {
	// Type is none, constant or random
	Type string `json:"type" yaml:"type"`

	// Duration is the pause for constant think time
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Min and Max bound random think time
	Min string `json:"min,omitempty" yaml:"min,omitempty"`
	Max string `json:"max,omitempty" yaml:"max,omitempty"`
}

// ScenarioConfig lists the requests of one iteration.
type ScenarioConfig struct {
	Requests []RequestConfig `json:"requests" yaml:"requests"`
}

// RequestConfig is one HTTP request of the scenario.
type RequestConfig struct {
	Name    string            `json:"name,omitempty" yaml:"name,omitempty"`
	Method  string            `json:"method,omitempty" yaml:"method,omitempty"`
	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    string            `json:"body,omitempty" yaml:"body,omitempty"`
	Timeout Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Checks  []CheckConfig     `json:"checks,omitempty" yaml:"checks,omitempty"`
}

// CheckConfig is a named assertion on a response.
type CheckConfig struct {
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Type      string `json:"type" yaml:"type"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	Value     string `json:"value,omitempty" yaml:"value,omitempty"`
}

// HTTPSettings configures the HTTP client.
type HTTPSettings struct {
	Timeout             Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxIdleConnsPerHost int      `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`
	MaxConnsPerHost     int      `json:"maxConnsPerHost,omitempty" yaml:"maxConnsPerHost,omitempty"`
	DisableKeepAlives   bool     `json:"disableKeepAlives,omitempty" yaml:"disableKeepAlives,omitempty"`
	InsecureSkipVerify  bool     `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
	PerVUClient         bool     `json:"perVuClient,omitempty" yaml:"perVuClient,omitempty"`
}

// ThresholdConfig is one threshold of a metric. In a file it is either a
// bare expression string or an object:
//
//	http_req_duration:
//	  - 'p(95)<500'
//	  - threshold: 'p(99)<1000'
//	    abortOnFail: true
//	    delayAbortEval: 10s
type ThresholdConfig struct {
	Threshold      string `json:"threshold" yaml:"threshold"`
	AbortOnFail    bool   `json:"abortOnFail,omitempty" yaml:"abortOnFail,omitempty"`
	DelayAbortEval string `json:"delayAbortEval,omitempty" yaml:"delayAbortEval,omitempty"`
}

// thresholdObject avoids recursing into the custom unmarshalers.
type thresholdObject ThresholdConfig

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *ThresholdConfig) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*t = ThresholdConfig{Threshold: node.Value}
		return nil
	case yaml.MappingNode:
		var obj thresholdObject
		if err := node.Decode(&obj); err != nil {
			return err
		}
		*t = ThresholdConfig(obj)
		return nil
	default:
		return fmt.Errorf("line %d: threshold must be a string or an object", node.Line)
	}
}

// MarshalYAML writes simple thresholds back as bare strings.
func (t ThresholdConfig) MarshalYAML() (interface{}, error) {
	if t.simple() {
		return t.Threshold, nil
	}
	return thresholdObject(t), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *ThresholdConfig) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = ThresholdConfig{Threshold: s}
		return nil
	}
	var obj thresholdObject
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("threshold must be a string or an object: %w", err)
	}
	*t = ThresholdConfig(obj)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t ThresholdConfig) MarshalJSON() ([]byte, error) {
	if t.simple() {
		return json.Marshal(t.Threshold)
	}
	return json.Marshal(thresholdObject(t))
}

func (t ThresholdConfig) simple() bool {
	return !t.AbortOnFail && t.DelayAbortEval == ""
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	if s == "" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
