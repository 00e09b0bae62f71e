package performance_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/wesleyorama2/volley/internal/performance"
)

func TestCheck_Evaluate(t *testing.T) {
	resp := &performance.Response{
		Status:   200,
		Header:   http.Header{"Content-Type": []string{"application/json"}},
		Body:     []byte(`{"hostname":"pod-7","address":"10.0.0.3","items":[1,2,3]}`),
		Duration: 120 * time.Millisecond,
	}

	tests := []struct {
		name  string
		check performance.Check
		want  bool
	}{
		{"status eq", performance.Check{Type: performance.CheckStatus, Value: "200"}, true},
		{"status ne", performance.Check{Type: performance.CheckStatus, Condition: "ne", Value: "200"}, false},
		{"status lt", performance.Check{Type: performance.CheckStatus, Condition: "lt", Value: "400"}, true},
		{"body contains", performance.Check{Type: performance.CheckBody, Value: "pod-7"}, true},
		{"body regex", performance.Check{Type: performance.CheckBody, Condition: "matches", Value: "(?i)ADDRESS|pod"}, true},
		{"body regex miss", performance.Check{Type: performance.CheckBody, Condition: "matches", Value: "^nope$"}, false},
		{"header exists", performance.Check{Type: performance.CheckHeader, Path: "content-type"}, true},
		{"header missing", performance.Check{Type: performance.CheckHeader, Path: "X-Trace"}, false},
		{"header contains", performance.Check{Type: performance.CheckHeader, Path: "Content-Type", Condition: "contains", Value: "json"}, true},
		{"json eq", performance.Check{Type: performance.CheckJSON, Path: "hostname", Value: "pod-7"}, true},
		{"json exists", performance.Check{Type: performance.CheckJSON, Path: "items.2"}, true},
		{"json missing", performance.Check{Type: performance.CheckJSON, Path: "items.5"}, false},
		{"json jsonpath", performance.Check{Type: performance.CheckJSON, Path: "$.items[1]", Value: "2"}, true},
		{"json ne", performance.Check{Type: performance.CheckJSON, Path: "hostname", Condition: "ne", Value: "pod-8"}, true},
		{
			"schema valid",
			performance.Check{Type: performance.CheckSchema, Value: `{"type":"object","required":["hostname"]}`},
			true,
		},
		{
			"schema invalid",
			performance.Check{Type: performance.CheckSchema, Value: `{"type":"object","required":["missing"]}`},
			false,
		},
		{"duration lt ms", performance.Check{Type: performance.CheckDuration, Value: "500"}, true},
		{"duration lt string", performance.Check{Type: performance.CheckDuration, Value: "100ms"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := tt.check.Compile()
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			if got := k.Evaluate(resp); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheck_EvaluateFailedRequest(t *testing.T) {
	k, err := performance.Check{Name: "status is 200", Type: performance.CheckStatus, Value: "200"}.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if k.Evaluate(&performance.Response{}) {
		t.Error("status check passed without a response")
	}
	if k.Name != "status is 200" {
		t.Errorf("Name = %q", k.Name)
	}
}

func TestCheck_CompileErrors(t *testing.T) {
	tests := []struct {
		name  string
		check performance.Check
	}{
		{"unknown type", performance.Check{Type: "xml"}},
		{"bad condition", performance.Check{Type: performance.CheckStatus, Condition: "contains", Value: "200"}},
		{"bad status", performance.Check{Type: performance.CheckStatus, Value: "ok"}},
		{"bad regex", performance.Check{Type: performance.CheckBody, Condition: "matches", Value: "("}},
		{"header without path", performance.Check{Type: performance.CheckHeader}},
		{"json without path", performance.Check{Type: performance.CheckJSON, Value: "x"}},
		{"bad schema", performance.Check{Type: performance.CheckSchema, Value: "{"}},
		{"bad duration", performance.Check{Type: performance.CheckDuration, Value: "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.check.Compile(); err == nil {
				t.Error("Compile() expected error")
			}
		})
	}
}

func TestCheck_DefaultName(t *testing.T) {
	k, err := performance.Check{Type: performance.CheckStatus, Value: "200"}.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if k.Name != "status eq 200" {
		t.Errorf("Name = %q, want %q", k.Name, "status eq 200")
	}
}
