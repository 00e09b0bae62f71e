package jsonpath

import (
	"testing"
)

const doc = `{
	"name": "whoami",
	"address": {"ip": "10.0.0.1", "port": 8080},
	"pods": [{"name": "a"}, {"name": "b"}],
	"ready": true,
	"meta": null
}`

func TestNormalize(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"$", "@this"},
		{"$.name", "name"},
		{"$.address.ip", "address.ip"},
		{"$.pods[1].name", "pods.1.name"},
		{"$['address']['port']", "address.port"},
		{`$["name"]`, "name"},
		{"$[0]", "0"},
		{"pods.0.name", "pods.0.name"},
		{"pods.#", "pods.#"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := Normalize(tt.path); got != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.path, got, tt.expected)
			}
		})
	}
}

func TestGet(t *testing.T) {
	body := []byte(doc)

	tests := []struct {
		name     string
		path     string
		exists   bool
		expected string
	}{
		{"jsonpath property", "$.name", true, "whoami"},
		{"jsonpath nested", "$.address.port", true, "8080"},
		{"jsonpath array", "$.pods[0].name", true, "a"},
		{"gjson syntax", "pods.1.name", true, "b"},
		{"gjson count", "pods.#", true, "2"},
		{"boolean", "$.ready", true, "true"},
		{"null", "$.meta", true, ""},
		{"missing", "$.missing", false, ""},
		{"index out of range", "$.pods[5].name", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Get(body, tt.path)
			if result.Exists() != tt.exists {
				t.Fatalf("Get(%q).Exists() = %v, want %v", tt.path, result.Exists(), tt.exists)
			}
			if result.String() != tt.expected {
				t.Errorf("Get(%q) = %q, want %q", tt.path, result.String(), tt.expected)
			}
		})
	}
}

func TestGetInvalidJSON(t *testing.T) {
	if Get([]byte("<html>"), "name").Exists() {
		t.Error("expected no result for a non-JSON body")
	}
	if Get(nil, "$").Exists() {
		t.Error("expected no result for an empty body")
	}
}
