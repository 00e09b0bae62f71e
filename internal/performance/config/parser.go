package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultGracefulStop = 30 * time.Second
	DefaultHTTPTimeout  = 30 * time.Second

	// DefaultIterationsMaxDuration bounds an iteration-capped run that does
	// not set a duration.
	DefaultIterationsMaxDuration = 10 * time.Minute
)

// LoadConfig loads a test configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	var config TestConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &config, nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ParseStageFlag parses a "DURATION:TARGET" stage as given on the command
// line, e.g. "2m:20".
func ParseStageFlag(s string) (StageConfig, error) {
	dur, target, ok := strings.Cut(s, ":")
	if !ok {
		return StageConfig{}, fmt.Errorf("invalid stage %q, expected DURATION:TARGET", s)
	}
	if _, err := ParseDurationString(dur); err != nil {
		return StageConfig{}, fmt.Errorf("invalid stage %q: %w", s, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(target))
	if err != nil {
		return StageConfig{}, fmt.Errorf("invalid stage %q: target must be an integer", s)
	}
	return StageConfig{Duration: strings.TrimSpace(dur), Target: n}, nil
}

// ApplyDefaults applies default values to a TestConfig.
func ApplyDefaults(config *TestConfig) {
	if config.Name == "" {
		config.Name = "load-test"
	}
	if config.GracefulStop == "" {
		config.GracefulStop = DefaultGracefulStop.String()
	}
	if config.HTTP.Timeout == 0 {
		config.HTTP.Timeout = Duration(DefaultHTTPTimeout)
	}
	if config.Iterations > 0 && len(config.Stages) == 0 && config.Duration == "" {
		config.Duration = DefaultIterationsMaxDuration.String()
	}
	if config.ThinkTime != nil && config.ThinkTime.Type == "" {
		config.ThinkTime.Type = "constant"
	}

	for i := range config.Scenario.Requests {
		r := &config.Scenario.Requests[i]
		if r.Method == "" {
			r.Method = "GET"
		}
		r.Method = strings.ToUpper(r.Method)
	}
}
