package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/wesleyorama2/volley/internal/performance"
	"github.com/wesleyorama2/volley/internal/performance/threshold"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*[A-Za-z0-9_.-]+\s*\}\}`)

// Validate validates the entire test configuration, including the scenario
// requests.
//
// Returns nil if valid, or a *ValidationErrors containing all validation errors.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}
	c.validateProfile(errs)

	if len(c.Scenario.Requests) == 0 {
		errs.Add("scenario.requests", "at least one request is required")
	}
	for i := range c.Scenario.Requests {
		c.validateRequest(fmt.Sprintf("scenario.requests[%d]", i), &c.Scenario.Requests[i], errs)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ValidateProfile validates everything except the scenario requests. It is
// used when the scenario is supplied in code.
func (c *TestConfig) ValidateProfile() error {
	errs := &ValidationErrors{}
	c.validateProfile(errs)
	if errs.HasErrors() {
		return errs
	}
	return nil
}

func (c *TestConfig) validateProfile(errs *ValidationErrors) {
	c.validateLoad(errs)

	if d, err := c.GracefulStopDuration(); err != nil {
		errs.Add("gracefulStop", err.Error())
	} else if d < 0 {
		errs.Add("gracefulStop", "must be non-negative")
	}

	if c.ThinkTime != nil {
		if _, err := c.ThinkTimePolicy(); err != nil {
			errs.Add("thinkTime", err.Error())
		}
	}

	validateThresholds(c, errs)

	if c.BaseURL != "" {
		if err := checkAbsoluteURL(c.BaseURL); err != nil {
			errs.Add("baseUrl", err.Error())
		}
	}

	if c.HTTP.Timeout < 0 {
		errs.Add("http.timeout", "must be non-negative")
	}
	if c.HTTP.MaxIdleConnsPerHost < 0 {
		errs.Add("http.maxIdleConnsPerHost", "must be non-negative")
	}
	if c.HTTP.MaxConnsPerHost < 0 {
		errs.Add("http.maxConnsPerHost", "must be non-negative")
	}
}

// validateLoad checks the vus/duration/stages/iterations combination.
func (c *TestConfig) validateLoad(errs *ValidationErrors) {
	hasFlat := c.VUs != 0 || c.Duration != ""
	hasStages := len(c.Stages) > 0

	switch {
	case hasFlat && hasStages:
		errs.Add("stages", "vus/duration and stages are mutually exclusive")
		return
	case !hasFlat && !hasStages:
		errs.Add("vus", "either vus with duration or stages is required")
		return
	}

	if c.Iterations < 0 {
		errs.Add("iterations", "must be non-negative")
	}
	if c.Iterations > 0 && hasStages {
		errs.Add("iterations", "iterations can only be combined with vus, not stages")
	}

	if hasFlat {
		if c.VUs <= 0 {
			errs.Add("vus", "must be at least 1")
		}
		if c.Duration == "" && c.Iterations == 0 {
			errs.Add("duration", "duration is required with vus")
		}
	}
	for i, s := range c.Stages {
		if _, err := ParseDurationString(s.Duration); err != nil {
			errs.Add(fmt.Sprintf("stages[%d].duration", i), err.Error())
		}
	}

	if c.Duration != "" {
		if _, err := ParseDurationString(c.Duration); err != nil {
			errs.Add("duration", err.Error())
			return
		}
	}

	plan, err := c.StagePlan()
	if err != nil {
		return
	}
	if c.Duration == "" && !hasStages {
		// Duration is filled in by ApplyDefaults for iteration-capped runs.
		return
	}
	if err := plan.Validate(); err != nil {
		errs.Add("stages", err.Error())
	}
}

func validateThresholds(c *TestConfig, errs *ValidationErrors) {
	specs, err := c.ThresholdSpecs()
	if err != nil {
		errs.Add("thresholds", err.Error())
		return
	}
	for _, spec := range specs {
		if _, err := threshold.Parse(spec); err != nil {
			errs.Add("thresholds."+spec.Metric, err.Error())
		}
		if spec.DelayAbortEval < 0 {
			errs.Add("thresholds."+spec.Metric, "delayAbortEval must be non-negative")
		}
	}
}

func (c *TestConfig) validateRequest(prefix string, req *RequestConfig, errs *ValidationErrors) {
	method := strings.ToUpper(req.Method)
	if method != "" && !validMethods[method] {
		errs.Add(prefix+".method", fmt.Sprintf("invalid HTTP method: %s", req.Method))
	}

	if req.URL == "" {
		errs.Add(prefix+".url", "url is required")
	} else {
		if strings.Contains(req.URL, "{{baseUrl}}") && c.BaseURL == "" {
			errs.Add(prefix+".url", "url uses {{baseUrl}} but no baseUrl is set")
		} else {
			base := c.BaseURL
			if base == "" {
				base = "http://placeholder"
			}
			resolved := strings.ReplaceAll(req.URL, "{{baseUrl}}", base)
			resolved = placeholderPattern.ReplaceAllString(resolved, "placeholder")
			if err := checkAbsoluteURL(resolved); err != nil {
				errs.Add(prefix+".url", err.Error())
			}
		}
	}

	if req.Timeout < 0 {
		errs.Add(prefix+".timeout", "must be non-negative")
	}

	for i, chk := range req.Checks {
		check := performance.Check{
			Name:      chk.Name,
			Type:      performance.CheckType(chk.Type),
			Condition: chk.Condition,
			Path:      chk.Path,
			Value:     chk.Value,
		}
		if _, err := check.Compile(); err != nil {
			errs.Add(fmt.Sprintf("%s.checks[%d]", prefix, i), err.Error())
		}
	}
}

func checkAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid URL %q: missing host", raw)
	}
	return nil
}
