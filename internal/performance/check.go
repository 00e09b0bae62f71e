package performance

import (
	"fmt"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/volley/pkg/jsonpath"
	"github.com/wesleyorama2/volley/pkg/jsonschema"
)

// CheckType selects what part of a response a check looks at.
type CheckType string

const (
	CheckStatus   CheckType = "status"
	CheckBody     CheckType = "body"
	CheckHeader   CheckType = "header"
	CheckJSON     CheckType = "json"
	CheckSchema   CheckType = "schema"
	CheckDuration CheckType = "duration"
)

// Check is a named boolean assertion on a response.
//
// Conditions by type:
//
//	status:   eq (default), ne, lt, lte, gt, gte
//	body:     contains (default), matches, eq
//	header:   exists, eq, contains, matches (Path is the header name)
//	json:     exists, eq, ne, contains, matches (Path is gjson or $.jsonpath)
//	schema:   Value is a JSON Schema document
//	duration: lt (default), lte; Value is milliseconds or a duration string
type Check struct {
	Name      string    `json:"name,omitempty"`
	Type      CheckType `json:"type"`
	Condition string    `json:"condition,omitempty"`
	Path      string    `json:"path,omitempty"`
	Value     string    `json:"value,omitempty"`
}

// Response is what checks are evaluated against. Status is 0 when the
// request failed before a response arrived.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	Duration time.Duration
}

// Checker is a compiled Check.
type Checker struct {
	Name string

	check  Check
	re     *regexp.Regexp
	schema *jsonschema.Schema
	number float64
	limit  time.Duration
}

var validConditions = map[CheckType][]string{
	CheckStatus:   {"eq", "ne", "lt", "lte", "gt", "gte"},
	CheckBody:     {"contains", "matches", "eq"},
	CheckHeader:   {"exists", "eq", "contains", "matches"},
	CheckJSON:     {"exists", "eq", "ne", "contains", "matches"},
	CheckSchema:   {""},
	CheckDuration: {"lt", "lte"},
}

// Compile validates the check and precompiles regexes and schemas.
func (c Check) Compile() (*Checker, error) {
	conds, ok := validConditions[c.Type]
	if !ok {
		return nil, fmt.Errorf("unknown check type %q", c.Type)
	}

	c.Condition = strings.ToLower(c.Condition)
	if c.Condition == "" {
		c.Condition = c.defaultCondition()
	}
	if !slices.Contains(conds, c.Condition) {
		return nil, fmt.Errorf("check type %s does not support condition %q", c.Type, c.Condition)
	}

	k := &Checker{Name: c.Name, check: c}
	if k.Name == "" {
		k.Name = c.describe()
	}

	if c.Condition == "matches" {
		re, err := regexp.Compile(c.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", c.Value, err)
		}
		k.re = re
	}

	switch c.Type {
	case CheckStatus:
		n, err := strconv.Atoi(strings.TrimSpace(c.Value))
		if err != nil {
			return nil, fmt.Errorf("invalid status code %q", c.Value)
		}
		k.number = float64(n)
	case CheckHeader, CheckJSON:
		if c.Path == "" {
			return nil, fmt.Errorf("%s check requires a path", c.Type)
		}
	case CheckSchema:
		schema, err := jsonschema.Compile(c.Value)
		if err != nil {
			return nil, err
		}
		k.schema = schema
	case CheckDuration:
		d, err := parseMillis(c.Value)
		if err != nil {
			return nil, err
		}
		k.limit = d
	}

	return k, nil
}

func (c Check) defaultCondition() string {
	switch c.Type {
	case CheckStatus:
		return "eq"
	case CheckBody:
		return "contains"
	case CheckHeader, CheckJSON:
		if c.Value == "" {
			return "exists"
		}
		return "eq"
	case CheckDuration:
		return "lt"
	default:
		return ""
	}
}

func (c Check) describe() string {
	switch c.Type {
	case CheckSchema:
		return "body matches schema"
	case CheckHeader, CheckJSON:
		if c.Condition == "exists" {
			return fmt.Sprintf("%s %s exists", c.Type, c.Path)
		}
		return fmt.Sprintf("%s %s %s %s", c.Type, c.Path, c.Condition, c.Value)
	default:
		return fmt.Sprintf("%s %s %s", c.Type, c.Condition, c.Value)
	}
}

// parseMillis accepts "500" (milliseconds) or a duration string like "500ms".
func parseMillis(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(ms * float64(time.Millisecond)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// Evaluate reports whether resp satisfies the check.
func (k *Checker) Evaluate(resp *Response) bool {
	c := k.check
	switch c.Type {
	case CheckStatus:
		return compareNumbers(float64(resp.Status), c.Condition, k.number)

	case CheckBody:
		return k.matchString(string(resp.Body))

	case CheckHeader:
		if resp.Header == nil {
			return false
		}
		values, ok := resp.Header[http.CanonicalHeaderKey(c.Path)]
		if c.Condition == "exists" {
			return ok
		}
		if !ok || len(values) == 0 {
			return false
		}
		return k.matchString(values[0])

	case CheckJSON:
		result := jsonpath.Get(resp.Body, c.Path)
		if c.Condition == "exists" {
			return result.Exists()
		}
		if !result.Exists() {
			return c.Condition == "ne"
		}
		if c.Condition == "ne" {
			return result.String() != c.Value
		}
		return k.matchString(result.String())

	case CheckSchema:
		return k.schema.Validate(resp.Body) == nil

	case CheckDuration:
		if c.Condition == "lte" {
			return resp.Duration <= k.limit
		}
		return resp.Duration < k.limit
	}
	return false
}

func (k *Checker) matchString(s string) bool {
	switch k.check.Condition {
	case "eq":
		return s == k.check.Value
	case "contains":
		return strings.Contains(s, k.check.Value)
	case "matches":
		return k.re.MatchString(s)
	default:
		return false
	}
}

// compareNumbers compares two values using the given condition.
func compareNumbers(actual float64, cond string, expected float64) bool {
	switch cond {
	case "eq":
		return actual == expected
	case "ne":
		return actual != expected
	case "lt":
		return actual < expected
	case "lte":
		return actual <= expected
	case "gt":
		return actual > expected
	case "gte":
		return actual >= expected
	default:
		return false
	}
}
