package performance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/volley/internal/performance/metrics"
)

// Request is one HTTP call of an HTTP scenario. URL, Body and header values
// may reference {{baseUrl}}, {{vu}}, {{iteration}} and scenario variables.
type Request struct {
	Name    string            `json:"name,omitempty"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
	Timeout time.Duration     `json:"timeout,omitempty"`
	Checks  []Check           `json:"checks,omitempty"`
}

// CompiledRequest is a Request with its checks compiled. It is immutable
// and shared by all VUs.
type CompiledRequest struct {
	Request
	checkers []*Checker
}

// CompileRequests compiles every check of every request.
func CompileRequests(reqs []Request) ([]CompiledRequest, error) {
	out := make([]CompiledRequest, 0, len(reqs))
	for i, r := range reqs {
		if r.Method == "" {
			r.Method = http.MethodGet
		}
		if r.Name == "" {
			r.Name = fmt.Sprintf("%s %s", r.Method, r.URL)
		}
		cr := CompiledRequest{Request: r}
		for j, c := range r.Checks {
			k, err := c.Compile()
			if err != nil {
				return nil, fmt.Errorf("request %d check %d: %w", i, j, err)
			}
			cr.checkers = append(cr.checkers, k)
		}
		out = append(out, cr)
	}
	return out, nil
}

// HTTPScenario issues its requests in order on every iteration and
// evaluates their checks.
type HTTPScenario struct {
	env      *VUEnv
	requests []CompiledRequest
}

// HTTPScenarioFactory returns a factory creating one HTTPScenario per VU.
func HTTPScenarioFactory(requests []CompiledRequest) ScenarioFactory {
	return func(env *VUEnv) (Scenario, error) {
		if env.Client == nil {
			return nil, fmt.Errorf("vu %d: no HTTP client", env.VUID)
		}
		return &HTTPScenario{env: env, requests: requests}, nil
	}
}

// Invoke runs one iteration.
func (s *HTTPScenario) Invoke(ctx context.Context) metrics.Outcome {
	var out metrics.Outcome
	replacer := s.replacer(IterationFrom(ctx))

	for i := range s.requests {
		if err := ctx.Err(); err != nil {
			out.Err = err
			break
		}
		sample, checks := s.do(ctx, &s.requests[i], replacer)
		out.Requests = append(out.Requests, sample)
		out.Checks = append(out.Checks, checks...)
	}
	return out
}

func (s *HTTPScenario) replacer(iteration int64) *strings.Replacer {
	pairs := []string{
		"{{baseUrl}}", s.env.BaseURL,
		"{{vu}}", strconv.Itoa(s.env.VUID),
		"{{iteration}}", strconv.FormatInt(iteration, 10),
	}
	for k, v := range s.env.Vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...)
}

func (s *HTTPScenario) do(ctx context.Context, r *CompiledRequest, rep *strings.Replacer) (metrics.RequestSample, []metrics.CheckResult) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	sample := metrics.RequestSample{Name: r.Name}
	resp := &Response{}

	start := time.Now()
	err := s.roundTrip(ctx, r, rep, resp)
	sample.Duration = time.Since(start)
	resp.Duration = sample.Duration

	sample.Status = resp.Status
	sample.Bytes = int64(len(resp.Body))
	sample.Err = err
	sample.Failed = err != nil || resp.Status < 200 || resp.Status >= 400

	if err != nil && s.env.Logger != nil {
		s.env.Logger.WithError(err).WithField("request", r.Name).Debug("request failed")
	}

	checks := make([]metrics.CheckResult, 0, len(r.checkers))
	for _, k := range r.checkers {
		checks = append(checks, metrics.CheckResult{Name: k.Name, Passed: k.Evaluate(resp)})
	}
	return sample, checks
}

func (s *HTTPScenario) roundTrip(ctx context.Context, r *CompiledRequest, rep *strings.Replacer, out *Response) error {
	var body io.Reader
	if r.Body != "" {
		body = strings.NewReader(rep.Replace(r.Body))
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, rep.Replace(r.URL), body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	for key, value := range r.Headers {
		req.Header.Set(key, rep.Replace(value))
	}

	resp, err := s.env.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out.Status = resp.StatusCode
	out.Header = resp.Header

	data, err := io.ReadAll(resp.Body)
	out.Body = data
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return nil
}
