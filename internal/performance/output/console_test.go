package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/volley/internal/performance"
	"github.com/wesleyorama2/volley/internal/performance/engine"
	"github.com/wesleyorama2/volley/internal/performance/metrics"
	"github.com/wesleyorama2/volley/internal/performance/threshold"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1 * time.Second, "1.0s"},
		{1*time.Minute + 30*time.Second, "1m 30s"},
		{1*time.Hour + 2*time.Minute + 3*time.Second, "1h 02m 03s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatDuration(tt.duration)
			if result != tt.expected {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.duration, result, tt.expected)
			}
		})
	}
}

func TestFormatMillis(t *testing.T) {
	tests := []struct {
		ms       float64
		expected string
	}{
		{0, "0s"},
		{0.5, "500.00µs"},
		{12.345, "12.35ms"},
		{1500, "1.50s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatMillis(tt.ms))
		})
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "999 B", formatBytes(999))
	assert.Equal(t, "1.5 kB", formatBytes(1500))
	assert.Equal(t, "2.0 MB", formatBytes(2_000_000))
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		number   int64
		expected string
	}{
		{0, "0"},
		{100, "100"},
		{1000, "1,000"},
		{12345, "12,345"},
		{1234567, "1,234,567"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := formatNumber(tt.number); got != tt.expected {
				t.Errorf("formatNumber(%d) = %q, want %q", tt.number, got, tt.expected)
			}
		})
	}
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "plain", stripANSI("plain"))
	assert.Equal(t, "red", stripANSI("\033[31mred\033[0m"))
	assert.Equal(t, 3, visibleWidth("\033[1m✓ a\033[0m"))
}

func TestRenderProgressBar(t *testing.T) {
	assert.Equal(t, "[░░░░]", renderProgressBar(-1, 4))
	assert.Equal(t, "[██░░]", renderProgressBar(0.5, 4))
	assert.Equal(t, "[████]", renderProgressBar(2, 4))
}

func TestDescribePlan(t *testing.T) {
	assert.Equal(t, "10 VUs for 30m0s", DescribePlan(performance.ConstantPlan(10, 30*time.Minute)))

	stress := performance.StagePlan{Stages: []performance.Stage{
		{Duration: 2 * time.Minute, Target: 20},
		{Duration: 2 * time.Minute, Target: 0},
	}}
	assert.Equal(t, "up to 20 VUs over 4m0s (2m0s→20, 2m0s→0)", DescribePlan(stress))
}

func sampleResult(t *testing.T, state engine.State) *engine.Result {
	t.Helper()
	c := metrics.NewCollector()
	for i := 0; i < 50; i++ {
		c.Record(metrics.Outcome{
			VUID:     i % 2,
			Duration: 20 * time.Millisecond,
			Requests: []metrics.RequestSample{{Name: "home", Duration: 10 * time.Millisecond, Status: 200, Bytes: 100, Failed: i == 0}},
			Checks:   []metrics.CheckResult{{Name: "status is 200", Passed: i != 0}},
		})
	}
	snap := c.Snapshot()

	ths, err := threshold.ParseAll([]threshold.Spec{
		{Metric: "http_req_failed", Expression: "rate<0.01"},
		{Metric: "http_req_duration", Expression: "p(95)<500"},
	})
	require.NoError(t, err)
	verdict := threshold.Evaluate(snap, ths)

	// A metric that never got a sample stays indeterminate.
	unsampled, err := threshold.Parse(threshold.Spec{Metric: "iteration_duration", Expression: "p(95)<1000"})
	require.NoError(t, err)
	empty := metrics.NewCollector()
	defer empty.Stop()
	verdict.Results = append(verdict.Results, threshold.Evaluate(empty.Snapshot(), []*threshold.Threshold{unsampled}).Results...)

	return &engine.Result{
		RunID:          uuid.New(),
		Name:           "smoke",
		Duration:       time.Minute,
		State:          state,
		Verdict:        verdict,
		Metrics:        snap,
		SteadyStateRPS: 12.5,
		GracefulDrain:  true,
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{TestName: "smoke", Writer: &buf, NoColor: true})

	c.PrintSummary(sampleResult(t, engine.StateFailed))
	out := buf.String()

	assert.Contains(t, out, "smoke - FAILED ✗")
	assert.Contains(t, out, "Steady RPS:    12.5/s")
	assert.Contains(t, out, "✗ status is 200")
	assert.Contains(t, out, "http_req_duration...............: avg=10.00ms")
	assert.Contains(t, out, "http_reqs.......................: 50")
	assert.Contains(t, out, "data_received")
	assert.Contains(t, out, "✗ http_req_failed rate<0.01 (actual: 0.02)")
	assert.Contains(t, out, "✓ http_req_duration p(95)<500")
	assert.Contains(t, out, "? iteration_duration p(95)<1000 (no samples)")
	assert.NotContains(t, out, "\033[")
}

func TestPrintSummary_Quiet(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, Quiet: true, NoColor: true})

	c.PrintSummary(sampleResult(t, engine.StatePassed))
	assert.Equal(t, "PASSED ✓\n", buf.String())
}

func TestPrintSummary_Colors(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, ForceColors: true})

	c.PrintSummary(sampleResult(t, engine.StateAborted))
	assert.Contains(t, buf.String(), "\033[")
	assert.Contains(t, stripANSI(buf.String()), "ABORTED")
}

func TestPrintProgressLine(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, NoColor: true})

	c.PrintProgressLine(engine.Progress{
		State:      engine.StateSteady,
		Elapsed:    30 * time.Second,
		Total:      time.Minute,
		TargetVUs:  2,
		ActiveVUs:  2,
		Requests:   60,
		CurrentRPS: 2,
		ErrorRate:  0.5,
	})

	assert.Equal(t, "[30.0s] steady 50% | VUs: 2/2 | Reqs: 60 | RPS: 2.0 | Errors: 50.0%\n", buf.String())
}

func TestUpdate_RedrawsInPlace(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, NoColor: true, ForceTTY: true})
	p := engine.Progress{State: engine.StateRamping, Phase: metrics.PhaseRampUp, Elapsed: time.Second, Total: 10 * time.Second}

	c.Update(p)
	first := buf.String()
	assert.Contains(t, first, "Progress: [")
	assert.Contains(t, first, "ramp-up (1) ramping")
	assert.NotContains(t, first, "\033[2K")

	c.Update(p)
	assert.Contains(t, strings.TrimPrefix(buf.String(), first), "\033[2K")
}

func TestUpdate_NoopWithoutTTY(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, NoColor: true})
	c.Update(engine.Progress{})
	assert.Empty(t, buf.String())
	assert.False(t, c.IsTTY())
}

func TestExportJSONSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	require.NoError(t, ExportJSONSummary(path, sampleResult(t, engine.StateFailed)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		Name    string `json:"name"`
		State   string `json:"state"`
		Metrics struct {
			Metrics map[string]struct {
				Type   string             `json:"type"`
				Values map[string]float64 `json:"values"`
			} `json:"metrics"`
		} `json:"metrics"`
		Verdict struct {
			Passed bool `json:"passed"`
		} `json:"verdict"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "smoke", doc.Name)
	assert.Equal(t, "failed", doc.State)
	assert.False(t, doc.Verdict.Passed)
	assert.Equal(t, "rate", doc.Metrics.Metrics["http_req_failed"].Type)
	assert.InDelta(t, 0.02, doc.Metrics.Metrics["http_req_failed"].Values["rate"], 1e-9)
	assert.Equal(t, 50.0, doc.Metrics.Metrics["http_reqs"].Values["count"])
}
