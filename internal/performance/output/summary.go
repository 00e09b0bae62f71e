package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/wesleyorama2/volley/internal/performance/engine"
	"github.com/wesleyorama2/volley/internal/performance/metrics"
	"github.com/wesleyorama2/volley/internal/performance/threshold"
)

const metricNameWidth = 32

// PrintSummary prints the end-of-run report: checks, metrics, thresholds
// and the verdict.
func (c *Console) PrintSummary(result *engine.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quiet {
		c.writeln(c.verdictText(result))
		return
	}

	c.clearLive()

	line := strings.Repeat(boxHorizontal, 56)
	c.writeln("")
	c.writeln(c.colors.frame.Sprint(line))
	c.writeln(fmt.Sprintf("%s - %s", c.colors.title.Sprint(result.Name), c.verdictText(result)))
	c.writeln(c.colors.frame.Sprint(line))
	c.writeln("")

	c.writeln(fmt.Sprintf("Run ID:        %s", result.RunID))
	c.writeln(fmt.Sprintf("Duration:      %s", c.colors.value.Sprint(formatDuration(result.Duration))))
	if result.SteadyStateRPS > 0 {
		c.writeln(fmt.Sprintf("Steady RPS:    %s", c.colors.value.Sprintf("%.1f/s", result.SteadyStateRPS)))
	}
	if result.AbortReason != "" {
		c.writeln(fmt.Sprintf("Stopped:       %s", c.colors.warn.Sprint(result.AbortReason)))
	}
	if !result.GracefulDrain || result.Pool.InterruptedIterations > 0 {
		c.writeln(fmt.Sprintf("Interrupted:   %s iterations did not finish within the graceful stop",
			c.colors.warn.Sprint(result.Pool.InterruptedIterations)))
	}
	c.writeln("")

	if snap := result.Metrics; snap != nil {
		if len(snap.Checks) > 0 {
			c.writeln(c.colors.title.Sprint("Checks:"))
			for _, chk := range snap.Checks {
				mark := c.colors.good.Sprint("✓")
				if chk.Fails > 0 {
					mark = c.colors.bad.Sprint("✗")
				}
				c.writeln(fmt.Sprintf("  %s %s", mark, chk.Name))
				if chk.Fails > 0 {
					c.writeln(c.colors.dim.Sprintf("     ↳ %.0f%% ✓ %d ✗ %d", chk.Rate()*100, chk.Passes, chk.Fails))
				}
			}
			c.writeln("")
		}

		c.writeln(c.colors.title.Sprint("Metrics:"))
		for _, name := range sortedMetricNames(snap) {
			m := snap.Metrics[name]
			c.writeln(fmt.Sprintf("  %s: %s", dotted(name), c.formatMetric(m)))
		}
		c.writeln("")
	}

	if len(result.Verdict.Results) > 0 {
		c.writeln(c.colors.title.Sprint("Thresholds:"))
		for _, r := range result.Verdict.Results {
			c.writeln("  " + c.formatThreshold(r))
		}
		c.writeln("")
	}
}

func (c *Console) verdictText(result *engine.Result) string {
	switch result.State {
	case engine.StatePassed:
		return c.colors.good.Sprint("PASSED ✓")
	case engine.StateAborted:
		return c.colors.warn.Sprint("ABORTED")
	default:
		return c.colors.bad.Sprint("FAILED ✗")
	}
}

func (c *Console) formatMetric(m *metrics.Metric) string {
	switch m.Type {
	case metrics.Trend:
		return fmt.Sprintf("avg=%s min=%s med=%s max=%s p(90)=%s p(95)=%s",
			c.colors.value.Sprint(formatMillis(m.Avg())),
			c.colors.value.Sprint(formatMillis(m.Min())),
			c.colors.value.Sprint(formatMillis(m.Med())),
			c.colors.value.Sprint(formatMillis(m.Max())),
			c.colors.value.Sprint(formatMillis(m.Percentile(90))),
			c.colors.value.Sprint(formatMillis(m.Percentile(95))))
	case metrics.Rate:
		fails := float64(m.Count) - m.Sum
		return fmt.Sprintf("%s ✓ %.0f ✗ %.0f", c.colors.value.Sprintf("%.2f%%", m.Rate()*100), m.Sum, fails)
	default:
		total := formatNumber(int64(m.Sum))
		perSecond := fmt.Sprintf("%.2f/s", m.Rate())
		if m.Name == metrics.DataReceived {
			total = formatBytes(m.Sum)
			perSecond = formatBytes(m.Rate()) + "/s"
		}
		return fmt.Sprintf("%s %s", c.colors.value.Sprint(total), c.colors.dim.Sprint(perSecond))
	}
}

func (c *Console) formatThreshold(r threshold.Result) string {
	var mark string
	switch r.Status {
	case threshold.StatusPassed:
		mark = c.colors.good.Sprint("✓")
	case threshold.StatusFailed:
		mark = c.colors.bad.Sprint("✗")
	default:
		mark = c.colors.warn.Sprint("?")
	}

	text := fmt.Sprintf("%s %s %s", mark, r.Metric, r.Expression)
	if r.Status == threshold.StatusIndeterminate {
		return text + c.colors.dim.Sprint(" (no samples)")
	}
	return text + c.colors.dim.Sprintf(" (actual: %.4g)", r.Observed)
}

// dotted pads a metric name with dots the way k6 summaries do.
func dotted(name string) string {
	if len(name) >= metricNameWidth {
		return name
	}
	return name + strings.Repeat(".", metricNameWidth-len(name))
}

func sortedMetricNames(snap *metrics.Snapshot) []string {
	names := make([]string, 0, len(snap.Metrics))
	for name := range snap.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteJSONSummary writes the result as indented JSON.
func WriteJSONSummary(w io.Writer, result *engine.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return nil
}

// ExportJSONSummary writes the result to path.
func ExportJSONSummary(path string, result *engine.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	if err := WriteJSONSummary(f, result); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
