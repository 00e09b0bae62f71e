// Package output renders live progress and end-of-run summaries.
package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/volley/internal/performance"
	"github.com/wesleyorama2/volley/internal/performance/engine"
)

// Cursor control sequences for the live display.
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"
)

const (
	boxHorizontal  = "━"
	boxVertical    = "│"
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"

	progressFilled = "█"
	progressEmpty  = "░"

	boxWidth = 55
)

// ProgressSource is anything that reports live run progress.
type ProgressSource interface {
	Progress() engine.Progress
}

// Console manages console output during and after a run.
type Console struct {
	testName string
	writer   io.Writer
	isTTY    bool
	quiet    bool
	colors   *palette

	mu          sync.Mutex
	linesOutput int
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	TestName    string
	Writer      io.Writer
	Quiet       bool
	NoColor     bool
	ForceColors bool
	ForceTTY    bool
}

// NewConsole creates a console writer.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	isTTY := cfg.ForceTTY || isTerminal(cfg.Writer)
	useColors := !cfg.NoColor && (cfg.ForceColors || (isTTY && supportsColors()))

	return &Console{
		testName: cfg.TestName,
		writer:   cfg.Writer,
		isTTY:    isTTY,
		quiet:    cfg.Quiet,
		colors:   newPalette(useColors),
	}
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the test name and load profile.
func (c *Console) PrintHeader(plan performance.StagePlan, baseURL string) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := strings.Repeat(boxHorizontal, 56)
	c.writeln(c.colors.frame.Sprint(line))
	c.writeln(c.colors.title.Sprintf("%s - Running", c.testName))
	c.writeln(c.colors.frame.Sprint(line))
	if baseURL != "" {
		c.writeln(fmt.Sprintf("Target:   %s", c.colors.value.Sprint(baseURL)))
	}
	c.writeln(fmt.Sprintf("Load:     %s", c.colors.value.Sprint(DescribePlan(plan))))
	c.writeln("")
}

// DescribePlan summarizes a plan in one line, e.g. "10 VUs for 30m0s".
func DescribePlan(plan performance.StagePlan) string {
	total := plan.TotalDuration()
	if len(plan.Stages) == 1 && plan.StartTarget == plan.Stages[0].Target {
		return fmt.Sprintf("%d VUs for %s", plan.StartTarget, total)
	}
	parts := make([]string, 0, len(plan.Stages))
	for _, s := range plan.Stages {
		parts = append(parts, fmt.Sprintf("%s→%d", s.Duration, s.Target))
	}
	return fmt.Sprintf("up to %d VUs over %s (%s)", plan.MaxTarget(), total, strings.Join(parts, ", "))
}

// Watch refreshes the display every interval until ctx is done. On a
// terminal the live box is redrawn in place; otherwise one line is printed
// per interval.
func (c *Console) Watch(ctx context.Context, src ProgressSource, interval time.Duration) {
	if c.quiet {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p := src.Progress()
			if p.State.Terminal() {
				return
			}
			if c.isTTY {
				c.Update(p)
			} else {
				c.PrintProgressLine(p)
			}
		}
	}
}

// Update redraws the live display.
func (c *Console) Update(p engine.Progress) {
	if c.quiet || !c.isTTY {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()
	lines := c.renderLive(p)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

// PrintProgressLine prints a one-line status, for logs and CI output.
func (c *Console) PrintProgressLine(p engine.Progress) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] %s %.0f%% | VUs: %d/%d | Reqs: %d | RPS: %.1f | Errors: %.1f%%",
		formatDuration(p.Elapsed),
		p.State,
		p.Percent(),
		p.ActiveVUs,
		p.TargetVUs,
		p.Requests,
		p.CurrentRPS,
		p.ErrorRate*100))
}

func (c *Console) renderLive(p engine.Progress) []string {
	var lines []string

	bar := renderProgressBar(p.Percent()/100, 40)
	timeInfo := fmt.Sprintf("%s / %s", formatDuration(p.Elapsed), formatDuration(p.Total))
	lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
		c.colors.good.Sprint(bar),
		c.colors.title.Sprintf("%.0f%%", p.Percent()),
		c.colors.dim.Sprint(timeInfo)))
	lines = append(lines, fmt.Sprintf("Stage:    %s", c.colors.phase.Sprintf("%s (%d) %s", p.Phase, p.Stage+1, p.State)))
	lines = append(lines, "")

	lines = append(lines, c.colors.dim.Sprint(boxTopLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxTopRight))

	vus := fmt.Sprintf("VUs:     %s / %d", c.colors.value.Sprint(p.ActiveVUs), p.TargetVUs)
	reqs := fmt.Sprintf("Requests:    %s", c.colors.value.Sprint(formatNumber(p.Requests)))
	lines = append(lines, c.formatBoxRow(vus, reqs))

	errColor := c.colors.rateColor(p.ErrorRate)
	rps := fmt.Sprintf("RPS:     %s", c.colors.good.Sprintf("%.1f", p.CurrentRPS))
	errs := fmt.Sprintf("Errors:      %s", errColor.Sprintf("%.1f%%", p.ErrorRate*100))
	lines = append(lines, c.formatBoxRow(rps, errs))

	lines = append(lines, c.colors.dim.Sprint(boxBottomLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxBottomRight))
	return lines
}

// formatBoxRow formats a row inside the stats box with two columns.
func (c *Console) formatBoxRow(left, right string) string {
	colWidth := (boxWidth - 4) / 2

	leftPadding := max(colWidth-visibleWidth(left), 0)
	rightPadding := max(colWidth-visibleWidth(right), 0)

	border := c.colors.dim.Sprint(boxVertical)
	return fmt.Sprintf("%s %s%s%s %s%s %s",
		border,
		left, strings.Repeat(" ", leftPadding),
		border,
		right, strings.Repeat(" ", rightPadding),
		border)
}

// clearLive erases the live display. The caller holds c.mu.
func (c *Console) clearLive() {
	if c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

func (c *Console) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

func renderProgressBar(progress float64, width int) string {
	progress = min(max(progress, 0), 1)
	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatMillis formats a millisecond value the way k6 prints trends.
func formatMillis(ms float64) string {
	d := time.Duration(ms * float64(time.Millisecond))
	switch {
	case d <= 0:
		return "0s"
	case d < time.Millisecond:
		return fmt.Sprintf("%.2fµs", float64(d)/float64(time.Microsecond))
	case d < time.Second:
		return fmt.Sprintf("%.2fms", ms)
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// formatBytes formats a byte count with decimal units.
func formatBytes(n float64) string {
	units := []string{"B", "kB", "MB", "GB", "TB"}
	i := 0
	for n >= 1000 && i < len(units)-1 {
		n /= 1000
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%.0f %s", n, units[i])
	}
	return fmt.Sprintf("%.1f %s", n, units[i])
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}

// visibleWidth counts the runes of s that are not part of ANSI sequences.
func visibleWidth(s string) int {
	return len([]rune(stripANSI(s)))
}

// stripANSI removes ANSI escape codes from a string.
func stripANSI(s string) string {
	var result strings.Builder
	inEscape := false

	for i := 0; i < len(s); i++ {
		if s[i] == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if (s[i] >= 'a' && s[i] <= 'z') || (s[i] >= 'A' && s[i] <= 'Z') {
				inEscape = false
			}
			continue
		}
		result.WriteByte(s[i])
	}

	return result.String()
}
