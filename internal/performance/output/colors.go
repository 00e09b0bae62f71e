package output

import "github.com/fatih/color"

// palette holds the colors of the console output.
type palette struct {
	frame   *color.Color
	title   *color.Color
	value   *color.Color
	good    *color.Color
	warn    *color.Color
	bad     *color.Color
	dim     *color.Color
	phase   *color.Color
	latency *color.Color
}

func newPalette(enabled bool) *palette {
	p := &palette{
		frame:   color.New(color.FgCyan),
		title:   color.New(color.Bold),
		value:   color.New(color.FgCyan),
		good:    color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		bad:     color.New(color.FgRed),
		dim:     color.New(color.Faint),
		phase:   color.New(color.FgMagenta),
		latency: color.New(color.FgBlue),
	}
	for _, c := range []*color.Color{p.frame, p.title, p.value, p.good, p.warn, p.bad, p.dim, p.phase, p.latency} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// rateColor picks a color for an error ratio.
func (p *palette) rateColor(errorRate float64) *color.Color {
	switch {
	case errorRate > 0.05:
		return p.bad
	case errorRate > 0.01:
		return p.warn
	default:
		return p.good
	}
}
