// Package chart renders metric sparklines with status colours, minute tick
// marks, timeline labels, and ok-band scale bars.
package chart

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/luki/hydromonitor/internal/history"
	"github.com/luki/hydromonitor/internal/sensor"
)

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// StatusColor maps a metric status to its colour.
func StatusColor(s sensor.Status) lipgloss.Color {
	switch s {
	case sensor.StatusError:
		return lipgloss.Color("196") // red
	case sensor.StatusWarning:
		return lipgloss.Color("220") // yellow
	default:
		return lipgloss.Color("78") // soft green
	}
}

// Range returns the vertical range used to scale m's values. Ranged metrics
// are drawn around their ok band; others span the observed values.
func Range(m sensor.Metric, values []float64) (lo, hi float64) {
	if m.Ranged {
		pad := (m.Max - m.Min) * 0.5
		lo, hi = m.Min-pad, m.Max+pad
	} else {
		lo, hi = math.MaxFloat64, -math.MaxFloat64
	}
	for _, v := range values {
		if !finite(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo > hi {
		return 0, 1
	}
	if hi-lo < 1e-9 {
		hi = lo + 1
	}
	return lo, hi
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// RenderSparkline renders values without timestamps.
func RenderSparkline(values []float64, width int, m sensor.Metric) string {
	if width <= 0 {
		return ""
	}
	pts := make([]history.Point, len(values))
	for i, v := range values {
		pts[i] = history.Point{Value: v}
	}
	return RenderSparklinePoints(pts, width, m)
}

// RenderSparklinePoints renders a sparkline with a subtle pipe at each
// minute boundary.
func RenderSparklinePoints(points []history.Point, width int, m sensor.Metric) string {
	if width <= 0 {
		return ""
	}

	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
	if len(points) == 0 {
		return dim.Render(strings.Repeat("╌", width))
	}

	if len(points) > width {
		points = points[len(points)-width:]
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	lo, hi := Range(m, values)
	span := hi - lo

	var sb strings.Builder
	for i := 0; i < width-len(points); i++ {
		sb.WriteString(dim.Render("╌"))
	}

	tickStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	for i, p := range points {
		if isMinuteTick(points, i) {
			sb.WriteString(tickStyle.Render("│"))
			continue
		}
		if !finite(p.Value) {
			sb.WriteString(dim.Render("╌"))
			continue
		}
		norm := math.Max(0, math.Min(1, (p.Value-lo)/span))
		idx := int(norm * 7)
		if idx > 7 {
			idx = 7
		}
		status := m.Status(p.Value)
		style := lipgloss.NewStyle().Foreground(StatusColor(status))
		if status == sensor.StatusError {
			style = style.Bold(true)
		}
		sb.WriteString(style.Render(string(sparkBlocks[idx])))
	}

	return sb.String()
}

func isMinuteTick(points []history.Point, i int) bool {
	p := points[i]
	if p.Time.IsZero() {
		return false
	}
	if p.Time.Second() == 0 {
		return true
	}
	return i > 0 && !points[i-1].Time.IsZero() && p.Time.Minute() != points[i-1].Time.Minute()
}

// RenderTimeline renders HH:MM labels under the sparkline at each minute
// tick position.
func RenderTimeline(points []history.Point, width int) string {
	if len(points) == 0 || width <= 0 {
		return ""
	}

	if len(points) > width {
		points = points[len(points)-width:]
	}
	padLen := width - len(points)

	line := []rune(strings.Repeat(" ", width))
	lastEnd := -1
	for i, p := range points {
		if !isMinuteTick(points, i) {
			continue
		}
		label := p.Time.Format("15:04")
		start := padLen + i - 2
		if start < 0 {
			start = 0
		}
		end := start + len(label)
		if end > width || start <= lastEnd+1 {
			continue
		}
		for j, ch := range label {
			line[start+j] = ch
		}
		lastEnd = end
	}

	return lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Render(string(line))
}

// RenderBandScale renders a scale bar with the ok band's edges marked and
// the current value as a diamond. Unranged metrics render an empty string.
func RenderBandScale(current float64, m sensor.Metric, width int) string {
	if width <= 0 || !m.Ranged {
		return ""
	}
	lo, hi := Range(m, []float64{current})
	span := hi - lo
	pos := func(v float64) int {
		p := int(float64(width-1) * (v - lo) / span)
		return max(0, min(width-1, p))
	}
	minPos, maxPos, curPos := pos(m.Min), pos(m.Max), pos(current)

	edge := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	inside := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	outside := lipgloss.NewStyle().Foreground(lipgloss.Color("236"))

	var sb strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i == curPos:
			style := lipgloss.NewStyle().Foreground(StatusColor(m.Status(current))).Bold(true)
			sb.WriteString(style.Render("◆"))
		case i == minPos || i == maxPos:
			sb.WriteString(edge.Render("▪"))
		case i > minPos && i < maxPos:
			sb.WriteString(inside.Render("─"))
		default:
			sb.WriteString(outside.Render("·"))
		}
	}
	return sb.String()
}

// RenderValue renders v in m's format with its status colour.
func RenderValue(v float64, m sensor.Metric) string {
	status := m.Status(v)
	style := lipgloss.NewStyle().Foreground(StatusColor(status))
	if status == sensor.StatusError {
		style = style.Bold(true)
	}
	return style.Render(m.FormatValue(v))
}
