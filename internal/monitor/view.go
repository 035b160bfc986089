package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/luki/hydromonitor/internal/alert"
	"github.com/luki/hydromonitor/internal/chart"
	"github.com/luki/hydromonitor/internal/poller"
	"github.com/luki/hydromonitor/internal/sensor"
)

// ── Color palette ────────────────────────────────────────────────────

var (
	colorTitleBg  = lipgloss.Color("17")
	colorTitleFg  = lipgloss.Color("51")
	colorBorder   = lipgloss.Color("62")
	colorCardName = lipgloss.Color("147")
	colorLabel    = lipgloss.Color("252")
	colorDim      = lipgloss.Color("240")
	colorFooterBg = lipgloss.Color("235")
	colorOk       = lipgloss.Color("78")
	colorWarn     = lipgloss.Color("220")
	colorCrit     = lipgloss.Color("196")
	colorTabOn    = lipgloss.Color("51")
)

func severityColor(s alert.Severity) lipgloss.Color {
	switch s {
	case alert.SeverityError:
		return colorCrit
	case alert.SeverityWarning:
		return colorWarn
	default:
		return colorOk
	}
}

// ── View ─────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 {
		return "  Initializing..."
	}

	contentWidth := max(m.width-2, 40)

	sections := []string{m.renderTitleBar(contentWidth)}
	if m.snap.Banner != "" {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(colorCrit).
			Bold(true).
			Width(contentWidth).
			Padding(0, 1).
			Render("⚠ "+m.snap.Banner))
	}
	sections = append(sections, m.renderTabs(contentWidth))

	switch m.tab {
	case tabOverview:
		sections = append(sections, m.renderOverview(contentWidth)...)
	case tabRanking:
		sections = append(sections, m.renderRanking(contentWidth))
	case tabSettings:
		sections = append(sections, m.renderSettings(contentWidth))
	case tabActivity:
		sections = append(sections, m.renderActivity(contentWidth))
	}

	sections = append(sections, m.renderFooter(contentWidth))

	content := lipgloss.JoinVertical(lipgloss.Left, sections...)

	lines := strings.Split(content, "\n")
	visibleLines := max(m.height, 5)
	maxScroll := max(len(lines)-visibleLines, 0)
	start := min(m.scroll, maxScroll)
	end := min(start+visibleLines, len(lines))

	return strings.Join(lines[start:end], "\n")
}

func badge(c poller.Connectivity) string {
	style := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	switch c {
	case poller.Connected:
		return style.Foreground(lipgloss.Color("16")).Background(colorOk).Render("ONLINE")
	case poller.Disconnected:
		return style.Foreground(lipgloss.Color("231")).Background(colorCrit).Render("OFFLINE")
	default:
		return style.Foreground(lipgloss.Color("16")).Background(colorWarn).Render("CONNECTING")
	}
}

func (m Model) renderTitleBar(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("HYDRO MONITOR")

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	statusParts := []string{
		dimS.Render(m.snap.BaseURL),
		dimS.Render(fmt.Sprintf("up %s", fmtDuration(time.Since(m.startTime)))),
	}
	if !m.snap.Reading.LastUpdate.IsZero() {
		statusParts = append(statusParts, dimS.Render(m.snap.Reading.LastUpdate.Format("15:04:05")))
	}
	if m.snap.Reading.Polling {
		statusParts = append(statusParts, dimS.Render("polling…"))
	}
	statusParts = append(statusParts, badge(m.snap.Connectivity))

	sep := dimS.Render(" │ ")
	right := strings.Join(statusParts, sep)

	gap := max(width-lipgloss.Width(logo)-lipgloss.Width(right)-4, 1)

	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(width).
		Padding(0, 1).
		Render(logo + strings.Repeat(" ", gap) + right)
}

func (m Model) renderTabs(width int) string {
	var parts []string
	for i, name := range tabNames {
		label := fmt.Sprintf(" %d %s ", i+1, name)
		if tab(i) == m.tab {
			parts = append(parts, lipgloss.NewStyle().Bold(true).Foreground(colorTabOn).Underline(true).Render(label))
		} else {
			parts = append(parts, lipgloss.NewStyle().Foreground(colorDim).Render(label))
		}
	}
	return lipgloss.NewStyle().Width(width).Padding(0, 1).Render(strings.Join(parts, " "))
}

// ── Overview ─────────────────────────────────────────────────────────

func (m Model) renderOverview(totalWidth int) []string {
	if !m.snap.Reading.HasValue {
		msg := "Waiting for controller data..."
		if m.snap.Connectivity == poller.Disconnected {
			msg = "No reading received yet."
		}
		return []string{lipgloss.NewStyle().
			Foreground(colorDim).
			Width(totalWidth).
			Align(lipgloss.Center).
			Padding(2, 0).
			Render(msg)}
	}

	r := m.snap.Reading.Value
	chartWidth := min(max(totalWidth-56, 15), 140)
	labelW, valueW := 14, 11

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	valS := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	frameL := lipgloss.NewStyle().Foreground(colorBorder).Render("▕")
	frameR := lipgloss.NewStyle().Foreground(colorBorder).Render("▏")

	header := lipgloss.NewStyle().Bold(true).Foreground(colorCardName).Render("Readings") + "  " +
		dimS.Render(fmt.Sprintf("%s payload, observed %s", r.Source, r.ObservedAt.Format("15:04:05")))
	rows := []string{header}

	var lastKey string
	for _, metric := range sensor.Metrics {
		v, ok := r.Value(metric.Key)
		if !ok {
			continue
		}
		label := lipgloss.NewStyle().Foreground(colorLabel).Width(labelW).Render(truncate(metric.Label, labelW))
		value := lipgloss.NewStyle().Width(valueW).Align(lipgloss.Right).Render(chart.RenderValue(v, metric))

		series, _ := m.backend.Series(metric.Key, chartWidth)
		spark := chart.RenderSparklinePoints(m.backend.Points(metric.Key, chartWidth), chartWidth, metric)
		stats := dimS.Render(" avg") + valS.Render(fmt.Sprintf("%7.2f", series.Avg)) +
			dimS.Render(" lo") + valS.Render(fmt.Sprintf("%7.2f", series.Min)) +
			dimS.Render(" pk") + valS.Render(fmt.Sprintf("%7.2f", series.Peak))
		if series.OutOfBand > 0 {
			stats += lipgloss.NewStyle().Foreground(chart.StatusColor(sensor.StatusError)).
				Render(fmt.Sprintf(" ✗%d", series.OutOfBand))
		}
		scale := chart.RenderBandScale(v, metric, 12)
		if scale != "" {
			scale = " " + scale
		}

		rows = append(rows, label+" "+value+" "+frameL+spark+frameR+stats+scale)
		lastKey = metric.Key
	}

	if lastKey != "" {
		timeline := chart.RenderTimeline(m.backend.Points(lastKey, chartWidth), chartWidth)
		if strings.TrimSpace(timeline) != "" {
			rows = append(rows, strings.Repeat(" ", labelW+valueW+3)+timeline)
		}
	}

	panels := []string{panel(totalWidth, rows)}
	if len(m.snap.Notifications) > 0 {
		panels = append(panels, panel(totalWidth, append(
			[]string{lipgloss.NewStyle().Bold(true).Foreground(colorCardName).Render("Alerts")},
			notificationRows(m.snap.Notifications)...,
		)))
	}
	return panels
}

func panel(width int, rows []string) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Width(width).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func notificationRows(ns []alert.Notification) []string {
	rows := make([]string, 0, len(ns))
	for _, n := range ns {
		sev := lipgloss.NewStyle().Foreground(severityColor(n.Severity)).Bold(true).Width(8).Render(strings.ToUpper(string(n.Severity)))
		ts := lipgloss.NewStyle().Foreground(colorDim).Render(n.CreatedAt.Format("15:04:05"))
		rows = append(rows, ts+"  "+sev+" "+lipgloss.NewStyle().Foreground(colorLabel).Render(n.Message))
	}
	return rows
}

// ── Ranking ──────────────────────────────────────────────────────────

func (m Model) renderRanking(width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	rows := []string{lipgloss.NewStyle().Bold(true).Foreground(colorCardName).Render("Temperature ranking")}

	rk := m.snap.Ranking
	if rk.LastError != "" {
		rows = append(rows, lipgloss.NewStyle().Foreground(colorCrit).Render("last poll failed: "+rk.LastError))
	}
	if !rk.HasValue {
		rows = append(rows, dimS.Render("No ranking received yet."))
		return panel(width, rows)
	}
	if len(rk.Value) == 0 {
		rows = append(rows, dimS.Render("The controller returned an empty ranking."))
		return panel(width, rows)
	}

	temp, _ := sensor.Lookup(sensor.KeyTemperature)
	for i, e := range rk.Value {
		pos := dimS.Width(4).Render(fmt.Sprintf("#%d", i+1))
		id := lipgloss.NewStyle().Foreground(colorLabel).Width(24).Render(truncate(e.ID, 24))
		rows = append(rows, pos+id+chart.RenderValue(e.Temperature, temp))
	}
	rows = append(rows, dimS.Render("updated "+rk.LastUpdate.Format("15:04:05")))
	return panel(width, rows)
}

// ── Settings ─────────────────────────────────────────────────────────

func (m Model) renderSettings(width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	rows := []string{lipgloss.NewStyle().Bold(true).Foreground(colorCardName).Render("Controller settings")}

	fields := []struct {
		field   settingsField
		label   string
		current string
		pending string
	}{
		{fieldCycle, "Cycle (minutes)", fmt.Sprintf("%g", m.snap.Config.CycleMinutes), fmt.Sprintf("%g", m.snap.PendingConfig.CycleMinutes)},
		{fieldTarget, "Target EC (mS/cm)", fmt.Sprintf("%.1f", m.snap.Config.TargetConductivity), fmt.Sprintf("%.1f", m.snap.PendingConfig.TargetConductivity)},
	}
	for _, f := range fields {
		cursor := "  "
		labelStyle := lipgloss.NewStyle().Foreground(colorLabel).Width(20)
		if f.field == m.field {
			cursor = lipgloss.NewStyle().Foreground(colorTabOn).Render("▸ ")
			labelStyle = labelStyle.Bold(true)
		}
		edited := ""
		if f.pending != f.current {
			edited = lipgloss.NewStyle().Foreground(colorWarn).Render("  (unsaved)")
		}
		rows = append(rows, cursor+labelStyle.Render(f.label)+
			lipgloss.NewStyle().Bold(true).Width(10).Render(f.pending)+
			dimS.Render("controller: "+f.current)+edited)
	}

	switch {
	case m.busy != "":
		rows = append(rows, dimS.Render(m.busy+"…"))
	case m.configErr != nil:
		rows = append(rows, lipgloss.NewStyle().Foreground(colorCrit).Render("last request failed: "+m.configErr.Error()))
	}
	rows = append(rows, dimS.Render("j/k select  +/- adjust  s save  l reload  u undo"))
	return panel(width, rows)
}

// ── Activity ─────────────────────────────────────────────────────────

func (m Model) renderActivity(width int) string {
	rows := []string{lipgloss.NewStyle().Bold(true).Foreground(colorCardName).Render("Recent activity")}
	if len(m.snap.Notifications) == 0 {
		rows = append(rows, lipgloss.NewStyle().Foreground(colorDim).Render("Nothing to report."))
	} else {
		rows = append(rows, notificationRows(m.snap.Notifications)...)
	}
	if m.snap.HasManual {
		r := m.snap.Manual
		rows = append(rows, "", lipgloss.NewStyle().Foreground(colorDim).Render(
			fmt.Sprintf("last manual reading %s: pH %.1f, %.1f°C, %.0f%%, %.2f mS/cm",
				r.ObservedAt.Format("15:04:05"), r.PH, r.Temperature, r.Humidity, r.Conductivity)))
	}
	return panel(width, rows)
}

// ── Footer ───────────────────────────────────────────────────────────

func (m Model) renderFooter(width int) string {
	okS := lipgloss.NewStyle().Foreground(colorOk).Render("██")
	warnS := lipgloss.NewStyle().Foreground(colorWarn).Render("██")
	critS := lipgloss.NewStyle().Foreground(colorCrit).Render("██")
	tickS := lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Render("│")

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	labelS := lipgloss.NewStyle().Foreground(colorLabel)
	legend := okS + dimS.Render(" ok ") +
		warnS + dimS.Render(" near limit ") +
		critS + dimS.Render(" out of range ") +
		tickS + dimS.Render(" 1min")

	keys := dimS.Render("q") + labelS.Render(":quit") +
		dimS.Render("  tab") + labelS.Render(":next") +
		dimS.Render("  r") + labelS.Render(":refresh") +
		dimS.Render("  j/k") + labelS.Render(":scroll")

	gap := max(width-lipgloss.Width(legend)-lipgloss.Width(keys)-4, 1)

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(legend + strings.Repeat(" ", gap) + keys)
}

func truncate(s string, w int) string {
	if len(s) <= w {
		return s
	}
	if w <= 3 {
		return s[:w]
	}
	return s[:w-1] + "…"
}

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
