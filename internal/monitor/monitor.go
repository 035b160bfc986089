// Package monitor implements the live hydroponics dashboard using
// BubbleTea. It renders engine snapshots and never blocks on I/O: config
// reads and writes run as commands.
package monitor

import (
	"context"
	"math"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/luki/hydromonitor/internal/configsync"
	"github.com/luki/hydromonitor/internal/engine"
	"github.com/luki/hydromonitor/internal/history"
)

const (
	renderInterval = 500 * time.Millisecond
	configTimeout  = 15 * time.Second

	cycleStep  = 1.0
	targetStep = 0.1
)

// Backend is what the dashboard drives. *engine.Engine satisfies it.
type Backend interface {
	Snapshot() engine.Snapshot
	Refresh()
	ReadConfig(ctx context.Context) (configsync.Values, error)
	WriteConfig(ctx context.Context, v configsync.Values) error
	SetPendingConfig(v configsync.Values)
	Series(key string, n int) (history.Series, bool)
	Points(key string, n int) []history.Point
}

// ── Tabs ─────────────────────────────────────────────────────────────

type tab int

const (
	tabOverview tab = iota
	tabRanking
	tabSettings
	tabActivity
	tabCount
)

var tabNames = [tabCount]string{"Overview", "Ranking", "Settings", "Activity"}

type settingsField int

const (
	fieldCycle settingsField = iota
	fieldTarget
)

// ── Messages ─────────────────────────────────────────────────────────

type tickMsg time.Time

type configDoneMsg struct {
	op  string
	err error
}

// ── Model ────────────────────────────────────────────────────────────

// Model is the BubbleTea model for the live dashboard.
type Model struct {
	backend   Backend
	snap      engine.Snapshot
	tab       tab
	field     settingsField
	busy      string
	configErr error
	width     int
	height    int
	scroll    int
	startTime time.Time
}

// New creates the initial model.
func New(b Backend) Model {
	return Model{
		backend:   b,
		snap:      b.Snapshot(),
		startTime: time.Now(),
	}
}

// ── Commands ─────────────────────────────────────────────────────────

func tickCmd() tea.Cmd {
	return tea.Tick(renderInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func readConfigCmd(b Backend) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), configTimeout)
		defer cancel()
		_, err := b.ReadConfig(ctx)
		return configDoneMsg{op: "load", err: err}
	}
}

func writeConfigCmd(b Backend, v configsync.Values) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), configTimeout)
		defer cancel()
		err := b.WriteConfig(ctx, v)
		return configDoneMsg{op: "save", err: err}
	}
}

// ── Init / Update ────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), readConfigCmd(m.backend))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.snap = m.backend.Snapshot()
		return m, tickCmd()

	case configDoneMsg:
		m.busy = ""
		m.configErr = msg.err
		m.snap = m.backend.Snapshot()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "tab", "right":
		m.tab = (m.tab + 1) % tabCount
		m.scroll = 0
	case "shift+tab", "left":
		m.tab = (m.tab + tabCount - 1) % tabCount
		m.scroll = 0
	case "1", "2", "3", "4":
		m.tab = tab(msg.String()[0] - '1')
		m.scroll = 0
	case "r":
		m.backend.Refresh()
	case "home":
		m.scroll = 0
	}

	if m.tab == tabSettings {
		return m.handleSettingsKey(msg)
	}

	switch msg.String() {
	case "up", "k":
		if m.scroll > 0 {
			m.scroll--
		}
	case "down", "j":
		m.scroll++
	}
	return m, nil
}

func (m Model) handleSettingsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		m.field = fieldCycle
	case "down", "j":
		m.field = fieldTarget
	case "+", "=":
		m.adjust(1)
	case "-", "_":
		m.adjust(-1)
	case "s":
		if m.busy != "" {
			return m, nil
		}
		m.busy = "saving"
		return m, writeConfigCmd(m.backend, m.snap.PendingConfig)
	case "l":
		if m.busy != "" {
			return m, nil
		}
		m.busy = "loading"
		return m, readConfigCmd(m.backend)
	case "u":
		m.backend.SetPendingConfig(m.snap.Config)
		m.snap = m.backend.Snapshot()
	}
	return m, nil
}

// adjust nudges the selected pending value, clamped at zero.
func (m *Model) adjust(dir float64) {
	v := m.snap.PendingConfig
	switch m.field {
	case fieldCycle:
		v.CycleMinutes = max(0, v.CycleMinutes+dir*cycleStep)
	case fieldTarget:
		v.TargetConductivity = max(0, roundTenth(v.TargetConductivity+dir*targetStep))
	}
	m.backend.SetPendingConfig(v)
	m.snap = m.backend.Snapshot()
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
