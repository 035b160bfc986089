package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/luki/hydromonitor/internal/alert"
	"github.com/luki/hydromonitor/internal/configsync"
	"github.com/luki/hydromonitor/internal/engine"
	"github.com/luki/hydromonitor/internal/history"
	"github.com/luki/hydromonitor/internal/poller"
	"github.com/luki/hydromonitor/internal/sensor"
)

type stubBackend struct {
	snap      engine.Snapshot
	refreshed int
	written   []configsync.Values
	writeErr  error
}

func (s *stubBackend) Snapshot() engine.Snapshot { return s.snap }
func (s *stubBackend) Refresh()                  { s.refreshed++ }

func (s *stubBackend) ReadConfig(context.Context) (configsync.Values, error) {
	s.snap.PendingConfig = s.snap.Config
	return s.snap.Config, nil
}

func (s *stubBackend) WriteConfig(_ context.Context, v configsync.Values) error {
	s.written = append(s.written, v)
	if s.writeErr != nil {
		return s.writeErr
	}
	s.snap.Config = v
	return nil
}

func (s *stubBackend) SetPendingConfig(v configsync.Values) { s.snap.PendingConfig = v }

func (s *stubBackend) Series(key string, n int) (history.Series, bool) {
	return history.Series{Key: key, Values: []float64{6.1, 6.3}, Last: 6.3, Min: 6.1, Peak: 6.3, Avg: 6.2, Count: 2}, true
}

func (s *stubBackend) Points(key string, n int) []history.Point {
	base := time.Date(2026, 3, 14, 9, 0, 55, 0, time.UTC)
	return []history.Point{{Value: 6.1, Time: base}, {Value: 6.3, Time: base.Add(5 * time.Second)}}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	mm, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return mm, cmd
}

func sized(m Model) Model {
	m.width, m.height = 140, 80
	return m
}

func TestViewOfflineShowsBannerAndLastReading(t *testing.T) {
	b := &stubBackend{snap: engine.Snapshot{
		BaseURL:      "https://tank.example.com",
		Connectivity: poller.Disconnected,
		Banner:       "The tunnel endpoint is offline.",
		Reading: engine.FeedView[sensor.Reading]{
			Value:    sensor.Reading{PH: 6.3, Temperature: 23.1, Humidity: 55, Conductivity: 1.4},
			HasValue: true,
		},
	}}
	out := sized(New(b)).View()
	for _, want := range []string{"OFFLINE", "The tunnel endpoint is offline.", "pH", "23.1°C"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestViewConnectingBeforeFirstPoll(t *testing.T) {
	out := sized(New(&stubBackend{})).View()
	if !strings.Contains(out, "CONNECTING") || !strings.Contains(out, "Waiting for controller data") {
		t.Errorf("unexpected initial view:\n%s", out)
	}
	if New(&stubBackend{}).View() != "  Initializing..." {
		t.Error("zero-size view should be the placeholder")
	}
}

func TestTabSwitching(t *testing.T) {
	m := sized(New(&stubBackend{snap: engine.Snapshot{
		Connectivity: poller.Connected,
		Ranking: engine.FeedView[[]sensor.RankingEntry]{
			Value:    []sensor.RankingEntry{{ID: "tank-2", Temperature: 29.4}},
			HasValue: true,
		},
		Notifications: []alert.Notification{alert.New(alert.SeverityWarning, "high temperature: 31.0°C", time.Now())},
	}}))

	m, _ = update(t, m, key("tab"))
	if m.tab != tabRanking || !strings.Contains(m.View(), "tank-2") {
		t.Errorf("ranking tab: tab=%d", m.tab)
	}
	m, _ = update(t, m, key("4"))
	if m.tab != tabActivity || !strings.Contains(m.View(), "high temperature: 31.0°C") {
		t.Errorf("activity tab: tab=%d", m.tab)
	}
	m, _ = update(t, m, key("tab"))
	if m.tab != tabOverview {
		t.Errorf("tab should wrap to overview, got %d", m.tab)
	}
}

func TestRefreshKey(t *testing.T) {
	b := &stubBackend{}
	m := New(b)
	update(t, m, key("r"))
	if b.refreshed != 1 {
		t.Errorf("refreshed: got %d", b.refreshed)
	}
}

func TestSettingsEditAndSave(t *testing.T) {
	b := &stubBackend{snap: engine.Snapshot{
		Config:        configsync.Values{CycleMinutes: 15, TargetConductivity: 1.5},
		PendingConfig: configsync.Values{CycleMinutes: 15, TargetConductivity: 1.5},
	}}
	m := sized(New(b))
	m, _ = update(t, m, key("3"))
	m, _ = update(t, m, key("+"))
	m, _ = update(t, m, key("+"))
	m, _ = update(t, m, key("down"))
	m, _ = update(t, m, key("-"))

	want := configsync.Values{CycleMinutes: 17, TargetConductivity: 1.4}
	if b.snap.PendingConfig != want {
		t.Fatalf("pending: got %+v, want %+v", b.snap.PendingConfig, want)
	}
	if !strings.Contains(m.View(), "unsaved") {
		t.Error("edited values should be marked unsaved")
	}

	m, cmd := update(t, m, key("s"))
	if cmd == nil || m.busy == "" {
		t.Fatal("save should start a command")
	}
	if _, again := update(t, m, key("s")); again != nil {
		t.Error("second save while busy should be ignored")
	}
	msg := cmd()
	m, _ = update(t, m, msg)
	if len(b.written) != 1 || b.written[0] != want {
		t.Errorf("written: %+v", b.written)
	}
	if m.busy != "" || m.configErr != nil || m.snap.Config != want {
		t.Errorf("after save: busy=%q err=%v config=%+v", m.busy, m.configErr, m.snap.Config)
	}
}

func TestSettingsSaveFailureShown(t *testing.T) {
	b := &stubBackend{writeErr: errors.New("fetch: tunnel")}
	m := sized(New(b))
	m, _ = update(t, m, key("3"))
	m, cmd := update(t, m, key("s"))
	m, _ = update(t, m, cmd())
	if m.configErr == nil || !strings.Contains(m.View(), "last request failed") {
		t.Error("save failure should be rendered")
	}
}

func TestAdjustClampsAtZero(t *testing.T) {
	b := &stubBackend{}
	m := New(b)
	m, _ = update(t, m, key("3"))
	update(t, m, key("-"))
	if b.snap.PendingConfig.CycleMinutes != 0 {
		t.Errorf("cycle went negative: %v", b.snap.PendingConfig.CycleMinutes)
	}
}

func TestTickReadsSnapshot(t *testing.T) {
	b := &stubBackend{}
	m := New(b)
	b.snap.Connectivity = poller.Connected
	m, cmd := update(t, m, tickMsg(time.Now()))
	if m.snap.Connectivity != poller.Connected || cmd == nil {
		t.Errorf("tick should refresh the snapshot and re-arm: %v", m.snap.Connectivity)
	}
}
