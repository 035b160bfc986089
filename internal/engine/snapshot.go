package engine

import (
	"fmt"
	"time"

	"github.com/luki/hydromonitor/internal/alert"
	"github.com/luki/hydromonitor/internal/configsync"
	"github.com/luki/hydromonitor/internal/fetch"
	"github.com/luki/hydromonitor/internal/poller"
	"github.com/luki/hydromonitor/internal/sensor"
)

// FeedView is the renderable state of one feed.
type FeedView[T any] struct {
	Value        T                   `json:"value"`
	HasValue     bool                `json:"has_value"`
	Connectivity poller.Connectivity `json:"connectivity"`
	Polling      bool                `json:"polling"`
	LastUpdate   time.Time           `json:"last_update,omitzero"`
	LastError    string              `json:"last_error,omitempty"`
	ErrorKind    string              `json:"error_kind,omitempty"`
}

// Snapshot is a consistent copy of everything the dashboard shows.
type Snapshot struct {
	BaseURL       string                          `json:"base_url"`
	Reading       FeedView[sensor.Reading]        `json:"reading"`
	Ranking       FeedView[[]sensor.RankingEntry] `json:"ranking"`
	Connectivity  poller.Connectivity             `json:"connectivity"`
	Banner        string                          `json:"banner,omitempty"`
	Notifications []alert.Notification            `json:"notifications"`
	Config        configsync.Values               `json:"config"`
	PendingConfig configsync.Values               `json:"pending_config"`
	Manual        sensor.Reading                  `json:"manual"`
	HasManual     bool                            `json:"has_manual"`
	TakenAt       time.Time                       `json:"taken_at"`
}

// Snapshot copies the current state. It never blocks on I/O.
func (e *Engine) Snapshot() Snapshot {
	rs := e.readings.Status()
	ks := e.ranking.Status()

	e.mu.Lock()
	manual, hasManual := e.manual, e.hasManual
	e.mu.Unlock()

	s := Snapshot{
		BaseURL:       e.client.BaseURL(),
		Reading:       feedView(rs),
		Ranking:       feedView(ks),
		Connectivity:  rs.Connectivity,
		Notifications: e.alerts.Newest(),
		Config:        e.settings.Current(),
		PendingConfig: e.settings.Pending(),
		Manual:        manual,
		HasManual:     hasManual,
		TakenAt:       e.now(),
	}
	switch {
	case rs.Connectivity == poller.Disconnected:
		s.Banner = e.banner(rs.LastError)
	case ks.Connectivity == poller.Disconnected:
		s.Banner = e.banner(ks.LastError)
	}
	return s
}

func feedView[T any](st poller.Status[T]) FeedView[T] {
	v := FeedView[T]{
		Value:        st.Value,
		HasValue:     st.HasValue,
		Connectivity: st.Connectivity,
		Polling:      st.Polling,
		LastUpdate:   st.LastUpdate,
	}
	if st.LastError != nil {
		v.LastError = st.LastError.Error()
		v.ErrorKind = fetch.KindOf(st.LastError).String()
	}
	return v
}

// banner turns a feed failure into operator-facing remediation text.
func (e *Engine) banner(err error) string {
	if err == nil {
		return ""
	}
	if fetch.IsTunnel(err) {
		if hint := fetch.HintOf(err); hint != "" {
			return hint
		}
	}
	return fmt.Sprintf("could not reach %s; check that the controller API is running", e.client.BaseURL())
}
