// Package engine wires the feeds, the alert evaluator, the notification
// buffer, the reading history and the config sync into one unit that the
// dashboard and the status server render from.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/luki/hydromonitor/internal/alert"
	"github.com/luki/hydromonitor/internal/config"
	"github.com/luki/hydromonitor/internal/configsync"
	"github.com/luki/hydromonitor/internal/entry"
	"github.com/luki/hydromonitor/internal/fetch"
	"github.com/luki/hydromonitor/internal/history"
	"github.com/luki/hydromonitor/internal/metrics"
	"github.com/luki/hydromonitor/internal/poller"
	"github.com/luki/hydromonitor/internal/sensor"
)

const (
	FeedReadings = "readings"
	FeedRanking  = "ranking"

	rankingPath = "/api/ranking/temperature"
)

var errUnknownShape = errors.New("unrecognized reading payload")

// Engine owns the two feeds and everything fed by them.
type Engine struct {
	cfg     config.Config
	client  *fetch.Client
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	readings *poller.Feed[sensor.Reading]
	ranking  *poller.Feed[[]sensor.RankingEntry]
	alerts   *alert.Buffer
	history  *history.Store
	settings *configsync.Syncer

	mu        sync.Mutex
	manual    sensor.Reading
	hasManual bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.log = l } }

// WithMetrics sets the prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// New builds a stopped engine for cfg.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg: cfg,
		log: zerolog.Nop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	client, err := fetch.NewClient(cfg.BaseURL, fetch.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return nil, err
	}
	e.client = client
	e.alerts = alert.NewBuffer(cfg.NotificationCapacity)
	e.history = history.NewStore(cfg.HistorySize)
	e.settings = configsync.New(client, e,
		configsync.WithLogger(e.log.With().Str("component", "configsync").Logger()),
		configsync.WithRecorder(e.metrics),
		configsync.WithClock(e.now),
	)

	e.readings, err = poller.New(poller.Config[sensor.Reading]{
		Name:      FeedReadings,
		Period:    cfg.ReadingPeriod,
		Fetch:     e.fetchReading,
		OnPublish: e.publishReading,
		Logger:    e.log.With().Str("component", "poller").Logger(),
		Observer:  e.metrics,
		Now:       e.now,
	})
	if err != nil {
		return nil, fmt.Errorf("readings feed: %w", err)
	}
	e.ranking, err = poller.New(poller.Config[[]sensor.RankingEntry]{
		Name:     FeedRanking,
		Period:   cfg.RankingPeriod,
		Fetch:    e.fetchRanking,
		Logger:   e.log.With().Str("component", "poller").Logger(),
		Observer: e.metrics,
		Now:      e.now,
	})
	if err != nil {
		return nil, fmt.Errorf("ranking feed: %w", err)
	}
	return e, nil
}

// ── Lifecycle ───────────────────────────────────────────────

// Start launches both feeds. Each polls immediately.
func (e *Engine) Start(ctx context.Context) {
	e.log.Info().Str("base_url", e.client.BaseURL()).
		Dur("reading_period", e.cfg.ReadingPeriod).
		Dur("ranking_period", e.cfg.RankingPeriod).
		Msg("starting feeds")
	e.readings.Start(ctx)
	e.ranking.Start(ctx)
}

// Stop tears both feeds down. No feed state changes after Stop returns.
func (e *Engine) Stop() {
	e.readings.Stop()
	e.ranking.Stop()
	e.log.Info().Msg("feeds stopped")
}

// Run starts the feeds and blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	e.Start(ctx)
	<-ctx.Done()
	e.Stop()
	return nil
}

// Refresh asks both feeds for an immediate poll.
func (e *Engine) Refresh() {
	e.readings.Refresh()
	e.ranking.Refresh()
}

// ── Feeds ───────────────────────────────────────────────────

func (e *Engine) fetchReading(ctx context.Context) (sensor.Reading, error) {
	raw, err := e.client.Get(ctx, e.cfg.ReadingPath, nil)
	if err != nil {
		return sensor.Reading{}, err
	}
	r, shape := sensor.Normalize(raw, e.now())
	if shape == sensor.ShapeUnknown {
		return sensor.Reading{}, &fetch.Failure{Kind: fetch.KindDecode, Err: errUnknownShape}
	}
	return r, nil
}

// publishReading runs under the readings feed's guard.
func (e *Engine) publishReading(r sensor.Reading, at time.Time) {
	e.history.RecordReading(r)
	e.metrics.ObserveReading(r)
	if ns := alert.Evaluate(r, at); len(ns) > 0 {
		e.Append(ns...)
		for _, n := range ns {
			e.log.Warn().Str("rule", n.Rule).Str("severity", string(n.Severity)).Msg(n.Message)
		}
	}
}

func (e *Engine) fetchRanking(ctx context.Context) ([]sensor.RankingEntry, error) {
	q := url.Values{"limit": {strconv.Itoa(e.cfg.RankingLimit)}}
	raw, err := e.client.Get(ctx, rankingPath, q)
	if err != nil {
		return nil, err
	}
	entries, err := sensor.DecodeRanking(raw)
	if err != nil {
		return nil, &fetch.Failure{Kind: fetch.KindDecode, Err: err}
	}
	return entries, nil
}

// Append adds notifications to the buffer. It is the sink shared by the
// evaluator, config sync and manual entry.
func (e *Engine) Append(ns ...alert.Notification) {
	e.alerts.Append(ns...)
	e.metrics.ObserveNotifications(ns...)
}

// ── Config & manual entry ───────────────────────────────────

// ReadConfig loads the controller's settings.
func (e *Engine) ReadConfig(ctx context.Context) (configsync.Values, error) {
	return e.settings.Read(ctx)
}

// WriteConfig saves v to the controller.
func (e *Engine) WriteConfig(ctx context.Context, v configsync.Values) error {
	return e.settings.Write(ctx, v)
}

// SetPendingConfig replaces the unsaved settings edits.
func (e *Engine) SetPendingConfig(v configsync.Values) {
	e.settings.SetPending(v)
}

// SubmitManual validates a typed-in reading, records it in the history and
// runs the alert rules on it. Feed state is never touched.
func (e *Engine) SubmitManual(f entry.Form) (sensor.Reading, error) {
	now := e.now()
	r, err := f.Reading(now)
	if err != nil {
		e.Append(alert.New(alert.SeverityError, err.Error(), now))
		return sensor.Reading{}, err
	}

	e.mu.Lock()
	e.manual = r
	e.hasManual = true
	e.mu.Unlock()

	e.history.RecordReading(r)
	ns := append([]alert.Notification{alert.New(alert.SeverityInfo, "manual reading recorded", now)}, alert.Evaluate(r, now)...)
	e.Append(ns...)
	e.log.Info().Float64("ph", r.PH).Float64("temperature", r.Temperature).Msg("manual reading recorded")
	return r, nil
}

// Series returns the last n points of one metric's history.
func (e *Engine) Series(key string, n int) (history.Series, bool) {
	return e.history.Series(key, n)
}

// Points returns the last n timestamped points of one metric's history.
func (e *Engine) Points(key string, n int) []history.Point {
	return e.history.Points(key, n)
}
