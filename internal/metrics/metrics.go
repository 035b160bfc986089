// Package metrics exposes the monitor's prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luki/hydromonitor/internal/alert"
	"github.com/luki/hydromonitor/internal/fetch"
	"github.com/luki/hydromonitor/internal/poller"
	"github.com/luki/hydromonitor/internal/sensor"
)

const (
	metricPrefix = "hydromonitor_"

	resultSuccess = "success"
	resultError   = "error"
)

// Metrics bundles the collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	PollsTotal         *prometheus.CounterVec
	PollLatency        *prometheus.HistogramVec
	FeedConnected      *prometheus.GaugeVec
	NotificationsTotal *prometheus.CounterVec
	ConfigOpsTotal     *prometheus.CounterVec
	ReadingValue       *prometheus.GaugeVec
}

// New constructs the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "polls_total",
				Help: "Total feed polls by feed, result and failure kind",
			},
			[]string{"feed", "result", "kind"},
		),
		PollLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "poll_latency_seconds",
				Help:    "Feed poll latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"feed"},
		),
		FeedConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "feed_connected",
				Help: "1 when the feed's last poll succeeded, 0 otherwise",
			},
			[]string{"feed"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Total notifications raised by severity",
			},
			[]string{"severity"},
		),
		ConfigOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "config_ops_total",
				Help: "Total controller config reads and writes by result",
			},
			[]string{"op", "result"},
		),
		ReadingValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "reading_value",
				Help: "Last published value per metric",
			},
			[]string{"metric"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.PollsTotal,
			m.PollLatency,
			m.FeedConnected,
			m.NotificationsTotal,
			m.ConfigOpsTotal,
			m.ReadingValue,
		)
	}
	return m
}

// ObservePoll records one poll of feed.
func (m *Metrics) ObservePoll(feed string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result, kind := resultSuccess, ""
	if err != nil {
		result = resultError
		kind = fetch.KindOf(err).String()
	}
	m.PollsTotal.WithLabelValues(feed, result, kind).Inc()
	m.PollLatency.WithLabelValues(feed).Observe(elapsed.Seconds())
}

// ObserveConnectivity records a connectivity transition of feed.
func (m *Metrics) ObserveConnectivity(feed string, c poller.Connectivity) {
	if m == nil {
		return
	}
	v := 0.0
	if c == poller.Connected {
		v = 1
	}
	m.FeedConnected.WithLabelValues(feed).Set(v)
}

// ObserveConfigOp records a config read or write.
func (m *Metrics) ObserveConfigOp(op string, err error) {
	if m == nil {
		return
	}
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	m.ConfigOpsTotal.WithLabelValues(op, result).Inc()
}

// ObserveNotifications counts ns by severity.
func (m *Metrics) ObserveNotifications(ns ...alert.Notification) {
	if m == nil {
		return
	}
	for _, n := range ns {
		m.NotificationsTotal.WithLabelValues(string(n.Severity)).Inc()
	}
}

// ObserveReading sets the per-metric gauges from r.
func (m *Metrics) ObserveReading(r sensor.Reading) {
	if m == nil {
		return
	}
	for _, metric := range sensor.Metrics {
		if v, ok := r.Value(metric.Key); ok {
			m.ReadingValue.WithLabelValues(metric.Key).Set(v)
		}
	}
}
