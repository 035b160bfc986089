// Package configsync reads and writes the controller's runtime settings.
package configsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/luki/hydromonitor/internal/alert"
	"github.com/luki/hydromonitor/internal/sensor"
)

// Path is the controller's configuration endpoint.
const Path = "/api/config"

// Values are the settings shown to the operator. The controller stores the
// cycle in seconds; CycleMinutes is always minutes.
type Values struct {
	CycleMinutes       float64 `json:"cycle_minutes" yaml:"cycle_minutes"`
	TargetConductivity float64 `json:"target_conductivity" yaml:"target_conductivity"`
}

// wireRead is the GET body; both fields are optional.
type wireRead struct {
	CycleSeconds json.RawMessage `json:"CICLE_MINUTES"`
	TargetEC     json.RawMessage `json:"eletrocondutividade_desejada"`
}

// wireWrite is the POST body; both fields are always sent.
type wireWrite struct {
	CycleSeconds float64 `json:"CICLE_MINUTES"`
	TargetEC     float64 `json:"eletrocondutividade_desejada"`
}

// Transport is the subset of the fetch client used here.
type Transport interface {
	Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error)
	Post(ctx context.Context, path string, body any) error
}

// Sink receives the notifications produced by Read and Write.
type Sink interface {
	Append(ns ...alert.Notification)
}

// Recorder observes config operations; op is "read" or "write".
type Recorder interface {
	ObserveConfigOp(op string, err error)
}

// Syncer holds the last values confirmed by the controller (current) and the
// operator's edits (pending). It never shares a lock with the feeds.
type Syncer struct {
	transport Transport
	sink      Sink
	recorder  Recorder
	log       zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	current Values
	pending Values
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Syncer) { s.log = l } }

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option { return func(s *Syncer) { s.recorder = r } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Syncer) { s.now = now } }

// WithInitial seeds the current and pending values before the first read.
func WithInitial(v Values) Option {
	return func(s *Syncer) {
		s.current = v
		s.pending = v
	}
}

// New returns a Syncer that reports through sink.
func New(t Transport, sink Sink, opts ...Option) *Syncer {
	s := &Syncer{
		transport: t,
		sink:      sink,
		log:       zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the last values confirmed by the controller.
func (s *Syncer) Current() Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Pending returns the operator's unsaved edits.
func (s *Syncer) Pending() Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// SetPending replaces the unsaved edits.
func (s *Syncer) SetPending(v Values) {
	s.mu.Lock()
	s.pending = v
	s.mu.Unlock()
}

// Read fetches the controller's settings. Fields present in the response
// overwrite the current values and pending is reset to them. On failure the
// current values are left alone and one error notification is emitted.
func (s *Syncer) Read(ctx context.Context) (Values, error) {
	raw, err := s.transport.Get(ctx, Path, nil)
	if err == nil {
		var w wireRead
		if uerr := json.Unmarshal(raw, &w); uerr != nil {
			err = fmt.Errorf("decode config: %w", uerr)
		} else {
			v := s.apply(w)
			s.observe("read", nil)
			s.log.Info().Float64("cycle_minutes", v.CycleMinutes).Float64("target_ec", v.TargetConductivity).Msg("config loaded")
			return v, nil
		}
	}
	s.observe("read", err)
	s.log.Error().Err(err).Msg("config read failed")
	s.notify(alert.SeverityError, fmt.Sprintf("could not load configuration: %v", err))
	return s.Current(), err
}

func (s *Syncer) apply(w wireRead) Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sec, ok := sensor.Number(w.CycleSeconds); ok {
		s.current.CycleMinutes = SecondsToMinutes(sec)
	}
	if ec, ok := sensor.Number(w.TargetEC); ok {
		s.current.TargetConductivity = ec
	}
	s.pending = s.current
	return s.current
}

// Write sends v to the controller. Pending becomes v first. On success the
// current values become v without a re-fetch and one info notification is
// emitted; on failure one error notification is emitted and pending keeps v.
func (s *Syncer) Write(ctx context.Context, v Values) error {
	s.SetPending(v)

	body := wireWrite{
		CycleSeconds: MinutesToSeconds(v.CycleMinutes),
		TargetEC:     v.TargetConductivity,
	}
	if err := s.transport.Post(ctx, Path, body); err != nil {
		s.observe("write", err)
		s.log.Error().Err(err).Msg("config write failed")
		s.notify(alert.SeverityError, fmt.Sprintf("could not save configuration: %v", err))
		return err
	}

	s.mu.Lock()
	s.current = v
	s.mu.Unlock()
	s.observe("write", nil)
	s.log.Info().Float64("cycle_minutes", v.CycleMinutes).Float64("target_ec", v.TargetConductivity).Msg("config saved")
	s.notify(alert.SeverityInfo, "configuration saved")
	return nil
}

func (s *Syncer) notify(sev alert.Severity, msg string) {
	if s.sink != nil {
		s.sink.Append(alert.New(sev, msg, s.now()))
	}
}

func (s *Syncer) observe(op string, err error) {
	if s.recorder != nil {
		s.recorder.ObserveConfigOp(op, err)
	}
}

// SecondsToMinutes converts the controller's cycle to minutes.
func SecondsToMinutes(sec float64) float64 { return sec / 60 }

// MinutesToSeconds converts the operator's cycle to seconds.
func MinutesToSeconds(min float64) float64 { return min * 60 }
