// Package history keeps a bounded window of timestamped values per metric
// for the dashboard sparklines and the /api/history endpoint.
package history

import (
	"math"
	"sync"
	"time"

	"github.com/luki/hydromonitor/internal/sensor"
)

// DefaultCapacity is one hour of readings at a 5s period.
const DefaultCapacity = 720

// Point is a single observed value.
type Point struct {
	Value float64   `json:"value"`
	Time  time.Time `json:"time"`
}

// Series is a read-only copy of one metric's history. Min, Peak and
// OutOfBand cover every value recorded since start; Avg covers the
// retained window only.
type Series struct {
	Key       string        `json:"key"`
	Values    []float64     `json:"values"`
	Last      float64       `json:"last"`
	Min       float64       `json:"min"`
	Peak      float64       `json:"peak"`
	Avg       float64       `json:"avg"`
	Count     int           `json:"count"`
	Status    sensor.Status `json:"status"`
	OutOfBand int           `json:"out_of_band"`
}

// track is the window of one metric. The ring overwrites its oldest
// point once full; head is the index of the oldest retained point.
type track struct {
	metric    sensor.Metric
	ring      []Point
	head      int
	size      int
	min, peak float64
	outOfBand int
}

func newTrack(key string, capacity int) *track {
	m, ok := sensor.Lookup(key)
	if !ok {
		m = sensor.Metric{Key: key}
	}
	return &track{
		metric: m,
		ring:   make([]Point, capacity),
		min:    math.Inf(1),
		peak:   math.Inf(-1),
	}
}

func (t *track) add(p Point) {
	if t.size < len(t.ring) {
		t.ring[(t.head+t.size)%len(t.ring)] = p
		t.size++
	} else {
		t.ring[t.head] = p
		t.head = (t.head + 1) % len(t.ring)
	}
	t.min = math.Min(t.min, p.Value)
	t.peak = math.Max(t.peak, p.Value)
	if t.metric.Status(p.Value) == sensor.StatusError {
		t.outOfBand++
	}
}

// tail copies the newest n points in chronological order.
func (t *track) tail(n int) []Point {
	n = min(n, t.size)
	if n <= 0 {
		return nil
	}
	out := make([]Point, n)
	for i := range out {
		out[i] = t.ring[(t.head+t.size-n+i)%len(t.ring)]
	}
	return out
}

func (t *track) series(n int) Series {
	s := Series{
		Key:       t.metric.Key,
		Min:       t.min,
		Peak:      t.peak,
		Count:     t.size,
		OutOfBand: t.outOfBand,
	}
	var sum float64
	for i := 0; i < t.size; i++ {
		sum += t.ring[(t.head+i)%len(t.ring)].Value
	}
	s.Avg = sum / float64(t.size)

	pts := t.tail(n)
	s.Values = make([]float64, len(pts))
	for i, p := range pts {
		s.Values[i] = p.Value
	}
	s.Last = t.tail(1)[0].Value
	s.Status = t.metric.Status(s.Last)
	return s
}

// Store holds one window per metric key. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	tracks   map[string]*track
	capacity int
}

// NewStore creates a store keeping capacity points per metric.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		tracks:   make(map[string]*track),
		capacity: capacity,
	}
}

// Record adds one value for key. Non-finite values are dropped.
func (s *Store) Record(key string, v float64, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(key, v, t)
}

// RecordReading adds every metric present in r, stamped with r.ObservedAt.
func (s *Store) RecordReading(r sensor.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range sensor.Metrics {
		if v, ok := r.Value(m.Key); ok {
			s.record(m.Key, v, r.ObservedAt)
		}
	}
}

func (s *Store) record(key string, v float64, t time.Time) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	tr, ok := s.tracks[key]
	if !ok {
		tr = newTrack(key, s.capacity)
		s.tracks[key] = tr
	}
	tr.add(Point{Value: v, Time: t})
}

// Series returns the last n values of key with its statistics. ok is false
// when nothing was recorded for key.
func (s *Store) Series(key string, n int) (Series, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.tracks[key]
	if !ok || tr.size == 0 {
		return Series{Key: key}, false
	}
	return tr.series(n), true
}

// Points returns a copy of the last n points of key.
func (s *Store) Points(key string, n int) []Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.tracks[key]
	if !ok {
		return nil
	}
	return tr.tail(n)
}
