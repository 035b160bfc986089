// Package poller runs a fetch function on a fixed period and keeps the last
// good value, its timestamp, and the feed's connectivity.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Connectivity is a feed's view of the remote endpoint.
type Connectivity int

const (
	Unknown Connectivity = iota
	Connected
	Disconnected
)

func (c Connectivity) String() string {
	switch c {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// MarshalText renders the connectivity as its name in JSON.
func (c Connectivity) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Observer receives per-poll measurements. Implementations must be safe
// for concurrent use.
type Observer interface {
	ObservePoll(feed string, elapsed time.Duration, err error)
	ObserveConnectivity(feed string, c Connectivity)
}

// Status is a point-in-time copy of a feed's state.
type Status[T any] struct {
	Value        T
	HasValue     bool
	Connectivity Connectivity
	Polling      bool
	LastUpdate   time.Time
	LastError    error
}

// Config describes one feed.
type Config[T any] struct {
	Name   string
	Period time.Duration
	Fetch  func(ctx context.Context) (T, error)

	// OnPublish runs under the feed's guard after a successful poll, so it
	// never observes a stopped feed.
	OnPublish func(v T, at time.Time)
	// OnFailure runs under the feed's guard after a failed poll.
	OnFailure func(err error)

	Logger   zerolog.Logger
	Observer Observer
	Now      func() time.Time
}

// Feed polls Fetch on a constant period. Polls of one feed run on a single
// goroutine and never overlap.
type Feed[T any] struct {
	cfg Config[T]

	mu      sync.Mutex
	gen     uint64
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	trigger chan struct{}
	state   Status[T]
}

// ErrNoFetch is returned by New when the config has no fetch function.
var ErrNoFetch = errors.New("poller: fetch function is required")

// New validates cfg and returns a stopped feed.
func New[T any](cfg Config[T]) (*Feed[T], error) {
	if cfg.Fetch == nil {
		return nil, ErrNoFetch
	}
	if cfg.Period <= 0 {
		return nil, errors.New("poller: period must be positive")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Feed[T]{cfg: cfg}, nil
}

// Name returns the feed's name.
func (f *Feed[T]) Name() string { return f.cfg.Name }

// Start launches the polling goroutine. It polls immediately and then on
// every tick. Calling Start on a running feed is a no-op.
func (f *Feed[T]) Start(parent context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	f.gen++
	f.running = true
	f.cancel = cancel
	f.done = make(chan struct{})
	f.trigger = make(chan struct{}, 1)
	go f.loop(ctx, f.gen, f.trigger, f.done)
}

// Stop cancels the feed. After Stop returns no result from an earlier poll,
// including one still in flight, changes the feed's state.
func (f *Feed[T]) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return
	}
	f.gen++
	f.running = false
	f.state.Polling = false
	f.cancel()
}

// Done is closed when the most recently started loop has exited. It is nil
// before the first Start.
func (f *Feed[T]) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// Refresh asks the running feed for one immediate poll. Requests made while
// a poll is pending are coalesced.
func (f *Feed[T]) Refresh() {
	f.mu.Lock()
	trigger := f.trigger
	running := f.running
	f.mu.Unlock()
	if !running {
		return
	}
	select {
	case trigger <- struct{}{}:
	default:
	}
}

// Status returns a copy of the feed's state.
func (f *Feed[T]) Status() Status[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Feed[T]) loop(ctx context.Context, gen uint64, trigger <-chan struct{}, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(f.cfg.Period)
	defer ticker.Stop()

	f.poll(ctx, gen)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-trigger:
		}
		f.poll(ctx, gen)
	}
}

func (f *Feed[T]) poll(ctx context.Context, gen uint64) {
	if !f.begin(gen) {
		return
	}
	start := time.Now()
	v, err := f.cfg.Fetch(ctx)
	elapsed := time.Since(start)

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		f.cfg.Logger.Debug().Str("feed", f.cfg.Name).Msg("discarding result from stopped feed")
		return
	}
	f.state.Polling = false
	if f.cfg.Observer != nil {
		f.cfg.Observer.ObservePoll(f.cfg.Name, elapsed, err)
	}

	prev := f.state.Connectivity
	if err != nil {
		f.state.Connectivity = Disconnected
		f.state.LastError = err
		if prev != Disconnected {
			f.cfg.Logger.Warn().Err(err).Str("feed", f.cfg.Name).Msg("feed disconnected")
		} else {
			f.cfg.Logger.Debug().Err(err).Str("feed", f.cfg.Name).Msg("poll failed")
		}
		if f.cfg.OnFailure != nil {
			f.cfg.OnFailure(err)
		}
	} else {
		at := f.cfg.Now()
		f.state.Value = v
		f.state.HasValue = true
		f.state.LastUpdate = at
		f.state.LastError = nil
		f.state.Connectivity = Connected
		if prev != Connected {
			f.cfg.Logger.Info().Str("feed", f.cfg.Name).Dur("elapsed", elapsed).Msg("feed connected")
		}
		if f.cfg.OnPublish != nil {
			f.cfg.OnPublish(v, at)
		}
	}
	if f.cfg.Observer != nil && prev != f.state.Connectivity {
		f.cfg.Observer.ObserveConnectivity(f.cfg.Name, f.state.Connectivity)
	}
}

func (f *Feed[T]) begin(gen uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		return false
	}
	f.state.Polling = true
	return true
}
