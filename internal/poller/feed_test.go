package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// scriptedFetch returns queued results in order and repeats the last one.
type scriptedFetch struct {
	mu      sync.Mutex
	results []result
	calls   int
}

type result struct {
	v   int
	err error
}

func (s *scriptedFetch) fetch(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	return s.results[i].v, s.results[i].err
}

func (s *scriptedFetch) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestFeedPollsImmediately(t *testing.T) {
	s := &scriptedFetch{results: []result{{v: 7}}}
	f, err := New(Config[int]{Name: "readings", Period: time.Hour, Fetch: s.fetch})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if st := f.Status(); st.Connectivity != Unknown || st.HasValue {
		t.Fatalf("initial status: %+v", st)
	}

	f.Start(context.Background())
	defer f.Stop()

	waitFor(t, "first poll", func() bool { return f.Status().HasValue })
	st := f.Status()
	if st.Value != 7 || st.Connectivity != Connected || st.LastUpdate.IsZero() || st.LastError != nil {
		t.Errorf("after success: %+v", st)
	}
}

func TestFeedFailureKeepsLastValue(t *testing.T) {
	boom := errors.New("tunnel down")
	s := &scriptedFetch{results: []result{{v: 1}, {err: boom}, {v: 3}}}
	var failures atomic.Int32
	f, _ := New(Config[int]{
		Name:      "readings",
		Period:    time.Hour,
		Fetch:     s.fetch,
		OnFailure: func(error) { failures.Add(1) },
	})
	f.Start(context.Background())
	defer f.Stop()

	waitFor(t, "first poll", func() bool { return s.count() == 1 && f.Status().HasValue })
	first := f.Status().LastUpdate

	f.Refresh()
	waitFor(t, "failed poll", func() bool { return f.Status().Connectivity == Disconnected })
	st := f.Status()
	if st.Value != 1 || !st.LastUpdate.Equal(first) {
		t.Errorf("failure changed published value: %+v", st)
	}
	if !errors.Is(st.LastError, boom) {
		t.Errorf("LastError: got %v", st.LastError)
	}
	if failures.Load() != 1 {
		t.Errorf("OnFailure calls: got %d, want 1", failures.Load())
	}

	f.Refresh()
	waitFor(t, "recovery", func() bool { return f.Status().Connectivity == Connected })
	st = f.Status()
	if st.Value != 3 || st.LastError != nil {
		t.Errorf("after recovery: %+v", st)
	}
}

func TestFeedStopDiscardsInFlightResult(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var published atomic.Int32

	f, _ := New(Config[int]{
		Name:   "readings",
		Period: time.Hour,
		Fetch: func(ctx context.Context) (int, error) {
			close(entered)
			// ignores ctx on purpose: a late response still arrives
			<-release
			return 42, nil
		},
		OnPublish: func(int, time.Time) { published.Add(1) },
	})
	f.Start(context.Background())

	<-entered
	if !f.Status().Polling {
		t.Error("expected Polling while fetch is in flight")
	}
	f.Stop()
	close(release)

	select {
	case <-f.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after Stop")
	}
	st := f.Status()
	if st.HasValue || st.Connectivity != Unknown || published.Load() != 0 {
		t.Errorf("stopped feed was mutated: %+v, published=%d", st, published.Load())
	}
}

func TestFeedPollsNeverOverlap(t *testing.T) {
	var inFlight, maxInFlight, calls atomic.Int32
	f, _ := New(Config[int]{
		Name:   "ranking",
		Period: 2 * time.Millisecond,
		Fetch: func(ctx context.Context) (int, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			calls.Add(1)
			time.Sleep(10 * time.Millisecond)
			return 0, nil
		},
	})
	f.Start(context.Background())
	for i := 0; i < 5; i++ {
		f.Refresh()
	}
	waitFor(t, "several polls", func() bool { return calls.Load() >= 4 })
	f.Stop()
	<-f.Done()

	if maxInFlight.Load() != 1 {
		t.Errorf("polls overlapped: max in flight %d", maxInFlight.Load())
	}
}

type recordingObserver struct {
	mu    sync.Mutex
	polls int
	conn  []Connectivity
}

func (r *recordingObserver) ObservePoll(string, time.Duration, error) {
	r.mu.Lock()
	r.polls++
	r.mu.Unlock()
}

func (r *recordingObserver) ObserveConnectivity(_ string, c Connectivity) {
	r.mu.Lock()
	r.conn = append(r.conn, c)
	r.mu.Unlock()
}

func TestFeedReportsConnectivityTransitions(t *testing.T) {
	s := &scriptedFetch{results: []result{{v: 1}, {v: 2}, {err: errors.New("x")}}}
	obs := &recordingObserver{}
	f, _ := New(Config[int]{Name: "readings", Period: time.Hour, Fetch: s.fetch, Observer: obs})
	f.Start(context.Background())
	defer f.Stop()

	waitFor(t, "first poll", func() bool { return s.count() == 1 && f.Status().HasValue })
	f.Refresh()
	waitFor(t, "second poll", func() bool { return s.count() == 2 && !f.Status().Polling })
	f.Refresh()
	waitFor(t, "third poll", func() bool { return f.Status().Connectivity == Disconnected })

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.polls != 3 {
		t.Errorf("polls observed: got %d, want 3", obs.polls)
	}
	want := []Connectivity{Connected, Disconnected}
	if len(obs.conn) != len(want) {
		t.Fatalf("transitions: got %v, want %v", obs.conn, want)
	}
	for i := range want {
		if obs.conn[i] != want[i] {
			t.Errorf("transition %d: got %v, want %v", i, obs.conn[i], want[i])
		}
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Config[int]{Period: time.Second}); !errors.Is(err, ErrNoFetch) {
		t.Errorf("missing fetch: got %v", err)
	}
	fetch := func(context.Context) (int, error) { return 0, nil }
	if _, err := New(Config[int]{Fetch: fetch}); err == nil {
		t.Error("zero period: expected error")
	}
}
