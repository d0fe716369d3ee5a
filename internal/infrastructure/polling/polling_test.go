package polling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves scripted batches and records every offset it was asked
// for.
type fakeFetcher struct {
	mu      sync.Mutex
	batches [][]Update
	errs    []error
	offsets []int64
	times   []time.Time
	calls   int
	closed  int
}

func (f *fakeFetcher) Fetch(ctx context.Context, offset int64, limit int, timeout time.Duration) ([]Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.offsets = append(f.offsets, offset)
	f.times = append(f.times, time.Now())
	i := f.calls
	f.calls++

	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.batches) {
		return f.batches[i], nil
	}
	return nil, nil
}

func (f *fakeFetcher) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) seenOffsets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.offsets...)
}

func (f *fakeFetcher) firstFetchTime() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.times) == 0 {
		return time.Time{}
	}
	return f.times[0]
}

// runUntil runs the supervisor and cancels once cond reports true.
func runUntil(t *testing.T, sup *Supervisor, cond func() bool) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			cancel()
			t.Fatal("condition not reached in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop")
	}
}

func TestSupervisor_AdvancesCursorToBatchMax(t *testing.T) {
	fetcher := &fakeFetcher{
		batches: [][]Update{
			{{ID: 3}, {ID: 5}, {ID: 9}},
		},
	}

	var handled []int64
	var mu sync.Mutex
	src := &Source{
		Name:    "test",
		Fetcher: fetcher,
		Handler: func(ctx context.Context, u Update) error {
			mu.Lock()
			handled = append(handled, u.ID)
			mu.Unlock()
			return nil
		},
		Interval: time.Millisecond,
		Limit:    100,
	}

	sup := NewSupervisor(DefaultSupervisorConfig(), src)
	runUntil(t, sup, func() bool { return fetcher.callCount() >= 2 })

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{3, 5, 9}, handled)
	assert.Equal(t, int64(9), src.Cursor())
}

func TestSupervisor_FetchFailureKeepsOffset(t *testing.T) {
	fetcher := &fakeFetcher{
		errs: []error{errors.New("connection reset"), nil},
		batches: [][]Update{
			nil,
			{{ID: 1}},
		},
	}

	src := &Source{
		Name:     "test",
		Fetcher:  fetcher,
		Handler:  func(ctx context.Context, u Update) error { return nil },
		Interval: time.Millisecond,
		Limit:    100,
	}

	sup := NewSupervisor(DefaultSupervisorConfig(), src)
	runUntil(t, sup, func() bool { return fetcher.callCount() >= 3 })

	offsets := fetcher.seenOffsets()
	require.GreaterOrEqual(t, len(offsets), 3)
	// The failed fetch and its retry ask for the same offset.
	assert.Equal(t, int64(1), offsets[0])
	assert.Equal(t, int64(1), offsets[1])
	// Only after a successful dispatch does the offset move.
	assert.Equal(t, int64(2), offsets[2])
}

func TestSupervisor_RedeliveredUpdateIsDispatchedAgain(t *testing.T) {
	// The feed may re-serve an id the loop already processed; delivery is
	// at-least-once, so the handler sees it again rather than having it
	// filtered against the cursor.
	fetcher := &fakeFetcher{
		batches: [][]Update{
			{{ID: 7}},
			{{ID: 7}},
		},
	}

	var handled []int64
	var mu sync.Mutex
	src := &Source{
		Name:    "test",
		Fetcher: fetcher,
		Handler: func(ctx context.Context, u Update) error {
			mu.Lock()
			handled = append(handled, u.ID)
			mu.Unlock()
			return nil
		},
		Interval: time.Millisecond,
		Limit:    100,
	}

	sup := NewSupervisor(DefaultSupervisorConfig(), src)
	runUntil(t, sup, func() bool { return fetcher.callCount() >= 3 })

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{7, 7}, handled)
	assert.Equal(t, int64(7), src.Cursor())
}

func TestSupervisor_MalformedUpdateDoesNotStopBatch(t *testing.T) {
	fetcher := &fakeFetcher{
		batches: [][]Update{
			{{ID: 1}, {ID: 2}, {ID: 3}},
		},
	}

	var handled []int64
	var mu sync.Mutex
	src := &Source{
		Name:    "test",
		Fetcher: fetcher,
		Handler: func(ctx context.Context, u Update) error {
			mu.Lock()
			handled = append(handled, u.ID)
			mu.Unlock()
			if u.ID == 2 {
				return errors.New("malformed payload")
			}
			return nil
		},
		Interval: time.Millisecond,
		Limit:    100,
	}

	sup := NewSupervisor(DefaultSupervisorConfig(), src)
	runUntil(t, sup, func() bool { return fetcher.callCount() >= 2 })

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1, 2, 3}, handled)
	assert.Equal(t, int64(3), src.Cursor())
}

func TestSupervisor_ClosesFetchersAfterLoopsExit(t *testing.T) {
	first := &fakeFetcher{}
	second := &fakeFetcher{}

	mk := func(f *fakeFetcher, name string) *Source {
		return &Source{
			Name:     name,
			Fetcher:  f,
			Handler:  func(ctx context.Context, u Update) error { return nil },
			Interval: time.Millisecond,
			Limit:    100,
		}
	}

	sup := NewSupervisor(DefaultSupervisorConfig(), mk(first, "a"), mk(second, "b"))
	runUntil(t, sup, func() bool { return first.callCount() >= 1 && second.callCount() >= 1 })

	assert.Equal(t, 1, first.closed)
	assert.Equal(t, 1, second.closed)
}

func TestSupervisor_StaggerDelaysFirstFetch(t *testing.T) {
	fetcher := &fakeFetcher{}
	src := &Source{
		Name:     "test",
		Fetcher:  fetcher,
		Handler:  func(ctx context.Context, u Update) error { return nil },
		Interval: time.Millisecond,
		Stagger:  100 * time.Millisecond,
		Limit:    100,
	}

	sup := NewSupervisor(DefaultSupervisorConfig(), src)

	start := time.Now()
	runUntil(t, sup, func() bool { return fetcher.callCount() >= 1 })

	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestSupervisor_StaggeredSourcesFetchApart(t *testing.T) {
	first := &fakeFetcher{}
	second := &fakeFetcher{}

	mk := func(f *fakeFetcher, name string, stagger time.Duration) *Source {
		return &Source{
			Name:     name,
			Fetcher:  f,
			Handler:  func(ctx context.Context, u Update) error { return nil },
			Interval: time.Hour,
			Stagger:  stagger,
			Limit:    100,
		}
	}

	sup := NewSupervisor(DefaultSupervisorConfig(),
		mk(first, "a", 50*time.Millisecond),
		mk(second, "b", 250*time.Millisecond),
	)
	runUntil(t, sup, func() bool {
		return first.callCount() >= 1 && second.callCount() >= 1
	})

	gap := second.firstFetchTime().Sub(first.firstFetchTime())
	assert.GreaterOrEqual(t, gap, 100*time.Millisecond,
		"staggered sources should not reach the feed together")
}

func TestSupervisor_ShutdownIsPromptDuringStagger(t *testing.T) {
	fetcher := &fakeFetcher{}
	src := &Source{
		Name:     "test",
		Fetcher:  fetcher,
		Handler:  func(ctx context.Context, u Update) error { return nil },
		Interval: time.Millisecond,
		Stagger:  time.Hour,
		Limit:    100,
	}

	sup := NewSupervisor(DefaultSupervisorConfig(), src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop promptly during stagger")
	}
	assert.Equal(t, 0, fetcher.callCount())
}

func TestSleep_InterruptedByCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	elapsed := sleep(ctx, time.Hour)
	assert.False(t, elapsed)
	assert.Less(t, time.Since(start), time.Second)
}
