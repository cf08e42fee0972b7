package advisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type countingTicker struct {
	calls atomic.Int32
	ran   chan struct{}
}

func newCountingTicker() *countingTicker {
	return &countingTicker{ran: make(chan struct{}, 8)}
}

func (c *countingTicker) Tick(ctx context.Context) CycleResult {
	c.calls.Add(1)
	c.ran <- struct{}{}
	return ResultGated
}

func waitRun(t *testing.T, c *countingTicker) {
	t.Helper()
	select {
	case <-c.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a cycle to run")
	}
}

func TestSchedulerRunsInitialCheck(t *testing.T) {
	tk := newCountingTicker()
	s := NewScheduler(tk, time.Hour, 10*time.Millisecond, zerolog.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	waitRun(t, tk)
	if entries := s.cron.Entries(); len(entries) != 1 {
		t.Errorf("expected 1 cron entry, got %d", len(entries))
	}
}

func TestSchedulerStartIsIdempotent(t *testing.T) {
	s := NewScheduler(newCountingTicker(), time.Hour, time.Hour, zerolog.Nop())
	defer s.Stop()

	for range 3 {
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
	}
	if entries := s.cron.Entries(); len(entries) != 1 {
		t.Errorf("expected 1 cron entry, got %d", len(entries))
	}
}

func TestSchedulerStopCancelsPendingCheck(t *testing.T) {
	tk := newCountingTicker()
	s := NewScheduler(tk, time.Hour, 50*time.Millisecond, zerolog.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Stop()
	s.Stop()

	time.Sleep(100 * time.Millisecond)
	if n := tk.calls.Load(); n != 0 {
		t.Errorf("expected no cycles after stop, got %d", n)
	}
}

// blockingTicker holds each cycle until its context is cancelled.
type blockingTicker struct {
	started  chan struct{}
	finished atomic.Bool
}

func (b *blockingTicker) Tick(ctx context.Context) CycleResult {
	b.started <- struct{}{}
	<-ctx.Done()
	time.Sleep(20 * time.Millisecond)
	b.finished.Store(true)
	return ResultFailed
}

func TestSchedulerStopWaitsForInitialCheck(t *testing.T) {
	tk := &blockingTicker{started: make(chan struct{}, 1)}
	s := NewScheduler(tk, time.Hour, 0, zerolog.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-tk.started:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the initial check to start")
	}
	s.Stop()
	if !tk.finished.Load() {
		t.Error("expected Stop to wait for the in-flight initial check")
	}
}

func TestSchedulerServeReturnsOnCancel(t *testing.T) {
	tk := newCountingTicker()
	s := NewScheduler(tk, time.Hour, 0, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	waitRun(t, tk)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestSchedulerDrivesAdvisor(t *testing.T) {
	h := &staticHistory{entries: engagements(30, testNow, nil)}
	a := newTestAdvisor(h, WithAnalyzer(&stubAnalyzer{candidate: discussionCandidate(0.8)}))
	s := NewScheduler(a, time.Hour, 0, zerolog.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := a.Pending(); ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("expected the initial check to produce a suggestion")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}
