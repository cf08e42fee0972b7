package advisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Ticker runs one advisor cycle.
type Ticker interface {
	Tick(ctx context.Context) CycleResult
}

// Scheduler runs a Ticker on a fixed interval, with one extra check shortly
// after start.
type Scheduler struct {
	ticker       Ticker
	interval     time.Duration
	initialDelay time.Duration
	logger       zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	timer   *time.Timer
	cancel  context.CancelFunc
	started bool
	// initial tracks the delayed first check, which runs outside cron.
	initial sync.WaitGroup
}

// NewScheduler creates a stopped scheduler.
//
//nolint:gocritic // zerolog loggers are passed by value
func NewScheduler(t Ticker, interval, initialDelay time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	l := logger.With().Str("component", "advisor-scheduler").Logger()
	return &Scheduler{
		ticker:       t,
		interval:     interval,
		initialDelay: initialDelay,
		logger:       l,
		cron:         cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{l}))),
	}
}

// Start schedules the recurring cycle and the initial check. Cycles run
// with a context derived from ctx that is cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	id, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() { s.run(runCtx) })
	if err != nil {
		cancel()
		return fmt.Errorf("scheduling advisor: %w", err)
	}
	s.entryID = id
	s.cancel = cancel
	s.cron.Start()
	if s.initialDelay >= 0 {
		s.timer = time.AfterFunc(s.initialDelay, func() { s.runInitial(runCtx) })
	}
	s.started = true
	s.logger.Info().Dur("interval", s.interval).Dur("initial_delay", s.initialDelay).Msg("advisor scheduled")
	return nil
}

// Stop cancels any running cycle and waits for it to return, whether it was
// started by cron or by the initial check.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.cancel()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.cron.Remove(s.entryID)
	done := s.cron.Stop()
	s.mu.Unlock()

	<-done.Done()
	s.initial.Wait()
	s.logger.Info().Msg("advisor stopped")
}

// Serve runs the scheduler until ctx is done.
func (s *Scheduler) Serve(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

// String names the service in supervisor logs.
func (s *Scheduler) String() string {
	return "advisor-scheduler"
}

// runInitial registers with Stop under the lock, so a check either starts
// before Stop cancels the context or not at all.
func (s *Scheduler) runInitial(ctx context.Context) {
	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.initial.Add(1)
	s.mu.Unlock()
	defer s.initial.Done()
	s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	result := s.ticker.Tick(ctx)
	s.logger.Debug().Str("result", string(result)).Msg("advisor cycle finished")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
