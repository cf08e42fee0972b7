// Package pipeline runs the refresh steps that keep the candidate set
// current: collect new posts, then optionally fill in missing bodies.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/TobiSchelling/foryou/internal/collect"
	"github.com/TobiSchelling/foryou/internal/fetch"
)

const fetchBatch = 50

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	Steps []StepResult

	// Collected is the collect step's result, nil if it failed.
	Collected *collect.Result
}

// Err returns the first step error, if any.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return fmt.Errorf("%s: %w", s.Name, s.Err)
		}
	}
	return nil
}

// Pipeline orchestrates the refresh steps.
type Pipeline struct {
	collector *collect.Collector
	fetcher   *fetch.BodyFetcher
	logger    zerolog.Logger
}

// New creates a pipeline. A nil fetcher skips the body step.
//
//nolint:gocritic // zerolog loggers are passed by value
func New(collector *collect.Collector, fetcher *fetch.BodyFetcher, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		collector: collector,
		fetcher:   fetcher,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes every step once.
func (p *Pipeline) Run(ctx context.Context) *Result {
	r := &Result{}

	step, collected := p.runCollect(ctx)
	r.Steps = append(r.Steps, step)
	r.Collected = collected
	if step.Err != nil {
		return r
	}

	if p.fetcher != nil {
		r.Steps = append(r.Steps, p.runFetch(ctx))
	}
	return r
}

func (p *Pipeline) runCollect(ctx context.Context) (StepResult, *collect.Result) {
	p.logger.Info().Msg("collecting posts")
	result, err := p.collector.Collect(ctx)
	if err != nil {
		return StepResult{Name: "Collect", Err: err}, nil
	}
	summary := fmt.Sprintf("Found %d new posts (%d total, %d duplicates)", result.NewPosts, result.TotalFound, result.Duplicates)
	if result.Invalid > 0 {
		summary += fmt.Sprintf(", %d malformed", result.Invalid)
	}
	if len(result.Failed) > 0 {
		summary += fmt.Sprintf(", %d sources failed", len(result.Failed))
	}
	return StepResult{Name: "Collect", Summary: summary}, result
}

func (p *Pipeline) runFetch(ctx context.Context) StepResult {
	p.logger.Info().Msg("fetching missing post bodies")
	result, err := p.fetcher.FetchMissing(ctx, fetchBatch)
	if err != nil {
		return StepResult{Name: "Fetch", Err: err}
	}
	return StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("Fetched %d bodies, %d failed", result.Fetched, result.Failed),
	}
}

// Service runs the pipeline on a fixed interval while supervised.
type Service struct {
	pipeline *Pipeline
	interval time.Duration
	running  atomic.Bool
	mu       sync.Mutex
	lastRun  time.Time
}

// Service wraps the pipeline for periodic runs.
func (p *Pipeline) Service(interval time.Duration) *Service {
	return &Service{pipeline: p, interval: interval}
}

// Serve runs the pipeline immediately and then every interval until ctx is
// done. A run that would overlap the previous one, including the first, is
// skipped.
func (s *Service) Serve(ctx context.Context) error {
	l := s.pipeline.logger
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("scheduling pipeline: %w", err)
	}
	c.Start()
	l.Info().Dur("interval", s.interval).Msg("refresh scheduled")

	s.runOnce(ctx)

	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

func (s *Service) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		s.pipeline.logger.Debug().Msg("refresh still running, skipping")
		return
	}
	defer s.running.Store(false)
	r := s.pipeline.Run(ctx)
	for _, step := range r.Steps {
		if step.Err != nil {
			s.pipeline.logger.Warn().Err(step.Err).Str("step", step.Name).Msg("refresh step failed")
			continue
		}
		s.pipeline.logger.Info().Str("step", step.Name).Msg(step.Summary)
	}
	s.mu.Lock()
	s.lastRun = time.Now()
	s.mu.Unlock()
}

// LastRun reports when the most recent refresh finished.
func (s *Service) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

func (s *Service) String() string {
	return "refresh-pipeline"
}
