// Package advisor watches the viewer's engagement history and occasionally
// proposes one change to their feed configuration. It never changes the
// configuration itself: a suggestion only takes effect when the viewer
// accepts it, and only one suggestion is pending at a time.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TobiSchelling/foryou/internal/metrics"
)

// ErrNoSuggestion is returned when an accept names a suggestion that is not
// the pending one.
var ErrNoSuggestion = errors.New("no such pending suggestion")

// Advisor runs analysis cycles and holds the single pending suggestion.
type Advisor struct {
	history  HistorySource
	config   ConfigSource
	analyzer Analyzer
	recorder Recorder
	settings Settings
	logger   zerolog.Logger
	now      func() time.Time

	running atomic.Bool

	mu           sync.Mutex
	state        State
	pending      *Suggestion
	dismissed    map[string]bool
	lastAnalyzed time.Time
}

// Option configures an Advisor.
type Option func(*Advisor)

// WithAnalyzer replaces the default PatternAnalyzer.
func WithAnalyzer(an Analyzer) Option {
	return func(a *Advisor) { a.analyzer = an }
}

// WithRecorder persists suggestions and outcomes.
func WithRecorder(r Recorder) Option {
	return func(a *Advisor) { a.recorder = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Advisor) { a.now = now }
}

// New creates an idle advisor.
//
//nolint:gocritic // zerolog loggers are passed by value
func New(history HistorySource, config ConfigSource, settings Settings, logger zerolog.Logger, opts ...Option) *Advisor {
	settings = settings.withDefaults()
	a := &Advisor{
		history:   history,
		config:    config,
		analyzer:  PatternAnalyzer{FullConfidenceSamples: settings.FullConfidenceSamples},
		settings:  settings,
		logger:    logger.With().Str("component", "advisor").Logger(),
		now:       time.Now,
		state:     StateIdle,
		dismissed: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Settings returns the effective settings.
func (a *Advisor) Settings() Settings {
	return a.settings
}

// Restore seeds the dismissed set and the pending slot from the recorder,
// so dismissals and an unanswered suggestion survive a restart.
func (a *Advisor) Restore(ctx context.Context) error {
	if a.recorder == nil {
		return nil
	}
	fps, err := a.recorder.DismissedFingerprints(ctx)
	if err != nil {
		return fmt.Errorf("loading dismissed suggestions: %w", err)
	}
	pending, err := a.recorder.PendingSuggestion(ctx)
	if err != nil {
		return fmt.Errorf("loading pending suggestion: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, fp := range fps {
		a.dismissed[fp] = true
	}
	if pending != nil && a.pending == nil && !a.dismissed[pending.Delta.Fingerprint()] {
		sg := *pending
		a.pending = &sg
		a.state = StateSuggested
		a.lastAnalyzed = sg.GeneratedAt
	}
	return nil
}

// State returns the current state.
func (a *Advisor) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Pending returns the pending suggestion, if any.
func (a *Advisor) Pending() (Suggestion, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == nil {
		return Suggestion{}, false
	}
	return *a.pending, true
}

// Tick runs one analysis cycle. Concurrent calls do not overlap: a Tick that
// finds another in flight returns ResultSkipped without doing anything.
func (a *Advisor) Tick(ctx context.Context) CycleResult {
	if !a.running.CompareAndSwap(false, true) {
		a.logger.Debug().Msg("analysis already running, skipping cycle")
		metrics.AdvisorCycles.WithLabelValues(string(ResultSkipped)).Inc()
		return ResultSkipped
	}
	defer a.running.Store(false)

	result := a.cycle(ctx)
	metrics.AdvisorCycles.WithLabelValues(string(result)).Inc()
	return result
}

func (a *Advisor) cycle(ctx context.Context) CycleResult {
	now := a.now()

	a.mu.Lock()
	lastAnalyzed := a.lastAnalyzed
	a.mu.Unlock()

	history, err := a.history.RecentEngagements(ctx, now.Add(-a.settings.Window), a.settings.MaxHistory)
	if err != nil {
		return a.fail(err, "reading engagement history")
	}
	if !ShouldSuggestTuning(history, lastAnalyzed, a.settings) {
		a.logger.Debug().Int("samples", len(history)).Msg("not enough engagement history to analyse")
		return ResultGated
	}

	a.setState(StateEligible)
	if err := ctx.Err(); err != nil {
		return a.fail(err, "cycle cancelled")
	}

	a.mu.Lock()
	a.state = StateAnalyzing
	dismissed := make(map[string]bool, len(a.dismissed))
	for fp := range a.dismissed {
		dismissed[fp] = true
	}
	a.mu.Unlock()

	candidate, err := a.analyzer.Analyze(history, a.config.Config(), dismissed)
	if err != nil {
		return a.fail(err, "analysing engagement history")
	}
	if err := ctx.Err(); err != nil {
		return a.fail(err, "cycle cancelled")
	}

	// A completed cycle replaces whatever was pending.
	a.mu.Lock()
	a.lastAnalyzed = now
	expired := a.pending
	a.pending = nil
	a.state = StateIdle
	var next *Suggestion
	if candidate != nil && Surfaces(candidate.Confidence) && !a.dismissed[candidate.Delta.Fingerprint()] {
		next = &Suggestion{
			ID:          uuid.NewString(),
			Delta:       candidate.Delta,
			Confidence:  candidate.Confidence,
			Rationale:   candidate.Rationale,
			GeneratedAt: now,
		}
		a.pending = next
		a.state = StateSuggested
	}
	a.mu.Unlock()

	if expired != nil {
		a.resolve(ctx, expired.ID, OutcomeExpired, now)
	}
	if candidate != nil {
		metrics.SuggestionConfidence.Observe(candidate.Confidence)
	}
	if next == nil {
		ev := a.logger.Info().Int("samples", len(history))
		if candidate != nil {
			ev = ev.Float64("confidence", candidate.Confidence)
		}
		ev.Msg("no suggestion cleared the confidence threshold")
		return ResultLowConfidence
	}

	if a.recorder != nil {
		if err := a.recorder.RecordSuggestion(ctx, *next); err != nil {
			a.logger.Error().Err(err).Str("suggestion", next.ID).Msg("failed to record suggestion")
		}
	}
	a.logger.Info().
		Str("suggestion", next.ID).
		Str("change", next.Delta.Describe()).
		Float64("confidence", next.Confidence).
		Int("samples", len(history)).
		Msg("new tuning suggestion")
	return ResultSuggested
}

// fail logs err and leaves the pending slot untouched. With nothing pending
// the advisor is back to idle and will retry next cycle.
func (a *Advisor) fail(err error, msg string) CycleResult {
	a.logger.Error().Err(err).Msg(msg)
	a.mu.Lock()
	if a.pending != nil {
		a.state = StateSuggested
	} else {
		a.state = StateIdle
	}
	a.mu.Unlock()
	return ResultFailed
}

func (a *Advisor) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Accept takes the pending suggestion with the given ID out of the slot.
// apply, when non-nil, runs while the slot is held; if it fails the
// suggestion stays pending and nothing is recorded. Only the first
// successful accept of a suggestion wins.
func (a *Advisor) Accept(ctx context.Context, id string, apply func(Suggestion) error) (Suggestion, error) {
	a.mu.Lock()
	if a.pending == nil || a.pending.ID != id {
		a.mu.Unlock()
		return Suggestion{}, ErrNoSuggestion
	}
	s := *a.pending
	if apply != nil {
		if err := apply(s); err != nil {
			a.mu.Unlock()
			return Suggestion{}, fmt.Errorf("applying suggestion %s: %w", s.ID, err)
		}
	}
	a.pending = nil
	a.state = StateIdle
	a.mu.Unlock()

	a.resolve(ctx, s.ID, OutcomeApplied, a.now())
	a.logger.Info().Str("suggestion", s.ID).Str("change", s.Delta.Describe()).Msg("suggestion applied")
	return s, nil
}

// Dismiss clears the pending suggestion with the given ID and remembers its
// change so the same suggestion is not offered again. Dismissing an unknown
// or already-resolved ID does nothing. It reports whether anything changed.
func (a *Advisor) Dismiss(ctx context.Context, id string) bool {
	a.mu.Lock()
	if a.pending == nil || a.pending.ID != id {
		a.mu.Unlock()
		return false
	}
	s := *a.pending
	a.pending = nil
	a.state = StateIdle
	a.dismissed[s.Delta.Fingerprint()] = true
	a.mu.Unlock()

	a.resolve(ctx, s.ID, OutcomeDismissed, a.now())
	a.logger.Info().Str("suggestion", s.ID).Msg("suggestion dismissed")
	return true
}

func (a *Advisor) resolve(ctx context.Context, id string, outcome Outcome, at time.Time) {
	metrics.SuggestionOutcomes.WithLabelValues(string(outcome)).Inc()
	if a.recorder == nil {
		return
	}
	// Outcomes are recorded even when the cycle's context is done.
	if err := a.recorder.ResolveSuggestion(context.WithoutCancel(ctx), id, outcome, at); err != nil {
		a.logger.Error().Err(err).Str("suggestion", id).Str("outcome", string(outcome)).Msg("failed to record suggestion outcome")
	}
}
