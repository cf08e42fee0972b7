package advisor

import (
	"context"
	"time"

	"github.com/TobiSchelling/foryou/internal/feed"
)

// State is the advisor's position in its cycle.
type State string

const (
	StateIdle      State = "idle"
	StateEligible  State = "eligible"
	StateAnalyzing State = "analyzing"
	StateSuggested State = "suggested"
)

// Outcome is how a suggestion left the pending slot.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDismissed Outcome = "dismissed"
	OutcomeExpired   Outcome = "expired"
)

// CycleResult summarises one Tick.
type CycleResult string

const (
	// ResultSkipped means another analysis was already in flight.
	ResultSkipped CycleResult = "skipped"
	// ResultGated means there was not enough engagement history to analyse.
	ResultGated CycleResult = "gated"
	// ResultLowConfidence means analysis ran but nothing cleared the threshold.
	ResultLowConfidence CycleResult = "low_confidence"
	// ResultSuggested means a new suggestion is pending.
	ResultSuggested CycleResult = "suggested"
	// ResultFailed means the history could not be read or analysed.
	ResultFailed CycleResult = "failed"
)

// Suggestion is the single pending tuning proposal.
type Suggestion struct {
	ID          string     `json:"id"`
	Delta       feed.Delta `json:"delta"`
	Confidence  float64    `json:"confidence"`
	Rationale   string     `json:"rationale"`
	GeneratedAt time.Time  `json:"generatedAt"`
}

// Candidate is an analyser's proposal before the confidence gate.
type Candidate struct {
	Delta      feed.Delta
	Confidence float64
	Rationale  string
}

// Settings tune when the advisor runs and how much history it wants.
type Settings struct {
	// Interval between scheduled cycles.
	Interval time.Duration
	// InitialDelay before the first check after start.
	InitialDelay time.Duration
	// Window is how far back the history is read.
	Window time.Duration
	// MinSamples is the smallest history window worth analysing.
	MinSamples int
	// MinNewSamples is how many entries must be newer than the last analysis.
	MinNewSamples int
	// FullConfidenceSamples is the window size at which confidence is no
	// longer scaled down for sample size.
	FullConfidenceSamples int
	// MaxHistory bounds the number of entries read per cycle.
	MaxHistory int
}

// DefaultSettings returns the product defaults: hourly, one minute after
// start, a week of history.
func DefaultSettings() Settings {
	return Settings{
		Interval:              time.Hour,
		InitialDelay:          time.Minute,
		Window:                7 * 24 * time.Hour,
		MinSamples:            20,
		MinNewSamples:         5,
		FullConfidenceSamples: 40,
		MaxHistory:            500,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Interval <= 0 {
		s.Interval = d.Interval
	}
	if s.InitialDelay < 0 {
		s.InitialDelay = d.InitialDelay
	}
	if s.Window <= 0 {
		s.Window = d.Window
	}
	if s.MinSamples <= 0 {
		s.MinSamples = d.MinSamples
	}
	if s.MinNewSamples < 0 {
		s.MinNewSamples = d.MinNewSamples
	}
	if s.FullConfidenceSamples < s.MinSamples {
		s.FullConfidenceSamples = s.MinSamples
	}
	if s.MaxHistory <= 0 {
		s.MaxHistory = d.MaxHistory
	}
	return s
}

// HistorySource reads the viewer's recent engagement history.
type HistorySource interface {
	RecentEngagements(ctx context.Context, since time.Time, limit int) ([]feed.Engagement, error)
}

// ConfigSource returns the live configuration snapshot.
type ConfigSource interface {
	Config() feed.Config
}

// Recorder persists suggestions and their outcomes.
type Recorder interface {
	RecordSuggestion(ctx context.Context, s Suggestion) error
	ResolveSuggestion(ctx context.Context, id string, outcome Outcome, at time.Time) error
	DismissedFingerprints(ctx context.Context) ([]string, error)
	// PendingSuggestion returns the newest unresolved suggestion, or nil.
	PendingSuggestion(ctx context.Context) (*Suggestion, error)
}

// Analyzer turns history into at most one candidate change.
type Analyzer interface {
	Analyze(history []feed.Engagement, cfg feed.Config, dismissed map[string]bool) (*Candidate, error)
}
