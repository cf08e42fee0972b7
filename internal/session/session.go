// Package session owns the viewer's live feed configuration. All changes go
// through one mutex, so direct edits and accepted suggestions never
// interleave; readers always get a complete snapshot.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TobiSchelling/foryou/internal/advisor"
	"github.com/TobiSchelling/foryou/internal/database"
	"github.com/TobiSchelling/foryou/internal/feed"
	"github.com/TobiSchelling/foryou/internal/ranking"
)

// ErrPostNotFound is returned when an engagement names an unknown post.
var ErrPostNotFound = errors.New("post not found")

// Store is the persistence the session needs.
type Store interface {
	LoadViewerConfig(ctx context.Context) (*feed.Config, error)
	SaveViewerConfig(ctx context.Context, cfg feed.Config) error
	CandidatePosts(ctx context.Context, q database.CandidateQuery) ([]feed.Post, error)
	GetPost(ctx context.Context, id string, interactedSince time.Time) (*feed.Post, error)
	RecordEngagement(ctx context.Context, e feed.Engagement) error
}

// Options control the candidate set.
type Options struct {
	// CandidateWindow is how far back candidate posts are loaded.
	CandidateWindow time.Duration
	// CandidateLimit caps the candidate set.
	CandidateLimit int
	// InteractionWindow is how long a reply counts as a recent interaction.
	InteractionWindow time.Duration
}

// DefaultOptions returns two days of candidates and a week of interactions.
func DefaultOptions() Options {
	return Options{
		CandidateWindow:   48 * time.Hour,
		CandidateLimit:    500,
		InteractionWindow: 7 * 24 * time.Hour,
	}
}

// Session is the single writer of the viewer's configuration.
type Session struct {
	store   Store
	ranker  *ranking.Ranker
	advisor *advisor.Advisor
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time

	mu  sync.RWMutex
	cfg feed.Config
}

// New loads the saved configuration, falling back to initial when nothing
// has been saved yet. A saved document that cannot be decoded is logged and
// replaced by the defaults.
//
//nolint:gocritic // zerolog loggers are passed by value
func New(ctx context.Context, store Store, initial feed.Config, opts Options, logger zerolog.Logger) (*Session, error) {
	d := DefaultOptions()
	if opts.CandidateWindow <= 0 {
		opts.CandidateWindow = d.CandidateWindow
	}
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = d.CandidateLimit
	}
	if opts.InteractionWindow <= 0 {
		opts.InteractionWindow = d.InteractionWindow
	}

	s := &Session{
		store:  store,
		ranker: ranking.NewRanker(logger),
		opts:   opts,
		logger: logger.With().Str("component", "session").Logger(),
		now:    time.Now,
		cfg:    initial.Normalize(),
	}

	saved, err := store.LoadViewerConfig(ctx)
	switch {
	case err != nil && saved == nil:
		return nil, fmt.Errorf("loading feed configuration: %w", err)
	case err != nil:
		s.logger.Warn().Err(err).Msg("saved feed configuration is unreadable, using defaults")
		s.cfg = *saved
	case saved != nil:
		s.cfg = *saved
	}
	if s.cfg.Drifted() {
		s.logger.Warn().Str("mix", string(s.cfg.Mix)).Msg("saved mix is not recognised, ranking will use balanced")
	}
	return s, nil
}

// AttachAdvisor connects the advisor whose suggestions this session applies.
func (s *Session) AttachAdvisor(a *advisor.Advisor) {
	s.mu.Lock()
	s.advisor = a
	s.mu.Unlock()
}

// Advisor returns the attached advisor, if any.
func (s *Session) Advisor() *advisor.Advisor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.advisor
}

// Config returns a snapshot of the live configuration.
func (s *Session) Config() feed.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Apply(feed.Delta{})
}

// Update applies edit to a copy of the configuration, persists it and then
// swaps it in. If persisting fails the live configuration is unchanged.
func (s *Session) Update(ctx context.Context, edit func(*feed.Config)) (feed.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.Apply(feed.Delta{})
	edit(&next)
	next = next.Normalize()
	if err := s.store.SaveViewerConfig(ctx, next); err != nil {
		return s.cfg, fmt.Errorf("saving feed configuration: %w", err)
	}
	s.cfg = next
	s.logger.Info().Str("mix", string(next.Mix)).Msg("feed configuration updated")
	return next, nil
}

// Replace swaps in a whole configuration.
func (s *Session) Replace(ctx context.Context, cfg feed.Config) (feed.Config, error) {
	return s.Update(ctx, func(c *feed.Config) { *c = cfg })
}

// AcceptSuggestion applies the pending suggestion with the given ID. The
// merge and the save happen while the advisor's slot is held, so the
// suggestion is either fully applied and resolved or still pending.
func (s *Session) AcceptSuggestion(ctx context.Context, id string) (feed.Config, advisor.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.advisor == nil {
		return s.cfg, advisor.Suggestion{}, advisor.ErrNoSuggestion
	}
	var next feed.Config
	sg, err := s.advisor.Accept(ctx, id, func(sg advisor.Suggestion) error {
		next = s.cfg.Apply(sg.Delta)
		return s.store.SaveViewerConfig(ctx, next)
	})
	if err != nil {
		return s.cfg, advisor.Suggestion{}, err
	}
	s.cfg = next
	return next, sg, nil
}

// DismissSuggestion clears the pending suggestion. Dismissing twice, or
// dismissing something no longer pending, is a no-op.
func (s *Session) DismissSuggestion(ctx context.Context, id string) bool {
	a := s.Advisor()
	if a == nil {
		return false
	}
	return a.Dismiss(ctx, id)
}

// Rank loads the candidate set and ranks it under the live configuration.
func (s *Session) Rank(ctx context.Context) (*ranking.Result, error) {
	now := s.now()
	cfg := s.Config()
	posts, err := s.store.CandidatePosts(ctx, database.CandidateQuery{
		Since:           now.Add(-s.opts.CandidateWindow),
		InteractedSince: now.Add(-s.opts.InteractionWindow),
		Limit:           s.opts.CandidateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("loading candidates: %w", err)
	}
	return s.ranker.Rank(posts, cfg, now), nil
}

// Engage records that the viewer interacted with a post, capturing what the
// post looked like to them under the current mix.
func (s *Session) Engage(ctx context.Context, postID string, kind feed.EngagementKind) (feed.Engagement, error) {
	if !kind.Valid() {
		return feed.Engagement{}, fmt.Errorf("unknown engagement kind %q", kind)
	}
	now := s.now()
	p, err := s.store.GetPost(ctx, postID, now.Add(-s.opts.InteractionWindow))
	if err != nil {
		return feed.Engagement{}, fmt.Errorf("loading post %s: %w", postID, err)
	}
	if p == nil {
		return feed.Engagement{}, fmt.Errorf("%w: %s", ErrPostNotFound, postID)
	}

	e := feed.EngagementFromPost(*p, kind, s.Config().EffectiveMix(), now)
	e.ID = uuid.NewString()
	if err := s.store.RecordEngagement(ctx, e); err != nil {
		return feed.Engagement{}, fmt.Errorf("recording engagement: %w", err)
	}
	s.logger.Debug().Str("post", postID).Str("kind", string(kind)).Msg("engagement recorded")
	return e, nil
}
