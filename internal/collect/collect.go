// Package collect pulls candidate posts from configured sources into the
// database.
package collect

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/foryou/internal/config"
	"github.com/TobiSchelling/foryou/internal/database"
	"github.com/TobiSchelling/foryou/internal/feed"
	"github.com/TobiSchelling/foryou/internal/metrics"
	"github.com/TobiSchelling/foryou/internal/signals"
)

const userAgent = "foryou/1.0 (feed collector)"

// Item is one collected post and where it came from.
type Item struct {
	Post feed.Post
	Meta database.PostMeta
}

// Source is anything that yields candidate posts.
type Source interface {
	Name() string
	Fetch(ctx context.Context, since time.Time, limit int) ([]Item, error)
}

// Store is the subset of the database the collector writes to.
type Store interface {
	InsertPost(ctx context.Context, p feed.Post, meta database.PostMeta) (bool, error)
	UpdateDiscussion(ctx context.Context, postID string, replyCount int, active bool) error
}

// Result holds the results of a collection run.
type Result struct {
	TotalFound int
	NewPosts   int
	Duplicates int
	// Invalid counts posts rejected as malformed or refused by the store.
	Invalid    int
	Failed     []string
	Sources    map[string]int
}

// Collector orchestrates post collection from all configured sources.
type Collector struct {
	store        Store
	sources      []Source
	window       time.Duration
	maxPerSource int
	logger       zerolog.Logger
}

// NewCollector creates a collector for every source in cfg.
//
//nolint:gocritic // zerolog loggers are passed by value
func NewCollector(cfg *config.Config, store Store, logger zerolog.Logger) *Collector {
	client := &http.Client{Timeout: cfg.Collect.Timeout}
	replies := cfg.Collect.ActiveDiscussionReplies

	var sources []Source
	for _, f := range cfg.Sources.Feeds {
		sources = append(sources, NewFeedSource(FeedConfig{URL: f.URL, Name: f.Name, Topic: f.Topic}, client, replies))
	}
	for _, j := range cfg.Sources.JSON {
		sources = append(sources, NewJSONSource(JSONConfig{URL: j.URL, Name: j.Name, APIKeyEnv: j.APIKeyEnv}, client, replies))
	}
	return New(store, sources, cfg.Ranking.CandidateWindow, cfg.Collect.MaxPerSource, logger)
}

// New creates a collector over explicit sources.
//
//nolint:gocritic // zerolog loggers are passed by value
func New(store Store, sources []Source, window time.Duration, maxPerSource int, logger zerolog.Logger) *Collector {
	return &Collector{
		store:        store,
		sources:      sources,
		window:       window,
		maxPerSource: maxPerSource,
		logger:       logger.With().Str("component", "collect").Logger(),
	}
}

// Collect fetches every source once. A failing source is logged and
// skipped; the run only fails when the context is cancelled.
func (c *Collector) Collect(ctx context.Context) (*Result, error) {
	r := &Result{Sources: make(map[string]int)}
	var since time.Time
	if c.window > 0 {
		since = time.Now().Add(-c.window)
	}

	for _, src := range c.sources {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		name := src.Name()
		items, err := src.Fetch(ctx, since, c.maxPerSource)
		if err != nil {
			c.logger.Warn().Err(err).Str("source", name).Msg("source failed")
			metrics.SourceErrors.WithLabelValues(name).Inc()
			r.Failed = append(r.Failed, name)
			continue
		}
		r.TotalFound += len(items)

		for _, it := range items {
			if err := signals.Validate(it.Post); err != nil {
				c.logger.Warn().Err(err).Str("source", name).Msg("rejecting malformed post")
				metrics.CollectedPosts.WithLabelValues(name, "invalid").Inc()
				r.Invalid++
				continue
			}
			inserted, err := c.store.InsertPost(ctx, it.Post, it.Meta)
			if err != nil {
				c.logger.Debug().Err(err).Str("post", it.Post.ID).Msg("skipping post")
				metrics.CollectedPosts.WithLabelValues(name, "invalid").Inc()
				r.Invalid++
				continue
			}
			if inserted {
				r.NewPosts++
				r.Sources[name]++
				metrics.CollectedPosts.WithLabelValues(name, "new").Inc()
				continue
			}
			r.Duplicates++
			metrics.CollectedPosts.WithLabelValues(name, "duplicate").Inc()
			if err := c.store.UpdateDiscussion(ctx, it.Post.ID, it.Post.ReplyCount, it.Post.HasActiveDiscussion); err != nil {
				c.logger.Warn().Err(err).Str("post", it.Post.ID).Msg("refreshing discussion failed")
			}
		}
		c.logger.Info().Str("source", name).Int("items", len(items)).Msg("parsed source")
	}

	c.logger.Info().
		Int("found", r.TotalFound).
		Int("new", r.NewPosts).
		Int("duplicates", r.Duplicates).
		Int("invalid", r.Invalid).
		Msg("collection complete")
	return r, nil
}
