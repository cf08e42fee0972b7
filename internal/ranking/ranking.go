// Package ranking orders candidate posts for the For You view. Ranking is
// synchronous and pure over already-fetched data: extract signals, drop
// blocked (and, under the remove policy, muted) posts, score what is left
// and sort it. Every ranked item carries its score breakdown and reason.
package ranking

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/foryou/internal/feed"
	"github.com/TobiSchelling/foryou/internal/filter"
	"github.com/TobiSchelling/foryou/internal/metrics"
	"github.com/TobiSchelling/foryou/internal/reason"
	"github.com/TobiSchelling/foryou/internal/signals"
)

// Cause says why a candidate was left out of the ranking.
type Cause string

const (
	CauseMalformed Cause = "malformed"
	CauseBlocked   Cause = "blocked"
	CauseMuted     Cause = "muted"
)

// Item is one ranked post.
type Item struct {
	Post      feed.Post
	Features  signals.Features
	Breakdown Breakdown
	Score     int
	Reason    string
}

// Exclusion records a candidate that was removed before scoring.
type Exclusion struct {
	PostID string
	Cause  Cause
	Detail string
}

// Result holds the output of a ranking pass.
type Result struct {
	Items    []Item
	Excluded []Exclusion
	Warnings []string
	Config   feed.Config
	RankedAt time.Time
}

// IDs returns the ranked post identifiers in order.
func (r *Result) IDs() []string {
	ids := make([]string, len(r.Items))
	for i, it := range r.Items {
		ids[i] = it.Post.ID
	}
	return ids
}

// Find returns the ranked item for a post ID.
func (r *Result) Find(postID string) (Item, bool) {
	for _, it := range r.Items {
		if it.Post.ID == postID {
			return it, true
		}
	}
	return Item{}, false
}

// ExcludedCount returns how many candidates were removed for cause.
func (r *Result) ExcludedCount(cause Cause) int {
	n := 0
	for _, e := range r.Excluded {
		if e.Cause == cause {
			n++
		}
	}
	return n
}

// Ranker ranks candidate sets. It holds no state between passes.
type Ranker struct {
	logger zerolog.Logger
}

// NewRanker creates a ranker that reports warnings to logger.
//
//nolint:gocritic // zerolog loggers are passed by value
func NewRanker(logger zerolog.Logger) *Ranker {
	return &Ranker{logger: logger.With().Str("component", "ranking").Logger()}
}

// Rank orders posts under cfg as of now. It never fails: malformed, blocked
// and (under the remove policy) muted posts are reported in Excluded, and
// configuration drift is reported in Warnings.
func (r *Ranker) Rank(posts []feed.Post, cfg feed.Config, now time.Time) *Result {
	start := time.Now()
	res := &Result{Config: cfg, RankedAt: now}

	if cfg.Drifted() {
		msg := fmt.Sprintf("unknown mix %q, ranking as %s", cfg.Mix, feed.MixBalanced)
		res.Warnings = append(res.Warnings, msg)
		metrics.ConfigDrift.Inc()
		r.logger.Warn().Str("mix", string(cfg.Mix)).Msg("configuration drift, falling back to balanced")
	}

	res.Items = make([]Item, 0, len(posts))
	for _, p := range posts {
		f, err := signals.Extract(p, cfg, now)
		if err != nil {
			res.Excluded = append(res.Excluded, Exclusion{PostID: p.ID, Cause: CauseMalformed, Detail: err.Error()})
			continue
		}

		switch filter.Decide(f, cfg) {
		case filter.ExcludeBlocked:
			res.Excluded = append(res.Excluded, Exclusion{PostID: p.ID, Cause: CauseBlocked, Detail: "author is blocked"})
			continue
		case filter.ExcludeMuted:
			res.Excluded = append(res.Excluded, Exclusion{PostID: p.ID, Cause: CauseMuted, Detail: "topic #" + f.Topic + " is muted"})
			continue
		}

		b := Score(f, cfg)
		res.Items = append(res.Items, Item{
			Post:      p,
			Features:  f,
			Breakdown: b,
			Score:     b.Total(),
			Reason:    reason.Generate(f, cfg),
		})
	}

	slices.SortStableFunc(res.Items, compareItems)

	if n := res.ExcludedCount(CauseMalformed); n > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("excluded %d malformed post(s)", n))
		r.logger.Warn().Int("count", n).Msg("malformed posts excluded from ranking")
	}
	for _, e := range res.Excluded {
		metrics.PostsExcluded.WithLabelValues(string(e.Cause)).Inc()
		r.logger.Debug().Str("post", e.PostID).Str("cause", string(e.Cause)).Msg(e.Detail)
	}

	metrics.RankPasses.Inc()
	metrics.RankedPosts.Observe(float64(len(res.Items)))
	metrics.RankDuration.Observe(time.Since(start).Seconds())
	return res
}

// compareItems orders by score, then newest first, then by ID so equal
// timestamps still sort the same way every time.
func compareItems(a, b Item) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := b.Post.CreatedAt.Compare(a.Post.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.Post.ID, b.Post.ID)
}
