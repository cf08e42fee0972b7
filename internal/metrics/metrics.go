// Package metrics registers the Prometheus instruments for ranking passes
// and the tuning advisor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RankPasses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "foryou_rank_passes_total",
			Help: "Total number of ranking passes",
		},
	)

	RankDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "foryou_rank_duration_seconds",
			Help:    "Duration of ranking passes in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	RankedPosts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "foryou_ranked_posts",
			Help:    "Number of posts in each ranked output",
			Buckets: prometheus.ExponentialBuckets(1, 4, 6),
		},
	)

	PostsExcluded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foryou_posts_excluded_total",
			Help: "Posts removed from the candidate set, by cause",
		},
		[]string{"cause"}, // "malformed", "blocked", "muted"
	)

	ConfigDrift = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "foryou_config_drift_total",
			Help: "Ranking passes that fell back to balanced because of an unknown mix",
		},
	)

	AdvisorCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foryou_advisor_cycles_total",
			Help: "Advisor cycles by result",
		},
		[]string{"result"}, // "skipped", "gated", "low_confidence", "suggested", "failed"
	)

	SuggestionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foryou_suggestion_outcomes_total",
			Help: "Resolved tuning suggestions by outcome",
		},
		[]string{"outcome"}, // "applied", "dismissed", "expired"
	)

	SuggestionConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "foryou_suggestion_confidence",
			Help:    "Confidence of analysed tuning candidates",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		},
	)

	CollectedPosts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foryou_collected_posts_total",
			Help: "Posts seen by collection runs, by source and result",
		},
		[]string{"source", "result"}, // "new", "duplicate", "invalid"
	)

	SourceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foryou_source_errors_total",
			Help: "Failed source fetches by source",
		},
		[]string{"source"},
	)

	BodyFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foryou_body_fetches_total",
			Help: "Post body fetch attempts by result",
		},
		[]string{"result"}, // "fetched", "empty", "failed", "skipped"
	)
)
