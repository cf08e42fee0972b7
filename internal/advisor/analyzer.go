package advisor

import (
	"fmt"
	"math"
	"sort"

	"github.com/TobiSchelling/foryou/internal/feed"
)

// Heuristic thresholds used by PatternAnalyzer.
const (
	// MixShare is the share of engagement with one side of the follow
	// graph needed before the advisor proposes leaning the mix that way.
	MixShare = 0.65
	// TopicShare is the share of engagement one topic needs before it is
	// proposed as a preferred topic.
	TopicShare = 0.25
	// BoostShare is the share of engagement needed before a boost is
	// proposed. At FullBoostShare the candidate is fully confident.
	BoostShare     = 0.4
	FullBoostShare = 0.8
)

// PatternAnalyzer proposes changes from simple engagement shares: who the
// viewer engages with, what topics, and whether the posts involved had
// active discussions or recent replies. Confidence is scaled down for
// small windows.
type PatternAnalyzer struct {
	// FullConfidenceSamples is the window size at which confidence stops
	// being scaled down. Zero means no scaling.
	FullConfidenceSamples int
}

// Analyze returns the strongest candidate not in dismissed, or nil when the
// history shows nothing worth changing. Malformed history is an error.
func (pa PatternAnalyzer) Analyze(history []feed.Engagement, cfg feed.Config, dismissed map[string]bool) (*Candidate, error) {
	for i, e := range history {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("history entry %d: %w", i, err)
		}
	}
	if len(history) == 0 {
		return nil, nil
	}
	cfg = cfg.Normalize()

	var candidates []Candidate
	if c, ok := mixCandidate(history, cfg); ok {
		candidates = append(candidates, c)
	}
	if c, ok := topicCandidate(history, cfg); ok {
		candidates = append(candidates, c)
	}
	if !cfg.BoostActiveDiscussions {
		share := shareOf(history, func(e feed.Engagement) bool { return e.ActiveDiscussion })
		if share >= BoostShare {
			candidates = append(candidates, Candidate{
				Delta:      feed.Delta{BoostActiveDiscussions: feed.BoolPtr(true)},
				Confidence: math.Min(1, share/FullBoostShare),
				Rationale:  fmt.Sprintf("%s of your recent engagement was in active discussions", percent(share)),
			})
		}
	}
	if !cfg.BoostRecentInteractions {
		share := shareOf(history, func(e feed.Engagement) bool { return e.RecentInteraction })
		if share >= BoostShare {
			candidates = append(candidates, Candidate{
				Delta:      feed.Delta{BoostRecentInteractions: feed.BoolPtr(true)},
				Confidence: math.Min(1, share/FullBoostShare),
				Rationale:  fmt.Sprintf("%s of your recent engagement was with people you had replied to", percent(share)),
			})
		}
	}

	factor := 1.0
	if pa.FullConfidenceSamples > 0 {
		factor = math.Min(1, float64(len(history))/float64(pa.FullConfidenceSamples))
	}

	var best *Candidate
	for i := range candidates {
		c := candidates[i]
		if dismissed[c.Delta.Fingerprint()] {
			continue
		}
		c.Confidence = clamp01(c.Confidence * factor)
		// Strictly greater keeps the earlier candidate on ties.
		if best == nil || c.Confidence > best.Confidence {
			best = &c
		}
	}
	return best, nil
}

func mixCandidate(history []feed.Engagement, cfg feed.Config) (Candidate, bool) {
	followed := shareOf(history, func(e feed.Engagement) bool { return e.AuthorFollowed })
	others := 1 - followed

	var target feed.Mix
	var confidence float64
	var rationale string
	switch {
	case followed >= MixShare:
		target, confidence = feed.MixFavorFollowing, followed
		rationale = fmt.Sprintf("%s of your recent engagement was with people you follow", percent(followed))
	case others >= MixShare:
		target, confidence = feed.MixFavorEveryone, others
		rationale = fmt.Sprintf("%s of your recent engagement was with people you don't follow", percent(others))
	default:
		target, confidence = feed.MixBalanced, 1-math.Abs(followed-others)
		rationale = fmt.Sprintf("your recent engagement was split %s / %s between people you follow and everyone else",
			percent(followed), percent(others))
	}
	if target == cfg.EffectiveMix() {
		return Candidate{}, false
	}
	return Candidate{Delta: feed.Delta{Mix: feed.MixPtr(target)}, Confidence: confidence, Rationale: rationale}, true
}

func topicCandidate(history []feed.Engagement, cfg feed.Config) (Candidate, bool) {
	counts := make(map[string]int)
	for _, e := range history {
		t := feed.NormalizeTopic(e.Topic)
		if t == "" || cfg.Prefers(t) || cfg.Mutes(t) {
			continue
		}
		counts[t]++
	}
	if len(counts) == 0 {
		return Candidate{}, false
	}

	topics := make([]string, 0, len(counts))
	for t := range counts {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool {
		if counts[topics[i]] != counts[topics[j]] {
			return counts[topics[i]] > counts[topics[j]]
		}
		return topics[i] < topics[j]
	})

	top := topics[0]
	share := float64(counts[top]) / float64(len(history))
	if share < TopicShare {
		return Candidate{}, false
	}
	return Candidate{
		Delta:      feed.Delta{AddPreferredTopics: []string{top}},
		Confidence: math.Min(1, 2*share),
		Rationale:  fmt.Sprintf("%s of your recent engagement was about #%s", percent(share), top),
	}, true
}

func shareOf(history []feed.Engagement, pred func(feed.Engagement) bool) float64 {
	if len(history) == 0 {
		return 0
	}
	n := 0
	for _, e := range history {
		if pred(e) {
			n++
		}
	}
	return float64(n) / float64(len(history))
}

func percent(share float64) string {
	return fmt.Sprintf("%.0f%%", share*100)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
