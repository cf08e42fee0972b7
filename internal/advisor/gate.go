package advisor

import (
	"time"

	"github.com/TobiSchelling/foryou/internal/feed"
)

// ConfidenceThreshold is the disclosed minimum confidence for a suggestion
// to be shown. The boundary is inclusive.
const ConfidenceThreshold = 0.5

// Surfaces reports whether a candidate with this confidence may be shown.
func Surfaces(confidence float64) bool {
	return confidence >= ConfidenceThreshold
}

// ShouldSuggestTuning is the sample-size gate. A window smaller than
// MinSamples never passes, whatever else is true; otherwise at least
// MinNewSamples entries must have arrived since the last analysis.
func ShouldSuggestTuning(history []feed.Engagement, lastAnalyzed time.Time, s Settings) bool {
	s = s.withDefaults()
	if len(history) < s.MinSamples {
		return false
	}
	fresh := 0
	for _, e := range history {
		if e.OccurredAt.After(lastAnalyzed) {
			fresh++
		}
	}
	return fresh >= s.MinNewSamples
}
