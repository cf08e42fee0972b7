// Package reason produces the "Because: ..." explanation attached to each
// ranked post. The rules mirror the ranking engine's terms one for one: a
// phrase is only emitted for a term that added points to the post.
package reason

import (
	"strings"

	"github.com/TobiSchelling/foryou/internal/feed"
	"github.com/TobiSchelling/foryou/internal/signals"
)

const (
	prefix     = "Because: "
	separator  = " + "
	maxReasons = 2

	// Fallback is used when no boost or relationship term applies, including
	// when the recency term itself has decayed to zero or below.
	Fallback = "recency"
)

// Phrases returns the matching reason phrases in priority order, capped at
// two.
func Phrases(f signals.Features, cfg feed.Config) []string {
	mix := cfg.EffectiveMix()
	candidates := []struct {
		ok     bool
		phrase string
	}{
		{f.IsPreferred, "topic #" + f.Topic},
		{cfg.BoostRecentInteractions && f.HasRecentInteraction, "you replied to " + f.AuthorHandle},
		{cfg.BoostActiveDiscussions && f.HasActiveDiscussion, "active conversation"},
		{mix != feed.MixFavorEveryone && f.IsFollowedAuthor, "following " + f.AuthorHandle},
		{mix == feed.MixFavorEveryone && !f.IsFollowedAuthor, "from everyone"},
	}

	var out []string
	for _, c := range candidates {
		if !c.ok {
			continue
		}
		out = append(out, c.phrase)
		if len(out) == maxReasons {
			break
		}
	}
	return out
}

// Generate returns the formatted reason string for a ranked post.
func Generate(f signals.Features, cfg feed.Config) string {
	phrases := Phrases(f, cfg)
	if len(phrases) == 0 {
		phrases = []string{Fallback}
	}
	return prefix + strings.Join(phrases, separator)
}

// Parse splits a formatted reason back into its phrases.
func Parse(s string) []string {
	body, ok := strings.CutPrefix(s, prefix)
	if !ok || body == "" {
		return nil
	}
	return strings.Split(body, separator)
}
