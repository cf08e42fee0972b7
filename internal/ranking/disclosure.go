package ranking

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/foryou/internal/feed"
)

// Disclosure renders the complete weight table for cfg as Markdown, so the
// viewer can see every signal the feed uses and what it is worth right now.
func Disclosure(cfg feed.Config) string {
	mix := cfg.EffectiveMix()
	w := RelationshipWeights[mix]

	var b strings.Builder
	b.WriteString("## How your For You feed is ranked\n\n")
	b.WriteString("Every post gets a score from the rules below. Higher scores come first; ")
	b.WriteString("equal scores show the newest post first. Nothing else is used.\n\n")

	b.WriteString("| Signal | When it applies | Points |\n")
	b.WriteString("|---|---|---|\n")
	fmt.Fprintf(&b, "| Recency | always | %d minus the post's age in minutes |\n", RecencyBase)
	fmt.Fprintf(&b, "| Followed author | mix is **%s** | %+d |\n", mix, w.Followed)
	fmt.Fprintf(&b, "| Everyone else | mix is **%s** | %+d |\n", mix, w.Other)
	fmt.Fprintf(&b, "| You replied to the author recently | boost is **%s** | %s |\n",
		onOff(cfg.BoostRecentInteractions), boostPoints(cfg.BoostRecentInteractions, InteractionBoost))
	fmt.Fprintf(&b, "| Active discussion | boost is **%s** | %s |\n",
		onOff(cfg.BoostActiveDiscussions), boostPoints(cfg.BoostActiveDiscussions, DiscussionBoost))
	fmt.Fprintf(&b, "| Preferred topic | %s | %+d |\n", topicList(cfg.Normalize().PreferredTopics), TopicBoost)
	b.WriteString("| Replies | always | +1 per reply |\n")

	muted := topicList(cfg.Normalize().MutedTopics)
	if cfg.EffectiveMutePolicy() == feed.MuteRemove {
		fmt.Fprintf(&b, "| Muted topic | %s | hidden |\n", muted)
	} else {
		fmt.Fprintf(&b, "| Muted topic | %s | %+d |\n", muted, MutePenalty)
	}

	b.WriteString("\nPosts from blocked authors are never shown. ")
	b.WriteString("A topic that is both preferred and muted is treated as muted.\n")
	if cfg.Drifted() {
		fmt.Fprintf(&b, "\nYour saved mix %q is not recognised, so the feed uses **%s**.\n", cfg.Mix, feed.MixBalanced)
	}
	return b.String()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func boostPoints(on bool, points int) string {
	if on {
		return fmt.Sprintf("%+d", points)
	}
	return "0"
}

func topicList(topics []string) string {
	if len(topics) == 0 {
		return "none set"
	}
	tags := make([]string, len(topics))
	for i, t := range topics {
		tags[i] = "#" + t
	}
	return strings.Join(tags, ", ")
}
