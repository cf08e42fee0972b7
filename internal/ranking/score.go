package ranking

import (
	"github.com/TobiSchelling/foryou/internal/feed"
	"github.com/TobiSchelling/foryou/internal/signals"
)

// Fixed, disclosed weights.
const (
	RecencyBase      = 100
	InteractionBoost = 30
	DiscussionBoost  = 25
	TopicBoost       = 35
	MutePenalty      = -120
)

// RelationshipWeights gives the relationship term for each mix: the points
// for a followed author and for anyone else.
var RelationshipWeights = map[feed.Mix]struct{ Followed, Other int }{
	feed.MixFavorFollowing: {Followed: 40, Other: -5},
	feed.MixBalanced:       {Followed: 25, Other: 10},
	feed.MixFavorEveryone:  {Followed: 10, Other: 35},
}

// Breakdown holds every score term separately so callers can show and test
// exactly what contributed.
type Breakdown struct {
	Recency      int `json:"recency"`
	Relationship int `json:"relationship"`
	Interaction  int `json:"interaction"`
	Discussion   int `json:"discussion"`
	Topic        int `json:"topic"`
	Engagement   int `json:"engagement"`
	Mute         int `json:"mute"`
}

// Total is the post's score.
func (b Breakdown) Total() int {
	return b.Recency + b.Relationship + b.Interaction + b.Discussion + b.Topic + b.Engagement + b.Mute
}

// Score computes the breakdown for one post. It is a pure function of its
// arguments.
func Score(f signals.Features, cfg feed.Config) Breakdown {
	b := Breakdown{
		Recency:      RecencyBase - f.AgeMinutes,
		Relationship: RelationshipTerm(cfg.EffectiveMix(), f.IsFollowedAuthor),
		Engagement:   f.ReplyCount,
	}
	if cfg.BoostRecentInteractions && f.HasRecentInteraction {
		b.Interaction = InteractionBoost
	}
	if cfg.BoostActiveDiscussions && f.HasActiveDiscussion {
		b.Discussion = DiscussionBoost
	}
	if f.IsPreferred {
		b.Topic = TopicBoost
	}
	// Mute wins over preference: a topic in both sets still takes the penalty.
	if f.IsMuted {
		b.Mute = MutePenalty
	}
	return b
}

// RelationshipTerm returns the mix-dependent relationship points.
func RelationshipTerm(mix feed.Mix, followed bool) int {
	w, ok := RelationshipWeights[mix]
	if !ok {
		w = RelationshipWeights[feed.MixBalanced]
	}
	if followed {
		return w.Followed
	}
	return w.Other
}
