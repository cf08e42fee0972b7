package feed

import (
	"fmt"
	"strings"
	"time"
)

// EngagementKind is the type of interaction recorded in the history.
type EngagementKind string

const (
	EngagementView  EngagementKind = "view"
	EngagementReply EngagementKind = "reply"
	EngagementLike  EngagementKind = "like"
	EngagementShare EngagementKind = "share"
)

// Valid reports whether k is a recognised engagement kind.
func (k EngagementKind) Valid() bool {
	switch k {
	case EngagementView, EngagementReply, EngagementLike, EngagementShare:
		return true
	}
	return false
}

// Engagement is one append-only history entry: the viewer interacted with a
// post, and this is what the post looked like relative to them at the time.
type Engagement struct {
	ID                string         `json:"id"`
	PostID            string         `json:"postId"`
	AuthorID          string         `json:"authorId"`
	Topic             string         `json:"topic"`
	Kind              EngagementKind `json:"kind"`
	AuthorFollowed    bool           `json:"authorFollowed"`
	RecentInteraction bool           `json:"recentInteraction"`
	ActiveDiscussion  bool           `json:"activeDiscussion"`
	Mix               Mix            `json:"mix"`
	OccurredAt        time.Time      `json:"occurredAt"`
}

// Validate reports why an entry cannot be used for analysis.
func (e Engagement) Validate() error {
	var missing []string
	if strings.TrimSpace(e.PostID) == "" {
		missing = append(missing, "postId")
	}
	if NormalizeTopic(e.Topic) == "" {
		missing = append(missing, "topic")
	}
	if e.OccurredAt.IsZero() {
		missing = append(missing, "occurredAt")
	}
	if len(missing) > 0 {
		return fmt.Errorf("engagement %q missing %s", e.ID, strings.Join(missing, ", "))
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("engagement %q has unknown kind %q", e.ID, e.Kind)
	}
	return nil
}

// EngagementFromPost builds a history entry from the post as it was shown.
func EngagementFromPost(p Post, kind EngagementKind, mix Mix, at time.Time) Engagement {
	return Engagement{
		PostID:            p.ID,
		AuthorID:          p.AuthorID,
		Topic:             NormalizeTopic(p.Topic),
		Kind:              kind,
		AuthorFollowed:    p.Relationship.Followed,
		RecentInteraction: p.Relationship.RecentInteraction,
		ActiveDiscussion:  p.HasActiveDiscussion,
		Mix:               mix,
		OccurredAt:        at,
	}
}
