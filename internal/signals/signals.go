// Package signals derives the fixed-shape feature record the ranking engine
// scores. Extraction is pure: the clock is passed in.
package signals

import (
	"fmt"
	"strings"
	"time"

	"github.com/TobiSchelling/foryou/internal/feed"
)

// Features is the per-post feature record.
type Features struct {
	PostID               string
	AuthorHandle         string
	Topic                string
	AgeMinutes           int
	IsFollowedAuthor     bool
	HasRecentInteraction bool
	HasActiveDiscussion  bool
	ReplyCount           int
	IsPreferred          bool
	IsMuted              bool
	IsBlocked            bool
}

// MalformedError reports a post that cannot be ranked.
type MalformedError struct {
	PostID  string
	Missing []string
}

func (e *MalformedError) Error() string {
	id := e.PostID
	if id == "" {
		id = "<no id>"
	}
	return fmt.Sprintf("post %s missing %s", id, strings.Join(e.Missing, ", "))
}

// Extract builds the feature record for p under cfg at time now.
func Extract(p feed.Post, cfg feed.Config, now time.Time) (Features, error) {
	if err := Validate(p); err != nil {
		return Features{}, err
	}

	topic := feed.NormalizeTopic(p.Topic)
	replies := p.ReplyCount
	if replies < 0 {
		replies = 0
	}

	return Features{
		PostID:               p.ID,
		AuthorHandle:         p.Handle(),
		Topic:                topic,
		AgeMinutes:           AgeMinutes(p.CreatedAt, now),
		IsFollowedAuthor:     p.Relationship.Followed,
		HasRecentInteraction: p.Relationship.RecentInteraction,
		HasActiveDiscussion:  p.HasActiveDiscussion,
		ReplyCount:           replies,
		IsPreferred:          cfg.Prefers(topic),
		IsMuted:              cfg.Mutes(topic),
		IsBlocked:            p.Relationship.Blocked,
	}, nil
}

// AgeMinutes returns whole minutes between created and now, never negative.
// An unknown creation time counts as brand new.
func AgeMinutes(created, now time.Time) int {
	if created.IsZero() || !now.After(created) {
		return 0
	}
	return int(now.Sub(created) / time.Minute)
}

// Validate reports the required fields p is missing as a *MalformedError.
func Validate(p feed.Post) error {
	var missing []string
	if strings.TrimSpace(p.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(p.AuthorID) == "" {
		missing = append(missing, "author")
	}
	if feed.NormalizeTopic(p.Topic) == "" {
		missing = append(missing, "topic")
	}
	if len(missing) > 0 {
		return &MalformedError{PostID: p.ID, Missing: missing}
	}
	return nil
}
