// Package feed holds the value types shared by the ranking core: candidate
// posts, the viewer's ranking configuration, configuration deltas proposed
// by the tuning advisor, and engagement history entries.
package feed

import (
	"strings"
	"time"
)

// Relationship describes the viewer's relationship to a post's author.
type Relationship struct {
	Followed          bool `json:"isFollowed" yaml:"isFollowed"`
	RecentInteraction bool `json:"hasRecentInteraction" yaml:"hasRecentInteraction"`
	Blocked           bool `json:"isBlocked" yaml:"isBlocked"`
}

// Post is a candidate item for ranking. It is never mutated by the core.
type Post struct {
	ID                  string       `json:"id" yaml:"id"`
	AuthorID            string       `json:"authorId" yaml:"authorId"`
	AuthorHandle        string       `json:"authorHandle,omitempty" yaml:"authorHandle,omitempty"`
	CreatedAt           time.Time    `json:"createdAt" yaml:"createdAt"`
	Topic               string       `json:"topic" yaml:"topic"`
	Body                string       `json:"body,omitempty" yaml:"body,omitempty"`
	HasActiveDiscussion bool         `json:"hasActiveDiscussion" yaml:"hasActiveDiscussion"`
	ReplyCount          int          `json:"replyCount" yaml:"replyCount"`
	Relationship        Relationship `json:"relationship" yaml:"relationship"`
}

// Handle returns the display handle for the post's author, falling back to
// the author ID.
func (p Post) Handle() string {
	h := strings.TrimSpace(p.AuthorHandle)
	if h == "" {
		h = p.AuthorID
	}
	return "@" + strings.TrimPrefix(h, "@")
}

// NormalizeTopic canonicalizes a topic tag: trimmed, lower-case, no leading '#'.
func NormalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(topic), "#"))
}
