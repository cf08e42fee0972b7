package signals

import (
	"errors"
	"testing"
	"time"

	"github.com/TobiSchelling/foryou/internal/feed"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestExtract(t *testing.T) {
	cfg := feed.Config{PreferredTopics: []string{"dev"}, MutedTopics: []string{"politics"}}
	p := feed.Post{
		ID:                  "p1",
		AuthorID:            "u1",
		AuthorHandle:        "ada",
		CreatedAt:           now.Add(-5*time.Minute - 30*time.Second),
		Topic:               "#Dev",
		HasActiveDiscussion: true,
		ReplyCount:          3,
		Relationship:        feed.Relationship{Followed: true, RecentInteraction: true},
	}

	f, err := Extract(p, cfg, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.AgeMinutes != 5 {
		t.Errorf("expected age 5, got %d", f.AgeMinutes)
	}
	if f.Topic != "dev" || !f.IsPreferred || f.IsMuted {
		t.Errorf("unexpected topic flags: %+v", f)
	}
	if !f.IsFollowedAuthor || !f.HasRecentInteraction || !f.HasActiveDiscussion {
		t.Errorf("unexpected relationship flags: %+v", f)
	}
	if f.ReplyCount != 3 {
		t.Errorf("expected 3 replies, got %d", f.ReplyCount)
	}
	if f.AuthorHandle != "@ada" {
		t.Errorf("expected @ada, got %q", f.AuthorHandle)
	}
}

func TestExtractMalformed(t *testing.T) {
	tests := []struct {
		name    string
		post    feed.Post
		missing int
	}{
		{"missing topic", feed.Post{ID: "p1", AuthorID: "u1"}, 1},
		{"missing author", feed.Post{ID: "p1", Topic: "dev"}, 1},
		{"missing everything", feed.Post{}, 3},
		{"blank topic", feed.Post{ID: "p1", AuthorID: "u1", Topic: " # "}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(tt.post, feed.DefaultConfig(), now)
			var me *MalformedError
			if !errors.As(err, &me) {
				t.Fatalf("expected MalformedError, got %v", err)
			}
			if len(me.Missing) != tt.missing {
				t.Errorf("expected %d missing fields, got %v", tt.missing, me.Missing)
			}
		})
	}
}

func TestAgeMinutesClamps(t *testing.T) {
	if got := AgeMinutes(now.Add(time.Hour), now); got != 0 {
		t.Errorf("future post: expected 0, got %d", got)
	}
	if got := AgeMinutes(time.Time{}, now); got != 0 {
		t.Errorf("zero time: expected 0, got %d", got)
	}
	if got := AgeMinutes(now.Add(-150*time.Minute), now); got != 150 {
		t.Errorf("expected 150, got %d", got)
	}
}

func TestExtractClampsNegativeReplies(t *testing.T) {
	p := feed.Post{ID: "p1", AuthorID: "u1", Topic: "dev", ReplyCount: -4, CreatedAt: now}
	f, err := Extract(p, feed.DefaultConfig(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.ReplyCount != 0 {
		t.Errorf("expected 0 replies, got %d", f.ReplyCount)
	}
}
