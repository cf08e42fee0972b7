package feed

import (
	"slices"
	"testing"
	"time"
)

func TestApplyDoesNotMutateReceiver(t *testing.T) {
	live := Config{Mix: MixFavorFollowing, PreferredTopics: []string{"dev"}}
	d := Delta{
		Mix:                    MixPtr(MixBalanced),
		BoostActiveDiscussions: BoolPtr(true),
		AddPreferredTopics:     []string{"go"},
	}

	next := live.Apply(d)

	if live.Mix != MixFavorFollowing || len(live.PreferredTopics) != 1 || live.BoostActiveDiscussions {
		t.Errorf("receiver was modified: %+v", live)
	}
	if next.Mix != MixBalanced {
		t.Errorf("expected balanced, got %q", next.Mix)
	}
	if !next.BoostActiveDiscussions {
		t.Error("expected discussion boost on")
	}
	if !slices.Equal(next.PreferredTopics, []string{"dev", "go"}) {
		t.Errorf("expected [dev go], got %v", next.PreferredTopics)
	}
}

func TestApplyEmptyDeltaIsIdentity(t *testing.T) {
	live := Config{Mix: MixFavorEveryone, MutedTopics: []string{"x"}}
	if !live.Apply(Delta{}).Equal(live) {
		t.Error("expected empty delta to change nothing")
	}
	if !(Delta{}).IsEmpty() {
		t.Error("expected zero delta to be empty")
	}
}

func TestFingerprintIsCanonical(t *testing.T) {
	a := Delta{AddPreferredTopics: []string{"Go", "dev"}, Mix: MixPtr(MixBalanced)}
	b := Delta{Mix: MixPtr(MixBalanced), AddPreferredTopics: []string{"dev", "#go"}}
	if a.Fingerprint() != b.Fingerprint() {
		t.Errorf("expected equal fingerprints, got %q and %q", a.Fingerprint(), b.Fingerprint())
	}
	c := Delta{Mix: MixPtr(MixFavorEveryone)}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("expected different fingerprints")
	}
}

func TestDescribe(t *testing.T) {
	d := Delta{BoostRecentInteractions: BoolPtr(true), AddPreferredTopics: []string{"dev"}}
	want := "turn on the recent-interaction boost, prefer topic #dev"
	if got := d.Describe(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestEngagementValidate(t *testing.T) {
	ok := Engagement{ID: "e1", PostID: "p1", Topic: "dev", Kind: EngagementLike, OccurredAt: time.Now()}
	if err := ok.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	missing := Engagement{ID: "e2", Kind: EngagementLike}
	if err := missing.Validate(); err == nil {
		t.Error("expected error for missing fields")
	}

	badKind := ok
	badKind.Kind = "stare"
	if err := badKind.Validate(); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestPostHandle(t *testing.T) {
	if h := (Post{AuthorID: "u1", AuthorHandle: "@ada"}).Handle(); h != "@ada" {
		t.Errorf("expected @ada, got %q", h)
	}
	if h := (Post{AuthorID: "u1"}).Handle(); h != "@u1" {
		t.Errorf("expected @u1, got %q", h)
	}
}
