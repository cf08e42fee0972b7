package ranking

import (
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/foryou/internal/feed"
	"github.com/TobiSchelling/foryou/internal/reason"
	"github.com/TobiSchelling/foryou/internal/signals"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRanker() *Ranker {
	return NewRanker(zerolog.Nop())
}

func minutesAgo(n int) time.Time {
	return now.Add(-time.Duration(n) * time.Minute)
}

func scenarioConfig() feed.Config {
	return feed.Config{
		Mix:                     feed.MixBalanced,
		BoostRecentInteractions: true,
		BoostActiveDiscussions:  true,
		PreferredTopics:         []string{"dev"},
		MutedTopics:             []string{"politics"},
	}
}

func devPost() feed.Post {
	return feed.Post{
		ID:                  "dev-post",
		AuthorID:            "u-ada",
		AuthorHandle:        "ada",
		CreatedAt:           minutesAgo(5),
		Topic:               "dev",
		HasActiveDiscussion: true,
		ReplyCount:          3,
		Relationship:        feed.Relationship{Followed: true, RecentInteraction: true},
	}
}

func politicsPost() feed.Post {
	return feed.Post{
		ID:        "politics-post",
		AuthorID:  "u-bob",
		CreatedAt: minutesAgo(5),
		Topic:     "politics",
	}
}

func TestScenarioBalancedMix(t *testing.T) {
	res := newTestRanker().Rank([]feed.Post{politicsPost(), devPost()}, scenarioConfig(), now)

	if len(res.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(res.Items))
	}
	if res.Items[0].Post.ID != "dev-post" {
		t.Errorf("expected dev post first, got %s", res.Items[0].Post.ID)
	}
	if res.Items[0].Score != 213 {
		t.Errorf("expected dev post score 213, got %d", res.Items[0].Score)
	}
	if res.Items[1].Score != -15 {
		t.Errorf("expected politics post score -15, got %d", res.Items[1].Score)
	}
}

func TestScenarioMixIsTheOnlyRelationshipLever(t *testing.T) {
	busy := feed.Post{
		ID:                  "busy-post",
		AuthorID:            "u-cy",
		CreatedAt:           minutesAgo(5),
		Topic:               "misc",
		ReplyCount:          80,
		HasActiveDiscussion: false,
	}
	posts := []feed.Post{devPost(), busy}

	balanced := newTestRanker().Rank(posts, scenarioConfig(), now)
	everyoneCfg := scenarioConfig()
	everyoneCfg.Mix = feed.MixFavorEveryone
	everyone := newTestRanker().Rank(posts, everyoneCfg, now)

	devBalanced, _ := balanced.Find("dev-post")
	devEveryone, _ := everyone.Find("dev-post")
	if devBalanced.Score-devEveryone.Score != 15 {
		t.Errorf("expected followed post to drop by 15, got %d -> %d", devBalanced.Score, devEveryone.Score)
	}
	if devBalanced.Breakdown.Relationship != 25 || devEveryone.Breakdown.Relationship != 10 {
		t.Errorf("unexpected relationship terms %d / %d", devBalanced.Breakdown.Relationship, devEveryone.Breakdown.Relationship)
	}

	// Everything except the relationship term is unchanged.
	a, b := devBalanced.Breakdown, devEveryone.Breakdown
	a.Relationship, b.Relationship = 0, 0
	if a != b {
		t.Errorf("expected only the relationship term to change: %+v vs %+v", a, b)
	}

	if balanced.IDs()[0] != "dev-post" {
		t.Errorf("balanced: expected dev post first, got %v", balanced.IDs())
	}
	if everyone.IDs()[0] != "busy-post" {
		t.Errorf("favor-everyone: expected busy post first, got %v", everyone.IDs())
	}
}

func TestBoundaryScore(t *testing.T) {
	for _, mix := range feed.Mixes {
		t.Run(string(mix), func(t *testing.T) {
			cfg := scenarioConfig()
			cfg.Mix = mix
			p := devPost()
			p.CreatedAt = now
			p.ReplyCount = 0

			f, err := signals.Extract(p, cfg, now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want := 100 + RelationshipWeights[mix].Followed + 30 + 25 + 35 + 0
			if got := Score(f, cfg).Total(); got != want {
				t.Errorf("expected %d, got %d", want, got)
			}
		})
	}
}

func TestRelationshipTable(t *testing.T) {
	tests := []struct {
		mix      feed.Mix
		followed bool
		want     int
	}{
		{feed.MixFavorFollowing, true, 40},
		{feed.MixFavorFollowing, false, -5},
		{feed.MixBalanced, true, 25},
		{feed.MixBalanced, false, 10},
		{feed.MixFavorEveryone, true, 10},
		{feed.MixFavorEveryone, false, 35},
		{"unknown", true, 25},
	}
	for _, tt := range tests {
		if got := RelationshipTerm(tt.mix, tt.followed); got != tt.want {
			t.Errorf("%s followed=%t: expected %d, got %d", tt.mix, tt.followed, tt.want, got)
		}
	}
}

func TestRecencyUnboundedBelow(t *testing.T) {
	p := politicsPost()
	p.CreatedAt = minutesAgo(1000)
	f, _ := signals.Extract(p, feed.DefaultConfig(), now)
	if got := Score(f, feed.DefaultConfig()).Recency; got != -900 {
		t.Errorf("expected recency -900, got %d", got)
	}
}

func TestRankIsDeterministic(t *testing.T) {
	posts := samplePosts()
	cfg := scenarioConfig()

	first := newTestRanker().Rank(posts, cfg, now)
	second := newTestRanker().Rank(posts, cfg, now)

	if !slices.Equal(first.IDs(), second.IDs()) {
		t.Fatalf("order differs: %v vs %v", first.IDs(), second.IDs())
	}
	for i := range first.Items {
		if first.Items[i].Score != second.Items[i].Score {
			t.Errorf("score differs at %d: %d vs %d", i, first.Items[i].Score, second.Items[i].Score)
		}
	}
}

func TestRankIgnoresInputOrder(t *testing.T) {
	posts := samplePosts()
	reversed := slices.Clone(posts)
	slices.Reverse(reversed)

	a := newTestRanker().Rank(posts, scenarioConfig(), now)
	b := newTestRanker().Rank(reversed, scenarioConfig(), now)
	if !slices.Equal(a.IDs(), b.IDs()) {
		t.Errorf("order depends on input order: %v vs %v", a.IDs(), b.IDs())
	}
}

func TestApplyingSameConfigTwiceIsIdempotent(t *testing.T) {
	live := feed.DefaultConfig()
	target := feed.Delta{Mix: feed.MixPtr(feed.MixFavorFollowing), AddPreferredTopics: []string{"dev"}}

	once := live.Apply(target)
	twice := once.Apply(target)

	a := newTestRanker().Rank(samplePosts(), once, now)
	b := newTestRanker().Rank(samplePosts(), twice, now)
	if !slices.Equal(a.IDs(), b.IDs()) {
		t.Errorf("expected identical order, got %v vs %v", a.IDs(), b.IDs())
	}
}

func TestTiesBreakByNewestThenID(t *testing.T) {
	older := feed.Post{ID: "a-older", AuthorID: "u1", Topic: "x", CreatedAt: minutesAgo(10), ReplyCount: 5}
	newer := feed.Post{ID: "b-newer", AuthorID: "u2", Topic: "x", CreatedAt: minutesAgo(5)}
	sameTimeA := feed.Post{ID: "c-same", AuthorID: "u3", Topic: "x", CreatedAt: minutesAgo(5)}

	res := newTestRanker().Rank([]feed.Post{older, sameTimeA, newer}, feed.DefaultConfig(), now)

	// older: 90+10+5=105 ; newer and c-same: 95+10=105. All tie on score.
	want := []string{"b-newer", "c-same", "a-older"}
	if !slices.Equal(res.IDs(), want) {
		t.Errorf("expected %v, got %v", want, res.IDs())
	}
}

func TestMutePenaltyIsMonotone(t *testing.T) {
	for _, p := range samplePosts() {
		base := scenarioConfig()
		base.MutedTopics = nil
		muted := base
		muted.MutedTopics = []string{p.Topic}

		fb, err := signals.Extract(p, base, now)
		if err != nil {
			continue
		}
		fm, _ := signals.Extract(p, muted, now)
		if Score(fm, muted).Total() >= Score(fb, base).Total() {
			t.Errorf("post %s: muting did not lower the score", p.ID)
		}
	}
}

func TestMuteWinsOverPreference(t *testing.T) {
	cfg := feed.Config{Mix: feed.MixBalanced, PreferredTopics: []string{"dev"}, MutedTopics: []string{"dev"}}
	f, _ := signals.Extract(devPost(), cfg, now)
	b := Score(f, cfg)
	if b.Mute != MutePenalty || b.Topic != TopicBoost {
		t.Errorf("expected both terms applied, got %+v", b)
	}
}

func TestMutePolicies(t *testing.T) {
	posts := []feed.Post{devPost(), politicsPost()}

	suppress := newTestRanker().Rank(posts, scenarioConfig(), now)
	if len(suppress.Items) != 2 || suppress.IDs()[1] != "politics-post" {
		t.Errorf("suppress: expected muted post ranked last, got %v", suppress.IDs())
	}

	removeCfg := scenarioConfig()
	removeCfg.MutePolicy = feed.MuteRemove
	remove := newTestRanker().Rank(posts, removeCfg, now)
	if !slices.Equal(remove.IDs(), []string{"dev-post"}) {
		t.Errorf("remove: expected only dev post, got %v", remove.IDs())
	}
	if remove.ExcludedCount(CauseMuted) != 1 {
		t.Errorf("expected 1 muted exclusion, got %+v", remove.Excluded)
	}
}

func TestBlockedAuthorsAlwaysExcluded(t *testing.T) {
	blocked := devPost()
	blocked.ID = "blocked-post"
	blocked.Relationship.Blocked = true

	for _, policy := range []feed.MutePolicy{feed.MuteSuppress, feed.MuteRemove} {
		cfg := scenarioConfig()
		cfg.MutePolicy = policy
		res := newTestRanker().Rank([]feed.Post{blocked, politicsPost()}, cfg, now)
		if _, ok := res.Find("blocked-post"); ok {
			t.Errorf("%s: blocked post was ranked", policy)
		}
		if res.ExcludedCount(CauseBlocked) != 1 {
			t.Errorf("%s: expected a blocked exclusion, got %+v", policy, res.Excluded)
		}
	}
}

func TestMalformedPostsAreReported(t *testing.T) {
	noTopic := feed.Post{ID: "no-topic", AuthorID: "u1", CreatedAt: now}
	noAuthor := feed.Post{ID: "no-author", Topic: "dev", CreatedAt: now}

	res := newTestRanker().Rank([]feed.Post{noTopic, devPost(), noAuthor}, scenarioConfig(), now)

	if !slices.Equal(res.IDs(), []string{"dev-post"}) {
		t.Errorf("expected only the valid post, got %v", res.IDs())
	}
	if res.ExcludedCount(CauseMalformed) != 2 {
		t.Fatalf("expected 2 malformed exclusions, got %+v", res.Excluded)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "2 malformed") {
		t.Errorf("expected a malformed warning, got %v", res.Warnings)
	}
}

func TestDriftFallsBackToBalanced(t *testing.T) {
	cfg := scenarioConfig()
	cfg.Mix = "favor-robots"

	drifted := newTestRanker().Rank(samplePosts(), cfg, now)
	balanced := newTestRanker().Rank(samplePosts(), scenarioConfig(), now)

	if !slices.Equal(drifted.IDs(), balanced.IDs()) {
		t.Errorf("expected balanced order, got %v", drifted.IDs())
	}
	if len(drifted.Warnings) == 0 || !strings.Contains(drifted.Warnings[0], "favor-robots") {
		t.Errorf("expected a drift warning, got %v", drifted.Warnings)
	}
}

func TestEmptyCandidateSet(t *testing.T) {
	res := newTestRanker().Rank(nil, feed.DefaultConfig(), now)
	if len(res.Items) != 0 || len(res.Excluded) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

// Every phrase in a reason must match a term that added points to the score
// under the same configuration.
func TestReasonsNeverClaimUnappliedTerms(t *testing.T) {
	mixes := append(slices.Clone(feed.Mixes), "drifted")
	checked := 0
	for _, mix := range mixes {
		for bits := 0; bits < 1<<7; bits++ {
			on := func(i int) bool { return bits&(1<<i) != 0 }
			cfg := feed.Config{
				Mix:                     mix,
				BoostRecentInteractions: on(0),
				BoostActiveDiscussions:  on(1),
			}
			if on(5) {
				cfg.PreferredTopics = []string{"dev"}
			}
			if on(6) {
				cfg.MutedTopics = []string{"dev"}
			}
			p := devPost()
			p.Relationship.Followed = on(2)
			p.Relationship.RecentInteraction = on(3)
			p.HasActiveDiscussion = on(4)

			f, err := signals.Extract(p, cfg, now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			b := Score(f, cfg)
			phrases := reason.Parse(reason.Generate(f, cfg))
			if len(phrases) == 0 || len(phrases) > 2 {
				t.Fatalf("bad reason for %+v: %v", cfg, phrases)
			}

			for _, ph := range phrases {
				if err := checkPhrase(ph, f, b, len(phrases)); err != nil {
					t.Errorf("mix=%s bits=%07b: %v", mix, bits, err)
				}
			}
			checked++
		}
	}
	if checked != 4*128 {
		t.Errorf("expected 512 combinations, checked %d", checked)
	}
}

func checkPhrase(ph string, f signals.Features, b Breakdown, n int) error {
	switch {
	case strings.HasPrefix(ph, "topic #"):
		if b.Topic <= 0 {
			return fmt.Errorf("%q without topic points", ph)
		}
	case strings.HasPrefix(ph, "you replied to "):
		if b.Interaction <= 0 {
			return fmt.Errorf("%q without interaction points", ph)
		}
	case ph == "active conversation":
		if b.Discussion <= 0 {
			return fmt.Errorf("%q without discussion points", ph)
		}
	case strings.HasPrefix(ph, "following "):
		if !f.IsFollowedAuthor || b.Relationship <= 0 {
			return fmt.Errorf("%q without followed-author points", ph)
		}
	case ph == "from everyone":
		if f.IsFollowedAuthor || b.Relationship <= 0 {
			return fmt.Errorf("%q without non-followed points", ph)
		}
	case ph == reason.Fallback:
		// Recency is the only term that is always present, so the fallback
		// stands even when it has decayed to zero or below.
		if n != 1 {
			return fmt.Errorf("fallback mixed with other phrases")
		}
	default:
		return fmt.Errorf("unknown phrase %q", ph)
	}
	return nil
}

func TestRecencyFallbackAtZeroRecency(t *testing.T) {
	p := feed.Post{ID: "old", AuthorID: "u-bob", CreatedAt: minutesAgo(100), Topic: "misc"}
	res := newTestRanker().Rank([]feed.Post{p}, feed.DefaultConfig(), now)

	it, ok := res.Find("old")
	if !ok {
		t.Fatal("expected post to be ranked")
	}
	if it.Breakdown.Recency != 0 {
		t.Errorf("expected recency term 0 at 100 minutes, got %d", it.Breakdown.Recency)
	}
	if it.Reason != "Because: recency" {
		t.Errorf("expected recency fallback, got %q", it.Reason)
	}
	if it.Score != it.Breakdown.Relationship {
		t.Errorf("expected score %d from relationship alone, got %d", it.Breakdown.Relationship, it.Score)
	}
}

func TestRankAttachesReasons(t *testing.T) {
	res := newTestRanker().Rank([]feed.Post{devPost(), politicsPost()}, scenarioConfig(), now)
	dev, _ := res.Find("dev-post")
	if dev.Reason != "Because: topic #dev + you replied to @ada" {
		t.Errorf("unexpected reason %q", dev.Reason)
	}
	pol, _ := res.Find("politics-post")
	if pol.Reason != "Because: recency" {
		t.Errorf("unexpected reason %q", pol.Reason)
	}
}

func TestDisclosureListsEveryWeight(t *testing.T) {
	cfg := scenarioConfig()
	md := Disclosure(cfg)
	for _, want := range []string{"+25", "+10", "+30", "+35", "-120", "#dev", "#politics", "newest post first"} {
		if !strings.Contains(md, want) {
			t.Errorf("disclosure missing %q:\n%s", want, md)
		}
	}

	cfg.MutePolicy = feed.MuteRemove
	cfg.Mix = "odd"
	md = Disclosure(cfg)
	if !strings.Contains(md, "hidden") || !strings.Contains(md, "not recognised") {
		t.Errorf("expected remove policy and drift notice:\n%s", md)
	}
}

func samplePosts() []feed.Post {
	return []feed.Post{
		devPost(),
		politicsPost(),
		{ID: "p3", AuthorID: "u3", Topic: "go", CreatedAt: minutesAgo(30), ReplyCount: 12, HasActiveDiscussion: true},
		{ID: "p4", AuthorID: "u4", Topic: "dev", CreatedAt: minutesAgo(90), Relationship: feed.Relationship{Followed: true}},
		{ID: "p5", AuthorID: "u5", Topic: "music", CreatedAt: minutesAgo(2)},
		{ID: "p6", AuthorID: "u6", Topic: "music", CreatedAt: minutesAgo(2)},
		{ID: "p7", AuthorID: "u1", Topic: "sports", CreatedAt: minutesAgo(240), ReplyCount: 200},
	}
}
