package collect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/foryou/internal/config"
	"github.com/TobiSchelling/foryou/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func rssFixture(replies int) string {
	recent := time.Now().Add(-time.Hour).Format(time.RFC1123Z)
	old := time.Now().Add(-30 * 24 * time.Hour).Format(time.RFC1123Z)
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:slash="http://purl.org/rss/1.0/modules/slash/" xmlns:dc="http://purl.org/dc/elements/1.1/">
<channel>
<title>Example</title>
<link>https://example.com</link>
<item>
  <title>Go release notes</title>
  <link>https://example.com/go</link>
  <dc:creator>Ada Lovelace</dc:creator>
  <category>Golang</category>
  <pubDate>%[1]s</pubDate>
  <description><![CDATA[<p>Hello <b>world</b></p>]]></description>
  <slash:comments>%[3]d</slash:comments>
</item>
<item>
  <title>Untagged</title>
  <guid isPermaLink="false">tag:example.com,2026:2</guid>
  <pubDate>%[1]s</pubDate>
</item>
<item>
  <title>Ancient</title>
  <link>https://example.com/old</link>
  <pubDate>%[2]s</pubDate>
</item>
</channel>
</rss>`, recent, old, replies)
}

func TestFeedSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssFixture(42))
	}))
	defer srv.Close()

	src := NewFeedSource(FeedConfig{URL: srv.URL, Name: "Example", Topic: "#Tech"}, srv.Client(), 10)
	items, err := src.Fetch(context.Background(), time.Now().Add(-48*time.Hour), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items within window, got %d", len(items))
	}

	first := items[0].Post
	if first.ID != "https://example.com/go" {
		t.Errorf("expected link as ID, got %q", first.ID)
	}
	if first.AuthorID != "ada-lovelace" || first.AuthorHandle != "Ada Lovelace" {
		t.Errorf("unexpected author %q / %q", first.AuthorID, first.AuthorHandle)
	}
	if first.Topic != "golang" {
		t.Errorf("expected category topic golang, got %q", first.Topic)
	}
	if first.Body != "Hello world" {
		t.Errorf("expected stripped body, got %q", first.Body)
	}
	if first.ReplyCount != 42 || !first.HasActiveDiscussion {
		t.Errorf("expected 42 replies and active discussion, got %d / %v", first.ReplyCount, first.HasActiveDiscussion)
	}
	if items[0].Meta.Source != "Example" {
		t.Errorf("expected source Example, got %q", items[0].Meta.Source)
	}

	second := items[1].Post
	if second.ID != "tag:example.com,2026:2" {
		t.Errorf("expected GUID fallback, got %q", second.ID)
	}
	if second.Topic != "tech" {
		t.Errorf("expected feed topic tech, got %q", second.Topic)
	}
	if second.AuthorID != "example" {
		t.Errorf("expected feed name as author, got %q", second.AuthorID)
	}
	if second.HasActiveDiscussion {
		t.Error("expected no active discussion without replies")
	}
}

func TestFeedSourceLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssFixture(1))
	}))
	defer srv.Close()

	src := NewFeedSource(FeedConfig{URL: srv.URL, Name: "Example"}, srv.Client(), 10)
	items, err := src.Fetch(context.Background(), time.Time{}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected limit of 1, got %d", len(items))
	}
}

const jsonFixture = `[
  {"id": "j1", "authorId": "bob", "authorHandle": "bob", "createdAt": "%[1]s",
   "topic": "#Rust", "body": "borrowck", "replyCount": 12, "link": "https://example.com/j1",
   "relationship": {"isFollowed": true}},
  {"id": "", "authorId": "nobody", "createdAt": "%[1]s", "topic": "x"},
  {"id": "j3", "authorId": "cy", "createdAt": "%[1]s", "topic": ""}
]`

func TestJSONSourceFetch(t *testing.T) {
	t.Setenv("FORYOU_TEST_KEY", "secret")
	keys := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys <- r.Header.Get("X-Api-Key")
		fmt.Fprintf(w, jsonFixture, time.Now().Add(-time.Hour).UTC().Format(time.RFC3339))
	}))
	defer srv.Close()

	src := NewJSONSource(JSONConfig{URL: srv.URL, Name: "api", APIKeyEnv: "FORYOU_TEST_KEY"}, srv.Client(), 10)
	items, err := src.Fetch(context.Background(), time.Now().Add(-48*time.Hour), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotKey := <-keys; gotKey != "secret" {
		t.Errorf("expected API key header, got %q", gotKey)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	p := items[0].Post
	if p.Topic != "rust" || !p.HasActiveDiscussion || p.ReplyCount != 12 {
		t.Errorf("unexpected post %+v", p)
	}
	if p.Relationship.Followed {
		t.Error("expected relationship from the source to be ignored")
	}
	if items[0].Meta.Link != "https://example.com/j1" {
		t.Errorf("expected link, got %q", items[0].Meta.Link)
	}
	// Malformed entries come back unrepaired for the collector to reject.
	if items[1].Post.ID != "" {
		t.Errorf("expected empty ID to be kept, got %q", items[1].Post.ID)
	}
	if items[2].Post.Topic != "" {
		t.Errorf("expected missing topic to stay empty, got %q", items[2].Post.Topic)
	}
}

func TestCollectorRejectsMalformedJSONPosts(t *testing.T) {
	created := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[
  {"id": "ok", "authorId": "u1", "createdAt": %[1]q, "topic": "dev"},
  {"id": "no-topic", "authorId": "u1", "createdAt": %[1]q},
  {"id": "no-author", "createdAt": %[1]q, "topic": "dev"}
]`, created)
	}))
	defer srv.Close()

	db := openTestDB(t)
	src := NewJSONSource(JSONConfig{URL: srv.URL, Name: "api"}, srv.Client(), 10)
	c := New(db, []Source{src}, 48*time.Hour, 50, zerolog.Nop())

	r, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.TotalFound != 3 {
		t.Errorf("expected 3 found, got %d", r.TotalFound)
	}
	if r.NewPosts != 1 {
		t.Errorf("expected 1 new post, got %d", r.NewPosts)
	}
	if r.Invalid != 2 {
		t.Errorf("expected 2 invalid posts, got %d", r.Invalid)
	}
	for _, id := range []string{"no-topic", "no-author"} {
		p, err := db.GetPost(context.Background(), id, time.Now())
		if err != nil {
			t.Fatalf("GetPost(%s): %v", id, err)
		}
		if p != nil {
			t.Errorf("expected %s not to be stored, got %+v", id, p)
		}
	}
}

func TestJSONSourceHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	src := NewJSONSource(JSONConfig{URL: srv.URL, Name: "api"}, srv.Client(), 10)
	if _, err := src.Fetch(context.Background(), time.Time{}, 0); err == nil {
		t.Error("expected error for 401")
	}
}

type failingSource struct{}

func (failingSource) Name() string { return "broken" }
func (failingSource) Fetch(context.Context, time.Time, int) ([]Item, error) {
	return nil, errors.New("connection refused")
}

func TestCollectorCollect(t *testing.T) {
	var replies atomic.Int64
	replies.Store(3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssFixture(int(replies.Load())))
	}))
	defer srv.Close()

	db := openTestDB(t)
	src := NewFeedSource(FeedConfig{URL: srv.URL, Name: "Example"}, srv.Client(), 10)
	c := New(db, []Source{failingSource{}, src}, 48*time.Hour, 50, zerolog.Nop())

	r, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.TotalFound != 2 || r.NewPosts != 2 || r.Duplicates != 0 {
		t.Errorf("unexpected first run %+v", r)
	}
	if len(r.Failed) != 1 || r.Failed[0] != "broken" {
		t.Errorf("expected broken source to be reported, got %v", r.Failed)
	}
	if r.Sources["Example"] != 2 {
		t.Errorf("expected 2 from Example, got %d", r.Sources["Example"])
	}

	// Second run sees the same posts with more replies.
	replies.Store(25)
	r, err = c.Collect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.NewPosts != 0 || r.Duplicates != 2 {
		t.Errorf("expected only duplicates, got %+v", r)
	}
	p, err := db.GetPost(context.Background(), "https://example.com/go", time.Now())
	if err != nil || p == nil {
		t.Fatalf("expected stored post, got %v / %v", p, err)
	}
	if p.ReplyCount != 25 || !p.HasActiveDiscussion {
		t.Errorf("expected refreshed discussion, got %d / %v", p.ReplyCount, p.HasActiveDiscussion)
	}
}

func TestCollectorCancelled(t *testing.T) {
	db := openTestDB(t)
	c := New(db, []Source{failingSource{}}, time.Hour, 10, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Collect(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewCollectorFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Sources.JSON = []config.JSONSource{{URL: "https://example.com/posts.json"}}
	c := NewCollector(cfg, openTestDB(t), zerolog.Nop())
	if len(c.sources) != len(cfg.Sources.Feeds)+1 {
		t.Errorf("expected %d sources, got %d", len(cfg.Sources.Feeds)+1, len(c.sources))
	}
	if c.sources[len(c.sources)-1].Name() != "Example" {
		t.Errorf("expected derived source name, got %q", c.sources[len(c.sources)-1].Name())
	}
}

func TestExtractSourceName(t *testing.T) {
	tests := map[string]string{
		"https://www.example.com/feed":   "Example",
		"https://blog.golang.org/feed":   "Golang",
		"https://feeds.arstechnica.com/": "Arstechnica",
	}
	for in, want := range tests {
		if got := extractSourceName(in); got != want {
			t.Errorf("extractSourceName(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestStripHTML(t *testing.T) {
	got := stripHTML("<p>Fish &amp; chips</p>\n<br/>  tonight")
	if got != "Fish & chips tonight" {
		t.Errorf("unexpected %q", got)
	}
}
