package collect

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/foryou/internal/database"
	"github.com/TobiSchelling/foryou/internal/feed"
)

const fallbackTopic = "general"

// FeedConfig represents a single feed configuration.
type FeedConfig struct {
	URL  string
	Name string
	// Topic is used for items without a category.
	Topic string
}

// FeedSource reads candidate posts from an RSS or Atom feed.
type FeedSource struct {
	cfg    FeedConfig
	parser *gofeed.Parser
	// activeReplies is the reply count at which a discussion counts as active.
	activeReplies int
}

// NewFeedSource creates a source for one feed.
func NewFeedSource(cfg FeedConfig, client *http.Client, activeReplies int) *FeedSource {
	if cfg.Name == "" {
		cfg.Name = extractSourceName(cfg.URL)
	}
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = userAgent
	return &FeedSource{cfg: cfg, parser: parser, activeReplies: activeReplies}
}

// Name returns the display name of the feed.
func (s *FeedSource) Name() string { return s.cfg.Name }

// Fetch parses the feed and returns items created at or after since.
func (s *FeedSource) Fetch(ctx context.Context, since time.Time, limit int) ([]Item, error) {
	parsed, err := s.parser.ParseURLWithContext(s.cfg.URL, ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var items []Item
	for _, it := range parsed.Items {
		if limit > 0 && len(items) >= limit {
			break
		}
		item, ok := s.parseItem(it, now)
		if !ok {
			continue
		}
		if item.Post.CreatedAt.Before(since) {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *FeedSource) parseItem(it *gofeed.Item, now time.Time) (Item, bool) {
	link := it.Link
	id := link
	if id == "" {
		id = it.GUID
	}
	if id == "" {
		return Item{}, false
	}

	created := now
	if it.PublishedParsed != nil {
		created = *it.PublishedParsed
	} else if it.UpdatedParsed != nil {
		created = *it.UpdatedParsed
	}

	var body string
	if it.Content != "" {
		body = stripHTML(it.Content)
	} else if it.Description != "" {
		body = stripHTML(it.Description)
	}

	handle := itemAuthor(it)
	if handle == "" {
		handle = s.cfg.Name
	}

	replies := slashComments(it)
	return Item{
		Post: feed.Post{
			ID:                  id,
			AuthorID:            authorID(handle),
			AuthorHandle:        handle,
			CreatedAt:           created,
			Topic:               s.itemTopic(it),
			Body:                body,
			ReplyCount:          replies,
			HasActiveDiscussion: s.activeReplies > 0 && replies >= s.activeReplies,
		},
		Meta: database.PostMeta{Link: link, Source: s.cfg.Name},
	}, true
}

func (s *FeedSource) itemTopic(it *gofeed.Item) string {
	for _, c := range it.Categories {
		if t := feed.NormalizeTopic(c); t != "" {
			return t
		}
	}
	if t := feed.NormalizeTopic(s.cfg.Topic); t != "" {
		return t
	}
	return fallbackTopic
}

func itemAuthor(it *gofeed.Item) string {
	if it.Author != nil && strings.TrimSpace(it.Author.Name) != "" {
		return strings.TrimSpace(it.Author.Name)
	}
	for _, a := range it.Authors {
		if a != nil && strings.TrimSpace(a.Name) != "" {
			return strings.TrimSpace(a.Name)
		}
	}
	return ""
}

// slashComments reads the slash:comments extension that many aggregators
// use for the reply count.
func slashComments(it *gofeed.Item) int {
	exts, ok := it.Extensions["slash"]
	if !ok {
		return 0
	}
	for _, e := range exts["comments"] {
		if n, err := strconv.Atoi(strings.TrimSpace(e.Value)); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// authorID derives a stable identifier from a display name.
func authorID(handle string) string {
	h := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
	return strings.Join(strings.Fields(h), "-")
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")

	return strings.Join(strings.Fields(s), " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		name := parts[len(parts)-2]
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
