package collect

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/TobiSchelling/foryou/internal/database"
	"github.com/TobiSchelling/foryou/internal/feed"
)

// JSONConfig represents an HTTP endpoint that returns an array of posts.
type JSONConfig struct {
	URL       string
	Name      string
	APIKeyEnv string
}

// JSONSource fetches candidate posts already in the external post shape.
type JSONSource struct {
	cfg           JSONConfig
	apiKey        string
	client        *http.Client
	activeReplies int
}

// NewJSONSource creates a JSON source. The API key, if any, is read from
// the named environment variable.
func NewJSONSource(cfg JSONConfig, client *http.Client, activeReplies int) *JSONSource {
	if cfg.Name == "" {
		cfg.Name = extractSourceName(cfg.URL)
	}
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	return &JSONSource{cfg: cfg, apiKey: key, client: client, activeReplies: activeReplies}
}

// Name returns the display name of the source.
func (s *JSONSource) Name() string { return s.cfg.Name }

type jsonPost struct {
	feed.Post
	Link string `json:"link"`
}

// Fetch downloads the post array and returns posts created at or after
// since. Posts missing required fields are passed through unrepaired so the
// collector can reject and count them.
func (s *JSONSource) Fetch(ctx context.Context, since time.Time, limit int) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if s.apiKey != "" {
		req.Header.Set("X-Api-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: HTTP %d", s.cfg.Name, resp.StatusCode)
	}

	var posts []jsonPost
	if err := json.NewDecoder(resp.Body).Decode(&posts); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.cfg.Name, err)
	}

	var items []Item
	for _, jp := range posts {
		if limit > 0 && len(items) >= limit {
			break
		}
		p := jp.Post
		if p.CreatedAt.Before(since) {
			continue
		}
		p.ID = strings.TrimSpace(p.ID)
		p.Topic = feed.NormalizeTopic(p.Topic)
		// Relationship is the viewer's own state and never taken from a source.
		p.Relationship = feed.Relationship{}
		if s.activeReplies > 0 && p.ReplyCount >= s.activeReplies {
			p.HasActiveDiscussion = true
		}
		items = append(items, Item{
			Post: p,
			Meta: database.PostMeta{Link: jp.Link, Source: s.cfg.Name},
		})
	}
	return items, nil
}
