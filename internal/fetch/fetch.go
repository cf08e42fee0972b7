// Package fetch fills in empty post bodies by downloading the linked page
// and extracting its readable text.
package fetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/rs/zerolog"

	"github.com/TobiSchelling/foryou/internal/database"
	"github.com/TobiSchelling/foryou/internal/metrics"
)

const (
	minBodyLength = 100
	maxBodyLength = 4000
	maxPageBytes  = 5 << 20
)

// Store is the subset of the database the fetcher needs.
type Store interface {
	PostsNeedingBody(ctx context.Context, limit int) ([]database.BodyTarget, error)
	UpdatePostBody(ctx context.Context, id, body string) error
	MarkBodyFetchAttempted(ctx context.Context, id string) error
}

// Result holds the results of a body fetch run.
type Result struct {
	Fetched int
	Empty   int
	Failed  int
	Skipped int
}

// BodyFetcher fetches linked pages via HTTP and readability extraction.
type BodyFetcher struct {
	store  Store
	client *http.Client
	logger zerolog.Logger
}

// NewBodyFetcher creates a new body fetcher.
//
//nolint:gocritic // zerolog loggers are passed by value
func NewBodyFetcher(store Store, timeout time.Duration, logger zerolog.Logger) *BodyFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &BodyFetcher{
		store: store,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		logger: logger.With().Str("component", "fetch").Logger(),
	}
}

// FetchMissing fetches bodies for up to limit posts. Once a host answers
// with an HTTP error, the remaining posts from that host are skipped.
func (f *BodyFetcher) FetchMissing(ctx context.Context, limit int) (*Result, error) {
	targets, err := f.store.PostsNeedingBody(ctx, limit)
	if err != nil {
		return nil, err
	}
	result := &Result{}
	if len(targets) == 0 {
		f.logger.Debug().Msg("no posts need a body")
		return result, nil
	}

	failedHosts := make(map[string]struct{})
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		host := hostOf(t.Link)
		if _, failed := failedHosts[host]; failed {
			f.markAttempted(ctx, t.ID)
			result.Skipped++
			metrics.BodyFetches.WithLabelValues("skipped").Inc()
			continue
		}

		body, err := f.fetchBody(ctx, t.Link)
		switch {
		case err != nil:
			f.markAttempted(ctx, t.ID)
			result.Failed++
			metrics.BodyFetches.WithLabelValues("failed").Inc()
			if host != "" {
				failedHosts[host] = struct{}{}
			}
			f.logger.Warn().Err(err).Str("host", host).Msg("fetch failed, skipping host")
		case body == "":
			f.markAttempted(ctx, t.ID)
			result.Empty++
			metrics.BodyFetches.WithLabelValues("empty").Inc()
			f.logger.Debug().Str("link", t.Link).Msg("no extractable text")
		default:
			if err := f.store.UpdatePostBody(ctx, t.ID, body); err != nil {
				return result, err
			}
			result.Fetched++
			metrics.BodyFetches.WithLabelValues("fetched").Inc()
			f.logger.Debug().Str("post", t.ID).Int("chars", len(body)).Msg("fetched body")
		}
	}

	f.logger.Info().Int("fetched", result.Fetched).Int("failed", result.Failed).Msg("body fetch complete")
	return result, nil
}

func (f *BodyFetcher) markAttempted(ctx context.Context, id string) {
	if err := f.store.MarkBodyFetchAttempted(ctx, id); err != nil {
		f.logger.Warn().Err(err).Str("post", id).Msg("marking fetch attempt failed")
	}
}

// fetchBody returns an error only for HTTP failures. Connection and
// extraction problems yield an empty body.
func (f *BodyFetcher) fetchBody(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", nil
	}
	req.Header.Set("User-Agent", "foryou/1.0 (feed collector)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	page, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", nil
	}

	parsedURL, _ := url.Parse(link)
	article, err := readability.FromReader(bytes.NewReader(page), parsedURL)
	if err != nil {
		return "", nil
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	if len(text) <= minBodyLength {
		return "", nil
	}
	return truncate(text, maxBodyLength), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := strings.LastIndex(s[:n], " ")
	if cut <= 0 {
		cut = n
	}
	return s[:cut] + "…"
}

func hostOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}
