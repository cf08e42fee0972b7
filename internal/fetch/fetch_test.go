package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/foryou/internal/database"
)

type memStore struct {
	mu        sync.Mutex
	targets   []database.BodyTarget
	bodies    map[string]string
	attempted map[string]bool
}

func newMemStore(targets ...database.BodyTarget) *memStore {
	return &memStore{targets: targets, bodies: map[string]string{}, attempted: map[string]bool{}}
}

func (m *memStore) PostsNeedingBody(_ context.Context, limit int) ([]database.BodyTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.BodyTarget
	for _, t := range m.targets {
		if _, ok := m.bodies[t.ID]; ok || m.attempted[t.ID] {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) UpdatePostBody(_ context.Context, id, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies[id] = body
	return nil
}

func (m *memStore) MarkBodyFetchAttempted(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempted[id] = true
	return nil
}

var articleHTML = `<!DOCTYPE html>
<html><head><title>Borrow checking explained</title></head>
<body>
<nav><a href="/">Home</a></nav>
<article>
<h1>Borrow checking explained</h1>
<p>` + strings.Repeat("The borrow checker tracks ownership of every value across scopes. ", 8) + `</p>
<p>` + strings.Repeat("References must never outlive the data they point to. ", 8) + `</p>
</article>
<footer>Copyright</footer>
</body></html>`

func TestFetchMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/article":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, articleHTML)
		case "/tiny":
			fmt.Fprint(w, "<html><body><p>short</p></body></html>")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store := newMemStore(
		database.BodyTarget{ID: "a", Link: srv.URL + "/article"},
		database.BodyTarget{ID: "b", Link: srv.URL + "/tiny"},
	)
	f := NewBodyFetcher(store, 5*time.Second, zerolog.Nop())

	r, err := f.FetchMissing(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Fetched != 1 || r.Empty != 1 {
		t.Errorf("expected 1 fetched and 1 empty, got %+v", r)
	}
	if !strings.Contains(store.bodies["a"], "borrow checker") {
		t.Errorf("expected extracted article text, got %q", store.bodies["a"])
	}
	if !store.attempted["b"] {
		t.Error("expected tiny page to be marked attempted")
	}

	// Nothing left on the second run.
	r, err = f.FetchMissing(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Fetched+r.Empty+r.Failed+r.Skipped != 0 {
		t.Errorf("expected empty second run, got %+v", r)
	}
}

func TestFetchMissingSkipsFailedHost(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		http.Error(w, "gone", http.StatusForbidden)
	}))
	defer srv.Close()

	store := newMemStore(
		database.BodyTarget{ID: "a", Link: srv.URL + "/one"},
		database.BodyTarget{ID: "b", Link: srv.URL + "/two"},
	)
	f := NewBodyFetcher(store, 5*time.Second, zerolog.Nop())

	r, err := f.FetchMissing(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Failed != 1 || r.Skipped != 1 {
		t.Errorf("expected 1 failed and 1 skipped, got %+v", r)
	}
	mu.Lock()
	defer mu.Unlock()
	if hits != 1 {
		t.Errorf("expected a single request to the failing host, got %d", hits)
	}
	if !store.attempted["a"] || !store.attempted["b"] {
		t.Error("expected both posts marked attempted")
	}
}

func TestFetchMissingRespectsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	store := newMemStore(
		database.BodyTarget{ID: "a", Link: srv.URL + "/a"},
		database.BodyTarget{ID: "b", Link: srv.URL + "/b"},
	)
	r, err := NewBodyFetcher(store, 5*time.Second, zerolog.Nop()).FetchMissing(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Fetched != 1 {
		t.Errorf("expected 1 fetched, got %+v", r)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("expected unchanged, got %q", got)
	}
	if got := truncate("alpha beta gamma", 12); got != "alpha beta…" {
		t.Errorf("expected word-boundary cut, got %q", got)
	}
}
