// Package server serves the ranked feed, its disclosure page and a small
// JSON API over HTTP.
package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/TobiSchelling/foryou/internal/advisor"
	"github.com/TobiSchelling/foryou/internal/feed"
	"github.com/TobiSchelling/foryou/internal/ranking"
	"github.com/TobiSchelling/foryou/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// Authors changes the viewer's standing relationship with an author.
type Authors interface {
	SetFollowed(ctx context.Context, authorID string, followed bool) error
	SetBlocked(ctx context.Context, authorID string, blocked bool) error
}

// Server is the HTTP server for the For You feed.
type Server struct {
	sess    *session.Session
	authors Authors
	pages   map[string]*template.Template
	router  chi.Router
	logger  zerolog.Logger
}

// New creates a new Server.
//
//nolint:gocritic // zerolog loggers are passed by value
func New(sess *session.Session, authors Authors, logger zerolog.Logger) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"percent":  func(f float64) string { return fmt.Sprintf("%.0f%%", f*100) },
		"ago":      ago,
		"describe": func(d feed.Delta) string { return d.Describe() },
		"join":     strings.Join,
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so its {{define}} blocks do not
	// collide with other pages.
	pageNames := []string{"index.html", "how.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		sess:    sess,
		authors: authors,
		pages:   pages,
		logger:  logger.With().Str("component", "server").Logger(),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", s.handleIndex)
	r.Get("/how", s.handleHow)
	r.Post("/settings", s.handleSettings)
	r.Post("/posts/{id}/{kind}", s.handleEngageForm)
	r.Post("/authors/{id}/{action}", s.handleAuthorAction)
	r.Post("/suggestion/{id}/{action}", s.handleSuggestionForm)

	r.Route("/api", func(r chi.Router) {
		r.Get("/feed", s.apiFeed)
		r.Get("/disclosure", s.apiDisclosure)
		r.Get("/config", s.apiGetConfig)
		r.Put("/config", s.apiPutConfig)
		r.Get("/suggestion", s.apiGetSuggestion)
		r.Post("/suggestion/{id}/accept", s.apiAcceptSuggestion)
		r.Post("/suggestion/{id}/dismiss", s.apiDismissSuggestion)
		r.Post("/engagements", s.apiEngage)
	})
	s.router = r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	res, err := s.sess.Rank(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("ranking failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	data := map[string]any{
		"Result": res,
		"Config": res.Config,
		"Mixes":  feed.Mixes,
	}
	if a := s.sess.Advisor(); a != nil {
		if sg, ok := a.Pending(); ok {
			data["Suggestion"] = sg
		}
	}
	s.render(w, "index.html", data)
}

func (s *Server) handleHow(w http.ResponseWriter, r *http.Request) {
	s.render(w, "how.html", map[string]any{
		"Disclosure": ranking.Disclosure(s.sess.Config()),
	})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	mix := feed.Mix(r.FormValue("mix"))
	if !mix.Valid() {
		http.Error(w, "Unknown mix", http.StatusBadRequest)
		return
	}
	policy := feed.MutePolicy(r.FormValue("mute_policy"))

	_, err := s.sess.Update(r.Context(), func(c *feed.Config) {
		c.Mix = mix
		c.BoostRecentInteractions = r.FormValue("boost_recent_interactions") != ""
		c.BoostActiveDiscussions = r.FormValue("boost_active_discussions") != ""
		c.PreferredTopics = splitTopics(r.FormValue("preferred_topics"))
		c.MutedTopics = splitTopics(r.FormValue("muted_topics"))
		c.MutePolicy = policy
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("saving settings failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleEngageForm(w http.ResponseWriter, r *http.Request) {
	kind := feed.EngagementKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		http.NotFound(w, r)
		return
	}
	if _, err := s.sess.Engage(r.Context(), chi.URLParam(r, "id"), kind); err != nil {
		if errors.Is(err, session.ErrPostNotFound) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error().Err(err).Msg("recording engagement failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleAuthorAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var err error
	switch chi.URLParam(r, "action") {
	case "follow":
		err = s.authors.SetFollowed(r.Context(), id, true)
	case "unfollow":
		err = s.authors.SetFollowed(r.Context(), id, false)
	case "block":
		err = s.authors.SetBlocked(r.Context(), id, true)
	case "unblock":
		err = s.authors.SetBlocked(r.Context(), id, false)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("author", id).Msg("updating author failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleSuggestionForm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	switch chi.URLParam(r, "action") {
	case "accept":
		if _, _, err := s.sess.AcceptSuggestion(r.Context(), id); err != nil && !errors.Is(err, advisor.ErrNoSuggestion) {
			s.logger.Error().Err(err).Msg("accepting suggestion failed")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	case "dismiss":
		s.sess.DismissSuggestion(r.Context(), id)
	default:
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.logger.Error().Str("template", name).Msg("template not found")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.logger.Error().Err(err).Str("template", name).Msg("rendering template failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

func splitTopics(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
}

func ago(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
