package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/TobiSchelling/foryou/internal/advisor"
	"github.com/TobiSchelling/foryou/internal/feed"
	"github.com/TobiSchelling/foryou/internal/ranking"
	"github.com/TobiSchelling/foryou/internal/session"
)

// APIResponse is the envelope for every JSON response.
type APIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *APIError `json:"error,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type feedItem struct {
	Post      feed.Post         `json:"post"`
	Score     int               `json:"score"`
	Reason    string            `json:"reason"`
	Breakdown ranking.Breakdown `json:"breakdown"`
}

type feedResponse struct {
	Items    []feedItem     `json:"items"`
	Excluded map[string]int `json:"excluded"`
	Warnings []string       `json:"warnings,omitempty"`
	Config   feed.Config    `json:"config"`
	RankedAt time.Time      `json:"rankedAt"`
}

type suggestionResponse struct {
	State      advisor.State       `json:"state"`
	Suggestion *advisor.Suggestion `json:"suggestion,omitempty"`
}

type engagementRequest struct {
	PostID string `json:"postId" validate:"required"`
	Kind   string `json:"kind" validate:"required,oneof=view reply like share"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (s *Server) apiFeed(w http.ResponseWriter, r *http.Request) {
	res, err := s.sess.Rank(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("ranking failed")
		respondError(w, http.StatusInternalServerError, "RANK_FAILED", "ranking failed")
		return
	}

	out := feedResponse{
		Items:    make([]feedItem, len(res.Items)),
		Excluded: map[string]int{},
		Warnings: res.Warnings,
		Config:   res.Config,
		RankedAt: res.RankedAt,
	}
	for i, it := range res.Items {
		out.Items[i] = feedItem{Post: it.Post, Score: it.Score, Reason: it.Reason, Breakdown: it.Breakdown}
	}
	for _, e := range res.Excluded {
		out.Excluded[string(e.Cause)]++
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) apiDisclosure(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(ranking.Disclosure(s.sess.Config())))
}

func (s *Server) apiGetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.sess.Config())
}

func (s *Server) apiPutConfig(w http.ResponseWriter, r *http.Request) {
	cfg := feed.DefaultConfig()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	if cfg.Mix != "" && !cfg.Mix.Valid() {
		respondError(w, http.StatusBadRequest, "INVALID_MIX", "unknown mix "+string(cfg.Mix))
		return
	}
	if cfg.MutePolicy != "" && cfg.MutePolicy != feed.MuteSuppress && cfg.MutePolicy != feed.MuteRemove {
		respondError(w, http.StatusBadRequest, "INVALID_MUTE_POLICY", "unknown mute policy "+string(cfg.MutePolicy))
		return
	}

	saved, err := s.sess.Replace(r.Context(), cfg)
	if err != nil {
		s.logger.Error().Err(err).Msg("saving config failed")
		respondError(w, http.StatusInternalServerError, "SAVE_FAILED", "saving configuration failed")
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

func (s *Server) apiGetSuggestion(w http.ResponseWriter, r *http.Request) {
	a := s.sess.Advisor()
	if a == nil {
		respondJSON(w, http.StatusOK, suggestionResponse{State: advisor.StateIdle})
		return
	}
	out := suggestionResponse{State: a.State()}
	if sg, ok := a.Pending(); ok {
		out.Suggestion = &sg
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) apiAcceptSuggestion(w http.ResponseWriter, r *http.Request) {
	cfg, sg, err := s.sess.AcceptSuggestion(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, advisor.ErrNoSuggestion) {
		respondError(w, http.StatusConflict, "NOT_PENDING", "no such pending suggestion")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("accepting suggestion failed")
		respondError(w, http.StatusInternalServerError, "APPLY_FAILED", "applying suggestion failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"config": cfg, "applied": sg})
}

func (s *Server) apiDismissSuggestion(w http.ResponseWriter, r *http.Request) {
	dismissed := s.sess.DismissSuggestion(r.Context(), chi.URLParam(r, "id"))
	respondJSON(w, http.StatusOK, map[string]bool{"dismissed": dismissed})
}

func (s *Server) apiEngage(w http.ResponseWriter, r *http.Request) {
	var req engagementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	e, err := s.sess.Engage(r.Context(), req.PostID, feed.EngagementKind(req.Kind))
	if errors.Is(err, session.ErrPostNotFound) {
		respondError(w, http.StatusNotFound, "POST_NOT_FOUND", err.Error())
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("recording engagement failed")
		respondError(w, http.StatusInternalServerError, "ENGAGE_FAILED", "recording engagement failed")
		return
	}
	respondJSON(w, http.StatusCreated, e)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, &APIResponse{Status: "success", Data: data})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeEnvelope(w, status, &APIResponse{Status: "error", Error: &APIError{Code: code, Message: message}})
}

func writeEnvelope(w http.ResponseWriter, status int, resp *APIResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
