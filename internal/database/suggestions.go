package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/TobiSchelling/foryou/internal/advisor"
)

// RecordSuggestion logs a newly surfaced suggestion.
func (db *DB) RecordSuggestion(ctx context.Context, s advisor.Suggestion) error {
	delta, err := json.Marshal(s.Delta)
	if err != nil {
		return fmt.Errorf("encoding suggestion delta: %w", err)
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO suggestions (id, fingerprint, delta_json, confidence, rationale, generated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.Delta.Fingerprint(), string(delta), s.Confidence, s.Rationale, formatTime(s.GeneratedAt),
	)
	return err
}

// ResolveSuggestion records how a suggestion left the pending slot. Only the
// first outcome sticks.
func (db *DB) ResolveSuggestion(ctx context.Context, id string, outcome advisor.Outcome, at time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE suggestions SET outcome = ?, resolved_at = ? WHERE id = ? AND outcome IS NULL`,
		string(outcome), formatTime(at), id,
	)
	return err
}

// DismissedFingerprints returns the fingerprint of every dismissed suggestion.
func (db *DB) DismissedFingerprints(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT fingerprint FROM suggestions WHERE outcome = ? ORDER BY fingerprint`,
		string(advisor.OutcomeDismissed),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fps []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, err
		}
		fps = append(fps, fp)
	}
	return fps, rows.Err()
}

// ListSuggestions returns the most recent suggestions, newest first.
func (db *DB) ListSuggestions(ctx context.Context, limit int) ([]SuggestionRecord, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, fingerprint, delta_json, confidence, rationale, generated_at, outcome, resolved_at
		FROM suggestions ORDER BY generated_at DESC, id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SuggestionRecord
	for rows.Next() {
		var r SuggestionRecord
		var delta, generated string
		var outcome, resolved sql.NullString
		if err := rows.Scan(&r.ID, &r.Fingerprint, &delta, &r.Confidence, &r.Rationale,
			&generated, &outcome, &resolved); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(delta), &r.Delta); err != nil {
			return nil, fmt.Errorf("decoding suggestion %s: %w", r.ID, err)
		}
		if r.GeneratedAt, err = parseTime(generated); err != nil {
			return nil, err
		}
		if outcome.Valid {
			r.Outcome = &outcome.String
		}
		if resolved.Valid {
			t, err := parseTime(resolved.String)
			if err != nil {
				return nil, err
			}
			r.ResolvedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PendingSuggestion returns the newest suggestion that has no outcome yet,
// or nil when the slot is empty.
func (db *DB) PendingSuggestion(ctx context.Context) (*advisor.Suggestion, error) {
	var s advisor.Suggestion
	var delta, generated string
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, delta_json, confidence, rationale, generated_at
		FROM suggestions WHERE outcome IS NULL ORDER BY generated_at DESC, id LIMIT 1`,
	).Scan(&s.ID, &delta, &s.Confidence, &s.Rationale, &generated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(delta), &s.Delta); err != nil {
		return nil, fmt.Errorf("decoding suggestion %s: %w", s.ID, err)
	}
	if s.GeneratedAt, err = parseTime(generated); err != nil {
		return nil, err
	}
	return &s, nil
}
