package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ensureAuthor creates the author row if it does not exist and fills in a
// missing handle.
func ensureAuthor(ctx context.Context, ex execer, id, handle string, now time.Time) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO authors (id, handle, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET handle = excluded.handle
		WHERE authors.handle = '' AND excluded.handle != ''`,
		id, handle, formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("saving author %s: %w", id, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SetFollowed records whether the viewer follows an author.
func (db *DB) SetFollowed(ctx context.Context, authorID string, followed bool) error {
	return db.setAuthorFlag(ctx, authorID, "followed", followed)
}

// SetBlocked records whether the viewer has blocked an author.
func (db *DB) SetBlocked(ctx context.Context, authorID string, blocked bool) error {
	return db.setAuthorFlag(ctx, authorID, "blocked", blocked)
}

func (db *DB) setAuthorFlag(ctx context.Context, authorID, column string, value bool) error {
	now := time.Now()
	if err := ensureAuthor(ctx, db.conn, authorID, "", now); err != nil {
		return err
	}
	// column is one of two constants above, never user input.
	_, err := db.conn.ExecContext(ctx,
		"UPDATE authors SET "+column+" = ?, updated_at = ? WHERE id = ?",
		boolInt(value), formatTime(now), authorID,
	)
	if err != nil {
		return fmt.Errorf("updating author %s: %w", authorID, err)
	}
	return nil
}

// TouchInteraction records that the viewer interacted with an author at t.
// Older timestamps never overwrite newer ones.
func (db *DB) TouchInteraction(ctx context.Context, authorID string, t time.Time) error {
	return touchInteraction(ctx, db.conn, authorID, t)
}

func touchInteraction(ctx context.Context, ex execer, authorID string, t time.Time) error {
	if err := ensureAuthor(ctx, ex, authorID, "", t); err != nil {
		return err
	}
	ts := formatTime(t)
	_, err := ex.ExecContext(ctx,
		`UPDATE authors SET last_interaction_at = ?, updated_at = ?
		WHERE id = ? AND (last_interaction_at IS NULL OR last_interaction_at < ?)`,
		ts, ts, authorID, ts,
	)
	if err != nil {
		return fmt.Errorf("recording interaction with %s: %w", authorID, err)
	}
	return nil
}

// GetAuthor returns a single author, or nil if unknown.
func (db *DB) GetAuthor(ctx context.Context, id string) (*Author, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, handle, followed, blocked, last_interaction_at, updated_at FROM authors WHERE id = ?`, id,
	)
	a, err := scanAuthor(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// ListAuthors returns authors the viewer follows or has blocked.
func (db *DB) ListAuthors(ctx context.Context) ([]Author, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, handle, followed, blocked, last_interaction_at, updated_at
		FROM authors WHERE followed = 1 OR blocked = 1 ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var authors []Author
	for rows.Next() {
		a, err := scanAuthor(rows)
		if err != nil {
			return nil, err
		}
		authors = append(authors, *a)
	}
	return authors, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAuthor(s scanner) (*Author, error) {
	var a Author
	var lastInteraction sql.NullString
	var updated string
	if err := s.Scan(&a.ID, &a.Handle, &a.Followed, &a.Blocked, &lastInteraction, &updated); err != nil {
		return nil, err
	}
	t, err := parseTime(updated)
	if err != nil {
		return nil, err
	}
	a.UpdatedAt = t
	if lastInteraction.Valid {
		li, err := parseTime(lastInteraction.String)
		if err != nil {
			return nil, err
		}
		a.LastInteractionAt = &li
	}
	return &a, nil
}
