package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/TobiSchelling/foryou/internal/feed"
)

// InsertPost stores a candidate post. Returns false if a post with the same
// ID already exists; existing posts are left untouched.
func (db *DB) InsertPost(ctx context.Context, p feed.Post, meta PostMeta) (bool, error) {
	now := time.Now()
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if err := ensureAuthor(ctx, tx, p.AuthorID, p.AuthorHandle, now); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO posts
		(id, author_id, created_at, topic, body, link, source, has_active_discussion, reply_count, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.AuthorID, formatTime(p.CreatedAt), feed.NormalizeTopic(p.Topic), p.Body,
		meta.Link, meta.Source, boolInt(p.HasActiveDiscussion), max(p.ReplyCount, 0), formatTime(now),
	)
	if err != nil {
		return false, fmt.Errorf("inserting post %s: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateDiscussion refreshes the reply count and discussion flag of a post.
func (db *DB) UpdateDiscussion(ctx context.Context, postID string, replyCount int, active bool) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE posts SET reply_count = ?, has_active_discussion = ? WHERE id = ?`,
		max(replyCount, 0), boolInt(active), postID,
	)
	return err
}

const postColumns = `p.id, p.author_id, a.handle, p.created_at, p.topic, p.body,
	p.has_active_discussion, p.reply_count, a.followed, a.blocked,
	COALESCE(a.last_interaction_at >= ?, 0)`

// GetPost returns a post with the viewer's current relationship to its
// author, or nil if not found.
func (db *DB) GetPost(ctx context.Context, id string, interactedSince time.Time) (*feed.Post, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts p JOIN authors a ON a.id = p.author_id WHERE p.id = ?`,
		formatTime(interactedSince), id,
	)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// CandidatePosts returns the candidate set for ranking, newest first, with
// relationship flags resolved from the authors table.
func (db *DB) CandidatePosts(ctx context.Context, q CandidateQuery) ([]feed.Post, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + postColumns + ` FROM posts p JOIN authors a ON a.id = p.author_id`)
	args := []any{formatTime(q.InteractedSince)}
	if !q.Since.IsZero() {
		sb.WriteString(` WHERE p.created_at >= ?`)
		args = append(args, formatTime(q.Since))
	}
	sb.WriteString(` ORDER BY p.created_at DESC, p.id`)
	if q.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying candidates: %w", err)
	}
	defer rows.Close()

	var posts []feed.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

func scanPost(s scanner) (*feed.Post, error) {
	var p feed.Post
	var created string
	if err := s.Scan(&p.ID, &p.AuthorID, &p.AuthorHandle, &created, &p.Topic, &p.Body,
		&p.HasActiveDiscussion, &p.ReplyCount,
		&p.Relationship.Followed, &p.Relationship.Blocked, &p.Relationship.RecentInteraction); err != nil {
		return nil, err
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = t
	return &p, nil
}

// PostsNeedingBody returns posts with an empty body and a link that has not
// been fetched yet, newest first.
func (db *DB) PostsNeedingBody(ctx context.Context, limit int) ([]BodyTarget, error) {
	query := `SELECT id, link FROM posts
		WHERE body = '' AND link != '' AND body_fetched = 0
		ORDER BY created_at DESC, id`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying posts needing body: %w", err)
	}
	defer rows.Close()

	var out []BodyTarget
	for rows.Next() {
		var b BodyTarget
		if err := rows.Scan(&b.ID, &b.Link); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpdatePostBody stores extracted body text and marks the post as fetched.
func (db *DB) UpdatePostBody(ctx context.Context, id, body string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE posts SET body = ?, body_fetched = 1 WHERE id = ?`, body, id)
	return err
}

// MarkBodyFetchAttempted records a failed fetch so the post is not retried.
func (db *DB) MarkBodyFetchAttempted(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE posts SET body_fetched = 1 WHERE id = ?`, id)
	return err
}
