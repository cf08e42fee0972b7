package database

import (
	"context"
	"fmt"
	"time"

	"github.com/TobiSchelling/foryou/internal/feed"
)

// RecordEngagement appends an entry to the engagement history. A reply also
// marks the author as recently interacted with.
func (db *DB) RecordEngagement(ctx context.Context, e feed.Engagement) error {
	if err := e.Validate(); err != nil {
		return err
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO engagements
		(id, post_id, author_id, topic, kind, author_followed, recent_interaction, active_discussion, mix, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PostID, e.AuthorID, feed.NormalizeTopic(e.Topic), string(e.Kind),
		boolInt(e.AuthorFollowed), boolInt(e.RecentInteraction), boolInt(e.ActiveDiscussion),
		string(e.Mix), formatTime(e.OccurredAt),
	)
	if err != nil {
		return fmt.Errorf("inserting engagement %s: %w", e.ID, err)
	}

	if e.Kind == feed.EngagementReply && e.AuthorID != "" {
		if err := touchInteraction(ctx, tx, e.AuthorID, e.OccurredAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecentEngagements returns history entries at or after since, newest
// first, capped at limit (zero means no cap).
func (db *DB) RecentEngagements(ctx context.Context, since time.Time, limit int) ([]feed.Engagement, error) {
	query := `SELECT id, post_id, author_id, topic, kind, author_followed, recent_interaction,
		active_discussion, mix, occurred_at
		FROM engagements WHERE occurred_at >= ? ORDER BY occurred_at DESC, id`
	args := []any{formatTime(since)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying engagements: %w", err)
	}
	defer rows.Close()

	var out []feed.Engagement
	for rows.Next() {
		var e feed.Engagement
		var kind, mix, occurred string
		if err := rows.Scan(&e.ID, &e.PostID, &e.AuthorID, &e.Topic, &kind,
			&e.AuthorFollowed, &e.RecentInteraction, &e.ActiveDiscussion, &mix, &occurred); err != nil {
			return nil, err
		}
		e.Kind = feed.EngagementKind(kind)
		e.Mix = feed.Mix(mix)
		t, err := parseTime(occurred)
		if err != nil {
			return nil, err
		}
		e.OccurredAt = t
		out = append(out, e)
	}
	return out, rows.Err()
}
