package database

import (
	"context"
	"database/sql"
)

// GetStats returns aggregate database statistics.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{}
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM posts", &s.Posts},
		{"SELECT COUNT(*) FROM authors", &s.Authors},
		{"SELECT COUNT(*) FROM authors WHERE followed = 1", &s.FollowedAuthors},
		{"SELECT COUNT(*) FROM authors WHERE blocked = 1", &s.BlockedAuthors},
		{"SELECT COUNT(*) FROM engagements", &s.Engagements},
		{"SELECT COUNT(*) FROM suggestions", &s.Suggestions},
		{"SELECT COUNT(*) FROM suggestions WHERE outcome = 'applied'", &s.Applied},
		{"SELECT COUNT(*) FROM suggestions WHERE outcome = 'dismissed'", &s.Dismissed},
		{"SELECT COUNT(*) FROM suggestions WHERE outcome = 'expired'", &s.Expired},
	}
	for _, c := range counts {
		if err := db.conn.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	var newest sql.NullString
	if err := db.conn.QueryRowContext(ctx, "SELECT MAX(created_at) FROM posts").Scan(&newest); err != nil {
		return nil, err
	}
	if newest.Valid {
		t, err := parseTime(newest.String)
		if err != nil {
			return nil, err
		}
		s.NewestPost = &t
	}
	return s, nil
}
