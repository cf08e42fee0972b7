package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/TobiSchelling/foryou/internal/feed"
)

// LoadViewerConfig returns the saved feed configuration, or nil if none has
// been saved. A stored document that cannot be decoded yields the defaults
// together with the decode error.
func (db *DB) LoadViewerConfig(ctx context.Context) (*feed.Config, error) {
	var raw string
	err := db.conn.QueryRowContext(ctx, `SELECT config_json FROM viewer_config WHERE id = 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cfg, err := feed.ParseConfig([]byte(raw))
	if err != nil {
		return &cfg, fmt.Errorf("decoding saved feed configuration: %w", err)
	}
	return &cfg, nil
}

// SaveViewerConfig replaces the saved feed configuration.
func (db *DB) SaveViewerConfig(ctx context.Context, cfg feed.Config) error {
	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("encoding feed configuration: %w", err)
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO viewer_config (id, config_json, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET config_json = excluded.config_json, updated_at = excluded.updated_at`,
		string(data), formatTime(time.Now()),
	)
	return err
}
