// Package storage holds the durable record of videos that were already
// notified. A video id only ends up here after a confirmed delivery.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"tubedigest/model"
)

type Sqlite struct {
	db *sql.DB
}

func NewSqlite(path string) (*Sqlite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS processed_video (
youtube_id TEXT PRIMARY KEY,
notified_at TEXT NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init state schema: %w", err)
	}

	return &Sqlite{db: db}, nil
}

func (s *Sqlite) Load(ctx context.Context) (map[model.VideoID]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT youtube_id, notified_at FROM processed_video`)
	if err != nil {
		return nil, fmt.Errorf("failed to load processed videos: %w", err)
	}
	defer rows.Close()

	processed := map[model.VideoID]time.Time{}
	for rows.Next() {
		var id, notifiedAt string
		if err := rows.Scan(&id, &notifiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan processed video: %w", err)
		}
		ts, err := time.Parse(time.RFC3339, notifiedAt)
		if err != nil {
			return nil, fmt.Errorf("corrupt notified_at for %s: %w", id, err)
		}
		processed[model.VideoID(id)] = ts
	}

	return processed, rows.Err()
}

func (s *Sqlite) Add(ctx context.Context, id model.VideoID, notifiedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO processed_video (youtube_id, notified_at)
VALUES (?, ?)
ON CONFLICT (youtube_id) DO NOTHING`, string(id), notifiedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record processed video: %w", err)
	}

	return nil
}

func (s *Sqlite) Close() error {
	return s.db.Close()
}
