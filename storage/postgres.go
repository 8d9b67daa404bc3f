package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"tubedigest/model"
)

type PostgresInfo struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

var pgMigration = []string{
	`CREATE TABLE processed_video (
youtube_id VARCHAR(255) PRIMARY KEY,
notified_at TIMESTAMPTZ NOT NULL
)`,
}

type Postgres struct {
	db *sql.DB
}

func NewPostgres(pgInfo PostgresInfo) (*Postgres, error) {
	db, err := sql.Open("postgres", fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		pgInfo.Host, pgInfo.Port, pgInfo.User, pgInfo.Password, pgInfo.Database))
	if err != nil {
		return nil, err
	}

	p := &Postgres{db: db}
	if err := p.migrate(pgMigration); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Postgres) Load(ctx context.Context) (map[model.VideoID]time.Time, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT youtube_id, notified_at FROM processed_video`)
	if err != nil {
		return nil, fmt.Errorf("failed to load processed videos: %w", err)
	}
	defer rows.Close()

	processed := map[model.VideoID]time.Time{}
	for rows.Next() {
		var id string
		var notifiedAt time.Time
		if err := rows.Scan(&id, &notifiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan processed video: %w", err)
		}
		processed[model.VideoID(id)] = notifiedAt
	}

	return processed, rows.Err()
}

func (p *Postgres) Add(ctx context.Context, id model.VideoID, notifiedAt time.Time) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO processed_video (youtube_id, notified_at)
VALUES ($1, $2)
ON CONFLICT (youtube_id) DO NOTHING`, string(id), notifiedAt)
	if err != nil {
		return fmt.Errorf("failed to record processed video: %w", err)
	}

	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) migrate(wanted []string) error {
	query := `CREATE TABLE IF NOT EXISTS migration
("id" SERIAL PRIMARY KEY, "query" TEXT)`
	if _, err := p.db.Exec(query); err != nil {
		return err
	}

	// find existing
	rows, err := p.db.Query(`SELECT query FROM migration ORDER BY id`)
	if err != nil {
		return err
	}

	existing := []string{}
	for rows.Next() {
		var query string
		if err := rows.Scan(&query); err != nil {
			return err
		}
		existing = append(existing, query)
	}
	rows.Close()

	// compare
	missing, err := compareMigrations(wanted, existing)
	if err != nil {
		return err
	}

	// execute missing
	for _, query := range missing {
		if _, err := p.db.Exec(query); err != nil {
			return err
		}

		// register
		if _, err := p.db.Exec(`
INSERT INTO migration
(query) VALUES ($1)
`, query); err != nil {
			return err
		}
	}

	return nil
}

func compareMigrations(wanted, existing []string) ([]string, error) {
	needed := []string{}
	if len(wanted) < len(existing) {
		return []string{}, fmt.Errorf("not enough migrations")
	}

	for i, want := range wanted {
		switch {
		case i >= len(existing):
			needed = append(needed, want)
		case want == existing[i]:
			// do nothing
		case want != existing[i]:
			return []string{}, fmt.Errorf("incompatible migration: %v", want)
		}
	}

	return needed, nil
}
