// Package db keeps the download history in SQLite.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one completed download.
type Record struct {
	ID        int64     `json:"id"`
	VideoID   string    `json:"video_id,omitempty"`
	Title     string    `json:"title"`
	Uploader  string    `json:"uploader,omitempty"`
	SourceURL string    `json:"source_url"`
	MediaType string    `json:"media_type"`
	Format    string    `json:"format"`
	Quality   string    `json:"quality,omitempty"`
	Selector  string    `json:"selector"`
	FileSize  int64     `json:"file_size"`
	Duration  int       `json:"duration"`
	CreatedAt time.Time `json:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS downloads (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    video_id    TEXT NOT NULL DEFAULT '',
    title       TEXT NOT NULL DEFAULT '',
    uploader    TEXT NOT NULL DEFAULT '',
    source_url  TEXT NOT NULL,
    media_type  TEXT NOT NULL DEFAULT 'video',
    format      TEXT NOT NULL DEFAULT '',
    quality     TEXT NOT NULL DEFAULT '',
    selector    TEXT NOT NULL DEFAULT '',
    file_size   INTEGER NOT NULL DEFAULT 0,
    duration    INTEGER NOT NULL DEFAULT 0,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_downloads_created_at ON downloads(created_at);
CREATE INDEX IF NOT EXISTS idx_downloads_video_id ON downloads(video_id);
`

var errNotOpen = errors.New("database not initialized")

// DB wraps the SQLite connection.
type DB struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the database at path. ":memory:" works for tests.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database at %s: %w", path, err)
	}
	// One connection keeps ":memory:" databases shared and writes serialized.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &DB{db: sqlDB}, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Insert stores r and returns its row id.
func (d *DB) Insert(ctx context.Context, r Record) (int64, error) {
	if d == nil || d.db == nil {
		return 0, errNotOpen
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if r.MediaType == "" {
		r.MediaType = "video"
	}
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO downloads (
			video_id, title, uploader, source_url, media_type,
			format, quality, selector, file_size, duration
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.VideoID, r.Title, r.Uploader, r.SourceURL, r.MediaType,
		r.Format, r.Quality, r.Selector, r.FileSize, r.Duration,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting download: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}
	return id, nil
}

// List returns the newest records first.
func (d *DB) List(ctx context.Context, limit, offset int) ([]Record, error) {
	if d == nil || d.db == nil {
		return nil, errNotOpen
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, video_id, title, uploader, source_url, media_type,
			format, quality, selector, file_size, duration, created_at
		FROM downloads
		ORDER BY id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying downloads: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.ID, &r.VideoID, &r.Title, &r.Uploader, &r.SourceURL, &r.MediaType,
			&r.Format, &r.Quality, &r.Selector, &r.FileSize, &r.Duration, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning download row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the number of stored records.
func (d *DB) Count(ctx context.Context) (int, error) {
	if d == nil || d.db == nil {
		return 0, errNotOpen
	}
	var n int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM downloads").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting downloads: %w", err)
	}
	return n, nil
}
