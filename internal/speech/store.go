package speech

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ClipStore indexes synthesized clips on disk so identical text+voice
// pairs are fetched from the TTS upstream only once.
type ClipStore struct {
	db *sql.DB
}

// NewClipStore opens (or creates) the SQLite clip index.
func NewClipStore(dbPath string) (*ClipStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for concurrent lookups while the sweeper runs.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &ClipStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *ClipStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS clips (
		hash TEXT PRIMARY KEY,
		voice TEXT NOT NULL,
		filename TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_clips_created ON clips(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Lookup returns the filename for a clip hash, if indexed.
func (s *ClipStore) Lookup(ctx context.Context, hash string) (string, bool) {
	var filename string
	err := s.db.QueryRowContext(ctx,
		`SELECT filename FROM clips WHERE hash = ?`, hash).Scan(&filename)
	if err != nil {
		return "", false
	}
	return filename, true
}

// Insert records a freshly synthesized clip.
func (s *ClipStore) Insert(ctx context.Context, hash, voice, filename string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO clips (hash, voice, filename, created_at) VALUES (?, ?, ?, ?)`,
		hash, voice, filename, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("insert clip: %w", err)
	}
	return nil
}

// Expired returns the filenames of clips older than ttl.
func (s *ClipStore) Expired(ctx context.Context, ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl).Unix()
	rows, err := s.db.QueryContext(ctx,
		`SELECT filename FROM clips WHERE created_at < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query expired clips: %w", err)
	}
	defer rows.Close()

	var filenames []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("scan clip row: %w", err)
		}
		filenames = append(filenames, f)
	}
	return filenames, rows.Err()
}

// DeleteByFilename removes index entries for the given filenames.
func (s *ClipStore) DeleteByFilename(ctx context.Context, filenames []string) error {
	for _, f := range filenames {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM clips WHERE filename = ?`, f); err != nil {
			return fmt.Errorf("delete clip %s: %w", f, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *ClipStore) Close() error {
	return s.db.Close()
}
