package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"storyloom/pkg/types"
)

// SQLiteStore is a local multi-story library. Each row keeps the full
// aggregate as an opaque JSON document plus denormalized title and
// timestamp columns for listing.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens or creates the library database.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", filepath.Clean(path)+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open library database: %w", err)
	}

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize library database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stories (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		document TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_stories_updated
	ON stories(updated_at);

	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load reads one story document by id.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*types.Story, error) {
	var document string
	err := s.db.QueryRowContext(ctx,
		"SELECT document FROM stories WHERE id = ?", id,
	).Scan(&document)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load story: %w", err)
	}

	var story types.Story
	if err := json.Unmarshal([]byte(document), &story); err != nil {
		return nil, fmt.Errorf("failed to decode story document: %w", err)
	}
	return &story, nil
}

// Save upserts the story by id. The title and updated_at columns are
// denormalized copies used by List.
func (s *SQLiteStore) Save(ctx context.Context, story *types.Story) error {
	document, err := json.Marshal(story)
	if err != nil {
		return fmt.Errorf("failed to encode story: %w", err)
	}

	updatedAt := story.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO stories (id, title, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			document = excluded.document,
			updated_at = excluded.updated_at
	`, story.ID, story.Title, string(document), story.CreatedAt.UnixMilli(), updatedAt.UnixMilli())
	if err != nil {
		s.logger.Error("story upsert failed", "id", story.ID, "error", err)
		return fmt.Errorf("failed to save story: %w", err)
	}
	return nil
}

// List enumerates stored stories, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]Listing, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, updated_at FROM stories ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	defer rows.Close()

	var listings []Listing
	for rows.Next() {
		var l Listing
		var updatedUnix int64
		if err := rows.Scan(&l.ID, &l.Title, &updatedUnix); err != nil {
			return nil, err
		}
		l.UpdatedAt = time.UnixMilli(updatedUnix)
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// Delete removes one story by id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM stories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete story: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close(_ context.Context) error {
	return s.db.Close()
}
