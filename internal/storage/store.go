// Package storage provides the persistence gateway for story aggregates.
// A story is serialized as one opaque JSON document; backends differ only
// in where that document lives. Writes are last-write-wins everywhere, with
// no conflict detection.
package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"storyloom/pkg/types"
)

// ErrNotFound is returned when no story exists under the requested id.
var ErrNotFound = errors.New("story not found")

// Listing is the denormalized row shown when enumerating stored stories.
type Listing struct {
	ID        string
	Title     string
	UpdatedAt time.Time
}

// Store is the persistence gateway. All implementations serialize the full
// aggregate as a single JSON document.
type Store interface {
	// Load returns the story stored under id, or ErrNotFound.
	Load(ctx context.Context, id string) (*types.Story, error)

	// Save upserts the story by id. Last write wins.
	Save(ctx context.Context, s *types.Story) error

	// List enumerates stored stories without loading their documents.
	List(ctx context.Context) ([]Listing, error)

	// Delete removes the story stored under id.
	Delete(ctx context.Context, id string) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// Open selects a backend from configuration presence rather than explicit
// user choice: a Mongo URI selects the remote store, a library path selects
// the local SQLite library, and otherwise the single-story file is used.
func Open(ctx context.Context, cfg types.StorageConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch {
	case cfg.MongoURI != "":
		logger.Debug("opening remote story store", "database", cfg.MongoDatabase)
		return NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.OwnerID, logger)
	case cfg.LibraryPath != "":
		logger.Debug("opening sqlite story library", "path", cfg.LibraryPath)
		return NewSQLiteStore(cfg.LibraryPath, logger)
	default:
		logger.Debug("opening local story file", "path", cfg.Path)
		return NewFileStore(cfg.Path, logger), nil
	}
}
