package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"storyloom/pkg/types"
)

// FileStore keeps a single story as a JSON document at one well-known
// path. Only one story is resident at a time; saving a different story id
// simply replaces the previous one.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a file-backed store. The file is created on first
// save.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger}
}

// Load reads the resident story. The id is checked only when the document
// carries a different one.
func (f *FileStore) Load(_ context.Context, id string) (*types.Story, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read story file: %w", err)
	}

	var s types.Story
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode story file: %w", err)
	}
	if id != "" && s.ID != id {
		return nil, ErrNotFound
	}
	return &s, nil
}

// Save serializes the story and writes it atomically.
func (f *FileStore) Save(_ context.Context, s *types.Story) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode story: %w", err)
	}
	if err := atomicWriteFile(f.path, data); err != nil {
		f.logger.Error("story file write failed", "path", f.path, "error", err)
		return err
	}
	return nil
}

// List returns at most one listing: the resident story.
func (f *FileStore) List(ctx context.Context) ([]Listing, error) {
	s, err := f.Load(ctx, "")
	if err != nil {
		if err == ErrNotFound {
			return []Listing{}, nil
		}
		return nil, err
	}
	return []Listing{{ID: s.ID, Title: s.Title, UpdatedAt: s.UpdatedAt}}, nil
}

// Delete removes the story file.
func (f *FileStore) Delete(_ context.Context, _ string) error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete story file: %w", err)
	}
	return nil
}

// Close is a no-op for the file backend.
func (f *FileStore) Close(_ context.Context) error {
	return nil
}
