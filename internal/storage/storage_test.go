package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyloom/internal/story"
	"storyloom/pkg/types"
)

func TestAtomicWriteFile(t *testing.T) {
	t.Run("writes content", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.json")
		require.NoError(t, atomicWriteFile(path, []byte("hello")))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	})

	t.Run("creates parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "out.json")
		require.NoError(t, atomicWriteFile(path, []byte("x")))

		_, err := os.Stat(path)
		assert.NoError(t, err)
	})

	t.Run("overwrites existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.json")
		require.NoError(t, atomicWriteFile(path, []byte("old")))
		require.NoError(t, atomicWriteFile(path, []byte("new")))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "new", string(data))
	})
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	newStore := func(t *testing.T) *FileStore {
		t.Helper()
		return NewFileStore(filepath.Join(t.TempDir(), "story.json"), nil)
	}

	t.Run("load before any save reports not found", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Load(ctx, "anything")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("save and load round-trip", func(t *testing.T) {
		store := newStore(t)
		s := story.New("Resident Story")
		created := story.CreateElement(s, types.ElementCharacter, types.ElementData{Name: "Mira"})
		require.Empty(t, created.Errors)
		s = created.Story

		require.NoError(t, store.Save(ctx, s))

		loaded, err := store.Load(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.Title, loaded.Title)
		assert.Len(t, loaded.Elements[types.ElementCharacter], 1)
		assert.Equal(t, "Mira", loaded.Elements[types.ElementCharacter][0].Name)
	})

	t.Run("load with a different id reports not found", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(ctx, story.New("One")))

		_, err := store.Load(ctx, "some-other-id")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list returns at most the resident story", func(t *testing.T) {
		store := newStore(t)

		listings, err := store.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, listings)

		s := story.New("Resident Story")
		require.NoError(t, store.Save(ctx, s))

		listings, err = store.List(ctx)
		require.NoError(t, err)
		require.Len(t, listings, 1)
		assert.Equal(t, s.ID, listings[0].ID)
		assert.Equal(t, "Resident Story", listings[0].Title)
	})

	t.Run("delete removes the file and tolerates repeats", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(ctx, story.New("Gone")))

		require.NoError(t, store.Delete(ctx, ""))
		_, err := store.Load(ctx, "")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.NoError(t, store.Delete(ctx, ""))
	})
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()

	newStore := func(t *testing.T) *SQLiteStore {
		t.Helper()
		store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "library.db"), nil)
		require.NoError(t, err)
		t.Cleanup(func() { store.Close(ctx) })
		return store
	}

	t.Run("save and load round-trip", func(t *testing.T) {
		store := newStore(t)
		s := story.New("Library Story")

		require.NoError(t, store.Save(ctx, s))

		loaded, err := store.Load(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, "Library Story", loaded.Title)
		require.Len(t, loaded.Chapters, 1)
	})

	t.Run("save is an upsert", func(t *testing.T) {
		store := newStore(t)
		s := story.New("First Title")
		require.NoError(t, store.Save(ctx, s))

		s = s.Clone()
		s.Title = "Second Title"
		s.UpdatedAt = time.Now()
		require.NoError(t, store.Save(ctx, s))

		loaded, err := store.Load(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, "Second Title", loaded.Title)

		listings, err := store.List(ctx)
		require.NoError(t, err)
		assert.Len(t, listings, 1)
	})

	t.Run("list orders by most recently updated", func(t *testing.T) {
		store := newStore(t)

		older := story.New("Older")
		older.UpdatedAt = time.Now().Add(-time.Hour)
		require.NoError(t, store.Save(ctx, older))

		newer := story.New("Newer")
		newer.UpdatedAt = time.Now()
		require.NoError(t, store.Save(ctx, newer))

		listings, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, listings, 2)
		assert.Equal(t, "Newer", listings[0].Title)
	})

	t.Run("unknown id reports not found", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Load(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("timestamp columns share millisecond units", func(t *testing.T) {
		store := newStore(t)
		s := story.New("Timed")
		require.NoError(t, store.Save(ctx, s))

		var created, updated int64
		require.NoError(t, store.db.QueryRowContext(ctx,
			"SELECT created_at, updated_at FROM stories WHERE id = ?", s.ID,
		).Scan(&created, &updated))

		assert.Equal(t, s.CreatedAt.UnixMilli(), created)
		assert.Equal(t, s.UpdatedAt.UnixMilli(), updated)
	})

	t.Run("delete removes the row", func(t *testing.T) {
		store := newStore(t)
		s := story.New("Doomed")
		require.NoError(t, store.Save(ctx, s))
		require.NoError(t, store.Delete(ctx, s.ID))

		_, err := store.Load(ctx, s.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestOpenBackendSelection(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("file backend by default", func(t *testing.T) {
		store, err := Open(ctx, types.StorageConfig{Path: filepath.Join(dir, "story.json")}, nil)
		require.NoError(t, err)
		defer store.Close(ctx)

		_, ok := store.(*FileStore)
		assert.True(t, ok)
	})

	t.Run("library path selects sqlite", func(t *testing.T) {
		store, err := Open(ctx, types.StorageConfig{LibraryPath: filepath.Join(dir, "library.db")}, nil)
		require.NoError(t, err)
		defer store.Close(ctx)

		_, ok := store.(*SQLiteStore)
		assert.True(t, ok)
	})
}
