package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyloom/internal/storage"
	"storyloom/internal/story"
	"storyloom/pkg/types"
)

// memStore is an in-memory Store that counts saves.
type memStore struct {
	mu      sync.Mutex
	stories map[string]*types.Story
	saves   int
	failing bool
}

func newMemStore() *memStore {
	return &memStore{stories: make(map[string]*types.Story)}
}

func (m *memStore) Load(_ context.Context, id string) (*types.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stories[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *memStore) Save(_ context.Context, s *types.Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("disk full")
	}
	m.stories[s.ID] = s.Clone()
	m.saves++
	return nil
}

func (m *memStore) List(_ context.Context) ([]storage.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	listings := make([]storage.Listing, 0, len(m.stories))
	for _, s := range m.stories {
		listings = append(listings, storage.Listing{ID: s.ID, Title: s.Title, UpdatedAt: s.UpdatedAt})
	}
	return listings, nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stories, id)
	return nil
}

func (m *memStore) Close(_ context.Context) error { return nil }

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func TestSessionApply(t *testing.T) {
	t.Run("requires a loaded story", func(t *testing.T) {
		session := NewSession(newMemStore(), nil)
		_, err := session.Apply(func(s *types.Story) *types.Story { return s })
		assert.ErrorIs(t, err, ErrNoStory)
	})

	t.Run("swaps in the returned snapshot", func(t *testing.T) {
		session := NewSession(newMemStore(), nil, WithSaveDelay(time.Hour))
		session.SetStory(story.New("Test Story"))

		updated, err := session.Apply(func(s *types.Story) *types.Story {
			result := story.CreateElement(s, types.ElementCharacter, types.ElementData{Name: "Mira"})
			return result.Story
		})
		require.NoError(t, err)

		assert.Equal(t, 1, updated.TotalElements())
		assert.Same(t, updated, session.Story())
	})
}

func TestSessionDebounce(t *testing.T) {
	t.Run("edits inside the window collapse into one save", func(t *testing.T) {
		store := newMemStore()
		session := NewSession(store, nil, WithSaveDelay(150*time.Millisecond))
		session.SetStory(story.New("Test Story"))

		for i := 0; i < 5; i++ {
			_, err := session.Apply(func(s *types.Story) *types.Story {
				out := s.Clone()
				out.UpdatedAt = time.Now()
				return out
			})
			require.NoError(t, err)
			time.Sleep(10 * time.Millisecond)
		}
		assert.Equal(t, 0, store.saveCount(), "still inside the window")

		require.Eventually(t, func() bool {
			return store.saveCount() == 1
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("mutation returning the input snapshot does not arm the timer", func(t *testing.T) {
		store := newMemStore()
		session := NewSession(store, nil, WithSaveDelay(20*time.Millisecond))
		session.SetStory(story.New("Test Story"))
		require.NoError(t, session.Flush(context.Background()))
		require.Equal(t, 1, store.saveCount())

		_, err := session.Apply(func(s *types.Story) *types.Story { return s })
		require.NoError(t, err)

		time.Sleep(60 * time.Millisecond)
		assert.Equal(t, 1, store.saveCount())
	})
}

func TestSessionFlush(t *testing.T) {
	t.Run("persists immediately and clears the pending save", func(t *testing.T) {
		store := newMemStore()
		session := NewSession(store, nil, WithSaveDelay(time.Hour))
		s := story.New("Test Story")
		session.SetStory(s)

		require.NoError(t, session.Flush(context.Background()))
		assert.Equal(t, 1, store.saveCount())

		// Nothing dirty: second flush is a no-op.
		require.NoError(t, session.Flush(context.Background()))
		assert.Equal(t, 1, store.saveCount())

		loaded, err := store.Load(context.Background(), s.ID)
		require.NoError(t, err)
		assert.Equal(t, "Test Story", loaded.Title)
	})

	t.Run("failure keeps the snapshot dirty", func(t *testing.T) {
		store := newMemStore()
		store.failing = true
		session := NewSession(store, nil, WithSaveDelay(time.Hour))
		session.SetStory(story.New("Test Story"))

		require.Error(t, session.Flush(context.Background()))

		store.mu.Lock()
		store.failing = false
		store.mu.Unlock()

		require.NoError(t, session.Flush(context.Background()))
		assert.Equal(t, 1, store.saveCount())
	})
}

func TestSessionSaveErrorHandler(t *testing.T) {
	store := newMemStore()
	store.failing = true

	var mu sync.Mutex
	var captured error
	session := NewSession(store, nil,
		WithSaveDelay(20*time.Millisecond),
		WithSaveErrorHandler(func(err error) {
			mu.Lock()
			captured = err
			mu.Unlock()
		}),
	)
	session.SetStory(story.New("Test Story"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return captured != nil
	}, time.Second, 10*time.Millisecond)
}

func TestSessionClose(t *testing.T) {
	store := newMemStore()
	session := NewSession(store, nil, WithSaveDelay(time.Hour))
	session.SetStory(story.New("Test Story"))

	require.NoError(t, session.Close(context.Background()))
	assert.Equal(t, 1, store.saveCount(), "close flushes pending work")
}

func TestSessionLoad(t *testing.T) {
	store := newMemStore()
	s := story.New("Persisted")
	require.NoError(t, store.Save(context.Background(), s))

	session := NewSession(store, nil, WithSaveDelay(time.Hour))
	require.NoError(t, session.Load(context.Background(), s.ID))

	assert.Equal(t, "Persisted", session.Story().Title)

	err := session.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
