package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"storyloom/internal/llm"
	"storyloom/internal/llm/adapters"
	"storyloom/internal/storage"
	"storyloom/pkg/types"
)

// SaveDelay is the debounce window between the last mutation and the
// persisted write. Edits landing inside the window collapse into one save;
// a crash inside the window loses at most that window of work.
const SaveDelay = 2000 * time.Millisecond

// ErrNoStory is returned by operations that require a loaded story.
var ErrNoStory = errors.New("no story loaded")

// saveTimeout bounds the background write triggered by the debounce timer.
const saveTimeout = 10 * time.Second

// Session holds the current story snapshot and schedules persistence.
// Mutations go through Apply, which swaps in the new snapshot and arms the
// debounce timer; every mutation inside the window pushes the save back.
type Session struct {
	mu     sync.Mutex
	store  storage.Store
	story  *types.Story
	timer  *time.Timer
	dirty  bool
	closed bool

	delay       time.Duration
	logger      *slog.Logger
	onSaveError func(error)
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSaveDelay overrides the debounce window.
func WithSaveDelay(d time.Duration) SessionOption {
	return func(s *Session) { s.delay = d }
}

// WithSaveErrorHandler installs a callback invoked when a background save
// fails. The snapshot stays dirty and the next mutation retries.
func WithSaveErrorHandler(fn func(error)) SessionOption {
	return func(s *Session) { s.onSaveError = fn }
}

// NewSession creates a session over the given store.
func NewSession(store storage.Store, logger *slog.Logger, opts ...SessionOption) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		store:  store,
		delay:  SaveDelay,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listings returns the stories available in the store, most recently
// updated first.
func (s *Session) Listings(ctx context.Context) ([]storage.Listing, error) {
	return s.store.List(ctx)
}

// Load fetches a story from the store and makes it current. Any pending
// save of the previous story is flushed first.
func (s *Session) Load(ctx context.Context, id string) error {
	if err := s.Flush(ctx); err != nil {
		return err
	}

	story, err := s.store.Load(ctx, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.story = story
	s.dirty = false
	s.mu.Unlock()

	s.logger.Info("story loaded", "story_id", story.ID, "title", story.Title)
	return nil
}

// SetStory makes a freshly created story current and schedules its first
// save.
func (s *Session) SetStory(story *types.Story) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.story = story
	s.markDirty()
}

// Story returns the current snapshot, or nil when none is loaded. Callers
// must not mutate the returned value; all changes go through Apply.
func (s *Session) Story() *types.Story {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.story
}

// Apply runs a snapshot-in, snapshot-out mutation against the current story
// and schedules a save when the snapshot changed. Mutations that return the
// input snapshot unchanged do not arm the timer.
func (s *Session) Apply(mutate func(*types.Story) *types.Story) (*types.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.story == nil {
		return nil, ErrNoStory
	}

	next := mutate(s.story)
	if next == nil {
		return nil, fmt.Errorf("mutation returned nil story")
	}
	if next != s.story {
		s.story = next
		s.markDirty()
	}
	return s.story, nil
}

// markDirty arms or re-arms the debounce timer. Caller holds s.mu.
func (s *Session) markDirty() {
	s.dirty = true
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Reset(s.delay)
		return
	}
	s.timer = time.AfterFunc(s.delay, s.saveNow)
}

// saveNow is the timer callback; it persists the current snapshot.
func (s *Session) saveNow() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := s.Flush(ctx); err != nil {
		s.logger.Error("autosave failed", "error", err)
		if s.onSaveError != nil {
			s.onSaveError(err)
		}
	}
}

// Flush persists the current snapshot immediately if it is dirty and stops
// any pending timer. On failure the snapshot stays dirty.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	if !s.dirty || s.story == nil {
		s.mu.Unlock()
		return nil
	}
	story := s.story
	s.mu.Unlock()

	if err := s.store.Save(ctx, story); err != nil {
		return fmt.Errorf("failed to save story: %w", err)
	}

	s.mu.Lock()
	// A mutation may have landed while saving; only clear when the saved
	// snapshot is still current.
	if s.story == story {
		s.dirty = false
	}
	s.mu.Unlock()

	s.logger.Debug("story saved", "story_id", story.ID)
	return nil
}

// Close flushes pending work and releases the store.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	flushErr := s.Flush(ctx)
	closeErr := s.store.Close(ctx)
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// NewProvider builds the LLM provider named by the configuration.
func NewProvider(ctx context.Context, config *types.GlobalConfig, name string) (llm.Provider, error) {
	if name == "" {
		name = config.Defaults.Provider
	}
	provider, ok := config.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}

	switch name {
	case "openai":
		return adapters.NewOpenAIAdapter(provider.APIKey, provider.DefaultModel, provider.BaseURL)
	case "gemini":
		return adapters.NewGeminiAdapter(ctx, provider.APIKey, provider.DefaultModel)
	default:
		return nil, fmt.Errorf("unsupported provider %q", name)
	}
}

// NewLogger builds the process logger from the logging configuration.
func NewLogger(config types.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch config.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
