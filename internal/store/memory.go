package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/hushapp/hush/internal/domain"
)

// Memory is a process-local Backend. Records are copied on the way in and out.
type Memory struct {
	mu         sync.RWMutex
	progress   map[string]domain.ReadingProgress
	narration  map[string]domain.NarrationPreference
	flags      map[string]bool
	emitter    EventEmitter
	saveErr    error
	saveCalled int
}

// NewMemory creates an empty in-memory backend.
func NewMemory(emitter EventEmitter) *Memory {
	if emitter == nil {
		emitter = NewNoopEmitter()
	}
	return &Memory{
		progress:  make(map[string]domain.ReadingProgress),
		narration: make(map[string]domain.NarrationPreference),
		flags:     make(map[string]bool),
		emitter:   emitter,
	}
}

// FailSaves makes every later SaveProgress return err. Pass nil to recover.
func (m *Memory) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// Saves returns how many times SaveProgress was called, including failed calls.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveCalled
}

// SaveProgress overwrites the reading position for a story.
func (m *Memory) SaveProgress(ctx context.Context, p *domain.ReadingProgress) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateProgress(p); err != nil {
		return err
	}

	m.mu.Lock()
	m.saveCalled++
	if m.saveErr != nil {
		err := m.saveErr
		m.mu.Unlock()
		return err
	}
	m.progress[p.StoryID] = *p
	m.mu.Unlock()

	m.emitter.Emit(ProgressSaved{Progress: *p})
	return nil
}

// LoadProgress returns the saved position for a story.
func (m *Memory) LoadProgress(ctx context.Context, storyID string) (*domain.ReadingProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.progress[storyID]
	if !ok {
		return nil, ErrProgressNotFound
	}
	return &p, nil
}

// DeleteProgress forgets the position for a story.
func (m *Memory) DeleteProgress(ctx context.Context, storyID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	_, ok := m.progress[storyID]
	delete(m.progress, storyID)
	m.mu.Unlock()

	if ok {
		m.emitter.Emit(ProgressDeleted{StoryID: storyID})
	}
	return nil
}

// ListProgress returns every saved position ordered by story ID.
func (m *Memory) ListProgress(ctx context.Context) ([]*domain.ReadingProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.ReadingProgress, 0, len(m.progress))
	for _, p := range m.progress {
		out = append(out, &p)
	}
	slices.SortFunc(out, func(a, b *domain.ReadingProgress) int {
		return strings.Compare(a.StoryID, b.StoryID)
	})
	return out, nil
}

// SaveNarrationPreference records the narration mode chosen for a story.
func (m *Memory) SaveNarrationPreference(ctx context.Context, p *domain.NarrationPreference) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidatePreference(p); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.narration[p.StoryID] = *p
	return nil
}

// LoadNarrationPreference returns the saved narration mode for a story.
func (m *Memory) LoadNarrationPreference(ctx context.Context, storyID string) (*domain.NarrationPreference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.narration[storyID]
	if !ok {
		return nil, ErrPreferenceNotFound
	}
	return &p, nil
}

// SetFlag stores a named boolean.
func (m *Memory) SetFlag(ctx context.Context, name string, value bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" {
		return ErrInvalidInput.WithMessage("flag name is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[name] = value
	return nil
}

// GetFlag reads a named boolean. Unset flags are false.
func (m *Memory) GetFlag(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flags[name], nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

var (
	_ Backend = (*Memory)(nil)
	_ Backend = (*Store)(nil)
)
