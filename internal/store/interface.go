// Package store persists reading progress, narration preferences and small
// reader flags. The badger-backed Store is the default backend; the sqlite and
// redis subpackages and the in-memory Memory implement the same interfaces.
package store

import (
	"context"

	"github.com/hushapp/hush/internal/domain"
)

// ProgressStore records where a reader is in each story.
// A save overwrites the previous record for the story.
type ProgressStore interface {
	SaveProgress(ctx context.Context, p *domain.ReadingProgress) error
	// LoadProgress returns ErrProgressNotFound when the story was never opened.
	LoadProgress(ctx context.Context, storyID string) (*domain.ReadingProgress, error)
	DeleteProgress(ctx context.Context, storyID string) error
	ListProgress(ctx context.Context) ([]*domain.ReadingProgress, error)
}

// PreferenceStore records narration choices and reader flags.
type PreferenceStore interface {
	SaveNarrationPreference(ctx context.Context, p *domain.NarrationPreference) error
	// LoadNarrationPreference returns ErrPreferenceNotFound when nothing was saved.
	LoadNarrationPreference(ctx context.Context, storyID string) (*domain.NarrationPreference, error)
	// SetFlag stores a named boolean, e.g. domain.FlagOnboardingSeen.
	SetFlag(ctx context.Context, name string, value bool) error
	// GetFlag returns false for flags that were never set.
	GetFlag(ctx context.Context, name string) (bool, error)
}

// Backend is a complete persistence backend.
type Backend interface {
	ProgressStore
	PreferenceStore
	Close() error
}

// EventEmitter is the interface for emitting store change events.
// Store uses this to broadcast changes without depending on the event bus.
type EventEmitter interface {
	Emit(event any)
}

// NoopEmitter is a no-op implementation of EventEmitter for testing.
type NoopEmitter struct{}

// Emit implements EventEmitter.Emit as a no-op.
func (NoopEmitter) Emit(_ any) {}

// NewNoopEmitter creates a new no-op emitter for testing.
func NewNoopEmitter() EventEmitter {
	return NoopEmitter{}
}

// ProgressSaved is emitted after a progress record is written.
type ProgressSaved struct {
	Progress domain.ReadingProgress
}

// ProgressDeleted is emitted after a story's progress is cleared.
type ProgressDeleted struct {
	StoryID string
}

// ValidateProgress checks a record before it is written. Shared by all backends.
func ValidateProgress(p *domain.ReadingProgress) error {
	if p == nil || p.StoryID == "" {
		return ErrInvalidInput.WithMessage("story id is required")
	}
	if p.BlockIndex < 0 {
		return ErrInvalidInput.WithMessage("block index must not be negative")
	}
	return nil
}

// ValidatePreference checks a narration preference before it is written.
func ValidatePreference(p *domain.NarrationPreference) error {
	if p == nil || p.StoryID == "" {
		return ErrInvalidInput.WithMessage("story id is required")
	}
	if _, err := domain.ParseNarrationMode(string(p.Mode)); err != nil {
		return ErrInvalidInput.WithMessage(err.Error())
	}
	return nil
}
