package store

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/hushapp/hush/internal/domain"
)

// SaveProgress overwrites the reading position for a story.
func (s *Store) SaveProgress(ctx context.Context, p *domain.ReadingProgress) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateProgress(p); err != nil {
		return err
	}

	key := buildKey(progressPrefix, p.StoryID)
	defer releaseKey(key)

	if err := s.set(key, p); err != nil {
		return err
	}

	s.eventEmitter.Emit(ProgressSaved{Progress: *p})
	return nil
}

// LoadProgress returns the saved position for a story.
func (s *Store) LoadProgress(ctx context.Context, storyID string) (*domain.ReadingProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := buildKey(progressPrefix, storyID)
	defer releaseKey(key)

	var p domain.ReadingProgress
	if err := s.get(key, &p); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrProgressNotFound
		}
		return nil, err
	}
	return &p, nil
}

// DeleteProgress forgets the position for a story. Deleting a story that has
// no progress is not an error.
func (s *Store) DeleteProgress(ctx context.Context, storyID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := buildKey(progressPrefix, storyID)
	defer releaseKey(key)

	found, err := s.exists(key)
	if err != nil || !found {
		return err
	}
	if err := s.delete(key); err != nil {
		return err
	}

	s.eventEmitter.Emit(ProgressDeleted{StoryID: storyID})
	return nil
}

// ListProgress returns every saved position ordered by story ID.
func (s *Store) ListProgress(ctx context.Context) ([]*domain.ReadingProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scan[domain.ReadingProgress](s, progressPrefix)
}
