package store

import (
	"context"
	"errors"
	"strconv"

	"github.com/dgraph-io/badger/v4"

	"github.com/hushapp/hush/internal/domain"
)

// SaveNarrationPreference records the narration mode chosen for a story.
func (s *Store) SaveNarrationPreference(ctx context.Context, p *domain.NarrationPreference) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidatePreference(p); err != nil {
		return err
	}

	key := buildKey(narrationPrefix, p.StoryID)
	defer releaseKey(key)

	return s.set(key, p)
}

// LoadNarrationPreference returns the saved narration mode for a story.
func (s *Store) LoadNarrationPreference(ctx context.Context, storyID string) (*domain.NarrationPreference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := buildKey(narrationPrefix, storyID)
	defer releaseKey(key)

	var p domain.NarrationPreference
	if err := s.get(key, &p); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrPreferenceNotFound
		}
		return nil, err
	}
	return &p, nil
}

// SetFlag stores a named boolean.
func (s *Store) SetFlag(ctx context.Context, name string, value bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" {
		return ErrInvalidInput.WithMessage("flag name is required")
	}

	key := buildKey(flagPrefix, name)
	defer releaseKey(key)

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, []byte(strconv.FormatBool(value)))
	})
}

// GetFlag reads a named boolean. Unset flags are false.
func (s *Store) GetFlag(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	key := buildKey(flagPrefix, name)
	defer releaseKey(key)

	var value bool
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v, err := strconv.ParseBool(string(val))
			value = v
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return value, err
}
