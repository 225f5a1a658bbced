package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hushapp/hush/internal/domain"
	"github.com/hushapp/hush/internal/store"
)

// SaveNarrationPreference creates or replaces the narration mode for a story.
func (s *Store) SaveNarrationPreference(ctx context.Context, p *domain.NarrationPreference) error {
	if err := store.ValidatePreference(p); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO narration_preferences (story_id, mode, block_index, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(story_id) DO UPDATE SET
			mode = excluded.mode,
			block_index = excluded.block_index,
			updated_at = excluded.updated_at`,
		p.StoryID, string(p.Mode), p.BlockIndex, formatTime(p.UpdatedAt))
	return err
}

// LoadNarrationPreference returns the saved narration mode for a story.
// Returns store.ErrPreferenceNotFound if nothing was saved.
func (s *Store) LoadNarrationPreference(ctx context.Context, storyID string) (*domain.NarrationPreference, error) {
	var (
		p         domain.NarrationPreference
		mode      string
		updatedAt string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT story_id, mode, block_index, updated_at
		FROM narration_preferences
		WHERE story_id = ?`,
		storyID).Scan(&p.StoryID, &mode, &p.BlockIndex, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrPreferenceNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Mode = domain.NarrationMode(mode)
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// SetFlag stores a named boolean.
func (s *Store) SetFlag(ctx context.Context, name string, value bool) error {
	if name == "" {
		return store.ErrInvalidInput.WithMessage("flag name is required")
	}

	v := 0
	if value {
		v = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flags (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		name, v)
	return err
}

// GetFlag reads a named boolean. Unset flags are false.
func (s *Store) GetFlag(ctx context.Context, name string) (bool, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT value FROM flags WHERE name = ?`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v != 0, nil
}
