package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hushapp/hush/internal/domain"
	"github.com/hushapp/hush/internal/store"
)

// scanProgress scans a sql.Row (or sql.Rows via its Scan method) into a domain.ReadingProgress.
func scanProgress(scanner interface{ Scan(dest ...any) error }) (*domain.ReadingProgress, error) {
	var (
		p         domain.ReadingProgress
		updatedAt string
	)

	if err := scanner.Scan(&p.StoryID, &p.BlockIndex, &p.Scroll, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	p.Timestamp, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveProgress creates or replaces the reading position for a story.
func (s *Store) SaveProgress(ctx context.Context, p *domain.ReadingProgress) error {
	if err := store.ValidateProgress(p); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reading_progress (story_id, block_index, scroll, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(story_id) DO UPDATE SET
			block_index = excluded.block_index,
			scroll = excluded.scroll,
			updated_at = excluded.updated_at`,
		p.StoryID, p.BlockIndex, p.Scroll, formatTime(p.Timestamp))
	if err != nil {
		return err
	}

	s.emitter.Emit(store.ProgressSaved{Progress: *p})
	return nil
}

// LoadProgress returns the saved position for a story.
// Returns store.ErrProgressNotFound if the story was never opened.
func (s *Store) LoadProgress(ctx context.Context, storyID string) (*domain.ReadingProgress, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT story_id, block_index, scroll, updated_at
		FROM reading_progress
		WHERE story_id = ?`,
		storyID)

	p, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrProgressNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProgress forgets the position for a story.
func (s *Store) DeleteProgress(ctx context.Context, storyID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reading_progress WHERE story_id = ?`, storyID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.emitter.Emit(store.ProgressDeleted{StoryID: storyID})
	}
	return nil
}

// ListProgress returns every saved position ordered by story ID.
func (s *Store) ListProgress(ctx context.Context) ([]*domain.ReadingProgress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT story_id, block_index, scroll, updated_at
		FROM reading_progress
		ORDER BY story_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ReadingProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
