package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/hushapp/hush/internal/domain"
)

// BatchWriter writes many records through a badger WriteBatch. It is used when
// importing a progress archive. Events are not emitted for batched writes.
type BatchWriter struct {
	store   *Store
	batch   *badger.WriteBatch
	maxSize int
	count   int
}

// NewBatchWriter creates a batch writer that flushes automatically every maxSize records.
func (s *Store) NewBatchWriter(maxSize int) *BatchWriter {
	if maxSize <= 0 {
		maxSize = 500
	}
	return &BatchWriter{
		store:   s,
		batch:   s.db.NewWriteBatch(),
		maxSize: maxSize,
	}
}

// SaveProgress adds a reading position to the batch.
func (b *BatchWriter) SaveProgress(ctx context.Context, p *domain.ReadingProgress) error {
	if err := ValidateProgress(p); err != nil {
		return err
	}
	return b.add(ctx, progressPrefix+p.StoryID, p)
}

// SaveNarrationPreference adds a narration preference to the batch.
func (b *BatchWriter) SaveNarrationPreference(ctx context.Context, p *domain.NarrationPreference) error {
	if err := ValidatePreference(p); err != nil {
		return err
	}
	return b.add(ctx, narrationPrefix+p.StoryID, p)
}

func (b *BatchWriter) add(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := b.batch.Set([]byte(key), data); err != nil {
		return fmt.Errorf("batch set %s: %w", key, err)
	}

	b.count++
	if b.count >= b.maxSize {
		if err := b.Flush(); err != nil {
			return fmt.Errorf("auto flush: %w", err)
		}
	}
	return nil
}

// Flush commits all pending writes in the batch.
func (b *BatchWriter) Flush() error {
	if b.count == 0 {
		return nil
	}

	if err := b.batch.Flush(); err != nil {
		return fmt.Errorf("flush batch: %w", err)
	}

	if b.store.logger != nil {
		b.store.logger.LogAttrs(context.Background(), slog.LevelInfo, "batch flushed",
			slog.Int("count", b.count),
		)
	}

	b.count = 0
	b.batch = b.store.db.NewWriteBatch()
	return nil
}

// Cancel discards all pending writes in the batch.
func (b *BatchWriter) Cancel() {
	b.batch.Cancel()
	b.count = 0
}

// Count returns the number of records in the current batch.
func (b *BatchWriter) Count() int {
	return b.count
}
