package store

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/dgraph-io/badger/v4"

	"github.com/hushapp/hush/internal/domain"
)

// StreamProgress returns an iterator over every saved reading position, for export.
func (s *Store) StreamProgress(ctx context.Context) iter.Seq2[*domain.ReadingProgress, error] {
	return streamEntities[domain.ReadingProgress](ctx, s.db, progressPrefix)
}

// StreamNarrationPreferences returns an iterator over every saved narration preference.
func (s *Store) StreamNarrationPreferences(ctx context.Context) iter.Seq2[*domain.NarrationPreference, error] {
	return streamEntities[domain.NarrationPreference](ctx, s.db, narrationPrefix)
}

// streamEntities is a generic streaming iterator over the values under prefix.
// A value that cannot be decoded is yielded as an error and iteration continues.
func streamEntities[T any](ctx context.Context, db *badger.DB, prefix string) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		_ = db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(prefix)
			opts.PrefetchValues = true

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				if ctx.Err() != nil {
					yield(nil, ctx.Err())
					return ctx.Err()
				}

				var entity T
				err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &entity)
				})
				if err != nil {
					if !yield(nil, err) {
						return nil
					}
					continue
				}

				if !yield(&entity, nil) {
					return nil
				}
			}
			return nil
		})
	}
}

// ClearAllProgress removes every reading position and narration preference.
// Flags are kept.
func (s *Store) ClearAllProgress(ctx context.Context) error {
	for _, prefix := range []string{progressPrefix, narrationPrefix} {
		if err := s.deleteByPrefix(ctx, prefix); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) deleteByPrefix(ctx context.Context, prefix string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			key := it.Item().KeyCopy(nil)
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}
