package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hushapp/hush/internal/domain"
	"github.com/hushapp/hush/internal/errors"
)

func TestBatchWriter_ImportAndStream(t *testing.T) {
	s, emitter := setupTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

	batch := s.NewBatchWriter(2)
	require.NoError(t, batch.SaveProgress(ctx, domain.NewReadingProgress("a-story", 1, at)))
	require.NoError(t, batch.SaveProgress(ctx, domain.NewReadingProgress("b-story", 5, at)))
	assert.Equal(t, 0, batch.Count(), "auto flush at max size")
	require.NoError(t, batch.SaveNarrationPreference(ctx, &domain.NarrationPreference{
		StoryID: "a-story", Mode: domain.NarrationTyping, UpdatedAt: at,
	}))
	assert.Equal(t, 1, batch.Count())
	require.NoError(t, batch.Flush())

	var ids []string
	for p, err := range s.StreamProgress(ctx) {
		require.NoError(t, err)
		ids = append(ids, p.StoryID)
	}
	assert.Equal(t, []string{"a-story", "b-story"}, ids)

	var modes []domain.NarrationMode
	for p, err := range s.StreamNarrationPreferences(ctx) {
		require.NoError(t, err)
		modes = append(modes, p.Mode)
	}
	assert.Equal(t, []domain.NarrationMode{domain.NarrationTyping}, modes)
	assert.Empty(t, emitter.Events(), "batched writes emit nothing")
}

func TestBatchWriter_RejectsInvalid(t *testing.T) {
	s, _ := setupTestStore(t)
	batch := s.NewBatchWriter(10)

	err := batch.SaveProgress(context.Background(), &domain.ReadingProgress{StoryID: "x", BlockIndex: -1})
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Equal(t, 0, batch.Count())
	batch.Cancel()
}

func TestStreamProgress_StopsEarly(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"one", "three", "two"} {
		require.NoError(t, s.SaveProgress(ctx, domain.NewReadingProgress(id, 0, time.Now())))
	}

	n := 0
	for range s.StreamProgress(ctx) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestClearAllProgress_KeepsFlags(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveProgress(ctx, domain.NewReadingProgress("story", 2, time.Now())))
	require.NoError(t, s.SaveNarrationPreference(ctx, &domain.NarrationPreference{StoryID: "story", Mode: domain.NarrationSpeech}))
	require.NoError(t, s.SetFlag(ctx, domain.FlagOnboardingSeen, true))

	require.NoError(t, s.ClearAllProgress(ctx))

	_, err := s.LoadProgress(ctx, "story")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	_, err = s.LoadNarrationPreference(ctx, "story")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	seen, err := s.GetFlag(ctx, domain.FlagOnboardingSeen)
	require.NoError(t, err)
	assert.True(t, seen)
}
