package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hushapp/hush/internal/domain"
	"github.com/hushapp/hush/internal/id"
	"github.com/hushapp/hush/internal/store"
)

// newTestStore connects to REDIS_ADDR under a unique prefix and removes the
// prefix's keys afterwards. Tests skip when no server is configured.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	prefix := "hush-test:" + id.MustGenerate("t") + ":"
	s, err := Open(context.Background(), addr, prefix, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := s.rdb.Keys(ctx, prefix+"*").Result() //nolint:errcheck // best-effort cleanup
		if len(keys) > 0 {
			s.rdb.Del(ctx, keys...)
		}
		s.Close()
	})
	return s
}

func TestOpen_MissingAddr(t *testing.T) {
	_, err := Open(context.Background(), " ", "hush:", nil)
	assert.Error(t, err)
}

func TestProgress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LoadProgress(ctx, "lightless-town")
	assert.ErrorIs(t, err, store.ErrProgressNotFound)

	at := time.Now().UTC()
	require.NoError(t, s.SaveProgress(ctx, domain.NewReadingProgress("lightless-town", 2, at)))
	require.NoError(t, s.SaveProgress(ctx, domain.NewReadingProgress("after-dark", 0, at)))

	got, err := s.LoadProgress(ctx, "lightless-town")
	require.NoError(t, err)
	assert.Equal(t, 2, got.BlockIndex)

	list, err := s.ListProgress(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "after-dark", list[0].StoryID)

	require.NoError(t, s.DeleteProgress(ctx, "after-dark"))
	list, err = s.ListProgress(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPreferencesAndFlags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveNarrationPreference(ctx, &domain.NarrationPreference{
		StoryID: "lightless-town",
		Mode:    domain.NarrationSpeech,
	}))
	pref, err := s.LoadNarrationPreference(ctx, "lightless-town")
	require.NoError(t, err)
	assert.Equal(t, domain.NarrationSpeech, pref.Mode)

	seen, err := s.GetFlag(ctx, domain.FlagOnboardingSeen)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.SetFlag(ctx, domain.FlagOnboardingSeen, true))
	seen, err = s.GetFlag(ctx, domain.FlagOnboardingSeen)
	require.NoError(t, err)
	assert.True(t, seen)
}
