// Package redis stores reading progress in Redis so several readers on
// different machines can share their positions.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hushapp/hush/internal/domain"
	"github.com/hushapp/hush/internal/store"
)

// Store is a store.Backend on top of a Redis client.
//
// Layout under the configured prefix:
//
//	<prefix>progress:<story>   JSON ReadingProgress
//	<prefix>progress           SET of story IDs with progress
//	<prefix>narration:<story>  JSON NarrationPreference
//	<prefix>flags              HASH name -> "1"/"0"
type Store struct {
	rdb     *goredis.Client
	prefix  string
	logger  *slog.Logger
	emitter store.EventEmitter
}

var _ store.Backend = (*Store)(nil)

// Open connects to addr and verifies the connection with a ping.
func Open(ctx context.Context, addr, prefix string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("missing redis address")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	if logger != nil {
		logger.Info("Redis store connected", "addr", addr, "prefix", prefix)
	}

	return &Store{
		rdb:     rdb,
		prefix:  prefix,
		logger:  logger,
		emitter: store.NewNoopEmitter(),
	}, nil
}

// SetEmitter sets the emitter used to broadcast progress changes.
func (s *Store) SetEmitter(emitter store.EventEmitter) {
	if emitter == nil {
		emitter = store.NewNoopEmitter()
	}
	s.emitter = emitter
}

// Close closes the client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) key(parts ...string) string {
	return s.prefix + strings.Join(parts, ":")
}

// SaveProgress overwrites the reading position for a story.
func (s *Store) SaveProgress(ctx context.Context, p *domain.ReadingProgress) error {
	if err := store.ValidateProgress(p); err != nil {
		return err
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.key("progress", p.StoryID), raw, 0)
		pipe.SAdd(ctx, s.key("progress"), p.StoryID)
		return nil
	})
	if err != nil {
		return err
	}

	s.emitter.Emit(store.ProgressSaved{Progress: *p})
	return nil
}

// LoadProgress returns the saved position for a story.
func (s *Store) LoadProgress(ctx context.Context, storyID string) (*domain.ReadingProgress, error) {
	raw, err := s.rdb.Get(ctx, s.key("progress", storyID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrProgressNotFound
	}
	if err != nil {
		return nil, err
	}

	var p domain.ReadingProgress
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode progress %s: %w", storyID, err)
	}
	return &p, nil
}

// DeleteProgress forgets the position for a story.
func (s *Store) DeleteProgress(ctx context.Context, storyID string) error {
	var del *goredis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		del = pipe.Del(ctx, s.key("progress", storyID))
		pipe.SRem(ctx, s.key("progress"), storyID)
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() > 0 {
		s.emitter.Emit(store.ProgressDeleted{StoryID: storyID})
	}
	return nil
}

// ListProgress returns every saved position ordered by story ID.
func (s *Store) ListProgress(ctx context.Context) ([]*domain.ReadingProgress, error) {
	ids, err := s.rdb.SMembers(ctx, s.key("progress")).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	slices.Sort(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key("progress", id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*domain.ReadingProgress, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a record; skip it.
			continue
		}
		var p domain.ReadingProgress
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode progress %s: %w", ids[i], err)
		}
		out = append(out, &p)
	}
	return out, nil
}

// SaveNarrationPreference records the narration mode for a story.
func (s *Store) SaveNarrationPreference(ctx context.Context, p *domain.NarrationPreference) error {
	if err := store.ValidatePreference(p); err != nil {
		return err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal preference: %w", err)
	}
	return s.rdb.Set(ctx, s.key("narration", p.StoryID), raw, 0).Err()
}

// LoadNarrationPreference returns the saved narration mode for a story.
func (s *Store) LoadNarrationPreference(ctx context.Context, storyID string) (*domain.NarrationPreference, error) {
	raw, err := s.rdb.Get(ctx, s.key("narration", storyID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrPreferenceNotFound
	}
	if err != nil {
		return nil, err
	}

	var p domain.NarrationPreference
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode preference %s: %w", storyID, err)
	}
	return &p, nil
}

// SetFlag stores a named boolean.
func (s *Store) SetFlag(ctx context.Context, name string, value bool) error {
	if name == "" {
		return store.ErrInvalidInput.WithMessage("flag name is required")
	}
	v := "0"
	if value {
		v = "1"
	}
	return s.rdb.HSet(ctx, s.key("flags"), name, v).Err()
}

// GetFlag reads a named boolean. Unset flags are false.
func (s *Store) GetFlag(ctx context.Context, name string) (bool, error) {
	v, err := s.rdb.HGet(ctx, s.key("flags"), name).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}
