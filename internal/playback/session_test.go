package playback

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hushapp/hush/internal/domain"
	"github.com/hushapp/hush/internal/errors"
	"github.com/hushapp/hush/internal/store"
)

type mapLoader map[string]*domain.Story

func (m mapLoader) Load(_ context.Context, id string) (*domain.Story, error) {
	s, ok := m[id]
	if !ok {
		return nil, errors.NotFoundf("story %q not found", id)
	}
	return s, nil
}

type sessionRig struct {
	clock  *fakeClock
	mem    *store.Memory
	events *recorder
	cfg    SessionConfig
}

func newSessionRig(stories ...*domain.Story) *sessionRig {
	loader := mapLoader{}
	for _, s := range stories {
		loader[s.ID] = s
	}
	r := &sessionRig{clock: newFakeClock(), mem: store.NewMemory(nil), events: &recorder{}}
	r.cfg = SessionConfig{
		Stories:         loader,
		Progress:        r.mem,
		Preferences:     r.mem,
		Clock:           r.clock,
		DefaultAutoplay: domain.AutoplayFast,
		Emitter:         r.events,
	}
	return r
}

func (r *sessionRig) open(t *testing.T, id string) *Session {
	t.Helper()
	s, err := Open(context.Background(), id, r.cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestOpen_NotFound(t *testing.T) {
	r := newSessionRig(paragraphs(3))

	_, err := Open(context.Background(), "missing", r.cfg)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestOpen_RejectsEmptyStory(t *testing.T) {
	r := newSessionRig(&domain.Story{ID: "empty", Title: "Empty", Author: "Nobody"})

	_, err := Open(context.Background(), "empty", r.cfg)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestOpen_DefaultsMissingMetadata(t *testing.T) {
	story := paragraphs(2)
	story.Title = ""
	story.Author = ""
	r := newSessionRig(story)

	s := r.open(t, "test-story")
	assert.Equal(t, "test-story", s.Story().Title)
	assert.Equal(t, "Unknown", s.Story().Author)
	assert.Equal(t, 2, s.Snapshot().Total)
	assert.Empty(t, story.Author, "loaded story is not modified")
}

func TestSession_ProgressRoundTrip(t *testing.T) {
	r := newSessionRig(paragraphs(6))
	ctx := context.Background()
	require.NoError(t, r.mem.SaveProgress(ctx, domain.NewReadingProgress("test-story", 3, time.Now())))

	s := r.open(t, "test-story")
	assert.Equal(t, 3, s.Current())

	_, err := s.Next(SourceKey)
	require.NoError(t, err)

	// Saved synchronously within the commit.
	p, err := r.mem.LoadProgress(ctx, "test-story")
	require.NoError(t, err)
	assert.Equal(t, 4, p.BlockIndex)
	assert.Equal(t, r.clock.Now(), p.Timestamp)
}

func TestSession_ClampsStoredProgress(t *testing.T) {
	r := newSessionRig(paragraphs(4))
	require.NoError(t, r.mem.SaveProgress(context.Background(), domain.NewReadingProgress("test-story", 99, time.Now())))

	s := r.open(t, "test-story")
	assert.Equal(t, 3, s.Current())
}

func TestSession_SaveFailureDoesNotBlockNavigation(t *testing.T) {
	r := newSessionRig(paragraphs(4))
	r.mem.FailSaves(fmt.Errorf("disk full"))

	s := r.open(t, "test-story")
	got, err := s.Next(SourceKey)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
	assert.Equal(t, 1, r.mem.Saves())
}

func TestSession_SanitizesInvalidBlocks(t *testing.T) {
	story := paragraphs(3)
	story.Blocks[1] = domain.Block{Kind: domain.KindImage, Caption: "no source"}
	story.Blocks = append(story.Blocks, domain.Block{Kind: "hologram", Text: "?"})
	r := newSessionRig(story)

	s := r.open(t, "test-story")
	blocks := s.Story().Blocks
	require.Len(t, blocks, 4)

	assert.Equal(t, domain.KindParagraph, blocks[0].Kind)
	assert.Equal(t, domain.KindUnsupported, blocks[1].Kind)
	assert.Equal(t, "image", blocks[1].Caption)
	assert.Contains(t, blocks[1].Reason, "src is required")
	assert.Equal(t, domain.KindUnsupported, blocks[3].Kind)
	assert.Equal(t, "hologram", blocks[3].Caption)

	assert.Equal(t, domain.KindImage, story.Blocks[1].Kind, "loaded story is not modified")
}

func TestSession_RestoresNarration(t *testing.T) {
	r := newSessionRig(paragraphs(3))
	require.NoError(t, r.mem.SaveNarrationPreference(context.Background(), &domain.NarrationPreference{
		StoryID: "test-story", Mode: domain.NarrationTyping,
	}))

	s := r.open(t, "test-story")
	assert.Equal(t, domain.NarrationTyping, s.Snapshot().Narration)

	r.clock.Advance(time.Second)
	assert.Equal(t, "Block number 0.", s.Revealed())
}

func TestSession_Reset(t *testing.T) {
	r := newSessionRig(paragraphs(5))
	s := r.open(t, "test-story")

	_, err := s.JumpTo(3, SourceControl)
	require.NoError(t, err)
	r.clock.Advance(2 * time.Second)
	s.StartAutoplay(domain.AutoplaySlow)

	require.NoError(t, s.Reset())
	snap := s.Snapshot()
	assert.Equal(t, 0, snap.CurrentIndex)
	assert.Equal(t, domain.AutoplayDisabled, snap.Autoplay)

	r.clock.Advance(time.Minute)
	assert.Equal(t, 0, s.Current())
}

func TestSession_ResetDuringTransitionKeepsAutoplay(t *testing.T) {
	r := newSessionRig(paragraphs(5))
	s := r.open(t, "test-story")

	s.StartAutoplay(domain.AutoplaySlow)
	_, err := s.JumpTo(2, SourceControl)
	require.NoError(t, err)
	require.True(t, s.Snapshot().IsTransitioning)

	err = s.Reset()
	assert.True(t, errors.Is(err, errors.ErrTransitionInFlight))
	snap := s.Snapshot()
	assert.Equal(t, 2, snap.CurrentIndex)
	assert.Equal(t, domain.AutoplaySlow, snap.Autoplay)

	r.clock.Advance(2 * time.Second)
	require.NoError(t, s.Reset())
	snap = s.Snapshot()
	assert.Equal(t, 0, snap.CurrentIndex)
	assert.Equal(t, domain.AutoplayDisabled, snap.Autoplay)
}

func TestSession_Snapshot(t *testing.T) {
	r := newSessionRig(paragraphs(4))
	s := r.open(t, "test-story")

	assert.True(t, s.ToggleFocus())
	assert.True(t, s.ToggleSettings())
	assert.Equal(t, domain.AutoplayFast, s.ToggleAutoplay())
	require.NoError(t, s.EnableNarration(domain.NarrationTyping))
	_, err := s.Next(SourceSwipe)
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, s.ID(), snap.SessionID)
	assert.Equal(t, "test-story", snap.StoryID)
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.Equal(t, 4, snap.Total)
	assert.True(t, snap.IsTransitioning)
	assert.Equal(t, domain.AutoplayFast, snap.Autoplay)
	assert.Equal(t, domain.NarrationTyping, snap.Narration)
	assert.True(t, snap.FocusMode)
	assert.True(t, snap.SettingsOpen)

	s.DisableNarration()
	s.StopAutoplay()
	assert.False(t, s.ToggleFocus())
	snap = s.Snapshot()
	assert.Equal(t, domain.NarrationNone, snap.Narration)
	assert.Equal(t, domain.AutoplayDisabled, snap.Autoplay)
	assert.False(t, snap.FocusMode)
}

func TestSession_Events(t *testing.T) {
	r := newSessionRig(paragraphs(3))
	s := r.open(t, "test-story")

	_, err := s.Next(SourceKey)
	require.NoError(t, err)
	s.ToggleAutoplay()
	s.ToggleNarration(domain.NarrationTyping)
	s.Close()

	opened := eventsOf[SessionOpened](r.events)
	require.Len(t, opened, 1)
	assert.Equal(t, 3, opened[0].Total)

	changed := eventsOf[BlockChanged](r.events)
	require.Len(t, changed, 1)
	assert.Equal(t, 1, changed[0].Transition.To)
	assert.Equal(t, s.ID(), changed[0].SessionID)

	assert.Len(t, eventsOf[AutoplayChanged](r.events), 1)
	assert.Len(t, eventsOf[NarrationChanged](r.events), 1)

	closed := eventsOf[SessionClosed](r.events)
	require.Len(t, closed, 1)
	assert.Equal(t, 1, closed[0].Index)
}

func TestSession_CloseStopsTimers(t *testing.T) {
	r := newSessionRig(paragraphs(3))
	s := r.open(t, "test-story")

	_, err := s.Next(SourceKey)
	require.NoError(t, err)
	s.StartAutoplay(domain.AutoplayNormal)
	require.NoError(t, s.EnableNarration(domain.NarrationTyping))

	s.Close()
	s.Close()
	assert.Equal(t, 0, r.clock.Pending())
	assert.Len(t, eventsOf[SessionClosed](r.events), 1)
}

func TestSession_Onboarding(t *testing.T) {
	r := newSessionRig(paragraphs(2))
	s := r.open(t, "test-story")
	ctx := context.Background()

	assert.False(t, s.OnboardingSeen(ctx))
	require.NoError(t, s.MarkOnboardingSeen(ctx))
	assert.True(t, s.OnboardingSeen(ctx))
}

func TestSession_WithRouter(t *testing.T) {
	r := newSessionRig(paragraphs(5))
	s := r.open(t, "test-story")
	router := NewRouter(s, RouterConfig{})

	assert.True(t, router.HandleKey(KeyEvent{Key: KeyArrowRight}))
	assert.True(t, router.HandleKey(KeyEvent{Key: KeySpace}), "rejected while in flight")
	assert.Equal(t, 1, s.Current())

	r.clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, ActionNext, swipe(router, 300, 100))
	assert.Equal(t, 2, s.Current())

	router.HandleKey(KeyEvent{Key: "P"})
	assert.Equal(t, domain.AutoplayFast, s.Snapshot().Autoplay)

	r.clock.Advance(1500 * time.Millisecond)
	router.Click(ControlReset)
	assert.Equal(t, 0, s.Current())
	assert.Equal(t, domain.AutoplayDisabled, s.Snapshot().Autoplay)
}

func TestSession_AutoplayToEnd(t *testing.T) {
	r := newSessionRig(paragraphs(3))
	s := r.open(t, "test-story")

	s.StartAutoplay(domain.AutoplayFast)
	r.clock.Advance(time.Minute)

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.CurrentIndex)
	assert.True(t, snap.AtEnd())
	assert.Equal(t, domain.AutoplayDisabled, snap.Autoplay)
	assert.Equal(t, 0, r.clock.Pending())

	p, err := r.mem.LoadProgress(context.Background(), "test-story")
	require.NoError(t, err)
	assert.Equal(t, 2, p.BlockIndex)
}
