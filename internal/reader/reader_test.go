package reader

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hushapp/hush/internal/domain"
	"github.com/hushapp/hush/internal/events"
	"github.com/hushapp/hush/internal/playback"
	"github.com/hushapp/hush/internal/terminal"
)

type fakeSession struct {
	mu       sync.Mutex
	story    *domain.Story
	state    domain.PlaybackState
	revealed string
	seen     bool
}

func newFakeSession() *fakeSession {
	st := &domain.Story{
		ID:     "night-train",
		Title:  "Night Train",
		Author: "C. Writer",
		Blocks: []domain.Block{
			{Kind: domain.KindHeading, Text: "Departure"},
			{Kind: domain.KindParagraph, Text: "The last carriage was always empty."},
			{Kind: domain.KindParagraph, Text: "Until it was not."},
		},
	}
	return &fakeSession{
		story: st,
		state: domain.PlaybackState{
			StoryID:   st.ID,
			Total:     len(st.Blocks),
			Autoplay:  domain.AutoplayDisabled,
			Narration: domain.NarrationNone,
		},
	}
}

func (f *fakeSession) Next(playback.Source) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.CurrentIndex < f.state.Total-1 {
		f.state.CurrentIndex++
	}
	return f.state.CurrentIndex, nil
}

func (f *fakeSession) Prev(playback.Source) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.CurrentIndex > 0 {
		f.state.CurrentIndex--
	}
	return f.state.CurrentIndex, nil
}

func (f *fakeSession) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.CurrentIndex = 0
	return nil
}

func (f *fakeSession) ToggleFocus() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.FocusMode = !f.state.FocusMode
	return f.state.FocusMode
}

func (f *fakeSession) ToggleAutoplay() domain.AutoplayMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Autoplay.Active() {
		f.state.Autoplay = domain.AutoplayDisabled
	} else {
		f.state.Autoplay = domain.AutoplayNormal
	}
	return f.state.Autoplay
}

func (f *fakeSession) ToggleNarration(mode domain.NarrationMode) domain.NarrationMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Narration == mode {
		f.state.Narration = domain.NarrationNone
	} else {
		f.state.Narration = mode
	}
	return f.state.Narration
}

func (f *fakeSession) ToggleSettings() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.SettingsOpen = !f.state.SettingsOpen
	return f.state.SettingsOpen
}

func (f *fakeSession) Story() *domain.Story { return f.story }

func (f *fakeSession) Block() domain.Block {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.story.Blocks[f.state.CurrentIndex]
}

func (f *fakeSession) Revealed() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revealed
}

func (f *fakeSession) Snapshot() domain.PlaybackState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) OnboardingSeen(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen
}

func (f *fakeSession) MarkOnboardingSeen(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = true
	return nil
}

// scriptKeys replays keys and then reports the end of input.
type scriptKeys struct {
	mu   sync.Mutex
	keys []string
}

func (s *scriptKeys) ReadKey() (playback.KeyEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.keys) == 0 {
		return playback.KeyEvent{}, io.EOF
	}
	k := s.keys[0]
	s.keys = s.keys[1:]
	return playback.KeyEvent{Key: k}, nil
}

// blockingKeys never returns until closed.
type blockingKeys struct{ done chan struct{} }

func (b blockingKeys) ReadKey() (playback.KeyEvent, error) {
	<-b.done
	return playback.KeyEvent{}, io.EOF
}

func newReader(s *fakeSession, out io.Writer, bus *events.Bus) *Reader {
	return New(Config{
		Session: s,
		Router:  playback.NewRouter(s, playback.RouterConfig{}),
		Events:  bus,
		Out:     out,
	})
}

func TestRun_NavigatesAndQuits(t *testing.T) {
	s := newFakeSession()
	s.seen = true
	var out bytes.Buffer

	keys := &scriptKeys{keys: []string{playback.KeyArrowRight, playback.KeyArrowRight, playback.KeyArrowLeft, "q", playback.KeyArrowRight}}
	require.NoError(t, newReader(s, &out, nil).Run(context.Background(), keys))

	assert.Equal(t, 1, s.Snapshot().CurrentIndex)
	assert.Contains(t, out.String(), "Night Train  by C. Writer")
	assert.Contains(t, out.String(), "[3/3]")
	assert.Contains(t, out.String(), "[2/3]")
}

func TestRun_EndOfInputQuits(t *testing.T) {
	s := newFakeSession()
	s.seen = true
	var out bytes.Buffer

	err := newReader(s, &out, nil).Run(context.Background(), &scriptKeys{})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "DEPARTURE")
}

func TestRun_InterruptQuits(t *testing.T) {
	s := newFakeSession()
	s.seen = true

	keys := &scriptKeys{keys: []string{terminal.KeyInterrupt, playback.KeyArrowRight}}
	require.NoError(t, newReader(s, io.Discard, nil).Run(context.Background(), keys))
	assert.Equal(t, 0, s.Snapshot().CurrentIndex)
}

func TestRun_ContextCancelQuits(t *testing.T) {
	s := newFakeSession()
	s.seen = true

	ctx, cancel := context.WithCancel(context.Background())
	keys := blockingKeys{done: make(chan struct{})}
	defer close(keys.done)

	errCh := make(chan error, 1)
	go func() { errCh <- newReader(s, io.Discard, nil).Run(ctx, keys) }()
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop after cancel")
	}
}

func TestRun_OnboardingShownOnce(t *testing.T) {
	s := newFakeSession()

	var first bytes.Buffer
	require.NoError(t, newReader(s, &first, nil).Run(context.Background(), &scriptKeys{}))
	assert.Contains(t, first.String(), "Keys")
	assert.True(t, s.OnboardingSeen(context.Background()))

	var second bytes.Buffer
	require.NoError(t, newReader(s, &second, nil).Run(context.Background(), &scriptKeys{}))
	assert.NotContains(t, second.String(), "Keys")
}

func TestHandleKey(t *testing.T) {
	s := newFakeSession()
	r := newReader(s, io.Discard, nil)

	assert.False(t, r.handleKey(playback.KeyEvent{Key: "?"}))
	assert.True(t, r.showHelp)
	assert.False(t, r.handleKey(playback.KeyEvent{Key: "?", Repeat: true}))
	assert.True(t, r.showHelp)

	assert.False(t, r.handleKey(playback.KeyEvent{Key: "s"}))
	assert.True(t, s.Snapshot().SettingsOpen)

	assert.False(t, r.handleKey(playback.KeyEvent{Key: terminal.KeyEscape}))
	assert.False(t, r.showHelp)
	assert.False(t, s.Snapshot().SettingsOpen)

	assert.False(t, r.handleKey(playback.KeyEvent{Key: "f"}))
	assert.True(t, s.Snapshot().FocusMode)

	assert.False(t, r.handleKey(playback.KeyEvent{Key: "x"}))
	assert.True(t, r.handleKey(playback.KeyEvent{Key: terminal.KeyEOF}))
}

func TestDraw_FocusHidesHeader(t *testing.T) {
	s := newFakeSession()
	s.state.FocusMode = true
	var out bytes.Buffer

	require.NoError(t, newReader(s, &out, nil).Draw())
	assert.NotContains(t, out.String(), "Night Train")
	assert.Contains(t, out.String(), "DEPARTURE")
}

func TestDraw_TypingRevealsPrefix(t *testing.T) {
	s := newFakeSession()
	s.state.CurrentIndex = 1
	s.state.Narration = domain.NarrationTyping
	s.revealed = "The last"
	var out bytes.Buffer

	require.NoError(t, newReader(s, &out, nil).Draw())
	assert.Contains(t, out.String(), "The last")
	assert.NotContains(t, out.String(), "carriage")
	assert.Contains(t, out.String(), "narration typingReveal")
}

func TestDraw_StatusAndSettings(t *testing.T) {
	s := newFakeSession()
	s.state.Autoplay = domain.AutoplaySlow
	s.state.AutoplayProgress = 0.5
	s.state.SettingsOpen = true
	var out bytes.Buffer

	require.NoError(t, newReader(s, &out, nil).Draw())
	assert.Contains(t, out.String(), "autoplay slow [#####.....]")
	assert.Contains(t, out.String(), "Settings")
	assert.Contains(t, out.String(), "autoplay   slow")
}

func TestDraw_ClearsScreen(t *testing.T) {
	s := newFakeSession()
	cleared := 0
	r := New(Config{
		Session: s,
		Router:  playback.NewRouter(s, playback.RouterConfig{}),
		Out:     io.Discard,
		Clear:   func() { cleared++ },
	})

	require.NoError(t, r.Draw())
	require.NoError(t, r.Draw())
	assert.Equal(t, 2, cleared)
}

func TestObserve_Notices(t *testing.T) {
	s := newFakeSession()
	r := newReader(s, io.Discard, nil)

	r.observe(events.Event{Type: events.EventNarrationNotice, Data: events.NoticeData{Message: "speech unavailable"}})
	var out bytes.Buffer
	r.cfg.Out = &out
	require.NoError(t, r.Draw())
	assert.Contains(t, out.String(), "! speech unavailable")

	r.observe(events.Event{Type: events.EventBlockChanged})
	out.Reset()
	require.NoError(t, r.Draw())
	assert.NotContains(t, out.String(), "speech unavailable")
}

func TestRun_RedrawsOnBusEvents(t *testing.T) {
	bus := events.NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Start(ctx)

	s := newFakeSession()
	s.seen = true
	out := &syncBuffer{}

	keys := blockingKeys{done: make(chan struct{})}
	defer close(keys.done)

	runCtx, stop := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- newReader(s, out, bus).Run(runCtx, keys) }()

	require.Eventually(t, func() bool { return bus.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	bus.Emit(events.Event{
		Type:    events.EventNarrationNotice,
		StoryID: "night-train",
		Data:    events.NoticeData{Message: "narrator offline"},
	})

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "narrator offline")
	}, 2*time.Second, 10*time.Millisecond)

	stop()
	require.NoError(t, <-errCh)
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[..........]", progressBar(0, 10))
	assert.Equal(t, "[#####.....]", progressBar(0.5, 10))
	assert.Equal(t, "[##########]", progressBar(1.5, 10))
	assert.Equal(t, "[....]", progressBar(-1, 4))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
