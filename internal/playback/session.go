package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hushapp/hush/internal/domain"
	"github.com/hushapp/hush/internal/errors"
	"github.com/hushapp/hush/internal/id"
	"github.com/hushapp/hush/internal/store"
	"github.com/hushapp/hush/internal/validation"
)

// saveTimeout bounds a progress or flag write.
const saveTimeout = 2 * time.Second

// unknownAuthor stands in for a story that names no author.
const unknownAuthor = "Unknown"

// StoryLoader loads a story by ID. It returns errors.ErrNotFound for unknown IDs.
type StoryLoader interface {
	Load(ctx context.Context, id string) (*domain.Story, error)
}

// SessionConfig configures Open.
type SessionConfig struct {
	Stories     StoryLoader
	Progress    store.ProgressStore
	Preferences store.PreferenceStore
	Validator   *validation.Validator

	Clock              Clock
	Animator           Animator
	Durations          DurationTable
	TransitionDuration time.Duration
	TickInterval       time.Duration
	TypingInterval     time.Duration

	// DefaultAutoplay is the mode a toggle starts autoplay in.
	DefaultAutoplay      domain.AutoplayMode
	StopAutoplayOnManual bool

	// Speaker is optional. It is shared between sessions and not closed by them.
	Speaker *Speaker
	Emitter Emitter
	Logger  *slog.Logger
}

// Session is one reader's pass through one story.
type Session struct {
	id      string
	story   *domain.Story
	clock   Clock
	prefs   store.PreferenceStore
	emitter Emitter
	logger  *slog.Logger
	defMode domain.AutoplayMode

	seq   *Sequencer
	sched *Scheduler
	narr  *Coordinator

	mu       sync.Mutex
	focus    bool
	settings bool
	closed   bool
}

// Open loads storyID and positions the session at the saved block.
// Only a missing story is an error; unreadable progress or preferences start
// the reader from the top with narration off.
func Open(ctx context.Context, storyID string, cfg SessionConfig) (*Session, error) {
	if cfg.Stories == nil {
		return nil, errors.Internal("no story loader configured")
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Validator == nil {
		cfg.Validator = validation.New()
	}
	if cfg.Emitter == nil {
		cfg.Emitter = noopEmitter{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if !cfg.DefaultAutoplay.Active() {
		cfg.DefaultAutoplay = domain.AutoplayNormal
	}

	loaded, err := cfg.Stories.Load(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if loaded.Len() == 0 {
		return nil, errors.Validationf("story %q has no blocks", storyID)
	}
	if err := cfg.Validator.ValidateStory(loaded); err != nil {
		cfg.Logger.Warn("story metadata incomplete", "story", storyID, "reason", validation.Summary(err))
	}
	story := sanitize(loaded, cfg.Validator, cfg.Logger)
	if story.ID == "" {
		story.ID = storyID
	}

	sessionID, err := id.Generate(id.PrefixSession)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create session id")
	}
	logger := cfg.Logger.With("session", sessionID, "story", story.ID)

	start := 0
	if cfg.Progress != nil {
		p, err := cfg.Progress.LoadProgress(ctx, story.ID)
		switch {
		case err == nil:
			start = story.Clamp(p.BlockIndex)
		case errors.Is(err, errors.ErrNotFound):
		default:
			logger.Warn("failed to load reading progress", "error", err)
		}
	}

	s := &Session{
		id:      sessionID,
		story:   story,
		clock:   cfg.Clock,
		prefs:   cfg.Preferences,
		emitter: cfg.Emitter,
		logger:  logger,
		defMode: cfg.DefaultAutoplay,
	}

	s.seq = NewSequencer(story, start, SequencerConfig{
		Clock:              cfg.Clock,
		Animator:           cfg.Animator,
		TransitionDuration: cfg.TransitionDuration,
		Logger:             logger,
	})
	s.sched = NewScheduler(story, start, s.seq, SchedulerConfig{
		Clock:        cfg.Clock,
		Durations:    cfg.Durations,
		TickInterval: cfg.TickInterval,
		StopOnManual: cfg.StopAutoplayOnManual,
		Logger:       logger,
	})
	reveal := NewReveal(cfg.Clock, cfg.TypingInterval)
	coordCfg := CoordinatorConfig{
		Clock:   cfg.Clock,
		Reveal:  reveal,
		Speaker: cfg.Speaker,
		Logger:  logger,
	}
	if cfg.Preferences != nil {
		coordCfg.Preferences = cfg.Preferences
	}
	s.narr = NewCoordinator(story, start, coordCfg)

	if cfg.Progress != nil {
		s.seq.AddObserver(progressRecorder{progress: cfg.Progress, logger: logger})
	}
	s.seq.AddObserver(s.narr)
	s.seq.AddObserver(s.sched)
	s.seq.AddObserver(ObserverFunc(func(t Transition) {
		s.emitter.Emit(BlockChanged{SessionID: s.id, Transition: t})
	}))

	s.sched.OnModeChange(func(mode domain.AutoplayMode) {
		s.emitter.Emit(AutoplayChanged{SessionID: s.id, StoryID: story.ID, Mode: mode})
	})
	s.narr.OnModeChange(func(mode domain.NarrationMode) {
		s.emitter.Emit(NarrationChanged{SessionID: s.id, StoryID: story.ID, Mode: mode})
	})
	s.narr.OnNotice(func(n Notice) {
		s.emitter.Emit(NoticePublished{SessionID: s.id, StoryID: story.ID, Notice: n})
	})
	reveal.OnStep(func(revealed string, done bool) {
		s.emitter.Emit(RevealStepped{SessionID: s.id, Revealed: revealed, Done: done})
	})

	if cfg.Preferences != nil {
		pref, err := cfg.Preferences.LoadNarrationPreference(ctx, story.ID)
		switch {
		case err == nil:
			if pref.Enabled() {
				s.narr.Restore(pref.Mode)
			}
		case errors.Is(err, errors.ErrNotFound):
		default:
			logger.Warn("failed to load narration preference", "error", err)
		}
	}

	logger.Info("session opened", "block", start, "total", story.Len())
	s.emitter.Emit(SessionOpened{SessionID: s.id, StoryID: story.ID, Index: start, Total: story.Len()})
	return s, nil
}

// sanitize returns a copy of story with invalid blocks replaced by placeholders.
func sanitize(story *domain.Story, v *validation.Validator, logger *slog.Logger) *domain.Story {
	out := *story
	if out.Title == "" {
		out.Title = out.ID
	}
	if out.Author == "" {
		out.Author = unknownAuthor
	}
	out.Blocks = make([]domain.Block, len(story.Blocks))
	for i, b := range story.Blocks {
		if err := v.ValidateBlock(b); err != nil {
			reason := validation.Summary(err)
			logger.Warn("replacing invalid block", "story", story.ID, "index", i, "kind", b.Kind, "reason", reason)
			out.Blocks[i] = domain.Unsupported(b.Kind, reason)
			continue
		}
		out.Blocks[i] = b
	}
	return &out
}

// progressRecorder saves the new position on every committed transition.
type progressRecorder struct {
	progress store.ProgressStore
	logger   *slog.Logger
}

func (r progressRecorder) OnTransition(t Transition) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := r.progress.SaveProgress(ctx, domain.NewReadingProgress(t.StoryID, t.To, t.At)); err != nil {
		r.logger.Warn("failed to save reading progress", "block", t.To, "error", err)
	}
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Story returns the sanitized story.
func (s *Session) Story() *domain.Story {
	return s.story
}

// Current returns the current block index.
func (s *Session) Current() int {
	return s.seq.Current()
}

// Block returns the current block.
func (s *Session) Block() domain.Block {
	b, _ := s.story.Block(s.seq.Current())
	return b
}

// Revealed returns the text the typing reveal has shown so far.
func (s *Session) Revealed() string {
	return s.narr.Reveal().Revealed()
}

// Next moves one block forward.
func (s *Session) Next(src Source) (int, error) {
	return s.seq.Next(src)
}

// Prev moves one block back.
func (s *Session) Prev(src Source) (int, error) {
	return s.seq.Prev(src)
}

// JumpTo moves directly to index.
func (s *Session) JumpTo(index int, src Source) (int, error) {
	return s.seq.JumpTo(index, src)
}

// Reset returns to the first block and stops autoplay. A rejected jump leaves
// autoplay running.
func (s *Session) Reset() error {
	if _, err := s.seq.JumpTo(0, SourceControl); err != nil {
		return err
	}
	s.sched.Stop()
	return nil
}

// ToggleAutoplay starts autoplay in the default mode or stops it.
func (s *Session) ToggleAutoplay() domain.AutoplayMode {
	return s.sched.Toggle(s.defMode)
}

// StartAutoplay starts autoplay in mode.
func (s *Session) StartAutoplay(mode domain.AutoplayMode) {
	s.sched.Start(mode)
}

// StopAutoplay stops autoplay.
func (s *Session) StopAutoplay() {
	s.sched.Stop()
}

// ToggleNarration turns mode on, or off when it is already active.
func (s *Session) ToggleNarration(mode domain.NarrationMode) domain.NarrationMode {
	return s.narr.Toggle(mode)
}

// EnableNarration switches narration to mode.
func (s *Session) EnableNarration(mode domain.NarrationMode) error {
	return s.narr.Enable(mode)
}

// DisableNarration turns narration off.
func (s *Session) DisableNarration() {
	s.narr.Disable()
}

// ToggleFocus flips focus mode and returns the new value.
func (s *Session) ToggleFocus() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focus = !s.focus
	return s.focus
}

// ToggleSettings opens or closes the settings panel and returns the new value.
func (s *Session) ToggleSettings() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = !s.settings
	return s.settings
}

// OnboardingSeen reports whether the key help was already shown.
func (s *Session) OnboardingSeen(ctx context.Context) bool {
	if s.prefs == nil {
		return false
	}
	seen, err := s.prefs.GetFlag(ctx, domain.FlagOnboardingSeen)
	if err != nil {
		s.logger.Warn("failed to read onboarding flag", "error", err)
		return false
	}
	return seen
}

// MarkOnboardingSeen records that the key help was shown.
func (s *Session) MarkOnboardingSeen(ctx context.Context) error {
	if s.prefs == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()
	return s.prefs.SetFlag(ctx, domain.FlagOnboardingSeen, true)
}

// Snapshot returns the current playback state.
func (s *Session) Snapshot() domain.PlaybackState {
	s.mu.Lock()
	focus, settings := s.focus, s.settings
	s.mu.Unlock()

	return domain.PlaybackState{
		SessionID:        s.id,
		StoryID:          s.story.ID,
		CurrentIndex:     s.seq.Current(),
		Total:            s.story.Len(),
		IsTransitioning:  s.seq.Transitioning(),
		Autoplay:         s.sched.Mode(),
		AutoplayProgress: s.sched.Progress(),
		Narration:        s.narr.Mode(),
		FocusMode:        focus,
		SettingsOpen:     settings,
	}
}

// Close stops all timers and narration. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.sched.Close()
	s.narr.Close()
	s.seq.Close()

	index := s.seq.Current()
	s.logger.Info("session closed", "block", index)
	s.emitter.Emit(SessionClosed{SessionID: s.id, StoryID: s.story.ID, Index: index})
}
