package playback

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hushapp/hush/internal/domain"
	"github.com/hushapp/hush/internal/errors"
)

// PreferenceSaver persists narration choices. store.PreferenceStore implements it.
type PreferenceSaver interface {
	SaveNarrationPreference(ctx context.Context, p *domain.NarrationPreference) error
}

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	Clock  Clock
	Reveal *Reveal
	// Speaker is optional. Without it speech cannot be enabled.
	Speaker     *Speaker
	Preferences PreferenceSaver
	Logger      *slog.Logger
}

// Coordinator keeps at most one narration mode active and restarts it on
// every committed transition. Narration problems are reported as notices and
// never affect navigation.
type Coordinator struct {
	story   *domain.Story
	clock   Clock
	reveal  *Reveal
	speaker *Speaker
	prefs   PreferenceSaver
	logger  *slog.Logger

	mu        sync.Mutex
	mode      domain.NarrationMode
	index     int
	speechGen uint64
	closed    bool
	notices   []func(Notice)
	onChange  []func(domain.NarrationMode)
}

// NewCoordinator creates a coordinator with narration off.
func NewCoordinator(story *domain.Story, index int, cfg CoordinatorConfig) *Coordinator {
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Reveal == nil {
		cfg.Reveal = NewReveal(cfg.Clock, 0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		story:   story,
		clock:   cfg.Clock,
		reveal:  cfg.Reveal,
		speaker: cfg.Speaker,
		prefs:   cfg.Preferences,
		logger:  cfg.Logger,
		mode:    domain.NarrationNone,
		index:   story.Clamp(index),
	}
}

// OnNotice registers fn to receive narration notices.
func (c *Coordinator) OnNotice(fn func(Notice)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, fn)
}

// OnModeChange registers fn to be called after the mode changes.
func (c *Coordinator) OnModeChange(fn func(domain.NarrationMode)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// Mode returns the active narration mode.
func (c *Coordinator) Mode() domain.NarrationMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Reveal returns the typing reveal driven by the coordinator.
func (c *Coordinator) Reveal() *Reveal {
	return c.reveal
}

// SpeechAvailable reports whether speech can be enabled.
func (c *Coordinator) SpeechAvailable() bool {
	return c.speaker != nil
}

// Enable switches to mode, stopping the other mode first.
// Enabling speech without a Speaker returns errors.ErrNarrationFailed.
func (c *Coordinator) Enable(mode domain.NarrationMode) error {
	if mode == domain.NarrationNone || mode == "" {
		c.Disable()
		return nil
	}
	if mode == domain.NarrationSpeech && c.speaker == nil {
		err := errors.NarrationFailed(nil, "speech is not available")
		c.publish(Notice{Level: NoticeError, Message: "Narration is unavailable.", Err: err})
		return err
	}

	c.mu.Lock()
	if c.closed || c.mode == mode {
		c.mu.Unlock()
		return nil
	}
	c.stopLocked()
	c.mode = mode
	c.startLocked()
	index := c.index
	listeners := slices.Clone(c.onChange)
	c.mu.Unlock()

	c.logger.Debug("narration enabled", "mode", mode, "block", index)
	notifyNarration(listeners, mode)
	c.persist(mode, index)
	return nil
}

// Disable turns narration off.
func (c *Coordinator) Disable() {
	c.mu.Lock()
	if c.closed || c.mode == domain.NarrationNone {
		c.mu.Unlock()
		return
	}
	c.stopLocked()
	c.mode = domain.NarrationNone
	index := c.index
	listeners := slices.Clone(c.onChange)
	c.mu.Unlock()

	c.logger.Debug("narration disabled", "block", index)
	notifyNarration(listeners, domain.NarrationNone)
	c.persist(domain.NarrationNone, index)
}

// Toggle turns mode off when it is active, otherwise switches to it.
// It returns the resulting mode.
func (c *Coordinator) Toggle(mode domain.NarrationMode) domain.NarrationMode {
	if c.Mode() == mode {
		c.Disable()
		return domain.NarrationNone
	}
	if err := c.Enable(mode); err != nil {
		c.logger.Warn("narration toggle failed", "mode", mode, "error", err)
	}
	return c.Mode()
}

// Restore re-enables a saved mode without persisting it again.
func (c *Coordinator) Restore(mode domain.NarrationMode) {
	if mode == domain.NarrationNone || (mode == domain.NarrationSpeech && c.speaker == nil) {
		return
	}

	c.mu.Lock()
	if c.closed || c.mode == mode {
		c.mu.Unlock()
		return
	}
	c.stopLocked()
	c.mode = mode
	c.startLocked()
	listeners := slices.Clone(c.onChange)
	c.mu.Unlock()

	notifyNarration(listeners, mode)
}

// OnTransition restarts the active mode on the new block.
func (c *Coordinator) OnTransition(t Transition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = t.To
	if c.closed {
		return
	}
	c.startLocked()
}

// Close stops narration. Mode changes after Close are ignored.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.closed = true
}

func (c *Coordinator) startLocked() {
	block, _ := c.story.Block(c.index)
	text := block.NarrationText()

	switch c.mode {
	case domain.NarrationTyping:
		c.reveal.Start(text)
	case domain.NarrationSpeech:
		c.speechGen++
		if text == "" {
			c.speaker.Cancel()
			return
		}
		gen := c.speechGen
		c.speaker.Speak(text, func(n Notice, fatal bool) { c.onSpeech(gen, n, fatal) })
	}
}

func (c *Coordinator) stopLocked() {
	switch c.mode {
	case domain.NarrationTyping:
		c.reveal.Stop()
	case domain.NarrationSpeech:
		c.speechGen++
		c.speaker.Cancel()
	}
}

// onSpeech handles a notice from the speech started under gen.
func (c *Coordinator) onSpeech(gen uint64, n Notice, fatal bool) {
	c.mu.Lock()
	if c.closed || c.mode != domain.NarrationSpeech || gen != c.speechGen {
		c.mu.Unlock()
		return
	}
	var listeners []func(domain.NarrationMode)
	if fatal {
		c.speechGen++
		c.mode = domain.NarrationNone
		listeners = append(listeners, c.onChange...)
	}
	c.mu.Unlock()

	if fatal {
		c.logger.Warn("narration turned off", "error", n.Err)
	}
	c.publish(n)
	notifyNarration(listeners, domain.NarrationNone)
}

func (c *Coordinator) publish(n Notice) {
	c.mu.Lock()
	notices := slices.Clone(c.notices)
	c.mu.Unlock()

	for _, fn := range notices {
		fn(n)
	}
}

// persist saves the mode as the story's narration preference. Failures are logged.
func (c *Coordinator) persist(mode domain.NarrationMode, index int) {
	if c.prefs == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.prefs.SaveNarrationPreference(ctx, &domain.NarrationPreference{
		StoryID:    c.story.ID,
		Mode:       mode,
		BlockIndex: index,
		UpdatedAt:  c.clock.Now().UTC(),
	})
	if err != nil {
		c.logger.Warn("failed to save narration preference", "story", c.story.ID, "error", err)
	}
}

func notifyNarration(listeners []func(domain.NarrationMode), mode domain.NarrationMode) {
	for _, fn := range listeners {
		fn(mode)
	}
}
