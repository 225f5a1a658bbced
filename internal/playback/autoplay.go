package playback

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hushapp/hush/internal/domain"
	"github.com/hushapp/hush/internal/errors"
)

// Advancer moves the story forward. *Sequencer implements it.
type Advancer interface {
	Advance(dir domain.Direction, src Source) (int, error)
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Clock     Clock
	Durations DurationTable
	// TickInterval is how often progress is updated.
	TickInterval time.Duration
	// StopOnManual turns autoplay off when the reader navigates by hand.
	// Otherwise manual navigation just restarts the countdown on the new block.
	StopOnManual bool
	Logger       *slog.Logger
}

// Scheduler advances the story automatically after each block's dwell time.
// It holds at most one pending tick and is rearmed by every committed transition.
type Scheduler struct {
	story     *domain.Story
	advancer  Advancer
	clock     Clock
	durations DurationTable
	tick      time.Duration
	stopOnMan bool
	logger    *slog.Logger

	mu       sync.Mutex
	mode     domain.AutoplayMode
	index    int
	gen      uint64
	timer    Timer
	armedAt  time.Time
	duration time.Duration
	progress float64
	closed   bool
	onChange []func(domain.AutoplayMode)
	onTick   []func(progress float64)
}

// NewScheduler creates a disabled scheduler for story, positioned at index.
func NewScheduler(story *domain.Story, index int, advancer Advancer, cfg SchedulerConfig) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Durations == (DurationTable{}) {
		cfg.Durations = DefaultDurations()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 50 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	return &Scheduler{
		story:     story,
		advancer:  advancer,
		clock:     cfg.Clock,
		durations: cfg.Durations,
		tick:      cfg.TickInterval,
		stopOnMan: cfg.StopOnManual,
		logger:    cfg.Logger,
		mode:      domain.AutoplayDisabled,
		index:     story.Clamp(index),
	}
}

// OnModeChange registers fn to be called after the mode changes, including
// when autoplay turns itself off at the end of the story.
func (s *Scheduler) OnModeChange(fn func(domain.AutoplayMode)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// OnProgress registers fn to be called on every tick with the dwell progress.
func (s *Scheduler) OnProgress(fn func(progress float64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTick = append(s.onTick, fn)
}

// Mode returns the current mode.
func (s *Scheduler) Mode() domain.AutoplayMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Progress returns how much of the current block's dwell time has elapsed, 0.0 - 1.0.
func (s *Scheduler) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Pending reports whether a countdown is running.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Duration returns the dwell time of the running countdown, or zero.
func (s *Scheduler) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return 0
	}
	return s.duration
}

// Start enables autoplay in mode and starts the countdown for the current
// block. Starting with a disabled mode stops autoplay.
func (s *Scheduler) Start(mode domain.AutoplayMode) {
	if !mode.Active() {
		s.Stop()
		return
	}

	s.mu.Lock()
	if s.closed || s.mode == mode && s.timer != nil {
		s.mu.Unlock()
		return
	}
	s.mode = mode
	s.armLocked()
	listeners := slices.Clone(s.onChange)
	s.mu.Unlock()

	s.logger.Debug("autoplay started", "mode", mode, "block", s.Index())
	notifyMode(listeners, mode)
}

// Stop disables autoplay and cancels the countdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.mode.Active() && s.timer == nil {
		s.mu.Unlock()
		return
	}
	s.disableLocked()
	listeners := slices.Clone(s.onChange)
	s.mu.Unlock()

	s.logger.Debug("autoplay stopped")
	notifyMode(listeners, domain.AutoplayDisabled)
}

// Toggle stops autoplay when it is running, otherwise starts it in defaultMode.
// It returns the new mode.
func (s *Scheduler) Toggle(defaultMode domain.AutoplayMode) domain.AutoplayMode {
	if s.Mode().Active() {
		s.Stop()
		return domain.AutoplayDisabled
	}
	s.Start(defaultMode)
	return s.Mode()
}

// Index returns the block the scheduler believes is current.
func (s *Scheduler) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// OnTransition rearms the countdown for the new block.
func (s *Scheduler) OnTransition(t Transition) {
	s.mu.Lock()
	s.index = t.To

	if !s.mode.Active() || s.closed {
		s.mu.Unlock()
		return
	}

	if t.Source.Manual() && s.stopOnMan {
		s.disableLocked()
		listeners := slices.Clone(s.onChange)
		s.mu.Unlock()
		notifyMode(listeners, domain.AutoplayDisabled)
		return
	}

	s.armLocked()
	s.mu.Unlock()
}

// Close cancels any countdown. The scheduler cannot be restarted.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.disableLocked()
}

// armLocked cancels the pending tick and starts a countdown for s.index.
func (s *Scheduler) armLocked() {
	s.gen++
	stopTimer(s.timer)

	block, _ := s.story.Block(s.index)
	s.duration = s.durations.Estimate(block, s.mode)
	s.armedAt = s.clock.Now()
	s.progress = 0

	gen := s.gen
	s.timer = s.clock.AfterFunc(s.tick, func() { s.fire(gen) })
}

func (s *Scheduler) disableLocked() {
	s.gen++
	stopTimer(s.timer)
	s.timer = nil
	s.mode = domain.AutoplayDisabled
	s.progress = 0
	s.duration = 0
}

// fire runs one tick of the countdown armed under gen.
func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.mode.Active() {
		s.mu.Unlock()
		return
	}

	elapsed := s.clock.Now().Sub(s.armedAt)
	s.progress = min(1, float64(elapsed)/float64(s.duration))
	progress := s.progress
	tickers := slices.Clone(s.onTick)

	if elapsed < s.duration {
		s.timer = s.clock.AfterFunc(s.tick, func() { s.fire(gen) })
		s.mu.Unlock()
		for _, fn := range tickers {
			fn(progress)
		}
		return
	}
	s.timer = nil
	s.mu.Unlock()

	for _, fn := range tickers {
		fn(progress)
	}

	// Listeners run unlocked; a Stop or rearm in the meantime cancels this advance.
	s.mu.Lock()
	stale := gen != s.gen || !s.mode.Active()
	s.mu.Unlock()
	if stale {
		return
	}

	// A successful advance rearms through OnTransition before Advance returns.
	_, err := s.advancer.Advance(domain.Next, SourceAutoplay)
	switch {
	case err == nil:
	case errors.Is(err, errors.ErrTransitionInFlight):
		s.mu.Lock()
		if gen == s.gen && s.mode.Active() {
			s.timer = s.clock.AfterFunc(s.tick, func() { s.fire(gen) })
		}
		s.mu.Unlock()
	default:
		if !errors.Is(err, errors.ErrAtBoundary) {
			s.logger.Warn("autoplay advance failed", "error", err)
		}
		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.disableLocked()
		listeners := slices.Clone(s.onChange)
		s.mu.Unlock()
		s.logger.Debug("autoplay reached the end")
		notifyMode(listeners, domain.AutoplayDisabled)
	}
}

func notifyMode(listeners []func(domain.AutoplayMode), mode domain.AutoplayMode) {
	for _, fn := range listeners {
		fn(mode)
	}
}
