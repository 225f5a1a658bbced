// Package playback drives a reading session: the block sequencer, autoplay,
// narration, input routing and transition styling.
//
// Every component guards its state with its own mutex and never holds it while
// calling into another component. Timer callbacks carry a generation number and
// do nothing once a newer timer has replaced them.
package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hushapp/hush/internal/domain"
	"github.com/hushapp/hush/internal/errors"
)

// Source identifies what requested a navigation.
type Source int

// Navigation sources.
const (
	SourceKey Source = iota + 1
	SourceSwipe
	SourceControl
	SourceAutoplay
)

func (s Source) String() string {
	switch s {
	case SourceKey:
		return "key"
	case SourceSwipe:
		return "swipe"
	case SourceControl:
		return "control"
	case SourceAutoplay:
		return "autoplay"
	default:
		return "unknown"
	}
}

// Manual reports whether the reader caused the navigation.
func (s Source) Manual() bool {
	return s != SourceAutoplay
}

// Transition describes one committed move.
type Transition struct {
	StoryID   string
	From      int
	To        int
	Direction domain.Direction
	Source    Source
	Token     Token
	At        time.Time
}

// Observer is notified synchronously of every committed transition.
type Observer interface {
	OnTransition(t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(t Transition)

// OnTransition implements Observer.
func (f ObserverFunc) OnTransition(t Transition) { f(t) }

// SequencerConfig configures a Sequencer.
type SequencerConfig struct {
	Clock              Clock
	Animator           Animator
	TransitionDuration time.Duration
	Logger             *slog.Logger
}

// Sequencer owns the current block index and serializes transitions.
// At most one transition is in flight. Calls made while one is in flight are
// rejected with errors.ErrTransitionInFlight and change nothing.
type Sequencer struct {
	story    *domain.Story
	clock    Clock
	animator Animator
	settle   time.Duration
	logger   *slog.Logger

	mu            sync.Mutex
	current       int
	transitioning bool
	gen           uint64
	settleTimer   Timer
	observers     []Observer
	closed        bool
}

// NewSequencer creates a sequencer positioned at start, clamped into the story.
func NewSequencer(story *domain.Story, start int, cfg SequencerConfig) *Sequencer {
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Animator == nil {
		cfg.Animator = StyleAnimator{Style: StyleSlide}
	}
	if cfg.TransitionDuration <= 0 {
		cfg.TransitionDuration = 1500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	return &Sequencer{
		story:    story,
		clock:    cfg.Clock,
		animator: cfg.Animator,
		settle:   cfg.TransitionDuration,
		logger:   cfg.Logger,
		current:  story.Clamp(start),
	}
}

// AddObserver registers o. Observers are notified in registration order.
func (s *Sequencer) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Story returns the story being played.
func (s *Sequencer) Story() *domain.Story {
	return s.story
}

// Len returns the number of blocks.
func (s *Sequencer) Len() int {
	return s.story.Len()
}

// Current returns the current block index.
func (s *Sequencer) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Transitioning reports whether a transition is in flight.
func (s *Sequencer) Transitioning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitioning
}

// Next moves one block forward.
func (s *Sequencer) Next(src Source) (int, error) {
	return s.Advance(domain.Next, src)
}

// Prev moves one block back.
func (s *Sequencer) Prev(src Source) (int, error) {
	return s.Advance(domain.Prev, src)
}

// Advance moves one block in dir. At either end it returns
// errors.ErrAtBoundary and leaves the state untouched.
func (s *Sequencer) Advance(dir domain.Direction, src Source) (int, error) {
	s.mu.Lock()
	if err := s.checkLocked(); err != nil {
		current := s.current
		s.mu.Unlock()
		return current, err
	}

	target := s.current + 1
	if dir == domain.Prev {
		target = s.current - 1
	}
	if target < 0 || target >= s.story.Len() {
		current := s.current
		s.mu.Unlock()
		return current, errors.AtBoundaryf("no %s block after %d", dir, current)
	}

	return s.commitLocked(target, dir, src), nil
}

// JumpTo moves directly to index. Jumping to the current block is a no-op.
// Indexes outside the story return errors.ErrOutOfRange.
func (s *Sequencer) JumpTo(index int, src Source) (int, error) {
	s.mu.Lock()
	if err := s.checkLocked(); err != nil {
		current := s.current
		s.mu.Unlock()
		return current, err
	}

	if index < 0 || index >= s.story.Len() {
		current := s.current
		s.mu.Unlock()
		return current, errors.OutOfRangef("block %d outside [0,%d)", index, s.story.Len())
	}
	if index == s.current {
		s.mu.Unlock()
		return index, nil
	}

	dir := domain.Next
	if index < s.current {
		dir = domain.Prev
	}
	return s.commitLocked(index, dir, src), nil
}

// Close cancels the settle timer. Later calls are rejected.
func (s *Sequencer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.gen++
	stopTimer(s.settleTimer)
	s.settleTimer = nil
	s.transitioning = false
}

func (s *Sequencer) checkLocked() error {
	if s.closed {
		return errors.ErrInternal.WithMessage("sequencer closed")
	}
	if s.transitioning {
		return errors.ErrTransitionInFlight
	}
	return nil
}

// commitLocked commits the move, arms the settle timer and notifies observers.
// It is called with s.mu held and releases it.
func (s *Sequencer) commitLocked(target int, dir domain.Direction, src Source) int {
	from := s.current
	s.current = target
	s.transitioning = true
	s.gen++
	gen := s.gen

	stopTimer(s.settleTimer)
	s.settleTimer = s.clock.AfterFunc(s.settle, func() { s.settled(gen) })

	t := Transition{
		StoryID:   s.story.ID,
		From:      from,
		To:        target,
		Direction: dir,
		Source:    src,
		Token:     s.animator.Transition(from, target, dir),
		At:        s.clock.Now(),
	}
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	s.logger.Debug("transition committed",
		"story", t.StoryID, "from", from, "to", target, "source", src.String(), "style", t.Token.String())

	for _, o := range observers {
		o.OnTransition(t)
	}
	return target
}

func (s *Sequencer) settled(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.transitioning = false
	s.settleTimer = nil
}
