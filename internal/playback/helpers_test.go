package playback

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hushapp/hush/internal/domain"
)

// fakeClock is a manually advanced Clock. Timers fire synchronously inside
// Advance, in due-time order, without the clock's lock held.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	when    time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, when: c.now.Add(d), seq: c.seq, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward by d, firing every timer that falls due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.when
		next.fired = true
		c.mu.Unlock()

		next.fn()
	}
}

func (c *fakeClock) nextLocked(target time.Time) *fakeTimer {
	var next *fakeTimer
	for _, t := range c.timers {
		if t.stopped || t.fired || t.when.After(target) {
			continue
		}
		if next == nil || t.when.Before(next.when) || t.when.Equal(next.when) && t.seq < next.seq {
			next = t
		}
	}
	c.timers = slices.DeleteFunc(c.timers, func(t *fakeTimer) bool { return t.stopped || t.fired })
	return next
}

// Pending returns how many timers are still armed.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// paragraphs builds a story of n paragraphs, each short enough to dwell the floor.
func paragraphs(n int) *domain.Story {
	s := &domain.Story{ID: "test-story", Title: "Test", Author: "Tester"}
	for i := range n {
		s.Blocks = append(s.Blocks, domain.Block{Kind: domain.KindParagraph, Text: fmt.Sprintf("Block number %d.", i)})
	}
	return s
}

// longParagraph returns a paragraph of n words.
func longParagraph(n int) domain.Block {
	return domain.Block{Kind: domain.KindParagraph, Text: strings.TrimSpace(strings.Repeat("word ", n))}
}

// transitionLog records transitions in order.
type transitionLog struct {
	mu  sync.Mutex
	all []Transition
}

func (l *transitionLog) OnTransition(t Transition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = append(l.all, t)
}

func (l *transitionLog) Transitions() []Transition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Transition(nil), l.all...)
}

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []any
}

func (r *recorder) Emit(event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) Events() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.events...)
}

func eventsOf[T any](r *recorder) []T {
	var out []T
	for _, e := range r.Events() {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
