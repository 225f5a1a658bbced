package playback

import (
	"sync"
	"time"
)

// Reveal shows a block's text one character at a time.
type Reveal struct {
	clock    Clock
	interval time.Duration

	mu     sync.Mutex
	text   []rune
	shown  int
	gen    uint64
	timer  Timer
	onStep func(revealed string, done bool)
}

// NewReveal creates a stopped reveal that shows one character per interval.
func NewReveal(clock Clock, interval time.Duration) *Reveal {
	if clock == nil {
		clock = RealClock()
	}
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &Reveal{clock: clock, interval: interval}
}

// OnStep registers fn to be called after every revealed character.
func (r *Reveal) OnStep(fn func(revealed string, done bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStep = fn
}

// Start restarts the reveal from the first character of text.
func (r *Reveal) Start(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gen++
	stopTimer(r.timer)
	r.timer = nil
	r.text = []rune(text)
	r.shown = 0

	if len(r.text) > 0 {
		gen := r.gen
		r.timer = r.clock.AfterFunc(r.interval, func() { r.step(gen) })
	}
}

// Stop freezes the reveal and clears it.
func (r *Reveal) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	stopTimer(r.timer)
	r.timer = nil
	r.text = nil
	r.shown = 0
}

// Revealed returns the part of the text shown so far.
func (r *Reveal) Revealed() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.text[:r.shown])
}

// Done reports whether the whole text is shown.
func (r *Reveal) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shown == len(r.text)
}

func (r *Reveal) step(gen uint64) {
	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return
	}

	r.shown++
	done := r.shown >= len(r.text)
	if done {
		r.timer = nil
	} else {
		r.timer = r.clock.AfterFunc(r.interval, func() { r.step(gen) })
	}
	revealed := string(r.text[:r.shown])
	fn := r.onStep
	r.mu.Unlock()

	if fn != nil {
		fn(revealed, done)
	}
}
