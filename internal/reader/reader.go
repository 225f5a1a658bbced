// Package reader runs an interactive reading session in a terminal: it feeds
// key presses to the playback router and redraws the active block whenever the
// session changes.
package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hushapp/hush/internal/domain"
	"github.com/hushapp/hush/internal/events"
	"github.com/hushapp/hush/internal/playback"
	"github.com/hushapp/hush/internal/render"
	"github.com/hushapp/hush/internal/terminal"
)

// DefaultRefreshInterval is how often the status line is redrawn while
// autoplay runs.
const DefaultRefreshInterval = 250 * time.Millisecond

// Keys is a source of key presses. *terminal.Decoder implements it.
type Keys interface {
	ReadKey() (playback.KeyEvent, error)
}

// Session is the part of *playback.Session the reader draws from.
type Session interface {
	playback.Handler
	Story() *domain.Story
	Block() domain.Block
	Revealed() string
	Snapshot() domain.PlaybackState
	OnboardingSeen(ctx context.Context) bool
	MarkOnboardingSeen(ctx context.Context) error
}

// Config configures a Reader.
type Config struct {
	Session   Session
	Router    *playback.Router
	Renderers *render.Registry
	// Events triggers redraws. Optional; without it the screen is redrawn
	// after keys and on the refresh tick.
	Events *events.Bus
	Out    io.Writer
	// Width returns the current column count. Nil means no wrapping.
	Width func() int
	// Clear erases the screen before each frame. Nil appends frames.
	Clear           func()
	Color           bool
	RefreshInterval time.Duration
	Logger          *slog.Logger
}

// Reader draws one session and dispatches keys to it.
type Reader struct {
	cfg Config

	mu       sync.Mutex
	notice   string
	showHelp bool
}

// New creates a Reader.
func New(cfg Config) *Reader {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Width == nil {
		cfg.Width = func() int { return 0 }
	}
	if cfg.Renderers == nil {
		cfg.Renderers = render.NewTextRegistry(cfg.Logger, cfg.Color)
	}
	return &Reader{cfg: cfg}
}

// Run reads keys until the reader quits, keys are exhausted or ctx is done.
// The key help is shown on the first run only.
func (r *Reader) Run(ctx context.Context, keys Keys) error {
	if !r.cfg.Session.OnboardingSeen(ctx) {
		r.setHelp(true)
		if err := r.cfg.Session.MarkOnboardingSeen(ctx); err != nil {
			r.cfg.Logger.Warn("failed to save onboarding flag", "error", err)
		}
	}

	var eventCh <-chan events.Event
	if r.cfg.Events != nil {
		sub, err := r.cfg.Events.Subscribe(r.cfg.Session.Story().ID)
		if err != nil {
			return fmt.Errorf("subscribe to session events: %w", err)
		}
		defer r.cfg.Events.Unsubscribe(sub.ID)
		eventCh = sub.Events
	}

	keyCh := make(chan playback.KeyEvent)
	errCh := make(chan error, 1)
	// The goroutine stays blocked in ReadKey after Run returns until the
	// next key or the end of input.
	go func() {
		for {
			ev, err := keys.ReadKey()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case keyCh <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(r.cfg.RefreshInterval)
	defer ticker.Stop()

	if err := r.Draw(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-errCh:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read key: %w", err)

		case ev := <-keyCh:
			if r.handleKey(ev) {
				return nil
			}
			if err := r.Draw(); err != nil {
				return err
			}

		case ev, ok := <-eventCh:
			if !ok {
				eventCh = nil
				continue
			}
			r.observe(ev)
			if err := r.Draw(); err != nil {
				return err
			}

		case <-ticker.C:
			if r.cfg.Session.Snapshot().Autoplay.Active() {
				if err := r.Draw(); err != nil {
					return err
				}
			}
		}
	}
}

// handleKey dispatches one key and reports whether the reader should quit.
func (r *Reader) handleKey(ev playback.KeyEvent) bool {
	switch ev.Key {
	case "q", "Q", terminal.KeyInterrupt, terminal.KeyEOF:
		return true
	case "?", "h":
		if !ev.Repeat {
			r.mu.Lock()
			r.showHelp = !r.showHelp
			r.mu.Unlock()
		}
		return false
	case terminal.KeyEscape:
		r.setHelp(false)
		if r.cfg.Session.Snapshot().SettingsOpen {
			r.cfg.Session.ToggleSettings()
		}
		return false
	}

	if !r.cfg.Router.HandleKey(ev) {
		r.cfg.Logger.Debug("unbound key", "key", ev.Key)
	}
	return false
}

// observe keeps the latest notice and clears it when the block changes.
func (r *Reader) observe(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case events.EventNarrationNotice:
		if data, ok := ev.Data.(events.NoticeData); ok {
			r.notice = data.Message
		}
	case events.EventBlockChanged:
		r.notice = ""
	}
}

func (r *Reader) setHelp(on bool) {
	r.mu.Lock()
	r.showHelp = on
	r.mu.Unlock()
}

// Draw paints the current frame.
func (r *Reader) Draw() error {
	s := r.cfg.Session
	state := s.Snapshot()
	st := s.Story()
	width := r.cfg.Width()

	r.mu.Lock()
	notice, help := r.notice, r.showHelp
	r.mu.Unlock()

	if r.cfg.Clear != nil {
		r.cfg.Clear()
	}

	var b strings.Builder
	if !state.FocusMode {
		fmt.Fprintf(&b, "%s  by %s\n", st.Title, st.Author)
		fmt.Fprintf(&b, "%s\n\n", statusLine(state, width))
	}

	revealedRunes := -1
	if state.Narration == domain.NarrationTyping {
		revealedRunes = len([]rune(s.Revealed()))
	}
	if _, err := io.WriteString(r.cfg.Out, b.String()); err != nil {
		return err
	}
	if err := r.cfg.Renderers.Render(r.cfg.Out, render.Frame{
		Block:     s.Block(),
		Active:    true,
		Narration: state.Narration,
		Revealed:  revealedRunes,
		Width:     width,
	}); err != nil {
		return err
	}

	b.Reset()
	if notice != "" {
		fmt.Fprintf(&b, "\n! %s\n", notice)
	}
	if state.SettingsOpen {
		b.WriteString(settingsPanel(state))
	}
	if help {
		b.WriteString(helpText)
	}
	_, err := io.WriteString(r.cfg.Out, b.String())
	return err
}

// statusLine shows position, autoplay and narration.
func statusLine(state domain.PlaybackState, width int) string {
	parts := []string{fmt.Sprintf("[%d/%d]", state.CurrentIndex+1, state.Total)}

	if state.Autoplay.Active() {
		parts = append(parts, fmt.Sprintf("autoplay %s %s", state.Autoplay, progressBar(state.AutoplayProgress, 10)))
	}
	if state.Narration != domain.NarrationNone {
		parts = append(parts, "narration "+string(state.Narration))
	}

	line := strings.Join(parts, "  ")
	if width > 0 && len(line) > width {
		line = line[:width]
	}
	return line
}

// progressBar draws p in [0,1] as a bar of n cells.
func progressBar(p float64, n int) string {
	filled := int(p*float64(n) + 0.5)
	filled = min(max(filled, 0), n)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", n-filled) + "]"
}

func settingsPanel(state domain.PlaybackState) string {
	autoplay := string(state.Autoplay)
	if !state.Autoplay.Active() {
		autoplay = "off"
	}
	return fmt.Sprintf("\nSettings\n  autoplay   %s\n  narration  %s\n  focus      %t\n",
		autoplay, state.Narration, state.FocusMode)
}

const helpText = `
Keys
  right, space  next block
  left          previous block
  home          back to the start
  p             autoplay on/off
  t             speech on/off
  r             typing reveal on/off
  f             focus mode
  s             settings
  ?             this help
  q             quit
`
