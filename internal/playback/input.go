package playback

import (
	"log/slog"
	"sync"

	"golang.org/x/text/cases"

	"github.com/hushapp/hush/internal/domain"
	"github.com/hushapp/hush/internal/errors"
)

// Key names. Letters are matched case-insensitively.
const (
	KeyArrowRight = "ArrowRight"
	KeyArrowLeft  = "ArrowLeft"
	KeySpace      = " "
	KeyHome       = "Home"
)

// KeyEvent is one key press.
type KeyEvent struct {
	Key string
	// Repeat is set for auto-repeat events while the key is held.
	Repeat bool
}

// Action is a reader intent produced by the router.
type Action int

// Actions.
const (
	ActionNone Action = iota
	ActionNext
	ActionPrev
	ActionReset
	ActionToggleFocus
	ActionToggleAutoplay
	ActionToggleSpeech
	ActionToggleTyping
	ActionToggleSettings
)

func (a Action) String() string {
	switch a {
	case ActionNext:
		return "next"
	case ActionPrev:
		return "prev"
	case ActionReset:
		return "reset"
	case ActionToggleFocus:
		return "focus"
	case ActionToggleAutoplay:
		return "autoplay"
	case ActionToggleSpeech:
		return "speech"
	case ActionToggleTyping:
		return "typing"
	case ActionToggleSettings:
		return "settings"
	default:
		return "none"
	}
}

// navigates reports whether the action moves between blocks.
func (a Action) navigates() bool {
	return a == ActionNext || a == ActionPrev || a == ActionReset
}

// Control is an on-screen button.
type Control string

// Controls.
const (
	ControlPrev      Control = "prev"
	ControlNext      Control = "next"
	ControlAutoplay  Control = "autoplay"
	ControlNarration Control = "narration"
	ControlTyping    Control = "typing"
	ControlFocus     Control = "focus"
	ControlSettings  Control = "settings"
	ControlReset     Control = "reset"
)

var controlActions = map[Control]Action{
	ControlPrev:      ActionPrev,
	ControlNext:      ActionNext,
	ControlAutoplay:  ActionToggleAutoplay,
	ControlNarration: ActionToggleSpeech,
	ControlTyping:    ActionToggleTyping,
	ControlFocus:     ActionToggleFocus,
	ControlSettings:  ActionToggleSettings,
	ControlReset:     ActionReset,
}

var keyActions = map[string]Action{
	KeyArrowRight: ActionNext,
	KeySpace:      ActionNext,
	KeyArrowLeft:  ActionPrev,
	KeyHome:       ActionReset,
	"f":           ActionToggleFocus,
	"p":           ActionToggleAutoplay,
	"t":           ActionToggleSpeech,
	"r":           ActionToggleTyping,
	"s":           ActionToggleSettings,
}

// Handler carries out router actions. *Session implements it.
type Handler interface {
	Next(src Source) (int, error)
	Prev(src Source) (int, error)
	Reset() error
	ToggleFocus() bool
	ToggleAutoplay() domain.AutoplayMode
	ToggleNarration(mode domain.NarrationMode) domain.NarrationMode
	ToggleSettings() bool
}

// RouterConfig configures a Router.
type RouterConfig struct {
	// SwipeThreshold is the minimum horizontal travel of a swipe in px.
	SwipeThreshold float64
	Logger         *slog.Logger
}

// Router turns keys, swipes and control clicks into actions on a Handler.
type Router struct {
	handler   Handler
	threshold float64
	logger    *slog.Logger

	mu         sync.Mutex
	touching   bool
	moved      bool
	touchStart float64
	touchEnd   float64
}

// NewRouter creates a router dispatching to h.
func NewRouter(h Handler, cfg RouterConfig) *Router {
	if cfg.SwipeThreshold <= 0 {
		cfg.SwipeThreshold = 50
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Router{handler: h, threshold: cfg.SwipeThreshold, logger: cfg.Logger}
}

// KeyAction maps a key to its action without dispatching it.
func KeyAction(key string) Action {
	if a, ok := keyActions[key]; ok {
		return a
	}
	if len([]rune(key)) == 1 {
		if a, ok := keyActions[cases.Fold().String(key)]; ok {
			return a
		}
	}
	return ActionNone
}

// HandleKey dispatches a key press. It returns true when the key is bound, in
// which case the caller should suppress the key's default behaviour.
// Held toggle keys fire once; held navigation keys keep firing and are
// throttled by the sequencer's in-flight guard.
func (r *Router) HandleKey(ev KeyEvent) bool {
	a := KeyAction(ev.Key)
	if a == ActionNone {
		return false
	}
	if ev.Repeat && !a.navigates() {
		return true
	}
	r.dispatch(a, SourceKey)
	return true
}

// Click dispatches an on-screen control. Unknown controls return false.
func (r *Router) Click(c Control) bool {
	a, ok := controlActions[c]
	if !ok {
		return false
	}
	r.dispatch(a, SourceControl)
	return true
}

// TouchStart begins a gesture at horizontal position x.
func (r *Router) TouchStart(x float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touching = true
	r.moved = false
	r.touchStart = x
	r.touchEnd = x
}

// TouchMove records the latest horizontal position of the gesture.
func (r *Router) TouchMove(x float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.touching {
		return
	}
	r.moved = true
	r.touchEnd = x
}

// TouchEnd finishes the gesture. A leftward swipe longer than the threshold
// moves next, a rightward one moves prev. Taps and short swipes do nothing.
// The gesture is consumed, so a second TouchEnd returns ActionNone.
func (r *Router) TouchEnd() Action {
	r.mu.Lock()
	if !r.touching || !r.moved {
		r.touching = false
		r.mu.Unlock()
		return ActionNone
	}
	distance := r.touchStart - r.touchEnd
	r.touching = false
	r.moved = false
	r.mu.Unlock()

	var a Action
	switch {
	case distance > r.threshold:
		a = ActionNext
	case distance < -r.threshold:
		a = ActionPrev
	default:
		return ActionNone
	}
	r.dispatch(a, SourceSwipe)
	return a
}

func (r *Router) dispatch(a Action, src Source) {
	var err error
	switch a {
	case ActionNext:
		_, err = r.handler.Next(src)
	case ActionPrev:
		_, err = r.handler.Prev(src)
	case ActionReset:
		err = r.handler.Reset()
	case ActionToggleFocus:
		r.handler.ToggleFocus()
	case ActionToggleAutoplay:
		r.handler.ToggleAutoplay()
	case ActionToggleSpeech:
		r.handler.ToggleNarration(domain.NarrationSpeech)
	case ActionToggleTyping:
		r.handler.ToggleNarration(domain.NarrationTyping)
	case ActionToggleSettings:
		r.handler.ToggleSettings()
	}

	if err != nil {
		if errors.CodeOf(err).Silent() {
			r.logger.Debug("input ignored", "action", a.String(), "source", src.String(), "reason", err)
			return
		}
		r.logger.Warn("input failed", "action", a.String(), "error", err)
	}
}
