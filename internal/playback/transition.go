package playback

import (
	"fmt"

	"github.com/hushapp/hush/internal/domain"
)

// Style is a visual transition style.
type Style string

// Transition styles.
const (
	StyleSlide Style = "slide"
	StyleFade  Style = "fade"
	StyleZoom  Style = "zoom"
	StyleFlip  Style = "flip"
)

// ParseStyle parses a style name. The empty string means slide.
func ParseStyle(s string) (Style, error) {
	switch Style(s) {
	case "", StyleSlide:
		return StyleSlide, nil
	case StyleFade, StyleZoom, StyleFlip:
		return Style(s), nil
	default:
		return "", fmt.Errorf("unknown transition style %q", s)
	}
}

// Token describes the visual transition a renderer should play.
type Token struct {
	Style     Style
	Direction domain.Direction
	From      int
	To        int
}

func (t Token) String() string {
	return fmt.Sprintf("%s-%s", t.Style, t.Direction)
}

// Animator picks the visual transition for a move. Implementations must be
// pure and must not call back into the sequencer.
type Animator interface {
	Transition(from, to int, dir domain.Direction) Token
}

// StyleAnimator always uses one style.
type StyleAnimator struct {
	Style Style
}

// Transition implements Animator.
func (a StyleAnimator) Transition(from, to int, dir domain.Direction) Token {
	style := a.Style
	if style == "" {
		style = StyleSlide
	}
	return Token{Style: style, Direction: dir, From: from, To: to}
}
