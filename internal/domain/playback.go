package domain

import "fmt"

// Direction is the direction of a relative navigation.
type Direction int

const (
	// Next moves towards the end of the story.
	Next Direction = iota + 1
	// Prev moves towards the start of the story.
	Prev
)

func (d Direction) String() string {
	switch d {
	case Next:
		return "next"
	case Prev:
		return "prev"
	default:
		return "none"
	}
}

// AutoplayMode is the pacing of automatic advancement.
type AutoplayMode string

// Autoplay modes.
const (
	AutoplayDisabled AutoplayMode = "disabled"
	AutoplaySlow     AutoplayMode = "slow"
	AutoplayNormal   AutoplayMode = "normal"
	AutoplayFast     AutoplayMode = "fast"
)

// ParseAutoplayMode parses a mode name. The empty string means disabled.
func ParseAutoplayMode(s string) (AutoplayMode, error) {
	switch AutoplayMode(s) {
	case "", AutoplayDisabled:
		return AutoplayDisabled, nil
	case AutoplaySlow, AutoplayNormal, AutoplayFast:
		return AutoplayMode(s), nil
	default:
		return AutoplayDisabled, fmt.Errorf("unknown autoplay mode %q", s)
	}
}

// Active reports whether the mode advances automatically.
func (m AutoplayMode) Active() bool {
	return m == AutoplaySlow || m == AutoplayNormal || m == AutoplayFast
}

// NarrationMode is the narration accompanying the current block.
// At most one mode is active at a time.
type NarrationMode string

// Narration modes.
const (
	NarrationNone   NarrationMode = "none"
	NarrationTyping NarrationMode = "typingReveal"
	NarrationSpeech NarrationMode = "speech"
)

// ParseNarrationMode parses a mode name. The empty string means none.
func ParseNarrationMode(s string) (NarrationMode, error) {
	switch NarrationMode(s) {
	case "", NarrationNone:
		return NarrationNone, nil
	case NarrationTyping, NarrationSpeech:
		return NarrationMode(s), nil
	default:
		return NarrationNone, fmt.Errorf("unknown narration mode %q", s)
	}
}

// PlaybackState is a point-in-time snapshot of a reading session.
type PlaybackState struct {
	SessionID        string        `json:"session_id"`
	StoryID          string        `json:"story_id"`
	CurrentIndex     int           `json:"current_index"`
	Total            int           `json:"total"`
	IsTransitioning  bool          `json:"is_transitioning"`
	Autoplay         AutoplayMode  `json:"autoplay"`
	AutoplayProgress float64       `json:"autoplay_progress"` // 0.0 - 1.0
	Narration        NarrationMode `json:"narration"`
	FocusMode        bool          `json:"focus_mode"`
	SettingsOpen     bool          `json:"settings_open"`
}

// Progress returns the reader's position through the story as 0.0 - 1.0.
func (s PlaybackState) Progress() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.CurrentIndex+1) / float64(s.Total)
}

// AtEnd reports whether the current block is the last one.
func (s PlaybackState) AtEnd() bool {
	return s.Total > 0 && s.CurrentIndex == s.Total-1
}
