package playback

import "github.com/hushapp/hush/internal/domain"

// Emitter receives session events. events.Bus implements it.
type Emitter interface {
	Emit(event any)
}

type noopEmitter struct{}

func (noopEmitter) Emit(any) {}

// SessionOpened is emitted once a session is ready.
type SessionOpened struct {
	SessionID string
	StoryID   string
	Index     int
	Total     int
}

// SessionClosed is emitted when a session is closed.
type SessionClosed struct {
	SessionID string
	StoryID   string
	Index     int
}

// BlockChanged is emitted for every committed transition.
type BlockChanged struct {
	SessionID  string
	Transition Transition
}

// AutoplayChanged is emitted when the autoplay mode changes.
type AutoplayChanged struct {
	SessionID string
	StoryID   string
	Mode      domain.AutoplayMode
}

// NarrationChanged is emitted when the narration mode changes.
type NarrationChanged struct {
	SessionID string
	StoryID   string
	Mode      domain.NarrationMode
}

// NoticePublished carries a narration notice for the reader.
type NoticePublished struct {
	SessionID string
	StoryID   string
	Notice    Notice
}

// RevealStepped is emitted as the typing reveal progresses.
type RevealStepped struct {
	SessionID string
	Revealed  string
	Done      bool
}
