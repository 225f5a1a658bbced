// Package events fans reading-session and store events out to subscribers:
// the terminal front end, an optional JSON-lines log and the SSE endpoint.
package events

import (
	"time"

	"github.com/hushapp/hush/internal/playback"
	"github.com/hushapp/hush/internal/store"
)

// EventType represents the type of an Event.
type EventType string

const (
	// EventSessionOpened is sent when a story is opened.
	EventSessionOpened EventType = "session.opened"
	// EventSessionClosed is sent when a story is closed.
	EventSessionClosed EventType = "session.closed"
	// EventBlockChanged is sent for every committed transition.
	EventBlockChanged EventType = "block.changed"
	// EventAutoplayChanged is sent when the autoplay mode changes.
	EventAutoplayChanged EventType = "autoplay.changed"
	// EventNarrationChanged is sent when the narration mode changes.
	EventNarrationChanged EventType = "narration.changed"
	// EventNarrationNotice carries a message for the reader.
	EventNarrationNotice EventType = "narration.notice"
	// EventRevealStep is sent as the typing reveal shows more text.
	EventRevealStep EventType = "reveal.step"

	// EventProgressSaved is sent after a reading position is written.
	EventProgressSaved EventType = "progress.saved"
	// EventProgressDeleted is sent after a story's progress is cleared.
	EventProgressDeleted EventType = "progress.deleted"

	// EventStoriesChanged is sent when the story directory changes on disk.
	EventStoriesChanged EventType = "stories.changed"
)

// Event is one message delivered to subscribers.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// StoryID filters delivery. Empty means every subscriber receives it.
	StoryID string `json:"story_id,omitempty"`
}

// BlockChangedData is the payload of block.changed.
type BlockChangedData struct {
	SessionID string `json:"session_id"`
	From      int    `json:"from"`
	To        int    `json:"to"`
	Direction string `json:"direction"`
	Source    string `json:"source"`
	Style     string `json:"style"`
}

// SessionData is the payload of session.opened and session.closed.
type SessionData struct {
	SessionID string `json:"session_id"`
	Index     int    `json:"index"`
	Total     int    `json:"total,omitempty"`
}

// ModeData is the payload of autoplay.changed and narration.changed.
type ModeData struct {
	SessionID string `json:"session_id"`
	Mode      string `json:"mode"`
}

// NoticeData is the payload of narration.notice.
type NoticeData struct {
	SessionID string `json:"session_id"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

// RevealData is the payload of reveal.step.
type RevealData struct {
	SessionID string `json:"session_id"`
	Revealed  string `json:"revealed"`
	Done      bool   `json:"done"`
}

// StoriesChanged is emitted by the story watcher.
type StoriesChanged struct {
	Path string `json:"path"`
	Op   string `json:"op"`
}

// FromValue converts a value emitted by the playback, store or story packages
// into an Event. It reports false for values it does not know.
//
//nolint:gocyclo // One case per event type.
func FromValue(v any, now time.Time) (Event, bool) {
	e := Event{Timestamp: now}

	switch ev := v.(type) {
	case Event:
		if ev.Timestamp.IsZero() {
			ev.Timestamp = now
		}
		return ev, true
	case playback.SessionOpened:
		e.Type, e.StoryID = EventSessionOpened, ev.StoryID
		e.Data = SessionData{SessionID: ev.SessionID, Index: ev.Index, Total: ev.Total}
	case playback.SessionClosed:
		e.Type, e.StoryID = EventSessionClosed, ev.StoryID
		e.Data = SessionData{SessionID: ev.SessionID, Index: ev.Index}
	case playback.BlockChanged:
		t := ev.Transition
		e.Type, e.StoryID = EventBlockChanged, t.StoryID
		e.Data = BlockChangedData{
			SessionID: ev.SessionID,
			From:      t.From,
			To:        t.To,
			Direction: t.Direction.String(),
			Source:    t.Source.String(),
			Style:     string(t.Token.Style),
		}
	case playback.AutoplayChanged:
		e.Type, e.StoryID = EventAutoplayChanged, ev.StoryID
		e.Data = ModeData{SessionID: ev.SessionID, Mode: string(ev.Mode)}
	case playback.NarrationChanged:
		e.Type, e.StoryID = EventNarrationChanged, ev.StoryID
		e.Data = ModeData{SessionID: ev.SessionID, Mode: string(ev.Mode)}
	case playback.NoticePublished:
		e.Type, e.StoryID = EventNarrationNotice, ev.StoryID
		data := NoticeData{SessionID: ev.SessionID, Level: string(ev.Notice.Level), Message: ev.Notice.Message}
		if ev.Notice.Err != nil {
			data.Error = ev.Notice.Err.Error()
		}
		e.Data = data
	case playback.RevealStepped:
		e.Type = EventRevealStep
		e.Data = RevealData{SessionID: ev.SessionID, Revealed: ev.Revealed, Done: ev.Done}
	case store.ProgressSaved:
		e.Type, e.StoryID = EventProgressSaved, ev.Progress.StoryID
		e.Data = ev.Progress
	case store.ProgressDeleted:
		e.Type, e.StoryID = EventProgressDeleted, ev.StoryID
		e.Data = map[string]string{"story_id": ev.StoryID}
	case StoriesChanged:
		e.Type = EventStoriesChanged
		e.Data = ev
	default:
		return Event{}, false
	}
	return e, true
}
