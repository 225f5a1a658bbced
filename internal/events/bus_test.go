package events

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hushapp/hush/internal/domain"
	"github.com/hushapp/hush/internal/playback"
	"github.com/hushapp/hush/internal/store"
)

func startBus(t *testing.T) *Bus {
	t.Helper()
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go bus.Start(ctx)
	t.Cleanup(func() {
		_ = bus.Shutdown(context.Background())
		cancel()
	})
	return bus
}

func receive(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case e := <-sub.Events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func blockChanged(storyID string, from, to int) playback.BlockChanged {
	return playback.BlockChanged{
		SessionID: "ses-1",
		Transition: playback.Transition{
			StoryID:   storyID,
			From:      from,
			To:        to,
			Direction: domain.Next,
			Source:    playback.SourceKey,
			Token:     playback.Token{Style: playback.StyleFade, Direction: domain.Next, From: from, To: to},
		},
	}
}

func TestBus_DeliversConvertedEvents(t *testing.T) {
	bus := startBus(t)
	sub, err := bus.Subscribe("")
	require.NoError(t, err)

	bus.Emit(blockChanged("lightless", 0, 1))

	e := receive(t, sub)
	assert.Equal(t, EventBlockChanged, e.Type)
	assert.Equal(t, "lightless", e.StoryID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, BlockChangedData{
		SessionID: "ses-1", From: 0, To: 1, Direction: "next", Source: "key", Style: "fade",
	}, e.Data)
}

func TestBus_FiltersByStory(t *testing.T) {
	bus := startBus(t)
	mine, err := bus.Subscribe("mine")
	require.NoError(t, err)
	all, err := bus.Subscribe("")
	require.NoError(t, err)
	assert.Equal(t, 2, bus.Count())

	bus.Emit(blockChanged("other", 0, 1))
	bus.Emit(blockChanged("mine", 1, 2))

	assert.Equal(t, "other", receive(t, all).StoryID)
	assert.Equal(t, "mine", receive(t, all).StoryID)
	assert.Equal(t, "mine", receive(t, mine).StoryID)
}

func TestBus_DropsUnknownValues(t *testing.T) {
	bus := startBus(t)
	sub, err := bus.Subscribe("")
	require.NoError(t, err)

	bus.Emit("not an event")
	bus.Emit(nil)
	bus.Emit(store.ProgressDeleted{StoryID: "s"})

	assert.Equal(t, EventProgressDeleted, receive(t, sub).Type)
}

func TestBus_ShutdownClosesSubscribers(t *testing.T) {
	bus := NewBus(nil)
	go bus.Start(context.Background())

	sub, err := bus.Subscribe("")
	require.NoError(t, err)
	bus.Emit(playback.AutoplayChanged{StoryID: "s", Mode: domain.AutoplayFast})

	require.NoError(t, bus.Shutdown(context.Background()))
	require.NoError(t, bus.Shutdown(context.Background()), "second shutdown is a no-op")

	var got []EventType
	for e := range sub.Events {
		got = append(got, e.Type)
	}
	assert.LessOrEqual(t, len(got), 1)
	assert.Equal(t, 0, bus.Count())

	// Emitting after shutdown must not panic.
	bus.Emit(playback.AutoplayChanged{StoryID: "s"})
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := startBus(t)
	sub, err := bus.Subscribe("")
	require.NoError(t, err)

	bus.Unsubscribe(sub.ID)
	bus.Unsubscribe(sub.ID)
	_, open := <-sub.Done
	assert.False(t, open)
	assert.Equal(t, 0, bus.Count())
}

func TestFromValue(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		value any
		want  EventType
		story string
	}{
		{"opened", playback.SessionOpened{StoryID: "s", Total: 3}, EventSessionOpened, "s"},
		{"closed", playback.SessionClosed{StoryID: "s"}, EventSessionClosed, "s"},
		{"narration", playback.NarrationChanged{StoryID: "s", Mode: domain.NarrationSpeech}, EventNarrationChanged, "s"},
		{"notice", playback.NoticePublished{StoryID: "s", Notice: playback.Notice{Level: playback.NoticeWarning, Err: fmt.Errorf("boom")}}, EventNarrationNotice, "s"},
		{"reveal", playback.RevealStepped{Revealed: "He"}, EventRevealStep, ""},
		{"progress", store.ProgressSaved{Progress: domain.ReadingProgress{StoryID: "s", BlockIndex: 2}}, EventProgressSaved, "s"},
		{"stories", StoriesChanged{Path: "stories/a.yaml", Op: "WRITE"}, EventStoriesChanged, ""},
		{"passthrough", Event{Type: EventHeartbeat}, EventHeartbeat, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := FromValue(tt.value, now)
			require.True(t, ok)
			assert.Equal(t, tt.want, e.Type)
			assert.Equal(t, tt.story, e.StoryID)
			assert.Equal(t, now, e.Timestamp)
		})
	}

	e, _ := FromValue(playback.NoticePublished{Notice: playback.Notice{Err: fmt.Errorf("boom")}}, now)
	assert.Equal(t, "boom", e.Data.(NoticeData).Error)

	_, ok := FromValue(42, now)
	assert.False(t, ok)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWriteLines(t *testing.T) {
	bus := startBus(t)
	sub, err := bus.Subscribe("")
	require.NoError(t, err)

	buf := &lockedBuffer{}
	done := make(chan error, 1)
	go func() { done <- WriteLines(context.Background(), sub, buf) }()

	bus.Emit(playback.AutoplayChanged{SessionID: "ses-1", StoryID: "s", Mode: domain.AutoplaySlow})
	bus.Emit(playback.AutoplayChanged{SessionID: "ses-1", StoryID: "s", Mode: domain.AutoplayDisabled})

	require.Eventually(t, func() bool {
		return strings.Count(buf.String(), "\n") == 2
	}, 2*time.Second, 5*time.Millisecond)
	bus.Unsubscribe(sub.ID)
	require.NoError(t, <-done)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first struct {
		Type string   `json:"type"`
		Data ModeData `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "autoplay.changed", first.Type)
	assert.Equal(t, "slow", first.Data.Mode)
}

func TestHandler_StreamsEvents(t *testing.T) {
	bus := startBus(t)
	srv := httptest.NewServer(NewHandler(bus, nil))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?story=mine", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readFrame := func() (string, string) {
		var event, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "":
				return event, data
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
		}
	}

	event, _ := readFrame()
	assert.Equal(t, "connected", event)

	bus.Emit(blockChanged("other", 0, 1))
	bus.Emit(blockChanged("mine", 4, 5))

	event, data := readFrame()
	assert.Equal(t, "block.changed", event)
	assert.Contains(t, data, `"story_id":"mine"`)
	assert.Contains(t, data, `"to":5`)
}

func TestHandler_RejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(NewBus(nil), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
