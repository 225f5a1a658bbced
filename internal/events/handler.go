package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// EventHeartbeat keeps idle SSE connections open.
const EventHeartbeat EventType = "heartbeat"

// Handler streams bus events as Server-Sent Events, e.g. to a companion
// display following the reader. GET /events?story=<id> limits the stream to one story.
type Handler struct {
	bus       *Bus
	logger    *slog.Logger
	heartbeat time.Duration
}

// NewHandler creates a new SSE Handler.
func NewHandler(bus *Bus, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		bus:       bus,
		logger:    logger,
		heartbeat: 30 * time.Second,
	}
}

// ServeHTTP handles the SSE connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Check if request context is already canceled (early client disconnect).
	if r.Context().Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	rc := http.NewResponseController(w)

	sub, err := h.bus.Subscribe(r.URL.Query().Get("story"))
	if err != nil {
		h.logger.Error("failed to register subscriber", slog.String("error", err.Error()))
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.bus.Unsubscribe(sub.ID)

	subLogger := h.logger.With(slog.String("subscriber_id", sub.ID))

	if err := h.sendEvent(w, rc, "connected", map[string]string{
		"subscriber_id": sub.ID,
		"message":       "event stream established",
	}); err != nil {
		subLogger.Warn("failed to send initial connection message", slog.String("error", err.Error()))
		return
	}

	ctx := r.Context()
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := h.sendEvent(w, rc, string(event.Type), event); err != nil {
				subLogger.Debug("client disconnected during send")
				return
			}

		case <-heartbeat.C:
			beat := Event{Type: EventHeartbeat, Timestamp: time.Now(), Data: map[string]time.Time{"time": time.Now()}}
			if err := h.sendEvent(w, rc, string(beat.Type), beat); err != nil {
				subLogger.Debug("client disconnected during heartbeat")
				return
			}

		case <-sub.Done:
			return

		case <-ctx.Done():
			return
		}
	}
}

// sendEvent writes one SSE frame and flushes it.
func (h *Handler) sendEvent(w http.ResponseWriter, rc *http.ResponseController, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}

	if err := rc.Flush(); err != nil {
		return err
	}

	// Reset after each successful write.
	if err := rc.SetWriteDeadline(time.Now().Add(60 * time.Second)); err != nil {
		h.logger.Debug("failed to set write deadline", slog.String("error", err.Error()))
	}
	return nil
}
