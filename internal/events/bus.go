package events

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/hushapp/hush/internal/id"
)

// Subscriber receives events from the Bus.
type Subscriber struct {
	ConnectedAt time.Time
	Events      chan Event
	Done        chan struct{}
	ID          string
	// StoryID limits delivery to one story's events. Empty means all.
	StoryID string
}

// Bus queues events and broadcasts them to subscribers on its own goroutine.
// Emit never blocks; slow subscribers drop events.
type Bus struct {
	subscribers map[string]*Subscriber
	events      chan Event
	logger      *slog.Logger
	wg          sync.WaitGroup
	mu          sync.RWMutex

	// Shutdown state - protected by shutdownMu
	shutdownMu sync.RWMutex
	shutdown   bool
}

// NewBus creates a Bus. Call Start to begin delivery.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bus{
		subscribers: make(map[string]*Subscriber),
		events:      make(chan Event, 1000),
		logger:      logger,
	}
}

// Start runs the broadcast loop until ctx is done or the bus is shut down.
// It should be called once, in its own goroutine.
func (b *Bus) Start(ctx context.Context) {
	b.wg.Add(1)
	defer b.wg.Done()

	b.logger.Debug("event bus starting")

	for {
		select {
		case event, ok := <-b.events:
			if !ok {
				return
			}
			b.broadcast(event)

		case <-ctx.Done():
			b.logger.Debug("event bus stopping")
			b.closeAll()
			return
		}
	}
}

// Shutdown stops accepting events, drains the queue and closes all subscribers.
func (b *Bus) Shutdown(ctx context.Context) error {
	// Closing under the write lock keeps Emit from sending on a closed channel.
	b.shutdownMu.Lock()
	if b.shutdown {
		b.shutdownMu.Unlock()
		return nil
	}
	b.shutdown = true
	close(b.events)
	b.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		for event := range b.events {
			b.broadcast(event)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("event drain timeout, some events may be lost")
	}

	b.wg.Wait()
	b.closeAll()
	return nil
}

// Emit queues an event for broadcasting. It accepts Event values and the
// event structs of the playback, store and story packages.
// This implements the playback.Emitter and store.EventEmitter interfaces.
func (b *Bus) Emit(event any) {
	evt, ok := FromValue(event, time.Now())
	if !ok {
		b.logger.Error("invalid event type emitted", slog.String("type", typeName(event)))
		return
	}

	b.shutdownMu.RLock()
	defer b.shutdownMu.RUnlock()

	if b.shutdown {
		return
	}

	select {
	case b.events <- evt:
	default:
		b.logger.Error("event queue full, dropping event",
			slog.String("event_type", string(evt.Type)))
	}
}

// Subscribe registers a subscriber. storyID limits delivery to one story.
func (b *Bus) Subscribe(storyID string) (*Subscriber, error) {
	subID, err := id.Generate("sub")
	if err != nil {
		return nil, err
	}

	sub := &Subscriber{
		ID:          subID,
		StoryID:     storyID,
		Events:      make(chan Event, 100),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	b.mu.Lock()
	b.subscribers[sub.ID] = sub
	total := len(b.subscribers)
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		slog.String("subscriber_id", subID),
		slog.String("story_id", storyID),
		slog.Int("total_subscribers", total))
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its channels.
func (b *Bus) Unsubscribe(subID string) {
	b.mu.Lock()
	sub, ok := b.subscribers[subID]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subscribers, subID)
	total := len(b.subscribers)
	b.mu.Unlock()

	close(sub.Done)
	close(sub.Events)

	b.logger.Debug("subscriber removed",
		slog.String("subscriber_id", subID),
		slog.Duration("duration", time.Since(sub.ConnectedAt)),
		slog.Int("total_subscribers", total))
}

// Subscribers returns an iterator over the current subscribers.
func (b *Bus) Subscribers() iter.Seq[*Subscriber] {
	return func(yield func(*Subscriber) bool) {
		b.mu.RLock()
		defer b.mu.RUnlock()

		for _, sub := range b.subscribers {
			if !yield(sub) {
				return
			}
		}
	}
}

// Count returns the number of subscribers.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Bus) broadcast(event Event) {
	var delivered, dropped, filtered int

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if event.StoryID != "" && sub.StoryID != "" && event.StoryID != sub.StoryID {
			filtered++
			continue
		}

		// Non-blocking send (drop if the subscriber is slow).
		select {
		case sub.Events <- event:
			delivered++
		default:
			dropped++
			b.logger.Warn("dropped event for slow subscriber",
				slog.String("subscriber_id", sub.ID),
				slog.String("event_type", string(event.Type)))
		}
	}

	if event.Type != EventRevealStep {
		b.logger.Debug("event broadcast",
			slog.String("event_type", string(event.Type)),
			slog.Group("stats",
				slog.Int("delivered", delivered),
				slog.Int("filtered", filtered),
				slog.Int("dropped", dropped)))
	}
}

// closeAll closes every subscriber.
func (b *Bus) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscribers {
		close(sub.Done)
		close(sub.Events)
	}
	b.subscribers = make(map[string]*Subscriber)
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
