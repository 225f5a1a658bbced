package story

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hushapp/hush/internal/events"
)

// Change operations reported in events.StoriesChanged.
const (
	OpChanged = "changed"
	OpRemoved = "removed"
)

// Emitter receives story change notifications.
type Emitter interface {
	Emit(event any)
}

// WatchOptions configures the story watcher.
type WatchOptions struct {
	// SettleDelay is how long a document must stay unchanged before it is
	// reloaded. Editors often write a file in several steps.
	SettleDelay time.Duration
}

func (o *WatchOptions) setDefaults() {
	if o.SettleDelay == 0 {
		o.SettleDelay = 200 * time.Millisecond
	}
}

// Watcher invalidates the loader cache when story documents change on disk
// and reports each change to an Emitter.
type Watcher struct {
	loader  *Loader
	emitter Emitter
	logger  *slog.Logger
	opts    WatchOptions
	fsw     *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer // path -> settle timer
	stopped bool

	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for the loader's directory.
func NewWatcher(loader *Loader, emitter Emitter, logger *slog.Logger, opts WatchOptions) (*Watcher, error) {
	opts.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(loader.Dir()); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", loader.Dir(), err)
	}

	return &Watcher{
		loader:  loader,
		emitter: emitter,
		logger:  logger,
		opts:    opts,
		fsw:     fsw,
		pending: make(map[string]*time.Timer),
		done:    make(chan struct{}),
	}, nil
}

// Start processes file system events until ctx is cancelled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) {
	w.logger.Info("watching stories", "path", w.loader.Dir())

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("story watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !IsStoryFile(ev.Name) {
		return
	}

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancel(ev.Name)
		w.publish(ev.Name, OpRemoved)
	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Create):
		w.settle(ev.Name)
	}
}

// settle (re)starts the settle timer for path.
func (w *Watcher) settle(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.opts.SettleDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		stopped := w.stopped
		w.mu.Unlock()

		if !stopped {
			w.publish(path, OpChanged)
		}
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) publish(path, op string) {
	w.loader.Invalidate(path)
	w.logger.Debug("story changed", "path", path, "op", op)
	if w.emitter != nil {
		w.emitter.Emit(events.StoriesChanged{Path: path, Op: op})
	}
}

// Stop stops the watcher and cancels pending reloads. It is safe to call
// more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)

		w.mu.Lock()
		w.stopped = true
		for _, t := range w.pending {
			t.Stop()
		}
		clear(w.pending)
		w.mu.Unlock()

		err = w.fsw.Close()
	})
	return err
}
