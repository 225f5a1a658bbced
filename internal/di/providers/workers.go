package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/hushapp/hush/internal/config"
	"github.com/hushapp/hush/internal/logger"
	"github.com/hushapp/hush/internal/story"
)

// StoryWatcherHandle wraps the story watcher with shutdown capability.
// Watcher is nil when watching is disabled.
type StoryWatcherHandle struct {
	*story.Watcher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *StoryWatcherHandle) Shutdown() error {
	if h.Watcher == nil {
		return nil
	}
	h.cancel()
	return h.Watcher.Stop()
}

// ProvideStoryWatcher provides the story directory watcher.
func ProvideStoryWatcher(i do.Injector) (*StoryWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	loader := do.MustInvoke[*story.Loader](i)
	busHandle := do.MustInvoke[*EventBusHandle](i)

	if !cfg.Stories.Watch {
		return &StoryWatcherHandle{}, nil
	}

	w, err := story.NewWatcher(loader, busHandle.Bus, log.Logger, story.WatchOptions{})
	if err != nil {
		// A missing story directory is reported by the commands that read it.
		log.Warn("Story watcher disabled", "path", cfg.Stories.Path, "error", err)
		return &StoryWatcherHandle{}, nil
	}

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())

	go w.Start(ctx)

	log.Debug("Story watcher started", "path", cfg.Stories.Path)

	return &StoryWatcherHandle{
		Watcher: w,
		cancel:  cancel,
	}, nil
}
