package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/samber/do/v2"

	"github.com/hushapp/hush/internal/api"
	"github.com/hushapp/hush/internal/config"
	"github.com/hushapp/hush/internal/events"
	"github.com/hushapp/hush/internal/logger"
	"github.com/hushapp/hush/internal/ratelimit"
	"github.com/hushapp/hush/internal/story"
)

// HTTPServerHandle wraps http.Server with Shutdownable. Server is nil when
// no listen address is configured.
type HTTPServerHandle struct {
	*http.Server
	limiter *ratelimit.Limiter
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	if h.Server == nil {
		return nil
	}
	defer h.limiter.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the companion HTTP API and starts listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Events.Addr == "" {
		return &HTTPServerHandle{}, nil
	}

	storeHandle := do.MustInvoke[*StoreHandle](i)
	busHandle := do.MustInvoke[*EventBusHandle](i)
	loader := do.MustInvoke[*story.Loader](i)

	limiter := ratelimit.New(cfg.Events.RateLimit, int(cfg.Events.RateLimit)+1)

	handler := api.NewServer(api.Services{
		Stories:  loader,
		Progress: storeHandle.Backend,
		Events:   events.NewHandler(busHandle.Bus, log.Logger),
		Limiter:  limiter,
	}, cfg.Events.AllowedOrigins, log.Logger)

	srv := &http.Server{
		Addr:              cfg.Events.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Listen synchronously so a busy port fails the command.
	ln, err := net.Listen("tcp", cfg.Events.Addr)
	if err != nil {
		limiter.Stop()
		return nil, fmt.Errorf("listen on %s: %w", cfg.Events.Addr, err)
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("Companion API listening", "addr", ln.Addr().String())

	return &HTTPServerHandle{Server: srv, limiter: limiter}, nil
}

// EventLogHandle writes every playback event to a file as JSON lines.
type EventLogHandle struct {
	file   *os.File
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable.
func (h *EventLogHandle) Shutdown() error {
	if h.file == nil {
		return nil
	}
	h.cancel()
	<-h.done
	return h.file.Close()
}

// ProvideEventLog provides the event log writer when a log path is configured.
func ProvideEventLog(i do.Injector) (*EventLogHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Events.LogPath == "" {
		return &EventLogHandle{}, nil
	}

	busHandle := do.MustInvoke[*EventBusHandle](i)

	f, err := os.OpenFile(cfg.Events.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //#nosec G304 -- path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	sub, err := busHandle.Subscribe("")
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("subscribe event log: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer busHandle.Unsubscribe(sub.ID)
		if err := events.WriteLines(ctx, sub, f); err != nil {
			log.Warn("Event log stopped", "error", err)
		}
	}()

	log.Debug("Event log started", "path", cfg.Events.LogPath)

	return &EventLogHandle{file: f, cancel: cancel, done: done}, nil
}
