package providers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/hushapp/hush/internal/config"
	"github.com/hushapp/hush/internal/events"
	"github.com/hushapp/hush/internal/logger"
	"github.com/hushapp/hush/internal/store"
	"github.com/hushapp/hush/internal/store/redis"
	"github.com/hushapp/hush/internal/store/sqlite"
)

// EventBusHandle wraps the event bus with its context for lifecycle management.
type EventBusHandle struct {
	*events.Bus
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *EventBusHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Bus.Shutdown(ctx)
}

// ProvideEventBus provides the playback event bus.
func ProvideEventBus(i do.Injector) (*EventBusHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	bus := events.NewBus(log.Logger)

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go bus.Start(ctx)

	log.Debug("Event bus started")

	return &EventBusHandle{
		Bus:    bus,
		cancel: cancel,
	}, nil
}

// StoreHandle wraps the configured progress backend with shutdown capability.
// Badger is set only for the badger backend; backups need it.
type StoreHandle struct {
	store.Backend
	Badger *store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the progress and preference store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	busHandle := do.MustInvoke[*EventBusHandle](i)

	switch cfg.Storage.Backend {
	case "badger":
		dbPath := filepath.Join(cfg.Storage.DataPath, "db")
		db, err := store.New(dbPath, log.Logger, busHandle.Bus)
		if err != nil {
			return nil, err
		}
		log.Info("Database initialized", "backend", "badger", "path", dbPath)
		return &StoreHandle{Backend: db, Badger: db}, nil

	case "sqlite":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dbPath := filepath.Join(cfg.Storage.DataPath, "hush.db")
		db, err := sqlite.Open(dbPath, log.Logger)
		if err != nil {
			return nil, err
		}
		db.SetEmitter(busHandle.Bus)
		log.Info("Database initialized", "backend", "sqlite", "path", dbPath)
		return &StoreHandle{Backend: db}, nil

	case "redis":
		db, err := redis.Open(context.Background(), cfg.Storage.RedisAddr, cfg.Storage.RedisPrefix, log.Logger)
		if err != nil {
			return nil, err
		}
		db.SetEmitter(busHandle.Bus)
		log.Info("Database initialized", "backend", "redis", "addr", cfg.Storage.RedisAddr)
		return &StoreHandle{Backend: db}, nil

	case "memory":
		log.Info("Database initialized", "backend", "memory")
		return &StoreHandle{Backend: store.NewMemory(busHandle.Bus)}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}
