// Package di provides dependency injection configuration for the Hush reader.
package di

import (
	"github.com/samber/do/v2"

	"github.com/hushapp/hush/internal/config"
	"github.com/hushapp/hush/internal/di/providers"
	"github.com/hushapp/hush/internal/logger"
	"github.com/hushapp/hush/internal/playback"
	"github.com/hushapp/hush/internal/story"
	"github.com/hushapp/hush/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
// flags are the command-line overrides applied on top of the config file and
// environment.
func NewContainer(flags config.Flags, mode providers.RunMode) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, flags)
	do.ProvideValue(injector, mode)
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Database layer
	do.Provide(injector, providers.ProvideEventBus)
	do.Provide(injector, providers.ProvideStore)

	// Stories
	do.Provide(injector, providers.ProvideValidator)
	do.Provide(injector, providers.ProvideStoryLoader)

	// Playback
	do.Provide(injector, providers.ProvideSpeaker)
	do.Provide(injector, providers.ProvideSessionConfig)
	do.Provide(injector, providers.ProvideBackupService)

	// Workers
	do.Provide(injector, providers.ProvideStoryWatcher)
	do.Provide(injector, providers.ProvideEventLog)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes the services a reading session needs and starts the
// background workers. Backups are resolved on demand by the commands that use them.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)

	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*validation.Validator](injector)
	_ = do.MustInvoke[*story.Loader](injector)
	if _, err := do.Invoke[playback.SessionConfig](injector); err != nil {
		return err
	}

	// Workers
	_ = do.MustInvoke[*providers.StoryWatcherHandle](injector)
	if _, err := do.Invoke[*providers.EventLogHandle](injector); err != nil {
		return err
	}

	// Server
	if _, err := do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
		return err
	}

	return nil
}
