// Package main provides the entry point for the hush story reader.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/samber/do/v2"
	cli "github.com/urfave/cli/v3"

	"github.com/hushapp/hush/internal/config"
	"github.com/hushapp/hush/internal/di"
	"github.com/hushapp/hush/internal/di/providers"
	"github.com/hushapp/hush/internal/logger"
)

func main() {
	// Interrupts reach the reader as keys while the terminal is raw; the
	// signal context covers the other commands and non-interactive runs.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	app := &cli.Command{
		Name:            "hush",
		Usage:           "reads stories one block at a time, with autoplay and narration",
		Version:         providers.Version + " (" + runtime.Version() + ")",
		HideHelpCommand: true,
		OnUsageError:    usageErrorHandler,
		Flags:           globalFlags(),
		Commands: []*cli.Command{
			readCommand(),
			listCommand(),
			indexCommand(),
			progressCommand(),
			backupCommand(),
			resetCommand(),
		},
	}

	var err error
	// NOTE: os.Exit is called at the end of main to set the exit code, make
	// sure there are no other deferred functions after this one.
	defer func() {
		stop()
		if err != nil {
			fmt.Fprintf(os.Stderr, "hush: %v\n", err)
			os.Exit(1)
		}
	}()
	err = app.Run(ctx, os.Args)
}

func usageErrorHandler(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return err
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "load configuration from `FILE` (YAML)"},
		&cli.StringFlag{Name: "env-file", Usage: "load environment overrides from `FILE`"},
		&cli.StringFlag{Name: "env", Usage: "runtime environment (development, production)"},
		&cli.StringFlag{Name: "log-level", Usage: "log `LEVEL` (debug, info, warn, error)"},
		&cli.StringFlag{Name: "log-file", Usage: "write logs to `FILE`"},
		&cli.StringFlag{Name: "storage", Usage: "progress storage `BACKEND` (badger, sqlite, redis, memory)"},
		&cli.StringFlag{Name: "data", Usage: "data `DIR` for progress, logs and backups"},
		&cli.StringFlag{Name: "redis", Usage: "redis `ADDR` for the redis backend"},
		&cli.StringFlag{Name: "stories", Aliases: []string{"s"}, Usage: "story documents `DIR`"},
		&cli.StringFlag{Name: "watch", Usage: "reload stories when files change (true/false)"},
		&cli.StringFlag{Name: "events-addr", Usage: "serve the companion API on `ADDR`"},
		&cli.StringFlag{Name: "event-log", Usage: "append playback events to `FILE` as JSON lines"},
	}
}

// flagsFrom collects the global overrides and the read command's playback flags.
func flagsFrom(cmd *cli.Command) config.Flags {
	return config.Flags{
		ConfigFile:           cmd.String("config"),
		EnvFile:              cmd.String("env-file"),
		Env:                  cmd.String("env"),
		LogLevel:             cmd.String("log-level"),
		LogFile:              cmd.String("log-file"),
		StorageBackend:       cmd.String("storage"),
		DataPath:             cmd.String("data"),
		RedisAddr:            cmd.String("redis"),
		StoriesPath:          cmd.String("stories"),
		Watch:                cmd.String("watch"),
		EventsAddr:           cmd.String("events-addr"),
		EventLog:             cmd.String("event-log"),
		TransitionDuration:   cmd.String("transition"),
		TransitionStyle:      cmd.String("style"),
		DefaultAutoplay:      cmd.String("autoplay"),
		StopAutoplayOnManual: cmd.String("stop-autoplay-on-manual"),
		NarrationEndpoint:    cmd.String("narration-endpoint"),
		NarrationToken:       cmd.String("narration-token"),
		FallbackCommand:      cmd.String("speak-command"),
	}
}

// withContainer builds and bootstraps the container for one command and shuts
// it down when fn returns.
func withContainer(cmd *cli.Command, mode providers.RunMode, fn func(injector *do.RootScope, log *logger.Logger) error) error {
	injector := di.NewContainer(flagsFrom(cmd), mode)

	if err := di.Bootstrap(injector); err != nil {
		_ = injector.Shutdown()
		return fmt.Errorf("bootstrap: %w", err)
	}
	log := do.MustInvoke[*logger.Logger](injector)

	runErr := fn(injector, log)
	if runErr != nil {
		log.Error("Command failed", "command", cmd.Name, "error", runErr)
	}

	// Services implementing do.Shutdownable are stopped in reverse order.
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}
	return runErr
}
