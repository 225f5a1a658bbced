// Package providers contains dependency injection providers for the Hush reader.
package providers

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/hushapp/hush/internal/config"
	"github.com/hushapp/hush/internal/logger"
)

// RunMode describes how the process uses the terminal. The CLI registers it
// before the container is used; the default is non-interactive.
type RunMode struct {
	// Interactive is set while the reader owns the terminal. Logs then go to
	// a file so they do not tear the screen.
	Interactive bool
}

// ProvideConfig provides the application configuration. The CLI registers its
// flag overrides as a config.Flags value before the container is used.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	flags, err := do.Invoke[config.Flags](i)
	if err != nil {
		flags = config.Flags{}
	}
	return config.LoadConfig(flags)
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)
	mode, _ := do.Invoke[RunMode](i)

	w, err := logOutput(cfg, mode)
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Writer:      w,
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development" && cfg.Logger.Level == "debug",
		Environment: cfg.App.Environment,
	})

	log.Debug("Starting Hush",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"storage", cfg.Storage.Backend,
		"stories_path", cfg.Stories.Path,
	)

	return log, nil
}

// logOutput picks the log destination: the configured file, a file in the data
// directory for interactive sessions, or stderr.
func logOutput(cfg *config.Config, mode RunMode) (io.Writer, error) {
	path := cfg.Logger.File
	if path == "" && mode.Interactive {
		path = filepath.Join(cfg.Storage.DataPath, "hush.log")
	}
	if path == "" {
		return os.Stderr, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //#nosec G304 -- path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
