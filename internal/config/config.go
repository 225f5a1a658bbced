// Package config provides application configuration management with support for a YAML config file, environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Logger    LoggerConfig    `yaml:"logger"`
	Storage   StorageConfig   `yaml:"storage"`
	Stories   StoriesConfig   `yaml:"stories"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Narration NarrationConfig `yaml:"narration"`
	Events    EventsConfig    `yaml:"events"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `yaml:"environment"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // Log to this file instead of stderr (default: stderr)
}

// StorageConfig selects and configures the progress store backend.
type StorageConfig struct {
	Backend     string `yaml:"backend"`      // badger, sqlite, redis, memory (default: badger)
	DataPath    string `yaml:"data_path"`    // Directory for badger/sqlite files (default: ~/Hush/data)
	RedisAddr   string `yaml:"redis_addr"`   // host:port for the redis backend
	RedisPrefix string `yaml:"redis_prefix"` // Key prefix for the redis backend (default: hush:)
}

// StoriesConfig holds story library configuration.
type StoriesConfig struct {
	Path  string `yaml:"path"`  // Directory of story documents (default: ./stories)
	Watch bool   `yaml:"watch"` // Reload stories when files change (default: true)
}

// PlaybackConfig holds sequencer, autoplay and input timings.
type PlaybackConfig struct {
	TransitionDuration   time.Duration `yaml:"transition_duration"`     // Settle window of one transition (default: 1500ms)
	TickInterval         time.Duration `yaml:"tick_interval"`           // Autoplay progress tick (default: 50ms)
	TypingInterval       time.Duration `yaml:"typing_interval"`         // Typing reveal per character (default: 50ms)
	DefaultAutoplay      string        `yaml:"default_autoplay"`        // Mode used when autoplay is toggled on (default: normal)
	StopAutoplayOnManual bool          `yaml:"stop_autoplay_on_manual"` // Manual navigation disables autoplay (default: false)
	SwipeThreshold       float64       `yaml:"swipe_threshold"`         // Minimum swipe distance in px (default: 50)
	TransitionStyle      string        `yaml:"transition_style"`        // slide, fade, zoom, flip (default: slide)
}

// NarrationConfig holds speech backend configuration.
type NarrationConfig struct {
	Enabled           bool          `yaml:"enabled"`             // Allow the remote speech backend (default: true)
	Endpoint          string        `yaml:"endpoint"`            // Remote TTS endpoint
	Token             string        `yaml:"token"`               // Bearer token for the endpoint
	Rate              float64       `yaml:"rate"`                // Fallback voice rate (default: 0.9)
	Pitch             float64       `yaml:"pitch"`               // Fallback voice pitch (default: 1.0)
	Volume            float64       `yaml:"volume"`              // Fallback voice volume (default: 0.8)
	RequestTimeout    time.Duration `yaml:"request_timeout"`     // Remote request timeout (default: 15s)
	RequestsPerSecond float64       `yaml:"requests_per_second"` // Remote request limit (default: 2)
	FallbackCommand   string        `yaml:"fallback_command"`    // Local speech command, e.g. "espeak" (default: none)
}

// EventsConfig controls where playback events are published.
type EventsConfig struct {
	Addr    string `yaml:"addr"`     // Listen address of the SSE endpoint, e.g. 127.0.0.1:8787 (default: off)
	LogPath string `yaml:"log_path"` // File that receives one JSON event per line (default: off)
	// Browser origins allowed to call the companion API (default: any)
	AllowedOrigins []string `yaml:"allowed_origins"`
	RateLimit      float64  `yaml:"rate_limit"` // Requests per second per client, 0 disables (default: 20)
}

// DefaultEndpoint is the hosted text-to-speech model used when no endpoint is configured.
const DefaultEndpoint = "https://api-inference.huggingface.co/models/onnx-community/Kokoro-82M-v1.0-ONNX-timestamped"

// Flags holds command-line overrides. Empty strings mean "not set".
// The CLI layer fills it from its own flag definitions.
type Flags struct {
	ConfigFile           string
	EnvFile              string
	Env                  string
	LogLevel             string
	LogFile              string
	StorageBackend       string
	DataPath             string
	RedisAddr            string
	StoriesPath          string
	Watch                string
	TransitionDuration   string
	DefaultAutoplay      string
	StopAutoplayOnManual string
	TransitionStyle      string
	NarrationEndpoint    string
	NarrationToken       string
	FallbackCommand      string
	EventsAddr           string
	EventLog             string
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. YAML config file.
// 5. Default values (lowest priority).
func LoadConfig(flags Flags) (*Config, error) {
	envFile := flags.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(envFile)

	file, err := loadConfigFile(getConfigValue(flags.ConfigFile, "HUSH_CONFIG", ""))
	if err != nil {
		return nil, err
	}

	// Build config with proper precedence. The file supplies the defaults.
	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(flags.Env, "ENV", or(file.App.Environment, "development")),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(flags.LogLevel, "LOG_LEVEL", or(file.Logger.Level, "info")),
			File:  getConfigValue(flags.LogFile, "LOG_FILE", file.Logger.File),
		},
		Storage: StorageConfig{
			Backend:     getConfigValue(flags.StorageBackend, "STORAGE_BACKEND", or(file.Storage.Backend, "badger")),
			DataPath:    getConfigValue(flags.DataPath, "DATA_PATH", file.Storage.DataPath),
			RedisAddr:   getConfigValue(flags.RedisAddr, "REDIS_ADDR", or(file.Storage.RedisAddr, "localhost:6379")),
			RedisPrefix: getConfigValue("", "REDIS_PREFIX", or(file.Storage.RedisPrefix, "hush:")),
		},
		Stories: StoriesConfig{
			Path:  getConfigValue(flags.StoriesPath, "STORIES_PATH", or(file.Stories.Path, "stories")),
			Watch: getBoolConfigValue(flags.Watch, "STORIES_WATCH", fileBool(file.Stories.Watch, true)),
		},
		Playback: PlaybackConfig{
			DefaultAutoplay:      getConfigValue(flags.DefaultAutoplay, "DEFAULT_AUTOPLAY", or(file.Playback.DefaultAutoplay, "normal")),
			StopAutoplayOnManual: getBoolConfigValue(flags.StopAutoplayOnManual, "STOP_AUTOPLAY_ON_MANUAL", file.Playback.StopAutoplayOnManual),
			SwipeThreshold:       getFloatConfigValue("", "SWIPE_THRESHOLD", orFloat(file.Playback.SwipeThreshold, 50)),
			TransitionStyle:      getConfigValue(flags.TransitionStyle, "TRANSITION_STYLE", or(file.Playback.TransitionStyle, "slide")),
		},
		Narration: NarrationConfig{
			Enabled:           getBoolConfigValue("", "NARRATION_ENABLED", fileBool(file.Narration.Enabled, true)),
			Endpoint:          getConfigValue(flags.NarrationEndpoint, "NARRATION_ENDPOINT", or(file.Narration.Endpoint, DefaultEndpoint)),
			Token:             getConfigValue(flags.NarrationToken, "HF_TOKEN", file.Narration.Token),
			Rate:              getFloatConfigValue("", "NARRATION_RATE", orFloat(file.Narration.Rate, 0.9)),
			Pitch:             getFloatConfigValue("", "NARRATION_PITCH", orFloat(file.Narration.Pitch, 1.0)),
			Volume:            getFloatConfigValue("", "NARRATION_VOLUME", orFloat(file.Narration.Volume, 0.8)),
			RequestsPerSecond: getFloatConfigValue("", "NARRATION_RPS", orFloat(file.Narration.RequestsPerSecond, 2)),
			FallbackCommand:   getConfigValue(flags.FallbackCommand, "NARRATION_COMMAND", file.Narration.FallbackCommand),
		},
		Events: EventsConfig{
			Addr:           getConfigValue(flags.EventsAddr, "EVENTS_ADDR", file.Events.Addr),
			LogPath:        getConfigValue(flags.EventLog, "EVENT_LOG", file.Events.LogPath),
			AllowedOrigins: getListConfigValue("EVENTS_ORIGINS", file.Events.AllowedOrigins),
			RateLimit:      getFloatConfigValue("", "EVENTS_RATE_LIMIT", orFloat(file.Events.RateLimit, 20)),
		},
	}

	// Parse durations.
	if cfg.Playback.TransitionDuration, err = getDurationConfigValue(flags.TransitionDuration, "TRANSITION_DURATION", file.Playback.TransitionDuration, 1500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.Playback.TickInterval, err = getDurationConfigValue("", "TICK_INTERVAL", file.Playback.TickInterval, 50*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.Playback.TypingInterval, err = getDurationConfigValue("", "TYPING_INTERVAL", file.Playback.TypingInterval, 50*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.Narration.RequestTimeout, err = getDurationConfigValue("", "NARRATION_TIMEOUT", file.Narration.RequestTimeout, 15*time.Second); err != nil {
		return nil, err
	}

	// Expand and validate paths.
	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}
	if cfg.Stories.Path, err = expandPath(cfg.Stories.Path, ""); err != nil {
		return nil, fmt.Errorf("invalid stories path: %w", err)
	}
	if cfg.Logger.File, err = expandPath(cfg.Logger.File, ""); err != nil {
		return nil, fmt.Errorf("invalid log file: %w", err)
	}
	if cfg.Events.LogPath, err = expandPath(cfg.Events.LogPath, ""); err != nil {
		return nil, fmt.Errorf("invalid event log path: %w", err)
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	switch c.Storage.Backend {
	case "badger", "sqlite", "memory":
	case "redis":
		if c.Storage.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be badger, sqlite, redis, or memory)", c.Storage.Backend)
	}

	if c.Storage.DataPath == "" && (c.Storage.Backend == "badger" || c.Storage.Backend == "sqlite") {
		return errors.New("data path cannot be empty after expansion")
	}

	switch c.Playback.DefaultAutoplay {
	case "slow", "normal", "fast":
	default:
		return fmt.Errorf("invalid default autoplay: %s (must be slow, normal, or fast)", c.Playback.DefaultAutoplay)
	}

	switch c.Playback.TransitionStyle {
	case "slide", "fade", "zoom", "flip":
	default:
		return fmt.Errorf("invalid transition style: %s (must be slide, fade, zoom, or flip)", c.Playback.TransitionStyle)
	}

	if c.Playback.TransitionDuration <= 0 || c.Playback.TickInterval <= 0 || c.Playback.TypingInterval <= 0 {
		return errors.New("playback durations must be positive")
	}

	if c.Playback.SwipeThreshold <= 0 {
		return fmt.Errorf("invalid swipe threshold: %v (must be positive)", c.Playback.SwipeThreshold)
	}

	if c.Narration.RequestsPerSecond <= 0 {
		return fmt.Errorf("invalid narration request rate: %v (must be positive)", c.Narration.RequestsPerSecond)
	}

	return nil
}

// IsDevelopment reports whether the app runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath expands ~ and makes the path absolute.
// Defaults to ~/Hush/data.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "Hush", "data")

	expanded, err := expandPath(c.Storage.DataPath, defaultPath)
	if err != nil {
		return err
	}
	c.Storage.DataPath = expanded
	return nil
}

// fileConfig mirrors Config for YAML decoding. Pointers distinguish an unset
// boolean from an explicit false.
type fileConfig struct {
	App     AppConfig     `yaml:"app"`
	Logger  LoggerConfig  `yaml:"logger"`
	Storage StorageConfig `yaml:"storage"`
	Stories struct {
		Path  string `yaml:"path"`
		Watch *bool  `yaml:"watch"`
	} `yaml:"stories"`
	Playback  PlaybackConfig `yaml:"playback"`
	Narration struct {
		Enabled           *bool         `yaml:"enabled"`
		Endpoint          string        `yaml:"endpoint"`
		Token             string        `yaml:"token"`
		Rate              float64       `yaml:"rate"`
		Pitch             float64       `yaml:"pitch"`
		Volume            float64       `yaml:"volume"`
		RequestTimeout    time.Duration `yaml:"request_timeout"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		FallbackCommand   string        `yaml:"fallback_command"`
	} `yaml:"narration"`
	Events EventsConfig `yaml:"events"`
}

// loadConfigFile reads a YAML config file. An empty path yields an empty config.
func loadConfigFile(path string) (*fileConfig, error) {
	fc := &fileConfig{}
	if path == "" {
		return fc, nil
	}

	data, err := os.ReadFile(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return fc, nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getFloatConfigValue returns a float from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return defaultValue
	}
	return result
}

// getDurationConfigValue parses a duration from flag or env var, falling back
// to the file value and then the default.
func getDurationConfigValue(flagValue, envKey string, fileValue, defaultValue time.Duration) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		if fileValue > 0 {
			return fileValue, nil
		}
		return defaultValue, nil
	}
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, strValue, err)
	}
	return d, nil
}

// getListConfigValue reads a comma-separated environment variable, falling
// back to defaultValue when it is unset.
func getListConfigValue(envKey string, defaultValue []string) []string {
	envValue := os.Getenv(envKey)
	if envValue == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(envValue, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func or(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}

func orFloat(value, defaultValue float64) float64 {
	if value != 0 {
		return value
	}
	return defaultValue
}

func fileBool(value *bool, defaultValue bool) bool {
	if value != nil {
		return *value
	}
	return defaultValue
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=value.
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
