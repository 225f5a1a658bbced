package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:     AppConfig{Environment: "development"},
		Logger:  LoggerConfig{Level: "info"},
		Storage: StorageConfig{Backend: "badger", DataPath: "/some/path"},
		Stories: StoriesConfig{Path: "/stories"},
		Playback: PlaybackConfig{
			TransitionDuration: 1500 * time.Millisecond,
			TickInterval:       50 * time.Millisecond,
			TypingInterval:     50 * time.Millisecond,
			DefaultAutoplay:    "normal",
			SwipeThreshold:     50,
			TransitionStyle:    "slide",
		},
		Narration: NarrationConfig{RequestsPerSecond: 2},
	}
}

// clearEnv blanks every variable LoadConfig reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENV", "LOG_LEVEL", "LOG_FILE", "HUSH_CONFIG", "STORAGE_BACKEND", "DATA_PATH", "REDIS_ADDR",
		"REDIS_PREFIX", "STORIES_PATH", "STORIES_WATCH", "DEFAULT_AUTOPLAY",
		"STOP_AUTOPLAY_ON_MANUAL", "SWIPE_THRESHOLD", "TRANSITION_STYLE", "TRANSITION_DURATION",
		"TICK_INTERVAL", "TYPING_INTERVAL", "NARRATION_ENABLED", "NARRATION_ENDPOINT", "HF_TOKEN",
		"NARRATION_RATE", "NARRATION_PITCH", "NARRATION_VOLUME", "NARRATION_RPS",
		"NARRATION_COMMAND", "NARRATION_TIMEOUT", "EVENTS_ADDR", "EVENT_LOG", "EVENTS_ORIGINS", "EVENTS_RATE_LIMIT",
	} {
		t.Setenv(key, "")
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_AllEnvironments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
		{"DEVELOPMENT", false}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_AllLogLevels(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"debug", true},
		{"info", true},
		{"warn", true},
		{"error", true},
		{"DEBUG", true}, // case insensitive
		{"trace", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := validConfig()
			cfg.Logger.Level = tt.level

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_Playback(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }},
		{"redis without addr", func(c *Config) { c.Storage.Backend = "redis"; c.Storage.RedisAddr = "" }},
		{"empty data path", func(c *Config) { c.Storage.DataPath = "" }},
		{"disabled default autoplay", func(c *Config) { c.Playback.DefaultAutoplay = "disabled" }},
		{"unknown style", func(c *Config) { c.Playback.TransitionStyle = "spin" }},
		{"zero transition", func(c *Config) { c.Playback.TransitionDuration = 0 }},
		{"negative swipe threshold", func(c *Config) { c.Playback.SwipeThreshold = -1 }},
		{"zero request rate", func(c *Config) { c.Narration.RequestsPerSecond = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	mem := validConfig()
	mem.Storage.Backend = "memory"
	mem.Storage.DataPath = ""
	assert.NoError(t, mem.Validate())
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(Flags{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	require.NoError(t, err)

	homeDir, _ := os.UserHomeDir() //nolint:errcheck // Test setup
	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, filepath.Join(homeDir, "Hush", "data"), cfg.Storage.DataPath)
	assert.True(t, filepath.IsAbs(cfg.Stories.Path))
	assert.True(t, cfg.Stories.Watch)
	assert.Equal(t, 1500*time.Millisecond, cfg.Playback.TransitionDuration)
	assert.Equal(t, 50*time.Millisecond, cfg.Playback.TickInterval)
	assert.Equal(t, 50*time.Millisecond, cfg.Playback.TypingInterval)
	assert.Equal(t, "normal", cfg.Playback.DefaultAutoplay)
	assert.False(t, cfg.Playback.StopAutoplayOnManual)
	assert.InDelta(t, 50.0, cfg.Playback.SwipeThreshold, 1e-9)
	assert.Equal(t, "slide", cfg.Playback.TransitionStyle)
	assert.Equal(t, DefaultEndpoint, cfg.Narration.Endpoint)
	assert.InDelta(t, 0.9, cfg.Narration.Rate, 1e-9)
	assert.InDelta(t, 1.0, cfg.Narration.Pitch, 1e-9)
	assert.InDelta(t, 0.8, cfg.Narration.Volume, 1e-9)
	assert.Equal(t, 15*time.Second, cfg.Narration.RequestTimeout)
	assert.Empty(t, cfg.Events.Addr)
	assert.Empty(t, cfg.Events.LogPath)
}

func TestLoadConfig_Precedence(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()

	configFile := filepath.Join(tmpDir, "hush.yaml")
	content := `
logger:
  level: debug
storage:
  backend: sqlite
  data_path: /from/file
stories:
  watch: false
playback:
  transition_duration: 800ms
  transition_style: fade
  stop_autoplay_on_manual: true
narration:
  enabled: false
  rate: 1.2
events:
  addr: 127.0.0.1:9000
  log_path: /var/log/hush-events.jsonl
`
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0o644))

	envFile := filepath.Join(tmpDir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TRANSITION_STYLE=zoom\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("TRANSITION_STYLE") }) //nolint:errcheck // Test cleanup

	t.Setenv("STORAGE_BACKEND", "memory")

	cfg, err := LoadConfig(Flags{
		ConfigFile: configFile,
		EnvFile:    envFile,
		LogLevel:   "warn",
		EventsAddr: "127.0.0.1:8787",
	})
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logger.Level, "flag beats file")
	assert.Equal(t, "memory", cfg.Storage.Backend, "env beats file")
	assert.Equal(t, "zoom", cfg.Playback.TransitionStyle, ".env beats file")
	assert.Equal(t, "/from/file", cfg.Storage.DataPath, "file beats default")
	assert.False(t, cfg.Stories.Watch)
	assert.False(t, cfg.Narration.Enabled)
	assert.True(t, cfg.Playback.StopAutoplayOnManual)
	assert.Equal(t, 800*time.Millisecond, cfg.Playback.TransitionDuration)
	assert.InDelta(t, 1.2, cfg.Narration.Rate, 1e-9)
	assert.Equal(t, "127.0.0.1:8787", cfg.Events.Addr, "flag beats file")
	assert.Equal(t, "/var/log/hush-events.jsonl", cfg.Events.LogPath)
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("TICK_INTERVAL", "soon")

	_, err := LoadConfig(Flags{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TICK_INTERVAL")
}

func TestLoadConfig_MissingConfigFile(t *testing.T) {
	clearEnv(t)

	_, err := LoadConfig(Flags{
		ConfigFile: filepath.Join(t.TempDir(), "nope.yaml"),
		EnvFile:    filepath.Join(t.TempDir(), "missing.env"),
	})
	assert.Error(t, err)
}

func TestExpandDataPath_TildeExpansion(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{DataPath: "~/my-data"}}

	err := cfg.expandDataPath()
	require.NoError(t, err)

	homeDir, _ := os.UserHomeDir() //nolint:errcheck // Test setup
	assert.Equal(t, filepath.Join(homeDir, "my-data"), cfg.Storage.DataPath)
}

func TestExpandDataPath_RelativePath(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{DataPath: "relative/path"}}

	err := cfg.expandDataPath()
	require.NoError(t, err)

	// Should be converted to absolute path.
	assert.True(t, filepath.IsAbs(cfg.Storage.DataPath))
	assert.Contains(t, cfg.Storage.DataPath, "relative/path")
}

func TestGetConfigValue_Precedence(t *testing.T) {
	// Test flag value takes priority.
	result := getConfigValue("flag-value", "ENV_KEY", "default-value")
	assert.Equal(t, "flag-value", result)

	// Test env var when flag is empty.
	t.Setenv("TEST_ENV_KEY", "env-value")

	result = getConfigValue("", "TEST_ENV_KEY", "default-value")
	assert.Equal(t, "env-value", result)

	// Test default when both are empty.
	result = getConfigValue("", "NONEXISTENT_KEY", "default-value")
	assert.Equal(t, "default-value", result)
}

func TestGetBoolConfigValue(t *testing.T) {
	assert.True(t, getBoolConfigValue("yes", "UNUSED_KEY", false))
	assert.True(t, getBoolConfigValue("1", "UNUSED_KEY", false))
	assert.False(t, getBoolConfigValue("off", "UNUSED_KEY", true))
	assert.True(t, getBoolConfigValue("", "UNUSED_KEY", true))
}

func TestGetListConfigValue(t *testing.T) {
	t.Setenv("HUSH_TEST_LIST", "")
	assert.Equal(t, []string{"a"}, getListConfigValue("HUSH_TEST_LIST", []string{"a"}))

	t.Setenv("HUSH_TEST_LIST", " http://a.local , ,http://b.local")
	assert.Equal(t, []string{"http://a.local", "http://b.local"}, getListConfigValue("HUSH_TEST_LIST", nil))
}

func TestLoadEnvFile_ValidFile(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	content := `# Test env file
HUSH_TEST_ENV=staging
# Comment line
HUSH_TEST_QUOTED="some value"
HUSH_TEST_SINGLE='another value'
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	for _, key := range []string{"HUSH_TEST_ENV", "HUSH_TEST_QUOTED", "HUSH_TEST_SINGLE"} {
		t.Setenv(key, "")
	}

	require.NoError(t, loadEnvFile(envFile))

	assert.Equal(t, "staging", os.Getenv("HUSH_TEST_ENV"))
	assert.Equal(t, "some value", os.Getenv("HUSH_TEST_QUOTED"))
	assert.Equal(t, "another value", os.Getenv("HUSH_TEST_SINGLE"))
}

func TestLoadEnvFile_InvalidFormat(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")

	content := `VALID_KEY=valid_value
INVALID LINE WITHOUT EQUALS
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	err := loadEnvFile(envFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestLoadEnvFile_ExistingEnvVarsNotOverwritten(t *testing.T) {
	t.Setenv("HUSH_TEST_VAR", "original-value")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(`HUSH_TEST_VAR=new-value`), 0o644))

	require.NoError(t, loadEnvFile(envFile))

	// Original value should be preserved.
	assert.Equal(t, "original-value", os.Getenv("HUSH_TEST_VAR"))
}
