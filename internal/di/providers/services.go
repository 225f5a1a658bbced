package providers

import (
	"errors"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/hushapp/hush/internal/backup"
	"github.com/hushapp/hush/internal/config"
	"github.com/hushapp/hush/internal/domain"
	"github.com/hushapp/hush/internal/logger"
	"github.com/hushapp/hush/internal/playback"
	"github.com/hushapp/hush/internal/story"
	"github.com/hushapp/hush/internal/validation"
)

// ErrBackupUnsupported is returned when backups are requested from a backend
// other than badger.
var ErrBackupUnsupported = errors.New("backups require the badger storage backend")

// ProvideValidator provides the story validator.
func ProvideValidator(_ do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideStoryLoader provides the story loader.
func ProvideStoryLoader(i do.Injector) (*story.Loader, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return story.NewLoader(cfg.Stories.Path, log.Logger), nil
}

// SpeakerHandle wraps the shared speaker with shutdown capability.
type SpeakerHandle struct {
	*playback.Speaker
}

// Shutdown implements do.Shutdownable.
func (h *SpeakerHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideSpeaker provides the speech pipeline. The remote model is used only
// when narration is enabled and a token is configured; the basic voice is
// always the fallback.
func ProvideSpeaker(i do.Injector) (*SpeakerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	speakerCfg := playback.SpeakerConfig{
		Fallback: playback.BasicSynthesizer{Voice: playback.VoiceParams{
			Rate:   cfg.Narration.Rate,
			Pitch:  cfg.Narration.Pitch,
			Volume: cfg.Narration.Volume,
		}},
		Logger: log.Logger,
	}

	if cfg.Narration.Enabled && cfg.Narration.Token != "" {
		speakerCfg.Primary = playback.NewHTTPSynthesizer(playback.HTTPSynthesizerConfig{
			Endpoint:          cfg.Narration.Endpoint,
			Token:             cfg.Narration.Token,
			Timeout:           cfg.Narration.RequestTimeout,
			RequestsPerSecond: cfg.Narration.RequestsPerSecond,
		})
	}

	if cfg.Narration.FallbackCommand != "" {
		speakerCfg.Player = playback.CommandPlayer{
			SpeakCommand: cfg.Narration.FallbackCommand,
			AudioCommand: "ffplay -nodisp -autoexit -loglevel quiet -",
		}
	} else {
		speakerCfg.Player = playback.LogPlayer{Logger: log.Logger}
	}

	chunker, err := playback.NewChunker()
	if err != nil {
		// Whole blocks are spoken without a sentence model.
		log.Warn("Sentence model unavailable", "error", err)
	} else {
		speakerCfg.Chunker = chunker
	}

	log.Debug("Speaker ready",
		"remote", speakerCfg.Primary != nil,
		"command", cfg.Narration.FallbackCommand,
	)

	return &SpeakerHandle{Speaker: playback.NewSpeaker(speakerCfg)}, nil
}

// ProvideSessionConfig provides the shared configuration for playback sessions.
func ProvideSessionConfig(i do.Injector) (playback.SessionConfig, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	busHandle := do.MustInvoke[*EventBusHandle](i)
	speaker := do.MustInvoke[*SpeakerHandle](i)
	loader := do.MustInvoke[*story.Loader](i)
	v := do.MustInvoke[*validation.Validator](i)

	style, err := playback.ParseStyle(cfg.Playback.TransitionStyle)
	if err != nil {
		return playback.SessionConfig{}, err
	}
	mode, err := domain.ParseAutoplayMode(cfg.Playback.DefaultAutoplay)
	if err != nil {
		return playback.SessionConfig{}, err
	}

	return playback.SessionConfig{
		Stories:              loader,
		Progress:             storeHandle.Backend,
		Preferences:          storeHandle.Backend,
		Validator:            v,
		Clock:                playback.RealClock(),
		Animator:             playback.StyleAnimator{Style: style},
		Durations:            playback.DefaultDurations(),
		TransitionDuration:   cfg.Playback.TransitionDuration,
		TickInterval:         cfg.Playback.TickInterval,
		TypingInterval:       cfg.Playback.TypingInterval,
		DefaultAutoplay:      mode,
		StopAutoplayOnManual: cfg.Playback.StopAutoplayOnManual,
		Speaker:              speaker.Speaker,
		Emitter:              busHandle.Bus,
		Logger:               log.Logger,
	}, nil
}

// ProvideBackupService provides the progress backup service.
func ProvideBackupService(i do.Injector) (*backup.BackupService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	if storeHandle.Badger == nil {
		return nil, ErrBackupUnsupported
	}

	backupDir := filepath.Join(cfg.Storage.DataPath, "backups")
	return backup.NewBackupService(storeHandle.Badger, backupDir, Version, log.Logger), nil
}
