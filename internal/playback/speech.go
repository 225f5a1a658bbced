package playback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"github.com/hushapp/hush/internal/errors"
	"github.com/hushapp/hush/internal/id"
)

// maxAudioBytes bounds a single synthesized chunk.
const maxAudioBytes = 32 << 20

// VoiceParams are the prosody settings of the basic on-device voice.
type VoiceParams struct {
	Rate   float64
	Pitch  float64
	Volume float64
}

// DefaultVoice returns the basic voice settings.
func DefaultVoice() VoiceParams {
	return VoiceParams{Rate: 0.9, Pitch: 1.0, Volume: 0.8}
}

// AudioHandle is one synthesized chunk, ready for a Player.
// Remote backends fill Audio; the basic backend leaves it empty and sets Voice.
type AudioHandle struct {
	ID          string
	Text        string
	Audio       []byte
	ContentType string
	Voice       *VoiceParams
}

// Synthesizer turns text into playable audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*AudioHandle, error)
}

// Player plays a handle to the end or until ctx is cancelled.
type Player interface {
	Play(ctx context.Context, h *AudioHandle) error
}

// HTTPSynthesizerConfig configures an HTTPSynthesizer.
type HTTPSynthesizerConfig struct {
	Endpoint          string
	Token             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Client            *http.Client
}

// HTTPSynthesizer calls a hosted text-to-speech inference endpoint.
type HTTPSynthesizer struct {
	endpoint string
	token    string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewHTTPSynthesizer creates a rate-limited remote synthesizer.
func NewHTTPSynthesizer(cfg HTTPSynthesizerConfig) *HTTPSynthesizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPSynthesizer{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

type inferenceRequest struct {
	Inputs     string              `json:"inputs"`
	Parameters inferenceParameters `json:"parameters"`
}

type inferenceParameters struct {
	ReturnTensors        bool `json:"return_tensors"`
	ReturnDictInGenerate bool `json:"return_dict_in_generate"`
	OutputAttentions     bool `json:"output_attentions"`
	OutputHiddenStates   bool `json:"output_hidden_states"`
	UseCache             bool `json:"use_cache"`
}

// Synthesize implements Synthesizer.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string) (*AudioHandle, error) {
	if s.endpoint == "" || s.token == "" {
		return nil, errors.NarrationFailed(nil, "remote speech is not configured")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(inferenceRequest{
		Inputs:     text,
		Parameters: inferenceParameters{UseCache: true},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("tts api error: %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("tts api returned no audio")
	}

	return &AudioHandle{
		ID:          id.MustGenerate(id.PrefixSpeech),
		Text:        text,
		Audio:       audio,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// BasicSynthesizer produces handles for an on-device voice. It only tags the
// text with voice settings; the Player does the speaking.
type BasicSynthesizer struct {
	Voice VoiceParams
}

// Synthesize implements Synthesizer.
func (s BasicSynthesizer) Synthesize(ctx context.Context, text string) (*AudioHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	voice := s.Voice
	return &AudioHandle{
		ID:    id.MustGenerate(id.PrefixSpeech),
		Text:  text,
		Voice: &voice,
	}, nil
}

// CommandPlayer plays handles through external programs. Voice handles are
// spoken by SpeakCommand with the text as last argument, e.g. "espeak".
// Audio handles are piped to AudioCommand on stdin, e.g. "ffplay -nodisp -autoexit -".
type CommandPlayer struct {
	SpeakCommand string
	AudioCommand string
}

// Play implements Player.
func (p CommandPlayer) Play(ctx context.Context, h *AudioHandle) error {
	if len(h.Audio) > 0 {
		args := strings.Fields(p.AudioCommand)
		if len(args) == 0 {
			return fmt.Errorf("no audio command configured")
		}
		cmd := exec.CommandContext(ctx, args[0], args[1:]...) //#nosec G204 -- command comes from user config
		cmd.Stdin = bytes.NewReader(h.Audio)
		return cmd.Run()
	}

	args := strings.Fields(p.SpeakCommand)
	if len(args) == 0 {
		return fmt.Errorf("no speech command configured")
	}
	if h.Voice != nil && args[0] == "espeak" {
		// espeak speaks ~175 words per minute at rate 1.0 and amplitude 0-200.
		args = append(args,
			"-s", strconv.Itoa(int(175*h.Voice.Rate)),
			"-p", strconv.Itoa(int(50*h.Voice.Pitch)),
			"-a", strconv.Itoa(int(100*h.Voice.Volume)))
	}
	args = append(args, h.Text)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //#nosec G204 -- command comes from user config
	return cmd.Run()
}

// LogPlayer logs what would be spoken. Used when no speech command is configured.
type LogPlayer struct {
	Logger *slog.Logger
}

// Play implements Player.
func (p LogPlayer) Play(ctx context.Context, h *AudioHandle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Logger != nil {
		p.Logger.Info("speaking", "id", h.ID, "text", h.Text, "bytes", len(h.Audio))
	}
	return nil
}

// Chunker splits narration text into sentences so long blocks start speaking
// quickly and can be cancelled between sentences.
type Chunker struct {
	tokenizer *sentences.DefaultSentenceTokenizer
}

// NewChunker loads the English sentence model.
func NewChunker() (*Chunker, error) {
	tok, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, fmt.Errorf("load sentence model: %w", err)
	}
	return &Chunker{tokenizer: tok}, nil
}

// Split returns the non-empty sentences of text in NFC form.
// A nil Chunker returns the whole text as one chunk.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(norm.NFC.String(text))
	if text == "" {
		return nil
	}
	if c == nil || c.tokenizer == nil {
		return []string{text}
	}

	var out []string
	for _, s := range c.tokenizer.Tokenize(text) {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// NoticeLevel grades a narration notice.
type NoticeLevel string

// Notice levels.
const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a non-blocking message for the reader about narration.
type Notice struct {
	Level   NoticeLevel
	Message string
	Err     error
}

// SpeakerConfig configures a Speaker.
type SpeakerConfig struct {
	// Primary is tried first for every chunk. Optional.
	Primary Synthesizer
	// Fallback is used when Primary fails. Required.
	Fallback Synthesizer
	Player   Player
	Chunker  *Chunker
	Logger   *slog.Logger
}

// Speaker speaks one block at a time. Starting a new block cancels the
// previous one.
type Speaker struct {
	primary  Synthesizer
	fallback Synthesizer
	player   Player
	chunker  *Chunker
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSpeaker creates a Speaker.
func NewSpeaker(cfg SpeakerConfig) *Speaker {
	if cfg.Fallback == nil {
		cfg.Fallback = BasicSynthesizer{Voice: DefaultVoice()}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Player == nil {
		cfg.Player = LogPlayer{Logger: cfg.Logger}
	}
	return &Speaker{
		primary:  cfg.Primary,
		fallback: cfg.Fallback,
		player:   cfg.Player,
		chunker:  cfg.Chunker,
		logger:   cfg.Logger,
	}
}

// Speak cancels any speech in progress and speaks text in the background.
// report receives notices; fatal is true when narration cannot continue.
// Nothing is reported once the speech has been cancelled.
func (s *Speaker) Speak(text string, report func(n Notice, fatal bool)) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ctx, text, report)
}

// Cancel stops any speech in progress.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Wait blocks until background speech has finished.
func (s *Speaker) Wait() {
	s.wg.Wait()
}

// Close cancels speech and waits for it to stop.
func (s *Speaker) Close() {
	s.Cancel()
	s.Wait()
}

func (s *Speaker) run(ctx context.Context, text string, report func(Notice, bool)) {
	defer s.wg.Done()

	emit := func(n Notice, fatal bool) {
		if ctx.Err() == nil && report != nil {
			report(n, fatal)
		}
	}

	usePrimary := s.primary != nil
	for _, chunk := range s.chunker.Split(text) {
		if ctx.Err() != nil {
			return
		}

		var (
			h   *AudioHandle
			err error
		)
		if usePrimary {
			h, err = s.primary.Synthesize(ctx, chunk)
			if err != nil && ctx.Err() == nil {
				s.logger.Warn("remote speech failed, using basic voice", "error", err)
				emit(Notice{
					Level:   NoticeWarning,
					Message: "Failed to generate speech. Using basic voice instead.",
					Err:     err,
				}, false)
				usePrimary = false
			}
		}
		if h == nil {
			h, err = s.fallback.Synthesize(ctx, chunk)
		}
		if err != nil {
			if ctx.Err() == nil {
				emit(Notice{
					Level:   NoticeError,
					Message: "Narration is unavailable.",
					Err:     errors.NarrationFailed(err, "speech synthesis failed"),
				}, true)
			}
			return
		}

		if err := s.player.Play(ctx, h); err != nil {
			if ctx.Err() == nil {
				emit(Notice{
					Level:   NoticeError,
					Message: "Narration playback failed.",
					Err:     errors.NarrationFailed(err, "speech playback failed"),
				}, true)
			}
			return
		}
	}
}
