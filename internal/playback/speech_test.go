package playback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hushapp/hush/internal/errors"
)

// stubSynth returns err for every call when set.
type stubSynth struct {
	mu    sync.Mutex
	err   error
	texts []string
}

func (s *stubSynth) Synthesize(ctx context.Context, text string) (*AudioHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	if s.err != nil {
		return nil, s.err
	}
	return &AudioHandle{ID: fmt.Sprintf("h%d", len(s.texts)), Text: text}, nil
}

func (s *stubSynth) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

// stubPlayer records played handles. When hold is set, Play blocks until ctx ends.
type stubPlayer struct {
	mu      sync.Mutex
	err     error
	hold    bool
	played  []string
	started chan string
}

func newStubPlayer() *stubPlayer {
	return &stubPlayer{started: make(chan string, 16)}
}

func (p *stubPlayer) Play(ctx context.Context, h *AudioHandle) error {
	p.mu.Lock()
	hold, err := p.hold, p.err
	p.mu.Unlock()
	p.started <- h.Text

	if hold {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.played = append(p.played, h.Text)
	p.mu.Unlock()
	return nil
}

func (p *stubPlayer) Played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

func (p *stubPlayer) Hold(hold bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hold = hold
}

type noticeLog struct {
	mu      sync.Mutex
	notices []Notice
	fatal   []bool
}

func (l *noticeLog) report(n Notice, fatal bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notices = append(l.notices, n)
	l.fatal = append(l.fatal, fatal)
}

func (l *noticeLog) Notices() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Notice(nil), l.notices...)
}

func TestSpeaker_PrimarySucceeds(t *testing.T) {
	primary, fallback, player := &stubSynth{}, &stubSynth{}, newStubPlayer()
	chunker, err := NewChunker()
	require.NoError(t, err)

	s := NewSpeaker(SpeakerConfig{Primary: primary, Fallback: fallback, Player: player, Chunker: chunker})
	log := &noticeLog{}
	s.Speak("The lamps went out. Nobody noticed.", log.report)
	s.Wait()

	assert.Equal(t, []string{"The lamps went out.", "Nobody noticed."}, primary.Texts())
	assert.Empty(t, fallback.Texts())
	assert.Equal(t, []string{"The lamps went out.", "Nobody noticed."}, player.Played())
	assert.Empty(t, log.Notices())
}

func TestSpeaker_FallsBackOnce(t *testing.T) {
	primary := &stubSynth{err: fmt.Errorf("tts api error: 503")}
	fallback, player := &stubSynth{}, newStubPlayer()
	chunker, err := NewChunker()
	require.NoError(t, err)

	s := NewSpeaker(SpeakerConfig{Primary: primary, Fallback: fallback, Player: player, Chunker: chunker})
	log := &noticeLog{}
	s.Speak("One. Two. Three.", log.report)
	s.Wait()

	assert.Len(t, primary.Texts(), 1, "primary is not retried after a failure")
	assert.Equal(t, []string{"One.", "Two.", "Three."}, fallback.Texts())
	assert.Equal(t, []string{"One.", "Two.", "Three."}, player.Played())

	notices := log.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeWarning, notices[0].Level)
	assert.Equal(t, []bool{false}, log.fatal)
}

func TestSpeaker_FallbackFailureIsFatal(t *testing.T) {
	primary := &stubSynth{err: fmt.Errorf("down")}
	fallback := &stubSynth{err: fmt.Errorf("no voice")}
	player := newStubPlayer()

	s := NewSpeaker(SpeakerConfig{Primary: primary, Fallback: fallback, Player: player})
	log := &noticeLog{}
	s.Speak("Hello.", log.report)
	s.Wait()

	notices := log.Notices()
	require.Len(t, notices, 2)
	assert.Equal(t, NoticeError, notices[1].Level)
	assert.True(t, errors.Is(notices[1].Err, errors.ErrNarrationFailed))
	assert.Equal(t, []bool{false, true}, log.fatal)
	assert.Empty(t, player.Played())
}

func TestSpeaker_PlayerFailureIsFatal(t *testing.T) {
	player := newStubPlayer()
	player.err = fmt.Errorf("no audio device")

	s := NewSpeaker(SpeakerConfig{Player: player})
	log := &noticeLog{}
	s.Speak("Hello.", log.report)
	s.Wait()

	require.Len(t, log.Notices(), 1)
	assert.Equal(t, []bool{true}, log.fatal)
}

func TestSpeaker_CancelReportsNothing(t *testing.T) {
	player := newStubPlayer()
	player.Hold(true)

	s := NewSpeaker(SpeakerConfig{Player: player})
	log := &noticeLog{}
	s.Speak("A long sentence.", log.report)
	<-player.started

	s.Cancel()
	s.Wait()
	assert.Empty(t, log.Notices())
}

func TestSpeaker_SpeakReplacesPrevious(t *testing.T) {
	player := newStubPlayer()
	player.Hold(true)

	s := NewSpeaker(SpeakerConfig{Player: player})
	log := &noticeLog{}
	s.Speak("first", log.report)
	assert.Equal(t, "first", <-player.started)

	player.Hold(false)
	s.Speak("second", log.report)
	s.Wait()

	assert.Equal(t, []string{"second"}, player.Played())
	assert.Empty(t, log.Notices())
}

func TestChunker_Split(t *testing.T) {
	chunker, err := NewChunker()
	require.NoError(t, err)

	assert.Nil(t, chunker.Split("   "))
	assert.Equal(t, []string{"Hello there.", "How are you?"}, chunker.Split("  Hello there. How are you?  "))

	var nilChunker *Chunker
	assert.Equal(t, []string{"Whole text. Kept."}, nilChunker.Split("Whole text. Kept."))

	// Decomposed e + combining acute becomes a single rune.
	assert.Equal(t, []string{"caf\u00e9"}, nilChunker.Split("cafe\u0301"))
}

func TestBasicSynthesizer(t *testing.T) {
	h, err := BasicSynthesizer{Voice: DefaultVoice()}.Synthesize(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", h.Text)
	require.NotNil(t, h.Voice)
	assert.Equal(t, VoiceParams{Rate: 0.9, Pitch: 1.0, Volume: 0.8}, *h.Voice)
	assert.Empty(t, h.Audio)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = BasicSynthesizer{}.Synthesize(ctx, "hi")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPSynthesizer(t *testing.T) {
	var got inferenceRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFFdata"))
	}))
	defer srv.Close()

	synth := NewHTTPSynthesizer(HTTPSynthesizerConfig{Endpoint: srv.URL, Token: "hf_test", RequestsPerSecond: 100})
	h, err := synth.Synthesize(context.Background(), "The end.")
	require.NoError(t, err)

	assert.Equal(t, "The end.", got.Inputs)
	assert.True(t, got.Parameters.UseCache)
	assert.False(t, got.Parameters.ReturnTensors)
	assert.Equal(t, []byte("RIFFdata"), h.Audio)
	assert.Equal(t, "audio/wav", h.ContentType)
	assert.NotEmpty(t, h.ID)
}

func TestHTTPSynthesizer_Errors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	synth := NewHTTPSynthesizer(HTTPSynthesizerConfig{Endpoint: srv.URL, Token: "t", RequestsPerSecond: 100})
	_, err := synth.Synthesize(context.Background(), "x")
	assert.ErrorContains(t, err, "503")

	status.Store(http.StatusOK)
	_, err = synth.Synthesize(context.Background(), "x")
	assert.ErrorContains(t, err, "no audio")

	unconfigured := NewHTTPSynthesizer(HTTPSynthesizerConfig{Endpoint: srv.URL})
	_, err = unconfigured.Synthesize(context.Background(), "x")
	assert.True(t, errors.Is(err, errors.ErrNarrationFailed))
}

func TestHTTPSynthesizer_RespectsContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	// Runs before srv.Close so the handler never outlives the test.
	defer close(release)

	synth := NewHTTPSynthesizer(HTTPSynthesizerConfig{Endpoint: srv.URL, Token: "t", RequestsPerSecond: 100})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := synth.Synthesize(ctx, "x")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
