package texttospeech

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-referrals/core/audio"
)

type stubSynthesizer struct {
	mu      sync.Mutex
	texts   []string
	options []SynthesisOptions
	failOn  map[string]error
	// block makes Synthesize wait for ctx to be done.
	block  bool
	voices []Voice

	started chan string
}

func newStubSynthesizer() *stubSynthesizer {
	return &stubSynthesizer{failOn: map[string]error{}, started: make(chan string, 16)}
}

func (s *stubSynthesizer) Synthesize(ctx context.Context, text string, options SynthesisOptions, onAudio func([]byte)) error {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.options = append(s.options, options)
	err := s.failOn[text]
	block := s.block
	s.mu.Unlock()
	s.started <- text

	if err != nil {
		return err
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}

	pcm := make([]byte, 4)
	binary.LittleEndian.PutUint16(pcm[0:], uint16(1000))
	binary.LittleEndian.PutUint16(pcm[2:], uint16(2000))
	onAudio(pcm)
	return nil
}

func (s *stubSynthesizer) ListVoices(context.Context) ([]Voice, error) {
	return s.voices, nil
}

func (s *stubSynthesizer) spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

type stubPlayer struct {
	mu      sync.Mutex
	audio   [][]byte
	clears  int
	drainFn func(ctx context.Context) error
}

func (p *stubPlayer) SendAudio(chunk []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audio = append(p.audio, append([]byte(nil), chunk...))
	return nil
}

func (p *stubPlayer) ClearBuffer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clears++
	p.audio = nil
}

func (p *stubPlayer) AwaitDrain(ctx context.Context) error {
	if p.drainFn != nil {
		return p.drainFn(ctx)
	}
	return nil
}

func (p *stubPlayer) EncodingInfo() audio.EncodingInfo { return audio.GetDefaultEncodingInfo() }

func TestSpeakPlaysSynthesizedAudio(t *testing.T) {
	synthesizer := newStubSynthesizer()
	player := &stubPlayer{}
	service := NewService(WithSynthesizer(synthesizer), WithPlayer(player))

	if err := service.Speak(context.Background(), "hello"); err != nil {
		t.Fatalf("expected speak to succeed, got %v", err)
	}
	if len(player.audio) != 1 {
		t.Fatalf("expected one audio chunk, got %d", len(player.audio))
	}
	if got := int16(binary.LittleEndian.Uint16(player.audio[0])); got != 1000 {
		t.Fatalf("expected untouched sample at full volume, got %d", got)
	}
}

func TestSpeakAppliesVolumeAsGain(t *testing.T) {
	synthesizer := newStubSynthesizer()
	player := &stubPlayer{}
	service := NewService(WithSynthesizer(synthesizer), WithPlayer(player))

	if err := service.Speak(context.Background(), "quiet", WithVolume(0.5)); err != nil {
		t.Fatalf("expected speak to succeed, got %v", err)
	}
	if got := int16(binary.LittleEndian.Uint16(player.audio[0][0:])); got != 500 {
		t.Fatalf("expected first sample halved to 500, got %d", got)
	}
	if got := int16(binary.LittleEndian.Uint16(player.audio[0][2:])); got != 1000 {
		t.Fatalf("expected second sample halved to 1000, got %d", got)
	}
}

func TestSpeakWithoutPlatformIsNotSupported(t *testing.T) {
	service := NewService(WithSynthesizer(newStubSynthesizer()))
	if service.IsSupported() {
		t.Fatalf("expected service without player to be unsupported")
	}
	if err := service.Speak(context.Background(), "hello"); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
}

func TestSpeakCancelsInFlightUtterance(t *testing.T) {
	synthesizer := newStubSynthesizer()
	synthesizer.block = true
	player := &stubPlayer{}
	service := NewService(WithSynthesizer(synthesizer), WithPlayer(player))

	first := make(chan error, 1)
	go func() { first <- service.Speak(context.Background(), "first") }()
	<-synthesizer.started

	synthesizer.mu.Lock()
	synthesizer.block = false
	synthesizer.mu.Unlock()

	if err := service.Speak(context.Background(), "second"); err != nil {
		t.Fatalf("expected second utterance to succeed, got %v", err)
	}

	select {
	case err := <-first:
		if !errors.Is(err, ErrSpeechCancelled) {
			t.Fatalf("expected first utterance to be cancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected first utterance to return")
	}
	if player.clears == 0 {
		t.Fatalf("expected player buffer to be cleared")
	}
}

func TestStopCancelsPlayback(t *testing.T) {
	synthesizer := newStubSynthesizer()
	draining := make(chan struct{})
	player := &stubPlayer{drainFn: func(ctx context.Context) error {
		close(draining)
		<-ctx.Done()
		return ctx.Err()
	}}
	service := NewService(WithSynthesizer(synthesizer), WithPlayer(player))

	result := make(chan error, 1)
	go func() { result <- service.Speak(context.Background(), "long answer") }()
	<-draining
	service.Stop()

	select {
	case err := <-result:
		if !errors.Is(err, ErrSpeechCancelled) {
			t.Fatalf("expected ErrSpeechCancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected speak to return after stop")
	}
}

func TestSpeakReportsPlaybackFailure(t *testing.T) {
	playbackErr := errors.New("device lost")
	player := &stubPlayer{drainFn: func(context.Context) error { return playbackErr }}
	service := NewService(WithSynthesizer(newStubSynthesizer()), WithPlayer(player))

	if err := service.Speak(context.Background(), "hello"); !errors.Is(err, playbackErr) {
		t.Fatalf("expected playback error, got %v", err)
	}
}

func TestSpeakChunkedContinuesAfterFailure(t *testing.T) {
	synthesizer := newStubSynthesizer()
	synthesizer.failOn["two"] = errors.New("synthesis failed")
	service := NewService(WithSynthesizer(synthesizer), WithPlayer(&stubPlayer{}))

	if err := service.SpeakChunked(context.Background(), []string{"one", "two", "three"}); err != nil {
		t.Fatalf("expected chunked speech to succeed, got %v", err)
	}

	spoken := synthesizer.spoken()
	expected := []string{"one", "two", "three"}
	if len(spoken) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, spoken)
	}
	for i := range expected {
		if spoken[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, spoken)
		}
	}
}

func TestStopAbortsChunkedSequence(t *testing.T) {
	synthesizer := newStubSynthesizer()
	synthesizer.block = true
	service := NewService(WithSynthesizer(synthesizer), WithPlayer(&stubPlayer{}))

	result := make(chan error, 1)
	go func() { result <- service.SpeakChunked(context.Background(), []string{"one", "two"}) }()
	<-synthesizer.started
	service.Stop()

	select {
	case err := <-result:
		if !errors.Is(err, ErrSpeechCancelled) {
			t.Fatalf("expected ErrSpeechCancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected sequence to stop")
	}
	if spoken := synthesizer.spoken(); len(spoken) != 1 {
		t.Fatalf("expected only the first chunk to start, got %v", spoken)
	}
}

func TestPerCallOptionsOverrideDefaults(t *testing.T) {
	synthesizer := newStubSynthesizer()
	service := NewService(WithSynthesizer(synthesizer), WithPlayer(&stubPlayer{}))
	service.SetRate(1.2)
	service.SetPitch(0.8)
	service.SetVoice(&Voice{Name: "aura-luna-en", Locale: "en-US"})

	if err := service.Speak(context.Background(), "defaults"); err != nil {
		t.Fatalf("expected speak to succeed, got %v", err)
	}
	if err := service.Speak(context.Background(), "override", WithRate(2), WithVoice(&Voice{Name: "aura-orion-en"})); err != nil {
		t.Fatalf("expected speak to succeed, got %v", err)
	}

	defaults := synthesizer.options[0]
	if defaults.Rate != 1.2 || defaults.Pitch != 0.8 || defaults.Voice.Name != "aura-luna-en" {
		t.Fatalf("expected defaults to apply, got %+v", defaults)
	}
	override := synthesizer.options[1]
	if override.Rate != 2 || override.Pitch != 0.8 || override.Voice.Name != "aura-orion-en" {
		t.Fatalf("expected per-call overrides, got %+v", override)
	}
	if service.Profile().Rate != 1.2 {
		t.Fatalf("expected per-call options to leave defaults untouched")
	}
}

func TestSettersClampValues(t *testing.T) {
	service := NewService()
	service.SetRate(100)
	service.SetPitch(-1)
	service.SetVolume(3)

	profile := service.Profile()
	if profile.Rate != MaxRate || profile.Pitch != MinPitch || profile.Volume != MaxVolume {
		t.Fatalf("expected clamped profile, got %+v", profile)
	}
}

func TestProfileIsACopy(t *testing.T) {
	service := NewService()
	service.SetVoice(&Voice{Name: "aura-luna-en"})

	profile := service.Profile()
	profile.Voice.Name = "changed"
	if service.Profile().Voice.Name != "aura-luna-en" {
		t.Fatalf("expected profile to be a defensive copy")
	}
}

func TestRefreshVoicesNotifiesListeners(t *testing.T) {
	synthesizer := newStubSynthesizer()
	synthesizer.voices = []Voice{{Name: "aura-luna-en", Locale: "en-US"}}
	service := NewService(WithSynthesizer(synthesizer), WithPlayer(&stubPlayer{}))

	if voices := service.Voices(); len(voices) != 0 {
		t.Fatalf("expected empty catalog before refresh, got %v", voices)
	}

	changed := make(chan []Voice, 1)
	unsubscribe := service.OnVoicesChanged(func(voices []Voice) { changed <- voices })
	defer unsubscribe()
	service.RefreshVoices(context.Background())

	select {
	case voices := <-changed:
		if len(voices) != 1 || voices[0].Name != "aura-luna-en" {
			t.Fatalf("expected refreshed catalog, got %v", voices)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected voices changed notification")
	}
	if voices := service.Voices(); len(voices) != 1 {
		t.Fatalf("expected catalog to be populated, got %v", voices)
	}
}

func TestFindVoiceMatchesNameAndLocale(t *testing.T) {
	voices := []Voice{{Name: "a", Locale: "en-US"}, {Name: "a", Locale: "en-GB"}}
	if voice := FindVoice(voices, "a", "en-gb"); voice == nil || voice.Locale != "en-GB" {
		t.Fatalf("expected en-GB voice, got %v", voice)
	}
	if voice := FindVoice(voices, "b", ""); voice != nil {
		t.Fatalf("expected no voice, got %v", voice)
	}
}
