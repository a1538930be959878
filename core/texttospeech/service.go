package texttospeech

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/koscakluka/ema-referrals/core/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrSpeechCancelled is returned by Speak when the utterance was
	// superseded by another Speak call or stopped.
	ErrSpeechCancelled = errors.New("speech cancelled")
	ErrNotSupported    = errors.New("speech output is not supported")
)

// Service speaks text through a synthesizer and a player. At most one
// utterance is in flight, a new one cancels the previous.
type Service struct {
	synthesizer Synthesizer
	player      Player

	mu       sync.Mutex
	profile  VoiceProfile
	current  *utterance
	sequence uint64

	voicesMu        sync.RWMutex
	voices          []Voice
	voiceListeners  map[int]func([]Voice)
	nextListenerKey int
}

type utterance struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	// sequence is the chunked sequence the utterance belongs to, 0 for
	// standalone Speak calls.
	sequence uint64
}

type ServiceOption func(*Service)

func WithSynthesizer(synthesizer Synthesizer) ServiceOption {
	return func(s *Service) { s.synthesizer = synthesizer }
}

func WithPlayer(player Player) ServiceOption {
	return func(s *Service) { s.player = player }
}

// WithDefaultProfile sets the profile used when a call does not override it.
func WithDefaultProfile(profile VoiceProfile) ServiceOption {
	return func(s *Service) { s.profile = profile.Normalized() }
}

func NewService(opts ...ServiceOption) *Service {
	s := &Service{
		profile:        DefaultVoiceProfile(),
		voiceListeners: map[int]func([]Voice){},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) IsSupported() bool {
	return s != nil && s.synthesizer != nil && s.player != nil
}

// Speak cancels any in-flight utterance and speaks text. It returns once the
// audio finished playing.
func (s *Service) Speak(ctx context.Context, text string, opts ...SpeakOption) error {
	if !s.IsSupported() {
		return ErrNotSupported
	}

	u := s.begin(ctx, 0)
	defer s.end(u)

	return s.speak(u, text, s.resolveProfile(opts...))
}

// SpeakChunked speaks chunks strictly in order. A failing chunk is logged and
// skipped, Stop or a newer Speak aborts the rest of the sequence.
func (s *Service) SpeakChunked(ctx context.Context, chunks []string, opts ...SpeakOption) error {
	if !s.IsSupported() {
		return ErrNotSupported
	}

	s.mu.Lock()
	s.sequence++
	sequence := s.sequence
	s.mu.Unlock()

	profile := s.resolveProfile(opts...)
	for i, chunk := range chunks {
		if !s.isSequenceCurrent(sequence) {
			return ErrSpeechCancelled
		}

		u := s.begin(ctx, sequence)
		err := s.speak(u, chunk, profile)
		s.end(u)

		switch {
		case errors.Is(err, ErrSpeechCancelled):
			return ErrSpeechCancelled
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			logger.Warn("failed to speak chunk, continuing with the next one", "chunk", i, "error", err)
		}
	}
	return nil
}

// Stop cancels in-flight and queued speech and drops buffered audio.
func (s *Service) Stop() {
	if !s.IsSupported() {
		return
	}

	s.mu.Lock()
	s.sequence++
	if s.current != nil {
		s.current.cancel(ErrSpeechCancelled)
		s.current = nil
	}
	s.mu.Unlock()

	s.player.ClearBuffer()
}

func (s *Service) begin(ctx context.Context, sequence uint64) *utterance {
	uCtx, cancel := context.WithCancelCause(ctx)
	u := &utterance{ctx: uCtx, cancel: cancel, sequence: sequence}

	s.mu.Lock()
	previous := s.current
	s.current = u
	if sequence == 0 {
		// A standalone utterance also aborts any running sequence.
		s.sequence++
	}
	s.mu.Unlock()

	if previous != nil {
		previous.cancel(ErrSpeechCancelled)
		s.player.ClearBuffer()
	}
	return u
}

func (s *Service) end(u *utterance) {
	s.mu.Lock()
	isCurrent := s.current == u
	if isCurrent {
		s.current = nil
	}
	s.mu.Unlock()

	if isCurrent && u.ctx.Err() != nil {
		s.player.ClearBuffer()
	}
	u.cancel(nil)
}

func (s *Service) isSequenceCurrent(sequence uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence == sequence
}

func (s *Service) speak(u *utterance, text string, profile VoiceProfile) (err error) {
	ctx, span := tracer.Start(u.ctx, "speak",
		trace.WithAttributes(
			attribute.Int("speech.text_length", len(text)),
			attribute.Float64("speech.rate", profile.Rate),
			attribute.Float64("speech.volume", profile.Volume),
		))
	defer func() {
		if err != nil && !errors.Is(err, ErrSpeechCancelled) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if strings.TrimSpace(text) == "" {
		return nil
	}

	encoding := s.player.EncodingInfo()
	options := SynthesisOptions{
		Voice:        profile.Voice,
		Rate:         profile.Rate,
		Pitch:        profile.Pitch,
		EncodingInfo: encoding,
	}

	synthErr := s.synthesizer.Synthesize(ctx, text, options, func(chunk []byte) {
		if ctx.Err() != nil || len(chunk) == 0 {
			return
		}
		if encoding.Format == audio.EncodingLinear16 {
			audio.ApplyGain(chunk, profile.Volume)
		}
		if err := s.player.SendAudio(chunk); err != nil {
			logger.Warn("failed to send audio to player", "error", err)
		}
	})
	if isCancelled(u.ctx) {
		return ErrSpeechCancelled
	}
	if synthErr != nil {
		return fmt.Errorf("failed to synthesize speech: %w", synthErr)
	}

	if err := s.player.AwaitDrain(ctx); err != nil {
		if isCancelled(u.ctx) {
			return ErrSpeechCancelled
		}
		return fmt.Errorf("failed to play speech: %w", err)
	}
	if isCancelled(u.ctx) {
		return ErrSpeechCancelled
	}
	return nil
}

func isCancelled(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrSpeechCancelled)
}

func (s *Service) resolveProfile(opts ...SpeakOption) VoiceProfile {
	options := SpeakOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return options.apply(s.Profile())
}

// Profile returns a copy of the default voice profile.
func (s *Service) Profile() VoiceProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile.Clone()
}

func (s *Service) SetProfile(profile VoiceProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = profile.Clone().Normalized()
}

// SetVoice sets the default voice, nil selects the platform default.
func (s *Service) SetVoice(voice *Voice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if voice == nil {
		s.profile.Voice = nil
		return
	}
	v := *voice
	s.profile.Voice = &v
}

func (s *Service) SetRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile.Rate = clamp(rate, MinRate, MaxRate)
}

func (s *Service) SetPitch(pitch float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile.Pitch = clamp(pitch, MinPitch, MaxPitch)
}

func (s *Service) SetVolume(volume float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile.Volume = clamp(volume, MinVolume, MaxVolume)
}

// Voices returns the current catalog. It is empty until RefreshVoices
// completed at least once.
func (s *Service) Voices() []Voice {
	s.voicesMu.RLock()
	defer s.voicesMu.RUnlock()
	return slices.Clone(s.voices)
}

// OnVoicesChanged registers a listener for catalog changes and returns a
// function that removes it.
func (s *Service) OnVoicesChanged(listener func([]Voice)) func() {
	s.voicesMu.Lock()
	defer s.voicesMu.Unlock()
	key := s.nextListenerKey
	s.nextListenerKey++
	s.voiceListeners[key] = listener
	return func() {
		s.voicesMu.Lock()
		defer s.voicesMu.Unlock()
		delete(s.voiceListeners, key)
	}
}

// RefreshVoices repopulates the catalog in the background. Listeners are
// notified when the catalog changed.
func (s *Service) RefreshVoices(ctx context.Context) {
	lister, ok := s.synthesizer.(VoiceLister)
	if !ok {
		return
	}

	go func() {
		voices, err := lister.ListVoices(ctx)
		if err != nil {
			logger.Warn("failed to list voices", "error", err)
			return
		}

		s.voicesMu.Lock()
		if slices.Equal(s.voices, voices) {
			s.voicesMu.Unlock()
			return
		}
		s.voices = slices.Clone(voices)
		listeners := make([]func([]Voice), 0, len(s.voiceListeners))
		for _, listener := range s.voiceListeners {
			listeners = append(listeners, listener)
		}
		s.voicesMu.Unlock()

		for _, listener := range listeners {
			listener(slices.Clone(voices))
		}
	}()
}
