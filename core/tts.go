package orchestration

import (
	"context"

	"github.com/koscakluka/ema-referrals/core/texttospeech"
)

// speechOutput guards an optional output service so an unconfigured one
// behaves as an unsupported platform.
type speechOutput struct {
	client SpeechOutput
}

func (s *speechOutput) set(client SpeechOutput) {
	if isNilClient(client) {
		s.client = nil
		return
	}
	s.client = client
}

func (s *speechOutput) isConfigured() bool {
	return s != nil && s.client != nil
}

func (s *speechOutput) IsSupported() bool {
	return s.isConfigured() && s.client.IsSupported()
}

func (s *speechOutput) Speak(ctx context.Context, text string, opts ...texttospeech.SpeakOption) error {
	if !s.isConfigured() {
		return texttospeech.ErrNotSupported
	}
	return s.client.Speak(ctx, text, opts...)
}

func (s *speechOutput) Stop() {
	if s.isConfigured() {
		s.client.Stop()
	}
}

func (s *speechOutput) Profile() texttospeech.VoiceProfile {
	if !s.isConfigured() {
		return texttospeech.DefaultVoiceProfile()
	}
	return s.client.Profile()
}

func (s *speechOutput) SetProfile(profile texttospeech.VoiceProfile) {
	if s.isConfigured() {
		s.client.SetProfile(profile)
	}
}

func (s *speechOutput) Voices() []texttospeech.Voice {
	if !s.isConfigured() {
		return nil
	}
	return s.client.Voices()
}
