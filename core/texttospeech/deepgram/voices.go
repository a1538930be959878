package deepgram

import (
	"context"
	"slices"

	"github.com/koscakluka/ema-referrals/core/texttospeech"
)

type deepgramVoice string

const (
	VoiceThalia    deepgramVoice = "aura-2-thalia-en"
	VoiceAndromeda deepgramVoice = "aura-2-andromeda-en"
	VoiceHelena    deepgramVoice = "aura-2-helena-en"
	VoiceApollo    deepgramVoice = "aura-2-apollo-en"
	VoiceArcas     deepgramVoice = "aura-2-arcas-en"
	VoiceAries     deepgramVoice = "aura-2-aries-en"
	VoiceAsteria   deepgramVoice = "aura-asteria-en"
	VoiceLuna      deepgramVoice = "aura-luna-en"
	VoiceOrion     deepgramVoice = "aura-orion-en"

	defaultVoice = VoiceThalia
)

var voiceCatalog = []struct {
	voice  deepgramVoice
	name   string
	locale string
	gender string
}{
	{VoiceThalia, "Thalia", "en-US", "female"},
	{VoiceAndromeda, "Andromeda", "en-US", "female"},
	{VoiceHelena, "Helena", "en-US", "female"},
	{VoiceApollo, "Apollo", "en-US", "male"},
	{VoiceArcas, "Arcas", "en-US", "male"},
	{VoiceAries, "Aries", "en-US", "male"},
	{VoiceAsteria, "Asteria", "en-US", "female"},
	{VoiceLuna, "Luna", "en-US", "female"},
	{VoiceOrion, "Orion", "en-US", "male"},
}

func GetAvailableVoices() []deepgramVoice {
	voices := make([]deepgramVoice, 0, len(voiceCatalog))
	for _, entry := range voiceCatalog {
		voices = append(voices, entry.voice)
	}
	return voices
}

// ListVoices returns the Aura catalog. It never fails.
func (s *Synthesizer) ListVoices(context.Context) ([]texttospeech.Voice, error) {
	voices := make([]texttospeech.Voice, 0, len(voiceCatalog))
	for _, entry := range voiceCatalog {
		voices = append(voices, texttospeech.Voice{
			Name:        string(entry.voice),
			Locale:      entry.locale,
			DisplayName: entry.name,
			Gender:      entry.gender,
			Default:     entry.voice == s.voice,
		})
	}
	return voices, nil
}

func (s *Synthesizer) resolveVoice(voice *texttospeech.Voice) deepgramVoice {
	if voice == nil {
		return s.voice
	}
	if slices.Contains(GetAvailableVoices(), deepgramVoice(voice.Name)) {
		return deepgramVoice(voice.Name)
	}
	logger.Warn("unknown deepgram voice, using default", "voice", voice.Name)
	return s.voice
}
