package google

import (
	"context"
	"fmt"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	tts "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/koscakluka/ema-referrals/core/audio"
	speech "github.com/koscakluka/ema-referrals/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultLanguageCode = "en-US"

	minSpeakingRate = 0.25
	maxSpeakingRate = 4.0
	// Google pitch is in semitones around 0, profiles use 1 as neutral.
	semitonesPerPitchUnit = 20.0
)

// Synthesizer speaks text with Google Cloud Text-to-Speech. Credentials come
// from the application default credentials.
type Synthesizer struct {
	languageCode string

	synthesize func(context.Context, *tts.SynthesizeSpeechRequest) (*tts.SynthesizeSpeechResponse, error)
	listVoices func(context.Context, *tts.ListVoicesRequest) (*tts.ListVoicesResponse, error)
	close      func() error
}

type SynthesizerOption func(*Synthesizer)

// WithLanguageCode sets the language used when no voice is selected and the
// filter applied to the voice catalog.
func WithLanguageCode(languageCode string) SynthesizerOption {
	return func(s *Synthesizer) { s.languageCode = languageCode }
}

func NewSynthesizer(ctx context.Context, opts ...SynthesizerOption) (*Synthesizer, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create text-to-speech client: %w", err)
	}

	s := &Synthesizer{
		languageCode: DefaultLanguageCode,
		synthesize: func(ctx context.Context, req *tts.SynthesizeSpeechRequest) (*tts.SynthesizeSpeechResponse, error) {
			return client.SynthesizeSpeech(ctx, req)
		},
		listVoices: func(ctx context.Context, req *tts.ListVoicesRequest) (*tts.ListVoicesResponse, error) {
			return client.ListVoices(ctx, req)
		},
		close: client.Close,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Synthesizer) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func (s *Synthesizer) Synthesize(ctx context.Context, text string, options speech.SynthesisOptions, onAudio func([]byte)) (err error) {
	ctx, span := tracer.Start(ctx, "synthesize google speech",
		trace.WithAttributes(attribute.Int("speech.text_length", len(text))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	encoding := options.EncodingInfo
	if encoding.IsZero() {
		encoding = audio.GetDefaultEncodingInfo()
	}
	audioEncoding, err := convertEncoding(encoding)
	if err != nil {
		return err
	}

	voice := &tts.VoiceSelectionParams{LanguageCode: s.languageCode}
	if options.Voice != nil {
		voice.Name = options.Voice.Name
		if options.Voice.Locale != "" {
			voice.LanguageCode = options.Voice.Locale
		}
	}

	resp, err := s.synthesize(ctx, &tts.SynthesizeSpeechRequest{
		Input: &tts.SynthesisInput{
			InputSource: &tts.SynthesisInput_Text{Text: text},
		},
		Voice: voice,
		AudioConfig: &tts.AudioConfig{
			AudioEncoding:   audioEncoding,
			SampleRateHertz: int32(encoding.SampleRate),
			SpeakingRate:    speakingRate(options.Rate),
			Pitch:           semitones(options.Pitch),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to synthesize speech: %w", err)
	}

	// LINEAR16 responses carry a WAV header.
	pcm := audio.StripWAVHeader(resp.GetAudioContent())
	if len(pcm) > 0 && ctx.Err() == nil {
		onAudio(pcm)
	}
	return nil
}

// ListVoices returns the voices for the configured language.
func (s *Synthesizer) ListVoices(ctx context.Context) ([]speech.Voice, error) {
	resp, err := s.listVoices(ctx, &tts.ListVoicesRequest{LanguageCode: s.languageCode})
	if err != nil {
		return nil, fmt.Errorf("failed to list voices: %w", err)
	}

	voices := make([]speech.Voice, 0, len(resp.GetVoices()))
	for _, voice := range resp.GetVoices() {
		locale := s.languageCode
		if languageCodes := voice.GetLanguageCodes(); len(languageCodes) > 0 {
			locale = languageCodes[0]
		}
		voices = append(voices, speech.Voice{
			Name:        voice.GetName(),
			Locale:      locale,
			DisplayName: voice.GetName(),
			Gender:      strings.ToLower(voice.GetSsmlGender().String()),
		})
	}
	return voices, nil
}

func convertEncoding(encoding audio.EncodingInfo) (tts.AudioEncoding, error) {
	switch encoding.Format {
	case audio.EncodingLinear16:
		return tts.AudioEncoding_LINEAR16, nil
	case audio.EncodingMulaw:
		return tts.AudioEncoding_MULAW, nil
	}
	return tts.AudioEncoding_AUDIO_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding %q", encoding.Format.Name())
}

func speakingRate(rate float64) float64 {
	if rate == 0 {
		return 1
	}
	return min(max(rate, minSpeakingRate), maxSpeakingRate)
}

func semitones(pitch float64) float64 {
	return (pitch - 1) * semitonesPerPitchUnit
}
