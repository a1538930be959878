package texttospeech

import (
	"context"

	"github.com/koscakluka/ema-referrals/core/audio"
)

type SynthesisOptions struct {
	Voice *Voice
	Rate  float64
	Pitch float64
	// EncodingInfo is the encoding the audio must be produced in.
	EncodingInfo audio.EncodingInfo
}

// Synthesizer turns text into audio. Synthesize streams audio to onAudio and
// returns once all audio for text was produced or ctx is done.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, options SynthesisOptions, onAudio func(audio []byte)) error
}

// VoiceLister is implemented by synthesizers that can enumerate voices.
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}

// Player is an audio output device.
type Player interface {
	SendAudio(audio []byte) error
	// ClearBuffer drops all queued audio.
	ClearBuffer()
	// AwaitDrain blocks until all audio sent so far has been played or ctx
	// is done.
	AwaitDrain(ctx context.Context) error
	EncodingInfo() audio.EncodingInfo
}
