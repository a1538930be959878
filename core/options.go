package orchestration

import (
	"context"
	"time"

	"github.com/koscakluka/ema-referrals/core/conversations"
	"github.com/koscakluka/ema-referrals/core/referrals"
	"github.com/koscakluka/ema-referrals/core/speechtotext"
	"github.com/koscakluka/ema-referrals/core/texttospeech"
)

const (
	DefaultQueryTimeout  = 30 * time.Second
	DefaultSpeechTimeout = 2 * time.Minute
	DefaultListenTimeout = 60 * time.Second
)

type OrchestratorOption func(*Orchestrator)

// SpeechCapture is the part of speechtotext.Service the orchestrator drives.
type SpeechCapture interface {
	Start(ctx context.Context, opts ...speechtotext.StartOption) error
	Stop() error
	IsSupported() bool
}

func WithSpeechCapture(capture SpeechCapture) OrchestratorOption {
	return func(o *Orchestrator) {
		o.capture.set(capture)
	}
}

// SpeechOutput is the part of texttospeech.Service the orchestrator drives.
type SpeechOutput interface {
	Speak(ctx context.Context, text string, opts ...texttospeech.SpeakOption) error
	Stop()
	IsSupported() bool
	Profile() texttospeech.VoiceProfile
	SetProfile(profile texttospeech.VoiceProfile)
	Voices() []texttospeech.Voice
}

func WithSpeechOutput(output SpeechOutput) OrchestratorOption {
	return func(o *Orchestrator) {
		o.output.set(output)
	}
}

// QueryService answers a transcript. Ask never fails, failures surface as a
// fallback result.
type QueryService interface {
	Ask(ctx context.Context, query string, onPartial func(text string)) referrals.Result
}

func WithQueryService(query QueryService) OrchestratorOption {
	return func(o *Orchestrator) {
		if !isNilClient(query) {
			o.query = query
		}
	}
}

func WithMode(mode conversations.Mode) OrchestratorOption {
	return func(o *Orchestrator) {
		if _, ok := conversations.ParseMode(string(mode)); ok {
			o.mode = mode
		}
	}
}

// WithLanguage sets the BCP-47 language tag passed to speech capture.
func WithLanguage(language string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.language = language
	}
}

// WithQueryTimeout bounds a single query. An expired query is answered by the
// fallback responder.
func WithQueryTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.queryTimeout = timeout
	}
}

// WithSpeechTimeout bounds speaking a single answer. An expired answer is
// treated as a playback failure.
func WithSpeechTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.speechTimeout = timeout
	}
}

// WithListenTimeout bounds a push-to-talk listening session. Expiry behaves
// like StopListening. Zero disables the bound.
func WithListenTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.listenTimeout = timeout
	}
}

// WithSpokenErrorMessage is spoken once after a failed answer playback.
func WithSpokenErrorMessage(message string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.spokenErrorMessage = message
	}
}

// WithBaseContext parents every turn. Cancelling it stops the conversation.
func WithBaseContext(ctx context.Context) OrchestratorOption {
	return func(o *Orchestrator) {
		if ctx != nil {
			o.baseContext = ctx
		}
	}
}
