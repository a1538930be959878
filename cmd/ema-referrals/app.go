package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	orchestration "github.com/koscakluka/ema-referrals/core"
	"github.com/koscakluka/ema-referrals/core/audio/miniaudio"
	"github.com/koscakluka/ema-referrals/core/audio/portaudio"
	"github.com/koscakluka/ema-referrals/core/llms/gemini"
	"github.com/koscakluka/ema-referrals/core/llms/groq"
	"github.com/koscakluka/ema-referrals/core/llms/openai"
	"github.com/koscakluka/ema-referrals/core/preferences"
	"github.com/koscakluka/ema-referrals/core/referrals"
	"github.com/koscakluka/ema-referrals/core/speechtotext"
	sttdeepgram "github.com/koscakluka/ema-referrals/core/speechtotext/deepgram"
	"github.com/koscakluka/ema-referrals/core/texttospeech"
	ttsdeepgram "github.com/koscakluka/ema-referrals/core/texttospeech/deepgram"
	"github.com/koscakluka/ema-referrals/core/texttospeech/google"
	"github.com/koscakluka/ema-referrals/internal/config"
	"github.com/koscakluka/ema-referrals/internal/web"
)

const shutdownTimeout = 5 * time.Second

// audioDevice is a full duplex device serving as microphone and speaker.
type audioDevice interface {
	sttdeepgram.AudioInput
	texttospeech.Player
	Close()
}

// app owns every long lived resource behind a conversation.
type app struct {
	orchestrator *orchestration.Orchestrator
	server       *web.Server

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	device, err := openAudioDevice(cfg.Audio)
	if err != nil {
		// Without a device the conversation reports itself unsupported.
		slog.Warn("audio device unavailable", "backend", cfg.Audio.Backend, "error", err)
		device = nil
	} else {
		a.addCloser(func() error { device.Close(); return nil })
	}

	capture := newSpeechCapture(cfg.Speech, device)
	output, err := a.newSpeechOutput(ctx, cfg, device)
	if err != nil {
		return nil, err
	}

	store, err := preferences.Open(cfg.PreferencesPath)
	if err != nil {
		slog.Warn("voice preferences unavailable", "path", cfg.PreferencesPath, "error", err)
		store = nil
	} else {
		a.addCloser(store.Close)
		restoreVoiceProfile(output, store)
		output.OnVoicesChanged(func([]texttospeech.Voice) { restoreVoiceProfile(output, store) })
	}
	output.RefreshVoices(ctx)

	a.orchestrator = orchestration.NewOrchestrator(
		orchestration.WithBaseContext(ctx),
		orchestration.WithSpeechCapture(capture),
		orchestration.WithSpeechOutput(output),
		orchestration.WithQueryService(newQueryService(cfg)),
		orchestration.WithMode(cfg.ConversationMode()),
		orchestration.WithLanguage(cfg.Language),
		orchestration.WithQueryTimeout(cfg.Timeouts.Query),
		orchestration.WithSpeechTimeout(cfg.Timeouts.Speech),
		orchestration.WithListenTimeout(cfg.Timeouts.Listen),
		orchestration.WithSpokenErrorMessage(cfg.Speech.SpokenErrorMessage),
	)
	a.addCloser(func() error { a.orchestrator.Close(); return nil })

	if cfg.Web.Enabled {
		var opts []web.ServerOption
		if store != nil {
			opts = append(opts, web.WithProfileStore(store))
		}
		if a.server, err = web.NewServer(a.orchestrator, opts...); err != nil {
			return nil, fmt.Errorf("failed to create web api: %w", err)
		}
		go func() {
			if err := a.server.Listen(cfg.Web.Address); err != nil {
				slog.Error("web api stopped", "error", err)
			}
		}()
		a.addCloser(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return a.server.Shutdown(ctx)
		})
	}

	return a, nil
}

func (a *app) addCloser(closer func() error) {
	a.closers = append(a.closers, closer)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func openAudioDevice(cfg config.AudioConfig) (audioDevice, error) {
	switch cfg.Backend {
	case config.AudioBackendPortaudio:
		client, err := portaudio.NewClient(cfg.BufferSize)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		client, err := miniaudio.NewClient()
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func newSpeechCapture(cfg config.SpeechConfig, device audioDevice) *speechtotext.Service {
	opts := []sttdeepgram.RecognizerOption{sttdeepgram.WithAPIKey(cfg.DeepgramAPIKey)}
	if cfg.ListenModel != "" {
		opts = append(opts, sttdeepgram.WithModel(cfg.ListenModel))
	}

	var input sttdeepgram.AudioInput
	if device != nil {
		input = device
	}
	return speechtotext.NewService(sttdeepgram.NewRecognizer(input, opts...))
}

func (a *app) newSpeechOutput(ctx context.Context, cfg *config.Config, device audioDevice) (*texttospeech.Service, error) {
	opts := []texttospeech.ServiceOption{}
	if device != nil {
		opts = append(opts, texttospeech.WithPlayer(device))
	}

	switch cfg.Speech.TTSProvider {
	case config.TTSProviderGoogle:
		synthesizer, err := google.NewSynthesizer(ctx, google.WithLanguageCode(cfg.Language))
		if err != nil {
			return nil, fmt.Errorf("failed to create google synthesizer: %w", err)
		}
		a.addCloser(synthesizer.Close)
		opts = append(opts, texttospeech.WithSynthesizer(synthesizer))
	default:
		synthOpts := []ttsdeepgram.SynthesizerOption{ttsdeepgram.WithAPIKey(cfg.Speech.DeepgramAPIKey)}
		if cfg.Speech.Voice != "" {
			synthOpts = append(synthOpts, ttsdeepgram.WithDefaultVoiceName(cfg.Speech.Voice))
		}
		opts = append(opts, texttospeech.WithSynthesizer(ttsdeepgram.NewSynthesizer(synthOpts...)))
	}

	return texttospeech.NewService(opts...), nil
}

// newQueryService picks the configured model. Without one every query is
// answered by the fallback responder.
func newQueryService(cfg *config.Config) *referrals.Service {
	var opts []referrals.Option
	switch cfg.LLM.Provider {
	case config.LLMProviderGemini:
		opts = append(opts, referrals.WithModel(gemini.NewClient(cfg.LLM.GeminiAPIKey, cfg.LLM.GeminiModel)))
	case config.LLMProviderGroq:
		opts = append(opts, referrals.WithModel(groq.NewClient(cfg.LLM.GroqAPIKey, cfg.LLM.GroqModel)))
	case config.LLMProviderOpenAI:
		opts = append(opts, referrals.WithModel(openai.NewClient(cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIModel)))
	}
	if cfg.LLM.StructuredExtraction {
		opts = append(opts, referrals.WithExtractor(referrals.NewGroqExtractor(groq.NewClient(cfg.LLM.GroqAPIKey, cfg.LLM.GroqModel))))
	}
	return referrals.NewService(opts...)
}

func restoreVoiceProfile(output *texttospeech.Service, store *preferences.Store) {
	profile, ok, err := store.LoadVoiceProfile(output.Voices())
	if err != nil {
		slog.Warn("failed to load voice profile", "error", err)
		return
	}
	if ok {
		output.SetProfile(profile)
	}
}
