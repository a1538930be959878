package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-referrals/core/audio"
	"github.com/koscakluka/ema-referrals/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultListenURL = "wss://api.deepgram.com/v1/listen"
	DefaultModel     = "nova-3"

	defaultCloseTimeout = 3 * time.Second
)

// AudioInput is a microphone that pushes raw PCM to a single listener.
type AudioInput interface {
	EncodingInfo() audio.EncodingInfo
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}

// Recognizer streams microphone audio to the Deepgram listen API.
type Recognizer struct {
	apiKey       string
	listenURL    string
	model        string
	dialer       *websocket.Dialer
	input        AudioInput
	closeTimeout time.Duration

	mu      sync.Mutex
	current *session
}

type RecognizerOption func(*Recognizer)

func WithAPIKey(apiKey string) RecognizerOption {
	return func(r *Recognizer) { r.apiKey = apiKey }
}

func WithListenURL(listenURL string) RecognizerOption {
	return func(r *Recognizer) { r.listenURL = listenURL }
}

func WithModel(model string) RecognizerOption {
	return func(r *Recognizer) { r.model = model }
}

func WithDialer(dialer *websocket.Dialer) RecognizerOption {
	return func(r *Recognizer) { r.dialer = dialer }
}

// WithCloseTimeout bounds how long Stop waits for Deepgram to flush the last
// results before the socket is closed forcefully.
func WithCloseTimeout(timeout time.Duration) RecognizerOption {
	return func(r *Recognizer) { r.closeTimeout = timeout }
}

func NewRecognizer(input AudioInput, opts ...RecognizerOption) *Recognizer {
	r := &Recognizer{
		listenURL:    DefaultListenURL,
		model:        DefaultModel,
		dialer:       websocket.DefaultDialer,
		input:        input,
		closeTimeout: defaultCloseTimeout,
	}
	if apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY"); ok {
		r.apiKey = apiKey
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recognizer) IsSupported() bool {
	return r != nil && r.apiKey != "" && r.input != nil
}

func (r *Recognizer) Start(ctx context.Context, options speechtotext.RecognitionOptions, callbacks speechtotext.RecognitionCallbacks) error {
	ctx, span := tracer.Start(ctx, "start deepgram recognition",
		trace.WithAttributes(
			attribute.String("deepgram.model", r.model),
			attribute.Bool("recognition.continuous", options.Continuous),
		))
	defer span.End()

	if !r.IsSupported() {
		return speechtotext.NewRecognitionError(speechtotext.ErrorServiceNotAllowed, errors.New("deepgram api key or audio input missing"))
	}

	encoding, err := convertEncoding(r.input.EncodingInfo())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid encoding")
		return speechtotext.NewRecognitionError(speechtotext.ErrorAudioCapture, fmt.Errorf("invalid encoding: %w", err))
	}

	r.mu.Lock()
	previous := r.current
	r.current = nil
	r.mu.Unlock()
	if previous != nil {
		previous.abort()
		if err := r.input.StopCapture(); err != nil {
			logger.Warn("failed to stop audio capture of replaced session", "error", err)
		}
	}

	conn, err := r.dial(ctx, encoding, options)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return err
	}

	s := newSession(conn, encoding, options, callbacks)
	if err := r.input.StartCapture(ctx, s.sendAudio); err != nil {
		_ = conn.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, "audio capture failed")
		return speechtotext.NewRecognitionError(speechtotext.ErrorAudioCapture, fmt.Errorf("failed to start audio capture: %w", err))
	}

	r.mu.Lock()
	r.current = s
	r.mu.Unlock()

	go func() {
		s.run(ctx)
		r.mu.Lock()
		if r.current == s {
			r.current = nil
			r.mu.Unlock()
			if err := r.input.StopCapture(); err != nil {
				logger.Warn("failed to stop audio capture", "error", err)
			}
		} else {
			r.mu.Unlock()
		}
		s.callbacks.OnEnd()
	}()

	return nil
}

// Stop stops the microphone and asks Deepgram to finalize the stream. The
// session ends once Deepgram closes the socket or the close timeout passes.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	s := r.current
	r.mu.Unlock()
	if s == nil {
		return speechtotext.ErrNotStarted
	}

	if err := r.input.StopCapture(); err != nil {
		logger.Warn("failed to stop audio capture", "error", err)
	}
	if err := s.closeStream(); err != nil {
		s.abort()
		return fmt.Errorf("failed to close deepgram stream: %w", err)
	}
	time.AfterFunc(r.closeTimeout, s.abort)
	return nil
}

func (r *Recognizer) dial(ctx context.Context, encoding audio.EncodingInfo, options speechtotext.RecognitionOptions) (*websocket.Conn, error) {
	listenURL, err := url.Parse(r.listenURL)
	if err != nil {
		return nil, speechtotext.NewRecognitionError(speechtotext.ErrorServiceNotAllowed, fmt.Errorf("invalid listen url: %w", err))
	}

	queryParams := listenURL.Query()
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", r.model)
	queryParams.Set("smart_format", "true")
	queryParams.Set("endpointing", "300")
	queryParams.Set("vad_events", "true")
	queryParams.Set("utterance_end_ms", "1000")
	// UtteranceEnd is only sent when interim results are on.
	queryParams.Set("interim_results", "true")
	if options.Language != "" {
		queryParams.Set("language", options.Language)
	}
	listenURL.RawQuery = queryParams.Encode()

	conn, resp, err := r.dialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + r.apiKey}})
	if err != nil {
		code := speechtotext.ErrorNetwork
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			code = speechtotext.ErrorNotAllowed
		}
		return nil, &speechtotext.RecognitionError{
			Code:  code,
			Fatal: true,
			Err:   fmt.Errorf("failed to open socket connection to deepgram: %w", err),
		}
	}
	return conn, nil
}
