package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-referrals/core/audio"
	"github.com/koscakluka/ema-referrals/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultSpeakURL = "wss://api.deepgram.com/v1/speak"

// Synthesizer speaks text with Deepgram Aura over the speak websocket. Aura
// has no rate or pitch controls, both are ignored.
type Synthesizer struct {
	apiKey   string
	speakURL string
	voice    deepgramVoice
	dialer   *websocket.Dialer
}

type SynthesizerOption func(*Synthesizer)

func WithAPIKey(apiKey string) SynthesizerOption {
	return func(s *Synthesizer) { s.apiKey = apiKey }
}

func WithSpeakURL(speakURL string) SynthesizerOption {
	return func(s *Synthesizer) { s.speakURL = speakURL }
}

func WithDefaultVoice(voice deepgramVoice) SynthesizerOption {
	return func(s *Synthesizer) { s.voice = voice }
}

// WithDefaultVoiceName selects the default voice by its model name. Unknown
// names keep the current default.
func WithDefaultVoiceName(name string) SynthesizerOption {
	return func(s *Synthesizer) {
		if name == "" {
			return
		}
		if !slices.Contains(GetAvailableVoices(), deepgramVoice(name)) {
			logger.Warn("unknown deepgram voice, keeping default", "voice", name)
			return
		}
		s.voice = deepgramVoice(name)
	}
}

func WithDialer(dialer *websocket.Dialer) SynthesizerOption {
	return func(s *Synthesizer) { s.dialer = dialer }
}

func NewSynthesizer(opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{
		speakURL: DefaultSpeakURL,
		voice:    defaultVoice,
		dialer:   websocket.DefaultDialer,
	}
	if apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY"); ok {
		s.apiKey = apiKey
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Synthesizer) HasAPIKey() bool { return s.apiKey != "" }

// Synthesize opens a speak socket for text, streams the produced audio to
// onAudio and returns once Deepgram confirmed the flush.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, options texttospeech.SynthesisOptions, onAudio func([]byte)) (err error) {
	voice := s.resolveVoice(options.Voice)
	ctx, span := tracer.Start(ctx, "synthesize deepgram speech",
		trace.WithAttributes(
			attribute.String("deepgram.voice", string(voice)),
			attribute.Int("speech.text_length", len(text)),
		))
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

	conn, err := s.connectWebsocket(ctx, voice, encoding)
	if err != nil {
		return fmt.Errorf("failed to open websocket: %w", err)
	}
	r := &speakRequest{ws: conn}
	defer r.close()

	if err := r.send(speakMsg(text)); err != nil {
		return fmt.Errorf("failed to send text: %w", err)
	}
	if err := r.send(flushMsg); err != nil {
		return fmt.Errorf("failed to flush text: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- r.readUntilFlushed(onAudio) }()

	select {
	case <-ctx.Done():
		_ = r.send(clearMsg)
		r.abort()
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (s *Synthesizer) connectWebsocket(ctx context.Context, voice deepgramVoice, encoding audio.EncodingInfo) (*websocket.Conn, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	speakURL, err := url.Parse(s.speakURL)
	if err != nil {
		return nil, fmt.Errorf("invalid speak url: %w", err)
	}
	urlValues := speakURL.Query()
	urlValues.Set("encoding", encoding.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	urlValues.Set("model", string(voice))
	urlValues.Set("container", "none")
	speakURL.RawQuery = urlValues.Encode()

	conn, _, err := s.dialer.DialContext(ctx, speakURL.String(),
		http.Header{"Authorization": {"token " + s.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

type speakRequest struct {
	ws     *websocket.Conn
	mu     sync.Mutex
	closed bool
}

var errClosedBeforeFlush = errors.New("deepgram closed the socket before flushing")

func (r *speakRequest) readUntilFlushed(onAudio func([]byte)) error {
	for {
		msgType, msg, err := r.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errClosedBeforeFlush
			}
			return fmt.Errorf("failed to read from deepgram: %w", err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			if len(msg) > 0 {
				onAudio(msg)
			}
		case websocket.TextMessage:
			var parsedMsg struct {
				Type        string `json:"type"`
				Description string `json:"description"`
			}
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				logger.Warn("failed to unmarshal deepgram message", "error", err)
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				return nil
			case "Error":
				return fmt.Errorf("deepgram speak error: %s", parsedMsg.Description)
			case "Warning":
				logger.Warn("deepgram speak warning", "description", parsedMsg.Description)
			}
		}
	}
}

func (r *speakRequest) send(msg any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("websocket connection closed")
	}

	if err := r.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}

// close asks Deepgram to close the socket and releases it.
func (r *speakRequest) close() {
	_ = r.send(closeMsg)
	r.abort()
}

func (r *speakRequest) abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	_ = r.ws.Close()
}

type websocketMessage struct {
	Type string `json:"type"`
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func speakMsg(text string) speakMessage {
	return speakMessage{Type: "Speak", Text: text}
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	clearMsg = websocketMessage{Type: "Clear"}
	closeMsg = websocketMessage{Type: "Close"}
)
