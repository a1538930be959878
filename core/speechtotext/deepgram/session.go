package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-referrals/core/audio"
	"github.com/koscakluka/ema-referrals/core/speechtotext"
	"github.com/koscakluka/ema-referrals/internal/utils"
)

// session is one listen socket. It reports results in the order Deepgram
// sent them and ends exactly once.
type session struct {
	conn     *websocket.Conn
	connMu   sync.Mutex
	encoding audio.EncodingInfo

	lastMsgTs time.Time

	interimResults bool
	callbacks      speechtotext.RecognitionCallbacks

	speechStarted bool
	heardSpeech   bool

	// closed is set once we asked for the socket to close, any read error
	// after that is expected.
	closed    bool
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, encoding audio.EncodingInfo, options speechtotext.RecognitionOptions, callbacks speechtotext.RecognitionCallbacks) *session {
	if callbacks.OnResult == nil {
		callbacks.OnResult = func(string, bool) {}
	}
	if callbacks.OnError == nil {
		callbacks.OnError = func(error) {}
	}
	if callbacks.OnEnd == nil {
		callbacks.OnEnd = func() {}
	}
	return &session{
		conn:           conn,
		encoding:       encoding,
		lastMsgTs:      time.Now(),
		interimResults: options.InterimResults,
		callbacks:      callbacks,
	}
}

func (s *session) run(ctx context.Context) {
	silenceCtx, silenceCancel := context.WithCancel(ctx)
	defer silenceCancel()

	go s.generateSilence(silenceCtx)

	for {
		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			s.connMu.Lock()
			closedByUs := s.closed
			s.connMu.Unlock()

			if !closedByUs && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Warn("deepgram listen socket closed unexpectedly", "error", err)
				s.callbacks.OnError(speechtotext.NewRecognitionError(speechtotext.ErrorNetwork, err))
			}
			s.abort()
			return
		}
		if msgType != websocket.BinaryMessage {
			s.processMessage(msg)
		}
	}
}

func (s *session) processMessage(msg []byte) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("failed to unmarshal deepgram transcript", "error", err)
			return
		}
		if len(msgResp.Channel.Alternatives) == 0 {
			return
		}
		transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		if transcript == "" {
			return
		}
		if msgResp.IsFinal {
			s.heardSpeech = true
			s.callbacks.OnResult(transcript, true)
		} else if s.interimResults {
			s.callbacks.OnResult(transcript, false)
		}

	case api.TypeSpeechStartedResponse:
		s.speechStarted = true

	case api.TypeUtteranceEndResponse:
		if s.speechStarted && !s.heardSpeech {
			s.callbacks.OnError(speechtotext.NewRecognitionError(speechtotext.ErrorNoSpeech, errors.New("utterance ended without a transcript")))
		}
		s.speechStarted = false
		s.heardSpeech = false
	}
}

func (s *session) sendAudio(audio []byte) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.closed {
		return
	}

	s.lastMsgTs = time.Now()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		logger.Warn("failed to write audio to deepgram", "error", err)
	}
}

func (s *session) sendSilence(audio []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.closed {
		return nil
	}

	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write silence to deepgram: %w", err)
	}
	return nil
}

func (s *session) sendControl(messageType string) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.closed {
		return nil
	}

	return s.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: messageType})
}

// closeStream asks Deepgram to flush the final results and close the socket.
// No more audio is sent afterwards.
func (s *session) closeStream() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.closed {
		return nil
	}

	s.closed = true
	return s.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)})
}

// abort closes the socket without waiting for Deepgram, which unblocks run.
func (s *session) abort() {
	s.closeOnce.Do(func() {
		s.connMu.Lock()
		s.closed = true
		s.connMu.Unlock()
		_ = s.conn.Close()
	})
}

func (s *session) idleFor() time.Duration {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return time.Since(s.lastMsgTs)
}

// generateSilence fills short gaps in microphone audio with silence so
// endpointing keeps working, then falls back to KeepAlive messages so the
// socket is not closed for inactivity.
func (s *session) generateSilence(ctx context.Context) {
	type silenceGeneratorState string
	const (
		silenceGeneratorStateWaiting   silenceGeneratorState = "waiting"
		silenceGeneratorStateSilence   silenceGeneratorState = "silence"
		silenceGeneratorStateKeepAlive silenceGeneratorState = "keepAlive"
	)

	const durationMs = 50
	const millisecondsPerSecond = 1000
	ticker := time.NewTicker(durationMs * time.Millisecond)
	defer ticker.Stop()

	chunk := make([]byte, s.encoding.BytesPerSecond()*durationMs/millisecondsPerSecond)
	for i := range chunk {
		chunk[i] = s.encoding.SilenceValue()
	}

	var state = silenceGeneratorStateWaiting
	var firstSilenceTime *time.Time
	var lastKeepAliveTime *time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idle := s.idleFor()
			switch state {
			case silenceGeneratorStateWaiting:
				if idle.Milliseconds() > durationMs {
					state = silenceGeneratorStateSilence
					firstSilenceTime = utils.Ptr(time.Now())
				}

			case silenceGeneratorStateSilence:
				if idle.Milliseconds() < durationMs {
					state = silenceGeneratorStateWaiting
					firstSilenceTime = nil
					continue
				}
				if time.Since(*firstSilenceTime) >= time.Second {
					state = silenceGeneratorStateKeepAlive
					lastKeepAliveTime = utils.Ptr(time.Now())
					firstSilenceTime = nil
					continue
				}

				if err := s.sendSilence(chunk); err != nil {
					logger.Warn("failed to send silence", "error", err)
				}

			case silenceGeneratorStateKeepAlive:
				if idle.Milliseconds() < durationMs {
					state = silenceGeneratorStateWaiting
					continue
				}
				if time.Since(*lastKeepAliveTime) >= 5*time.Second {
					lastKeepAliveTime = utils.Ptr(time.Now())
					if err := s.sendControl("KeepAlive"); err != nil {
						logger.Warn("failed to send keep alive", "error", err)
					}
				}
			}
		}
	}
}
