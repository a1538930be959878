package web

import (
	"time"

	"github.com/koscakluka/ema-referrals/core/conversations"
	"github.com/koscakluka/ema-referrals/core/events"
)

// eventMessage is the wire form of a conversation event on /ws/events.
type eventMessage struct {
	Kind      events.Kind    `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

func newEventMessage(event events.Event) eventMessage {
	message := eventMessage{Kind: event.Kind(), Timestamp: event.Timestamp()}

	switch e := event.(type) {
	case events.StateChanged:
		message.Data = map[string]any{"previous": e.Previous, "current": e.Current}
	case events.ConversationError:
		data := map[string]any{"source": e.Source, "fatal": e.Fatal}
		if e.Err != nil {
			data["error"] = e.Err.Error()
		}
		message.Data = data
	case events.UserTranscriptUpdated:
		message.Data = map[string]any{"transcript": e.Transcript, "isFinal": e.IsFinal}
	case events.UserMessageSubmitted:
		message.Data = map[string]any{"turnId": e.TurnID, "message": e.Message}
	case events.AssistantResponseUpdated:
		message.Data = map[string]any{"turnId": e.TurnID, "text": e.Text}
	case events.AssistantResponseFinal:
		message.Data = map[string]any{"turnId": e.TurnID, "result": e.Result}
	case events.AssistantSpeechStarted:
		message.Data = map[string]any{"turnId": e.TurnID}
	case events.AssistantSpeechEnded:
		message.Data = map[string]any{"turnId": e.TurnID, "interrupted": e.Interrupted}
	case events.TurnCancelled:
		message.Data = map[string]any{"turnId": e.TurnID}
	}

	return message
}

type stateResponse struct {
	State      conversations.State `json:"state"`
	Mode       conversations.Mode  `json:"mode"`
	Transcript string              `json:"transcript"`
	Supported  bool                `json:"supported"`
}

type historyResponse struct {
	Messages []conversations.Message `json:"messages"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type voiceProfileRequest struct {
	// Omitted values keep the current setting. An empty voiceName selects
	// the platform default voice.
	VoiceName   *string  `json:"voiceName"`
	VoiceLocale string   `json:"voiceLocale"`
	Rate        *float64 `json:"rate"`
	Pitch       *float64 `json:"pitch"`
	Volume      *float64 `json:"volume"`
}

type voiceTestRequest struct {
	voiceProfileRequest
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}
