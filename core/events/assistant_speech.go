package events

const (
	KindAssistantSpeechStarted Kind = "assistant_speech.started"
	KindAssistantSpeechEnded   Kind = "assistant_speech.ended"
)

type AssistantSpeechStarted struct {
	Base
	TurnID string
}

func NewAssistantSpeechStarted(turnID string) AssistantSpeechStarted {
	return AssistantSpeechStarted{Base: NewBase(KindAssistantSpeechStarted), TurnID: turnID}
}

type AssistantSpeechEnded struct {
	Base
	TurnID string
	// Interrupted is set when playback did not drain on its own.
	Interrupted bool
}

func NewAssistantSpeechEnded(turnID string, interrupted bool) AssistantSpeechEnded {
	return AssistantSpeechEnded{Base: NewBase(KindAssistantSpeechEnded), TurnID: turnID, Interrupted: interrupted}
}
