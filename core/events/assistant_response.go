package events

import "github.com/koscakluka/ema-referrals/core/referrals"

const (
	// KindAssistantResponseUpdated identifies accumulated answer snapshots.
	KindAssistantResponseUpdated Kind = "assistant_response.updated"
	// KindAssistantResponseFinal identifies the complete answer.
	KindAssistantResponseFinal Kind = "assistant_response.final"
)

// AssistantResponseUpdated carries the answer text accumulated so far.
type AssistantResponseUpdated struct {
	Base
	TurnID string
	Text   string
}

// NewAssistantResponseUpdated creates an answer snapshot event.
func NewAssistantResponseUpdated(turnID, text string) AssistantResponseUpdated {
	return AssistantResponseUpdated{Base: NewBase(KindAssistantResponseUpdated), TurnID: turnID, Text: text}
}

// AssistantResponseFinal carries the complete answer of a turn.
type AssistantResponseFinal struct {
	Base
	TurnID string
	Result referrals.Result
}

// NewAssistantResponseFinal creates a final answer event.
func NewAssistantResponseFinal(turnID string, result referrals.Result) AssistantResponseFinal {
	return AssistantResponseFinal{Base: NewBase(KindAssistantResponseFinal), TurnID: turnID, Result: result}
}
