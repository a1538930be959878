package events

// KindTurnCancelled identifies turn cancellation.
const KindTurnCancelled Kind = "turn_state.cancelled"

// TurnCancelled marks cancellation of an in-flight turn.
type TurnCancelled struct {
	Base
	TurnID string
}

// NewTurnCancelled creates a turn cancelled event.
func NewTurnCancelled(turnID string) TurnCancelled {
	return TurnCancelled{Base: NewBase(KindTurnCancelled), TurnID: turnID}
}
