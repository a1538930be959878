package events

import "github.com/koscakluka/ema-referrals/core/conversations"

const (
	// KindStateChanged identifies state machine transitions.
	KindStateChanged Kind = "conversation.state_changed"
	// KindConversationError identifies recovered conversation failures.
	KindConversationError Kind = "conversation.error"
	// KindHistoryCleared identifies history resets.
	KindHistoryCleared Kind = "conversation.history_cleared"
)

// StateChanged carries a state machine transition.
type StateChanged struct {
	Base
	Previous conversations.State
	Current  conversations.State
}

// NewStateChanged creates a state changed event.
func NewStateChanged(previous, current conversations.State) StateChanged {
	return StateChanged{Base: NewBase(KindStateChanged), Previous: previous, Current: current}
}

// ErrorSource names the subsystem that failed.
type ErrorSource string

const (
	ErrorSourceCapture  ErrorSource = "capture"
	ErrorSourcePlayback ErrorSource = "playback"
	ErrorSourceQuery    ErrorSource = "query"
)

// ConversationError carries a recovered failure.
type ConversationError struct {
	Base
	Source ErrorSource
	Err    error
	// Fatal is set when the failure moved the conversation into the error
	// state.
	Fatal bool
}

// NewConversationError creates a conversation error event.
func NewConversationError(source ErrorSource, err error, fatal bool) ConversationError {
	return ConversationError{Base: NewBase(KindConversationError), Source: source, Err: err, Fatal: fatal}
}

// HistoryCleared marks an emptied history.
type HistoryCleared struct{ Base }

// NewHistoryCleared creates a history cleared event.
func NewHistoryCleared() HistoryCleared {
	return HistoryCleared{Base: NewBase(KindHistoryCleared)}
}
