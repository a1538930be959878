// Package conversations holds the data model shared by the orchestrator,
// its events and the outer surfaces driving it.
package conversations

// State is the conversation state machine position. Exactly one state is
// active at a time.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateResponding State = "responding"
	StateError      State = "error"
)

func (s State) String() string { return string(s) }

// IsValid reports whether s is one of the five known states.
func (s State) IsValid() bool {
	switch s {
	case StateIdle, StateListening, StateProcessing, StateResponding, StateError:
		return true
	}
	return false
}

// Mode decides what submits a transcript.
type Mode string

const (
	// ModePushToTalk submits when listening is stopped explicitly.
	ModePushToTalk Mode = "push-to-talk"
	// ModeHandsFree submits on every final transcript and resumes listening
	// after the answer has been spoken.
	ModeHandsFree Mode = "hands-free"
)

func (m Mode) String() string { return string(m) }

func ParseMode(value string) (Mode, bool) {
	switch Mode(value) {
	case ModePushToTalk, ModeHandsFree:
		return Mode(value), true
	}
	return "", false
}
