package conversations

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one immutable history entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// TurnID groups the user and assistant message of a single turn.
	TurnID string `json:"turnId,omitempty"`
}

// HistoryReader exposes read access to conversation history.
type HistoryReader interface {
	// History returns a copy ordered oldest to newest.
	History() []Message
}
