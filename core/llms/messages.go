package llms

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is a single message of a prompt history.
type Message struct {
	Role    MessageRole
	Content string
}

// Response is a single blocking response from an LLM
type Response struct {
	Content      string
	FinishReason string
	Usage        *Usage
}
