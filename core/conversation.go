package orchestration

import (
	"slices"

	"github.com/koscakluka/ema-referrals/core/conversations"
)

var _ conversations.HistoryReader = (*Orchestrator)(nil)

// conversation is the append-only message log. It is guarded by the
// orchestrator lock.
type conversation struct {
	messages []conversations.Message
}

func (c *conversation) add(role conversations.Role, content, turnID string) {
	c.messages = append(c.messages, conversations.Message{
		Role:    role,
		Content: content,
		TurnID:  turnID,
	})
}

func (c *conversation) snapshot() []conversations.Message {
	return slices.Clone(c.messages)
}

func (c *conversation) clear() {
	c.messages = nil
}
