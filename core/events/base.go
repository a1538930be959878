package events

import "time"

// Kind is the namespaced event name, e.g. "conversation.state_changed".
type Kind string

func (k Kind) String() string { return string(k) }

// Event is implemented by every value the orchestrator publishes.
// Subscribers type switch on the concrete event for its payload.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base is embedded by concrete events. The timestamp is taken when the
// event is created, which is when the orchestrator queues it.
type Base struct {
	kind       Kind
	occurredAt time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, occurredAt: time.Now()}
}

func (b Base) Kind() Kind { return b.kind }

func (b Base) Timestamp() time.Time { return b.occurredAt }
