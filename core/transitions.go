package orchestration

import (
	"slices"

	"github.com/koscakluka/ema-referrals/core/conversations"
	"github.com/koscakluka/ema-referrals/core/events"
)

// transitions lists every state change the conversation may make. Anything
// else is ignored.
var transitions = map[conversations.State][]conversations.State{
	conversations.StateIdle:       {conversations.StateListening},
	conversations.StateListening:  {conversations.StateIdle, conversations.StateProcessing, conversations.StateError},
	conversations.StateProcessing: {conversations.StateIdle, conversations.StateResponding},
	conversations.StateResponding: {conversations.StateIdle},
	conversations.StateError:      {conversations.StateIdle},
}

func canTransition(from, to conversations.State) bool {
	return slices.Contains(transitions[from], to)
}

// transitionLocked moves the conversation to next and queues the change.
// o.mu must be held.
func (o *Orchestrator) transitionLocked(next conversations.State) bool {
	previous := o.state
	if previous == next {
		return false
	}
	if !canTransition(previous, next) {
		logger.Debug("ignoring invalid state transition", "from", previous, "to", next)
		return false
	}

	o.state = next
	o.events.publish(events.NewStateChanged(previous, next))
	return true
}
