package orchestration

import (
	"github.com/koscakluka/ema-referrals/core/conversations"
	"github.com/koscakluka/ema-referrals/core/events"
)

// Subscribe registers handler for every orchestrator event. Events arrive in
// the order they happened. The returned func unsubscribes.
func (o *Orchestrator) Subscribe(handler func(events.Event)) (unsubscribe func()) {
	return o.events.subscribe(handler)
}

// OnTranscript receives every working transcript snapshot.
func (o *Orchestrator) OnTranscript(handler func(transcript string, isFinal bool)) (unsubscribe func()) {
	return o.Subscribe(func(event events.Event) {
		if e, ok := event.(events.UserTranscriptUpdated); ok {
			handler(e.Transcript, e.IsFinal)
		}
	})
}

// OnResponse receives the accumulated answer while it streams and once more
// with isFinal set when it is complete.
func (o *Orchestrator) OnResponse(handler func(text string, isFinal bool)) (unsubscribe func()) {
	return o.Subscribe(func(event events.Event) {
		switch e := event.(type) {
		case events.AssistantResponseUpdated:
			handler(e.Text, false)
		case events.AssistantResponseFinal:
			handler(e.Result.Text, true)
		}
	})
}

func (o *Orchestrator) OnStateChange(handler func(previous, current conversations.State)) (unsubscribe func()) {
	return o.Subscribe(func(event events.Event) {
		if e, ok := event.(events.StateChanged); ok {
			handler(e.Previous, e.Current)
		}
	})
}

// OnError receives recovered capture and playback failures.
func (o *Orchestrator) OnError(handler func(err error)) (unsubscribe func()) {
	return o.Subscribe(func(event events.Event) {
		if e, ok := event.(events.ConversationError); ok {
			handler(e.Err)
		}
	})
}
