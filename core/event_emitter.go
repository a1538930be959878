package orchestration

import (
	"slices"
	"sync"

	"github.com/koscakluka/ema-referrals/core/events"
)

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

type subscriber struct {
	id   int
	emit eventEmitter
}

// eventBus fans events out to every subscriber in publish order.
//
// publish only queues, so it is safe to call while holding the orchestrator
// lock; flush delivers outside of it. Events published during a delivery,
// including ones published by a subscriber, are delivered by the goroutine
// that is already flushing.
type eventBus struct {
	mu          sync.Mutex
	nextID      int
	subscribers []subscriber
	queue       []events.Event
	flushing    bool
}

func (b *eventBus) subscribe(emit eventEmitter) func() {
	if emit == nil {
		emit = noopEventEmitter
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers = append(b.subscribers, subscriber{id: id, emit: emit})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.subscribers = slices.DeleteFunc(b.subscribers, func(s subscriber) bool { return s.id == id })
		})
	}
}

func (b *eventBus) publish(event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, event)
}

func (b *eventBus) flush() {
	b.mu.Lock()
	if b.flushing {
		b.mu.Unlock()
		return
	}
	b.flushing = true

	for len(b.queue) > 0 {
		event := b.queue[0]
		b.queue = b.queue[1:]
		subscribers := slices.Clone(b.subscribers)
		b.mu.Unlock()

		for _, s := range subscribers {
			deliver(s.emit, event)
		}

		b.mu.Lock()
	}

	b.flushing = false
	b.mu.Unlock()
}

func deliver(emit eventEmitter, event events.Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("event subscriber panicked", "event", event.Kind(), "panic", recovered)
		}
	}()
	emit(event)
}
