package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers. A nil bus drops it.
// Usage: bus.Publish(ConsumerStateChangedEvent{...})
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case ConsumerStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case RequirementsCheckedEvent:
		event.Publish(b.dispatcher, e)
	case EngineMessageEvent:
		event.Publish(b.dispatcher, e)
	case LoopbackModuleEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type selects which events it receives.
// Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e ConsumerStateChangedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ConsumerStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RequirementsCheckedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(EngineMessageEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LoopbackModuleEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}
