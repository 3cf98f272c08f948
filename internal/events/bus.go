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

// Publish publishes an event to all subscribers.
// A nil bus is a valid no-op publisher.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	// kelindar/event is generic, so dispatch on the concrete type
	switch e := ev.(type) {
	case WorkerSpawnedEvent:
		event.Publish(b.dispatcher, e)
	case WorkerReadyEvent:
		event.Publish(b.dispatcher, e)
	case ClusterHealthyEvent:
		event.Publish(b.dispatcher, e)
	case WorkerExitedEvent:
		event.Publish(b.dispatcher, e)
	case WorkerRestartScheduledEvent:
		event.Publish(b.dispatcher, e)
	case WorkerAbandonedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	case ClusterMetricsEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type determines which events it receives.
// Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e WorkerReadyEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(WorkerSpawnedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(WorkerReadyEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ClusterHealthyEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(WorkerExitedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(WorkerRestartScheduledEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(WorkerAbandonedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ClusterMetricsEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}

// SubscribeToChannel bridges kelindar/event callback-based subscriptions to channels.
// Huma SSE handlers expect a channel-based select loop.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
			// Drop event if channel is full (non-blocking)
		}
	})
}
