package chain

import "time"

// EventType identifies a chain lifecycle event.
type EventType string

const (
	EventChainStarted     EventType = "chain.started"
	EventChainCompleted   EventType = "chain.completed"
	EventChainFailed      EventType = "chain.failed"
	EventChainCancelled   EventType = "chain.cancelled"
	EventHandlerStarted   EventType = "handler.started"
	EventHandlerCompleted EventType = "handler.completed"
	EventHandlerFailed    EventType = "handler.failed"
	EventHandlerRetrying  EventType = "handler.retrying"
	EventHandlerSkipped   EventType = "handler.skipped"
)

// Event is emitted synchronously by the executor on the executing goroutine.
// Handler-scoped fields are empty for chain events.
type Event struct {
	Type        EventType
	Time        time.Time
	ExecutionID string
	Handler     string
	Attempt     int
	Elapsed     time.Duration
	Status      Status
	Verdict     Verdict
	Err         error
}

// EventHandler receives executor events.
type EventHandler func(Event)

// MultiEventHandler fans each event out to hs in order, skipping nils.
func MultiEventHandler(hs ...EventHandler) EventHandler {
	return func(ev Event) {
		for _, h := range hs {
			if h != nil {
				h(ev)
			}
		}
	}
}
