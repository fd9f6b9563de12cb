package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventBatchProgress   EventType = "batch_progress"
	EventBatchCompleted  EventType = "batch_completed"
	EventReportCompleted EventType = "report_completed"
	EventReportFailed    EventType = "report_failed"
	EventDeltaAlert      EventType = "delta_alert"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the in-process pub/sub event bus
type EventService interface {
	// Subscribe registers a handler and returns a function that removes it
	Subscribe(eventType EventType, handler EventHandler) (unsubscribe func(), err error)

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
