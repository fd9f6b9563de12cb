package events

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/interfaces"
)

// NewLoggerSubscriber creates an event handler that logs pipeline events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		if payload, ok := event.Payload.(map[string]interface{}); ok {
			for _, key := range []string{"batch_id", "report_id", "delta_id", "status"} {
				if v, ok := payload[key].(string); ok && v != "" {
					logEvent = logEvent.Str(key, v)
				}
			}
		}

		logEvent.Msg("Event published")
		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to every pipeline event type
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventBatchProgress,
		interfaces.EventBatchCompleted,
		interfaces.EventReportCompleted,
		interfaces.EventReportFailed,
		interfaces.EventDeltaAlert,
	}

	for _, eventType := range eventTypes {
		if _, err := eventService.Subscribe(eventType, subscriber); err != nil {
			return err
		}
	}
	return nil
}
