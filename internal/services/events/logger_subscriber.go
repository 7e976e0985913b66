package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// NewLoggerSubscriber returns a sink that logs every event with whatever
// structured fields its payload carries
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().Str("event_type", string(event.Type))

		switch payload := event.Payload.(type) {
		case models.JobStatusUpdate:
			logEvent = logEvent.
				Str("job_id", payload.JobID).
				Str("status", string(payload.Status)).
				Int("progress", payload.Progress)
			if payload.Error != "" {
				logEvent = logEvent.Str("error", payload.Error)
			}
		case models.CrawlProgress:
			logEvent = logEvent.
				Str("job_id", payload.JobID).
				Str("url", payload.URL).
				Int("pages_done", payload.PagesDone).
				Int("max_pages", payload.MaxPages).
				Int("error_count", payload.ErrorCount)
		}

		logEvent.Msg("Event published")
		return nil
	}
}

// SubscribeLoggerToAllEvents attaches the logging sink to every known event
// type. The pipeline calls this once at startup.
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventCrawlProgress,
		interfaces.EventJobStatus,
	}
	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Debug().Int("event_type_count", len(eventTypes)).Msg("Logger subscribed to all event types")
	return nil
}
