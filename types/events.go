package types

import (
	"context"
	"encoding/json"
	"time"

	"github.com/NomadCrew/nomad-weather/errors"
)

type EventType string

const CategoryWeather = "WEATHER"

const (
	EventTypeWeatherLoading EventType = CategoryWeather + "_LOADING"
	EventTypeWeatherSuccess EventType = CategoryWeather + "_SUCCESS"
	EventTypeWeatherError   EventType = CategoryWeather + "_ERROR"
)

// EventTypeForStatus maps a state variant to the event type announcing it.
func EventTypeForStatus(status FetchStatus) EventType {
	switch status {
	case StatusSuccess:
		return EventTypeWeatherSuccess
	case StatusError:
		return EventTypeWeatherError
	default:
		return EventTypeWeatherLoading
	}
}

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
	Version   int       `json:"version"`
}

// EventMetadata for tracking and debugging
type EventMetadata struct {
	CorrelationID string            `json:"correlationId,omitempty"`
	Source        string            `json:"source"`
	Tags          map[string]string `json:"tags,omitempty"`
}

type Event struct {
	BaseEvent
	Metadata EventMetadata   `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`
}

func (e Event) Validate() error {
	if e.ID == "" {
		return errors.ValidationFailed("invalid event", "event ID is required")
	}
	if e.Type == "" {
		return errors.ValidationFailed("invalid event", "event type is required")
	}
	if e.SessionID == "" {
		return errors.ValidationFailed("invalid event", "session ID is required")
	}
	if e.Timestamp.IsZero() {
		return errors.ValidationFailed("invalid event", "timestamp is required")
	}
	return nil
}

// EventPublisher fans weather state events out to observers in other processes.
type EventPublisher interface {
	Publish(ctx context.Context, sessionID string, event Event) error
	Subscribe(ctx context.Context, sessionID string, subscriberID string, filters ...EventType) (<-chan Event, error)
	Unsubscribe(ctx context.Context, sessionID string, subscriberID string) error
}
