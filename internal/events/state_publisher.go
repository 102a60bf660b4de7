package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NomadCrew/nomad-weather/types"
	"github.com/google/uuid"
)

const stateEventSource = "weather_coordinator"

// StateForwarder turns coordinator transitions into events on an EventPublisher.
type StateForwarder struct {
	publisher types.EventPublisher
	source    string
}

func NewStateForwarder(publisher types.EventPublisher) *StateForwarder {
	return &StateForwarder{publisher: publisher, source: stateEventSource}
}

// PublishState wraps state in an event typed after its variant and publishes it.
func (f *StateForwarder) PublishState(ctx context.Context, sessionID string, state types.WeatherState) error {
	event, err := NewStateEvent(sessionID, state, f.source)
	if err != nil {
		return err
	}
	if err := f.publisher.Publish(ctx, sessionID, event); err != nil {
		return fmt.Errorf("publish %s for session %s: %w", event.Type, sessionID, err)
	}
	return nil
}

// NewStateEvent builds the event announcing state.
func NewStateEvent(sessionID string, state types.WeatherState, source string) (types.Event, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return types.Event{}, fmt.Errorf("marshal state: %w", err)
	}

	return types.Event{
		BaseEvent: types.BaseEvent{
			ID:        uuid.New().String(),
			Type:      types.EventTypeForStatus(state.Status),
			SessionID: sessionID,
			Timestamp: time.Now(),
			Version:   1,
		},
		Metadata: types.EventMetadata{
			Source: source,
			Tags:   map[string]string{"seq": fmt.Sprintf("%d", state.Seq)},
		},
		Payload: payload,
	}, nil
}

// DecodeState extracts the state carried by a weather event.
func DecodeState(event types.Event) (types.WeatherState, error) {
	var st types.WeatherState
	if err := json.Unmarshal(event.Payload, &st); err != nil {
		return types.WeatherState{}, fmt.Errorf("decode %s payload: %w", event.Type, err)
	}
	return st, nil
}
