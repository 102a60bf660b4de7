package events

import (
	"context"
	"errors"
	"testing"

	"github.com/NomadCrew/nomad-weather/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingPublisher struct{ MockPublisher }

func (f *failingPublisher) Publish(ctx context.Context, sessionID string, event types.Event) error {
	return errors.New("boom")
}

func TestStateForwarder_PublishState(t *testing.T) {
	pub := NewMockPublisher()
	fwd := NewStateForwarder(pub)

	payload := &types.WeatherPayload{Location: types.WeatherLocation{Name: "London", Country: "UK"}}
	require.NoError(t, fwd.PublishState(context.Background(), "s1", types.Loading[types.WeatherPayload](1, "London")))
	require.NoError(t, fwd.PublishState(context.Background(), "s1", types.Success(1, "London", payload)))

	events := pub.GetEvents("s1")
	require.Len(t, events, 2)
	assert.Equal(t, types.EventTypeWeatherLoading, events[0].Type)
	assert.Equal(t, types.EventTypeWeatherSuccess, events[1].Type)
	assert.Equal(t, "s1", events[1].SessionID)
	assert.Equal(t, stateEventSource, events[1].Metadata.Source)
	assert.Equal(t, "1", events[1].Metadata.Tags["seq"])

	st, err := DecodeState(events[1])
	require.NoError(t, err)
	assert.True(t, st.IsSuccess())
	assert.Equal(t, "London", st.Data.Location.Name)
}

func TestStateForwarder_PublishError(t *testing.T) {
	fwd := NewStateForwarder(&failingPublisher{})
	err := fwd.PublishState(context.Background(), "s1", types.Failure[types.WeatherPayload](2, "Zzzz", types.ErrorMessageLoadFailed))
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(types.EventTypeWeatherError))
}

func TestDecodeState_BadPayload(t *testing.T) {
	_, err := DecodeState(types.Event{Payload: []byte(`not json`)})
	assert.Error(t, err)
}

func TestMockPublisher_SubscribeFilters(t *testing.T) {
	pub := NewMockPublisher()
	ctx := context.Background()

	ch, err := pub.Subscribe(ctx, "s1", "w1", types.EventTypeWeatherSuccess)
	require.NoError(t, err)
	_, err = pub.Subscribe(ctx, "s1", "w1")
	assert.Error(t, err)

	loading, _ := NewStateEvent("s1", types.Loading[types.WeatherPayload](1, "x"), "test")
	success, _ := NewStateEvent("s1", types.Success(1, "x", &types.WeatherPayload{}), "test")
	require.NoError(t, pub.Publish(ctx, "s1", loading))
	require.NoError(t, pub.Publish(ctx, "s1", success))

	assert.Equal(t, types.EventTypeWeatherSuccess, (<-ch).Type)
	assert.Len(t, ch, 0)

	require.NoError(t, pub.Unsubscribe(ctx, "s1", "w1"))
	pub.Close()
	assert.Error(t, pub.Publish(ctx, "s1", loading))
}
