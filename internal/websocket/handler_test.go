package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NomadCrew/nomad-weather/config"
	apperrors "github.com/NomadCrew/nomad-weather/errors"
	"github.com/NomadCrew/nomad-weather/logger"
	"github.com/NomadCrew/nomad-weather/pkg/weatherapi"
	"github.com/NomadCrew/nomad-weather/services"
	"github.com/NomadCrew/nomad-weather/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func init() {
	logger.IsTest = true
	gin.SetMode(gin.TestMode)
}

type stubWeatherClient struct{}

func (stubWeatherClient) GetCurrent(ctx context.Context, query string) (*weatherapi.Response, error) {
	if query != "London" {
		return &weatherapi.Response{StatusCode: http.StatusBadRequest}, nil
	}
	return &weatherapi.Response{
		StatusCode: http.StatusOK,
		Body: &types.WeatherPayload{
			Location: types.WeatherLocation{Name: "London", Country: "UK"},
		},
	}, nil
}

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error"`
}

func setupServer(t *testing.T) (*services.SessionRegistry, *Hub, *httptest.Server) {
	t.Helper()

	registry := services.NewSessionRegistry(func(sessionID string) *services.WeatherCoordinator {
		return services.NewWeatherCoordinator(stubWeatherClient{}, services.CoordinatorOptions{SessionID: sessionID})
	}, 0, 0)
	t.Cleanup(registry.Shutdown)

	hub := NewHub(HubConfig{PingInterval: time.Minute, WriteTimeout: 2 * time.Second})
	handler := NewHandler(hub, registry, &config.ServerConfig{Environment: config.EnvDevelopment})

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			if appErr, ok := c.Errors.Last().Err.(*apperrors.AppError); ok {
				c.AbortWithStatus(appErr.GetHTTPStatus())
				return
			}
			c.AbortWithStatus(http.StatusInternalServerError)
		}
	})
	r.GET("/v1/sessions/:id/ws", handler.HandleWebSocket)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return registry, hub, srv
}

func dial(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/" + sessionID + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var msg wsMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func readState(t *testing.T, conn *websocket.Conn) types.WeatherState {
	t.Helper()
	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeState, msg.Type)
	var st types.WeatherState
	require.NoError(t, json.Unmarshal(msg.Payload, &st))
	return st
}

func send(t *testing.T, conn *websocket.Conn, msg interface{}) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, msg))
}

func TestHandler_RequestStreamsTransitions(t *testing.T) {
	registry, hub, srv := setupServer(t)
	session := registry.Open()

	conn := dial(t, srv, session.ID)
	connected := readMessage(t, conn)
	assert.Equal(t, MessageTypeConnected, connected.Type)
	assert.Contains(t, string(connected.Payload), session.ID)

	assert.Eventually(t, func() bool { return hub.SessionConnectionCount(session.ID) == 1 }, time.Second, 10*time.Millisecond)

	send(t, conn, map[string]interface{}{"type": MessageTypeRequest, "payload": map[string]string{"q": "London"}})

	loading := readState(t, conn)
	assert.True(t, loading.IsLoading())
	assert.Equal(t, "London", loading.Query)

	success := readState(t, conn)
	require.True(t, success.IsSuccess())
	assert.Equal(t, "London", success.Data.Location.Name)
	assert.Equal(t, loading.Seq, success.Seq)
}

func TestHandler_FailureUsesUniformMessage(t *testing.T) {
	registry, _, srv := setupServer(t)
	session := registry.Open()

	conn := dial(t, srv, session.ID)
	readMessage(t, conn)

	send(t, conn, map[string]interface{}{"type": MessageTypeRequest, "payload": map[string]string{"q": "Nowhere"}})

	assert.True(t, readState(t, conn).IsLoading())
	failed := readState(t, conn)
	assert.True(t, failed.IsError())
	assert.Equal(t, types.ErrorMessageLoadFailed, failed.Message)
}

func TestHandler_ObserversShareTransitions(t *testing.T) {
	registry, _, srv := setupServer(t)
	session := registry.Open()

	first := dial(t, srv, session.ID)
	readMessage(t, first)
	second := dial(t, srv, session.ID)
	readMessage(t, second)

	assert.Eventually(t, func() bool { return session.Coordinator.SubscriberCount() == 2 }, time.Second, 10*time.Millisecond)

	send(t, first, map[string]interface{}{"type": MessageTypeRequest, "payload": map[string]string{"q": "London"}})

	for _, conn := range []*websocket.Conn{first, second} {
		assert.True(t, readState(t, conn).IsLoading())
		assert.True(t, readState(t, conn).IsSuccess())
	}
}

func TestHandler_PingAndUnknown(t *testing.T) {
	registry, _, srv := setupServer(t)
	session := registry.Open()

	conn := dial(t, srv, session.ID)
	readMessage(t, conn)

	send(t, conn, map[string]string{"type": MessageTypePing})
	assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)

	send(t, conn, map[string]string{"type": "bogus"})
	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeError, msg.Type)
	assert.Equal(t, "Unknown message type", msg.Error)
}

func TestHandler_SessionCloseEndsSocket(t *testing.T) {
	registry, hub, srv := setupServer(t)
	session := registry.Open()

	conn := dial(t, srv, session.ID)
	readMessage(t, conn)
	assert.Eventually(t, func() bool { return session.Coordinator.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, registry.Close(session.ID))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var msg wsMessage
	err := wsjson.Read(ctx, conn, &msg)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))

	assert.Eventually(t, func() bool { return hub.GetConnectionCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHandler_UnknownSession(t *testing.T) {
	_, _, srv := setupServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/missing/ws"
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "example.com", stripScheme("https://example.com"))
	assert.Equal(t, "example.com", stripScheme("example.com"))
}
