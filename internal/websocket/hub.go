package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/NomadCrew/nomad-weather/logger"
	"github.com/NomadCrew/nomad-weather/services"
	"github.com/NomadCrew/nomad-weather/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Hub tracks live WebSocket observers. Each connection follows exactly one
// session's coordinator; a session may have many connections.
type Hub struct {
	log          *zap.SugaredLogger
	connections  map[string]*Connection // connectionID -> connection
	mu           sync.RWMutex
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	pingInterval time.Duration
	writeTimeout time.Duration
}

// Connection is one WebSocket observer of a session.
type Connection struct {
	ID          string
	SessionID   string
	Conn        *websocket.Conn
	states      <-chan types.WeatherState
	unsubscribe func()
	mu          sync.Mutex
	closed      bool
}

// HubConfig contains configuration options for the Hub.
type HubConfig struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// DefaultHubConfig returns sensible defaults for Hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

func NewHub(cfg ...HubConfig) *Hub {
	config := DefaultHubConfig()
	if len(cfg) > 0 {
		config = cfg[0]
	}

	return &Hub{
		log:          logger.GetLogger().Named("websocket_hub"),
		connections:  make(map[string]*Connection),
		shutdownCh:   make(chan struct{}),
		pingInterval: config.PingInterval,
		writeTimeout: config.WriteTimeout,
	}
}

// Register subscribes conn to the session's coordinator. The subscription
// lives until ctx ends or the connection is unregistered.
func (h *Hub) Register(ctx context.Context, session *services.Session, conn *websocket.Conn) *Connection {
	states, unsubscribe := session.Coordinator.Subscribe(ctx)

	connection := &Connection{
		ID:          uuid.New().String(),
		SessionID:   session.ID,
		Conn:        conn,
		states:      states,
		unsubscribe: unsubscribe,
	}

	h.mu.Lock()
	h.connections[connection.ID] = connection
	h.mu.Unlock()

	h.log.Infow("WebSocket connection registered",
		"connectionID", connection.ID,
		"sessionID", session.ID)

	return connection
}

// Unregister removes a connection and closes it.
func (h *Hub) Unregister(connectionID string) {
	h.mu.Lock()
	conn, ok := h.connections[connectionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.connections, connectionID)
	h.mu.Unlock()

	h.closeConnection(conn, websocket.StatusNormalClosure, "unregistered")
}

func (h *Hub) closeConnection(conn *Connection, code websocket.StatusCode, reason string) {
	conn.mu.Lock()
	if conn.closed {
		conn.mu.Unlock()
		return
	}
	conn.closed = true
	conn.mu.Unlock()

	conn.unsubscribe()
	_ = conn.Conn.Close(code, reason)

	h.log.Infow("WebSocket connection closed",
		"connectionID", conn.ID,
		"sessionID", conn.SessionID,
		"reason", reason)
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// SessionConnectionCount returns how many connections follow sessionID.
func (h *Hub) SessionConnectionCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.connections {
		if c.SessionID == sessionID {
			n++
		}
	}
	return n
}

// Shutdown closes every connection with StatusGoingAway.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(func() {
		close(h.shutdownCh)

		h.mu.Lock()
		connections := make([]*Connection, 0, len(h.connections))
		for _, conn := range h.connections {
			connections = append(connections, conn)
		}
		h.connections = make(map[string]*Connection)
		h.mu.Unlock()

		for _, conn := range connections {
			h.closeConnection(conn, websocket.StatusGoingAway, "server shutdown")
		}
	})

	h.log.Info("WebSocket hub shutdown complete")
	return nil
}

// States returns the transitions for this connection. The channel closes
// when the session closes.
func (c *Connection) States() <-chan types.WeatherState {
	return c.states
}

// IsClosed returns whether the connection is closed.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
