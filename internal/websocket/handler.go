package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/NomadCrew/nomad-weather/config"
	"github.com/NomadCrew/nomad-weather/logger"
	"github.com/NomadCrew/nomad-weather/services"
	"github.com/NomadCrew/nomad-weather/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Message types exchanged over the socket.
const (
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
	MessageTypeRequest   = "request"
	MessageTypeState     = "state"
	MessageTypeConnected = "connected"
	MessageTypeError     = "error"
)

// SessionLookup resolves the session a socket attaches to.
type SessionLookup interface {
	Get(id string) (*services.Session, error)
}

// Handler handles WebSocket connections.
type Handler struct {
	log            *zap.SugaredLogger
	hub            *Hub
	sessions       SessionLookup
	limiter        services.RateLimiterInterface
	limit          int
	window         time.Duration
	pingInterval   time.Duration
	writeTimeout   time.Duration
	allowedOrigins []string
	isDevelopment  bool
}

func NewHandler(hub *Hub, sessions SessionLookup, serverCfg *config.ServerConfig) *Handler {
	return &Handler{
		log:            logger.GetLogger().Named("websocket_handler"),
		hub:            hub,
		sessions:       sessions,
		pingInterval:   hub.pingInterval,
		writeTimeout:   hub.writeTimeout,
		allowedOrigins: serverCfg.AllowedOrigins,
		isDevelopment:  serverCfg.Environment == config.EnvDevelopment,
	}
}

// WithRequestLimiter limits socket-issued requests per session.
func (h *Handler) WithRequestLimiter(limiter services.RateLimiterInterface, limit int, window time.Duration) *Handler {
	h.limiter = limiter
	h.limit = limit
	h.window = window
	return h
}

// getAcceptOptions allows every origin in development and the configured
// origins otherwise.
func (h *Handler) getAcceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	}

	if h.isDevelopment {
		opts.InsecureSkipVerify = true
	} else {
		for _, origin := range h.allowedOrigins {
			if origin == "*" {
				opts.InsecureSkipVerify = true
				break
			}
			opts.OriginPatterns = append(opts.OriginPatterns, stripScheme(origin))
		}
	}

	return opts
}

func stripScheme(origin string) string {
	if i := strings.Index(origin, "://"); i >= 0 {
		return origin[i+3:]
	}
	return origin
}

// ClientMessage represents a message from the client.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage represents a message to the client.
type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HandleWebSocket upgrades GET /v1/sessions/:id/ws and streams the session's
// transitions until the client leaves or the session closes.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	sessionID := c.Param("id")
	session, err := h.sessions.Get(sessionID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, h.getAcceptOptions())
	if err != nil {
		h.log.Errorw("Failed to accept WebSocket connection",
			"sessionID", sessionID,
			"error", err)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	connection := h.hub.Register(ctx, session, conn)
	defer h.hub.Unregister(connection.ID)

	if err := h.sendMessage(ctx, conn, ServerMessage{
		Type: MessageTypeConnected,
		Payload: map[string]interface{}{
			"sessionId":    session.ID,
			"connectionId": connection.ID,
			"policy":       session.Coordinator.Policy(),
		},
	}); err != nil {
		h.log.Errorw("Failed to send connected message",
			"sessionID", sessionID,
			"error", err)
		return
	}

	errCh := make(chan error, 3)

	go func() {
		errCh <- h.readLoop(ctx, conn, session)
	}()

	go func() {
		errCh <- h.writeLoop(ctx, conn, connection)
	}()

	go func() {
		errCh <- h.pingLoop(ctx, conn)
	}()

	err = <-errCh
	if err != nil && !errors.Is(err, context.Canceled) && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		h.log.Warnw("WebSocket connection error",
			"sessionID", sessionID,
			"error", err)
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, session *services.Session) error {
	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return err
		}
		h.handleClientMessage(ctx, conn, session, msg)
	}
}

// writeLoop forwards coordinator transitions. When the session closes the
// subscription ends and the socket is closed with StatusGoingAway.
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, connection *Connection) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st, ok := <-connection.States():
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "session closed")
				return nil
			}
			if err := h.sendMessage(ctx, conn, ServerMessage{Type: MessageTypeState, Payload: st}); err != nil {
				return err
			}
		}
	}
}

func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (h *Handler) handleClientMessage(ctx context.Context, conn *websocket.Conn, session *services.Session, msg ClientMessage) {
	session.Touch()

	switch msg.Type {
	case MessageTypePing:
		_ = h.sendMessage(ctx, conn, ServerMessage{Type: MessageTypePong})

	case MessageTypeRequest:
		var payload types.WeatherRequest
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			_ = h.sendMessage(ctx, conn, ServerMessage{
				Type:  MessageTypeError,
				Error: "Invalid request: payload must be {\"q\": \"<city>\"}",
			})
			return
		}

		if h.limiter != nil {
			res, err := h.limiter.CheckLimit(ctx, session.ID, h.limit, h.window)
			if err != nil {
				h.log.Warnw("Rate limit check failed, allowing request", "sessionID", session.ID, "error", err)
			} else if !res.Allowed {
				_ = h.sendMessage(ctx, conn, ServerMessage{
					Type:  MessageTypeError,
					Error: "Too many requests. Please try again later.",
				})
				return
			}
		}

		// The Loading transition reaches this socket through the subscription.
		if _, err := session.Coordinator.Request(payload.Query); err != nil {
			_ = h.sendMessage(ctx, conn, ServerMessage{
				Type:  MessageTypeError,
				Error: "Session is closed",
			})
		}

	default:
		h.log.Debugw("Unknown message type from client",
			"sessionID", session.ID,
			"type", msg.Type)
		_ = h.sendMessage(ctx, conn, ServerMessage{
			Type:  MessageTypeError,
			Error: "Unknown message type",
		})
	}
}

func (h *Handler) sendMessage(ctx context.Context, conn *websocket.Conn, msg ServerMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, msg)
}

// GetHub returns the hub for testing or advanced usage.
func (h *Handler) GetHub() *Hub {
	return h.hub
}
