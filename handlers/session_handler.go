package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/NomadCrew/nomad-weather/config"
	apperrors "github.com/NomadCrew/nomad-weather/errors"
	"github.com/NomadCrew/nomad-weather/internal/auth"
	"github.com/NomadCrew/nomad-weather/internal/view"
	"github.com/NomadCrew/nomad-weather/logger"
	"github.com/NomadCrew/nomad-weather/services"
	"github.com/NomadCrew/nomad-weather/types"
	"github.com/gin-gonic/gin"
)

// SessionHandler exposes the weather screen over HTTP. A session is one
// screen; a request is one press of its button.
type SessionHandler struct {
	sessions      SessionStore
	sessionSecret string
	tokenTTL      time.Duration
	now           func() time.Time
}

func NewSessionHandler(sessions SessionStore, serverCfg *config.ServerConfig, sessionCfg *config.SessionConfig) *SessionHandler {
	return &SessionHandler{
		sessions:      sessions,
		sessionSecret: serverCfg.SessionSecret,
		tokenTTL:      sessionCfg.TokenTTL(),
		now:           time.Now,
	}
}

// OpenSessionHandler handles POST /v1/sessions.
func (h *SessionHandler) OpenSessionHandler(c *gin.Context) {
	log := logger.GetLogger()

	session := h.sessions.Open()
	token, err := auth.GenerateSessionToken(session.ID, h.sessionSecret, h.tokenTTL)
	if err != nil {
		log.Errorw("Failed to issue session token", "sessionID", session.ID, "error", err)
		_ = h.sessions.Close(session.ID)
		_ = c.Error(apperrors.InternalServerError("Failed to open session"))
		return
	}

	info := session.Info()
	info.Token = token
	c.JSON(http.StatusCreated, info)
}

// CloseSessionHandler handles DELETE /v1/sessions/:id.
func (h *SessionHandler) CloseSessionHandler(c *gin.Context) {
	if err := h.sessions.Close(c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RequestWeatherHandler handles POST /v1/sessions/:id/requests. It answers
// with the Loading state; the outcome arrives through /state, /view or /ws.
func (h *SessionHandler) RequestWeatherHandler(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}

	var req types.WeatherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.ValidationFailed("Invalid request body", err.Error()))
		return
	}

	loading, err := session.Coordinator.Request(req.Query)
	if err != nil {
		if errors.Is(err, services.ErrCoordinatorClosed) {
			_ = c.Error(apperrors.SessionClosed(session.ID))
			return
		}
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, loading)
}

// GetStateHandler handles GET /v1/sessions/:id/state.
func (h *SessionHandler) GetStateHandler(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}

	state, has := session.Coordinator.State()
	if !has {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, state)
}

// GetViewHandler handles GET /v1/sessions/:id/view?theme=day|night|auto.
func (h *SessionHandler) GetViewHandler(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}

	theme, err := view.ParseTheme(c.Query("theme"), h.now())
	if err != nil {
		_ = c.Error(apperrors.ValidationFailed("Invalid theme", err.Error()))
		return
	}

	state, has := session.Coordinator.State()
	if !has {
		c.Status(http.StatusNoContent)
		return
	}

	text, err := view.RenderString(state, theme)
	if err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.ServerError, "Failed to render view"))
		return
	}
	c.String(http.StatusOK, text)
}

func (h *SessionHandler) lookup(c *gin.Context) (*services.Session, bool) {
	session, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return nil, false
	}
	session.Touch()
	return session, true
}
