package middleware

import (
	"strings"

	apperrors "github.com/NomadCrew/nomad-weather/errors"
	"github.com/NomadCrew/nomad-weather/internal/auth"
	"github.com/NomadCrew/nomad-weather/logger"
	"github.com/gin-gonic/gin"
)

// SessionAuth requires a session token for the session named by the :id path
// parameter. The token comes from the Authorization header, or from the
// "token" query parameter for WebSocket upgrades that cannot set headers.
func SessionAuth(secret string) gin.HandlerFunc {
	log := logger.GetLogger().Named("session_auth")

	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			_ = c.Error(apperrors.Unauthorized("missing_token", "Session token required"))
			c.Abort()
			return
		}

		claims, err := auth.ValidateSessionToken(token, secret)
		if err != nil {
			log.Debugw("Rejected session token", "token", logger.MaskJWT(token), "path", c.FullPath())
			_ = c.Error(err)
			c.Abort()
			return
		}

		if id := c.Param("id"); id != "" && id != claims.SessionID {
			log.Debugw("Session token used for another session", "token", logger.MaskJWT(token), "sessionID", claims.SessionID)
			_ = c.Error(apperrors.AuthenticationFailed("Token does not belong to this session"))
			c.Abort()
			return
		}

		c.Set(string(SessionIDKey), claims.SessionID)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("token")
}
