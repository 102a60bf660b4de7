package router

import (
	"github.com/NomadCrew/nomad-weather/config"
	apperrors "github.com/NomadCrew/nomad-weather/errors"
	"github.com/NomadCrew/nomad-weather/handlers"
	"github.com/NomadCrew/nomad-weather/internal/websocket"
	"github.com/NomadCrew/nomad-weather/middleware"
	"github.com/NomadCrew/nomad-weather/services"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Dependencies struct holds all dependencies required for setting up routes.
type Dependencies struct {
	Config         *config.Config
	SessionHandler *handlers.SessionHandler
	HealthHandler  *handlers.HealthHandler
	WSHandler      *websocket.Handler
	// RateLimiter is nil when Redis is disabled; requests are then unlimited.
	RateLimiter services.RateLimiterInterface
	Logger      *zap.SugaredLogger
}

// SetupRouter configures and returns the main Gin engine with all routes defined.
func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	if len(deps.Config.Server.TrustedProxies) > 0 {
		if err := r.SetTrustedProxies(deps.Config.Server.TrustedProxies); err != nil && deps.Logger != nil {
			deps.Logger.Warnw("Invalid trusted proxies, ignoring", "error", err)
		}
	}

	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(&deps.Config.Server))
	r.Use(middleware.SecurityHeadersMiddleware(&deps.Config.Server))

	r.GET("/health", deps.HealthHandler.DetailedHealth)
	r.GET("/health/liveness", deps.HealthHandler.LivenessCheck)
	r.GET("/health/readiness", deps.HealthHandler.ReadinessCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.NoRoute(func(c *gin.Context) {
		_ = c.Error(apperrors.NotFound("Route", c.Request.URL.Path))
	})

	v1 := r.Group("/v1")
	{
		v1.POST("/sessions", deps.SessionHandler.OpenSessionHandler)

		sessionRoutes := v1.Group("/sessions/:id")
		sessionRoutes.Use(middleware.SessionAuth(deps.Config.Server.SessionSecret))
		{
			sessionRoutes.DELETE("", deps.SessionHandler.CloseSessionHandler)
			sessionRoutes.GET("/state", deps.SessionHandler.GetStateHandler)
			sessionRoutes.GET("/view", deps.SessionHandler.GetViewHandler)
			sessionRoutes.GET("/ws", deps.WSHandler.HandleWebSocket)

			requestHandlers := []gin.HandlerFunc{}
			if deps.RateLimiter != nil {
				requestHandlers = append(requestHandlers, middleware.RequestRateLimiter(
					deps.RateLimiter,
					deps.Config.RateLimit.RequestsPerMinute,
					deps.Config.RateLimit.Window(),
				))
			}
			requestHandlers = append(requestHandlers, deps.SessionHandler.RequestWeatherHandler)
			sessionRoutes.POST("/requests", requestHandlers...)
		}
	}

	return r
}
