package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NomadCrew/nomad-weather/config"
	"github.com/NomadCrew/nomad-weather/handlers"
	"github.com/NomadCrew/nomad-weather/internal/auth"
	"github.com/NomadCrew/nomad-weather/internal/events"
	"github.com/NomadCrew/nomad-weather/internal/websocket"
	"github.com/NomadCrew/nomad-weather/logger"
	"github.com/NomadCrew/nomad-weather/pkg/weatherapi"
	"github.com/NomadCrew/nomad-weather/router"
	"github.com/NomadCrew/nomad-weather/services"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		// Logger is not configured yet; the environment decides its format.
		fmt.Fprintln(os.Stderr, err)
	}

	logger.InitLogger()
	log := logger.GetLogger()
	defer logger.Close()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.Server.SessionSecret == "" {
		secret, err := auth.GenerateSecret(32)
		if err != nil {
			log.Fatalf("Failed to generate session secret: %v", err)
		}
		cfg.Server.SessionSecret = secret
		log.Warn("SESSION_SECRET is not set; using a generated secret, tokens will not survive a restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis is optional: without it transitions stay in-process and requests are not rate limited.
	var (
		redisClient    *redis.Client
		redisPublisher *events.RedisPublisher
		statePublisher services.StatePublisher
		rateLimiter    services.RateLimiterInterface
	)
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(config.RedisOptions(&cfg.Redis))
		if err := config.PingRedis(ctx, redisClient, 5, 2*time.Second); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		redisPublisher = events.NewRedisPublisher(redisClient, events.Config{
			PublishTimeout:   time.Duration(cfg.EventService.PublishTimeoutSeconds) * time.Second,
			SubscribeTimeout: time.Duration(cfg.EventService.SubscribeTimeoutSeconds) * time.Second,
			EventBufferSize:  cfg.EventService.EventBufferSize,
		})
		statePublisher = events.NewStateForwarder(redisPublisher)
		rateLimiter = services.NewRateLimitService(redisClient)
	}

	weatherClient := weatherapi.NewClient(cfg.WeatherAPI.BaseURL, cfg.WeatherAPI.APIKey,
		weatherapi.WithTimeout(cfg.WeatherAPI.Timeout()))

	registry := services.NewSessionRegistry(func(sessionID string) *services.WeatherCoordinator {
		return services.NewWeatherCoordinator(weatherClient, services.CoordinatorOptions{
			SessionID:        sessionID,
			Policy:           services.Policy(cfg.Coordinator.Policy),
			SubscriberBuffer: cfg.Coordinator.SubscriberBuffer,
			ForwardBuffer:    cfg.Coordinator.ForwardBuffer,
			Publisher:        statePublisher,
			PublishTimeout:   time.Duration(cfg.EventService.PublishTimeoutSeconds) * time.Second,
		})
	}, cfg.Session.IdleTTL(), cfg.Session.ReapInterval())
	registry.Start(ctx)

	healthService := services.NewHealthService(redisClient, weatherClient, cfg.Server.Version)
	healthService.SetActiveSessionsGetter(registry.Count)

	hub := websocket.NewHub()
	wsHandler := websocket.NewHandler(hub, registry, &cfg.Server)
	if rateLimiter != nil {
		wsHandler.WithRequestLimiter(rateLimiter, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Window())
	}

	r := router.SetupRouter(router.Dependencies{
		Config:         cfg,
		SessionHandler: handlers.NewSessionHandler(registry, &cfg.Server, &cfg.Session),
		HealthHandler:  handlers.NewHealthHandler(healthService),
		WSHandler:      wsHandler,
		RateLimiter:    rateLimiter,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infow("Starting server",
			"port", cfg.Server.Port,
			"environment", cfg.Server.Environment,
			"policy", cfg.Coordinator.Policy,
			"redis_enabled", cfg.Redis.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Sockets first: hijacked connections are not tracked by srv.Shutdown.
	if err := hub.Shutdown(shutdownCtx); err != nil {
		log.Warnw("WebSocket hub shutdown error", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("HTTP server shutdown error", "error", err)
	}
	registry.Shutdown()
	if redisPublisher != nil {
		if err := redisPublisher.Shutdown(shutdownCtx); err != nil {
			log.Warnw("Redis publisher shutdown error", "error", err)
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Warnw("Redis close error", "error", err)
		}
	}

	log.Info("Server stopped")
}
