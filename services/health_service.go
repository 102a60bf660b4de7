package services

import (
	"context"
	"time"

	apperrors "github.com/NomadCrew/nomad-weather/errors"
	"github.com/NomadCrew/nomad-weather/logger"
	"github.com/NomadCrew/nomad-weather/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// WeatherAPIStatus reports whether the weather client can be used.
type WeatherAPIStatus interface {
	Configured() bool
}

type HealthService struct {
	redisClient    *redis.Client
	weatherAPI     WeatherAPIStatus
	version        string
	log            *zap.SugaredLogger
	startTime      time.Time
	activeSessions func() int
}

// NewHealthService creates a health checker. redisClient may be nil when Redis
// fan-out is disabled.
func NewHealthService(redisClient *redis.Client, weatherAPI WeatherAPIStatus, version string) *HealthService {
	return &HealthService{
		redisClient: redisClient,
		weatherAPI:  weatherAPI,
		version:     version,
		log:         logger.GetLogger().Named("health"),
		startTime:   time.Now(),
	}
}

// SetActiveSessionsGetter wires a session counter into health reports.
func (h *HealthService) SetActiveSessionsGetter(getter func() int) {
	h.activeSessions = getter
}

func (h *HealthService) CheckHealth(ctx context.Context) types.HealthCheck {
	components := make(map[string]types.HealthComponent)
	overallStatus := types.HealthStatusUp

	redisStatus := h.checkRedis(ctx)
	components[types.HealthComponentRedis] = redisStatus
	if redisStatus.Status == types.HealthStatusDown {
		overallStatus = types.HealthStatusDown
	}

	apiStatus := h.checkWeatherAPI()
	components[types.HealthComponentWeatherAPI] = apiStatus
	if apiStatus.Status == types.HealthStatusDegraded && overallStatus != types.HealthStatusDown {
		overallStatus = types.HealthStatusDegraded
	}

	active := 0
	if h.activeSessions != nil {
		active = h.activeSessions()
	}

	return types.HealthCheck{
		Status:         overallStatus,
		Components:     components,
		ActiveSessions: active,
		Version:        h.version,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Uptime:         time.Since(h.startTime).Round(time.Second).String(),
	}
}

func (h *HealthService) checkRedis(ctx context.Context) types.HealthComponent {
	if h.redisClient == nil {
		return types.HealthComponent{
			Status:  types.HealthStatusUp,
			Details: "disabled",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		appErr := apperrors.UpstreamUnavailable("Redis", err)
		h.log.Errorw("Redis health check failed", "error", appErr.Detail)
		return types.HealthComponent{
			Status:  types.HealthStatusDown,
			Details: appErr.Message,
		}
	}

	return types.HealthComponent{
		Status: types.HealthStatusUp,
	}
}

// checkWeatherAPI does not call the API; every call spends quota.
func (h *HealthService) checkWeatherAPI() types.HealthComponent {
	if h.weatherAPI == nil || !h.weatherAPI.Configured() {
		return types.HealthComponent{
			Status:  types.HealthStatusDegraded,
			Details: "API key not configured",
		}
	}
	return types.HealthComponent{
		Status: types.HealthStatusUp,
	}
}
