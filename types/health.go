package types

type HealthStatus string

const (
	HealthStatusUp       HealthStatus = "UP"
	HealthStatusDown     HealthStatus = "DOWN"
	HealthStatusDegraded HealthStatus = "DEGRADED"
)

type HealthComponent struct {
	Status  HealthStatus `json:"status"`
	Details string       `json:"details,omitempty"`
}

// HealthCheck is the body of GET /health.
type HealthCheck struct {
	Status         HealthStatus               `json:"status"`
	Components     map[string]HealthComponent `json:"components"`
	ActiveSessions int                        `json:"activeSessions"`
	Version        string                     `json:"version"`
	Timestamp      string                     `json:"timestamp"`
	Uptime         string                     `json:"uptime"`
}

// Component names reported in HealthCheck.Components.
const (
	HealthComponentRedis      = "redis"
	HealthComponentWeatherAPI = "weather_api"
)
