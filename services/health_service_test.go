package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/NomadCrew/nomad-weather/pkg/weatherapi"
	"github.com/NomadCrew/nomad-weather/types"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

func TestNewHealthService(t *testing.T) {
	version := "1.0.0"
	service := NewHealthService(nil, weatherapi.NewClient("", "key"), version)

	assert.NotNil(t, service)
	assert.Equal(t, version, service.version)
	assert.NotNil(t, service.log)
	assert.True(t, time.Since(service.startTime) < time.Second)
	assert.Nil(t, service.activeSessions)
}

func TestHealthService_CheckHealth(t *testing.T) {
	tests := []struct {
		name           string
		apiKey         string
		setupRedis     func(redismock.ClientMock)
		useRedis       bool
		expectedStatus types.HealthStatus
		expectedComps  map[string]types.HealthStatus
		redisDetails   string
	}{
		{
			name:     "All components healthy",
			apiKey:   "key",
			useRedis: true,
			setupRedis: func(m redismock.ClientMock) {
				m.ExpectPing().SetVal("PONG")
			},
			expectedStatus: types.HealthStatusUp,
			expectedComps: map[string]types.HealthStatus{
				types.HealthComponentRedis:      types.HealthStatusUp,
				types.HealthComponentWeatherAPI: types.HealthStatusUp,
			},
		},
		{
			name:     "Redis down",
			apiKey:   "key",
			useRedis: true,
			setupRedis: func(m redismock.ClientMock) {
				m.ExpectPing().SetErr(errors.New("redis connection failed"))
			},
			expectedStatus: types.HealthStatusDown,
			redisDetails:   "Redis is unavailable",
			expectedComps: map[string]types.HealthStatus{
				types.HealthComponentRedis:      types.HealthStatusDown,
				types.HealthComponentWeatherAPI: types.HealthStatusUp,
			},
		},
		{
			name:           "Redis disabled, API key missing",
			apiKey:         "",
			expectedStatus: types.HealthStatusDegraded,
			expectedComps: map[string]types.HealthStatus{
				types.HealthComponentRedis:      types.HealthStatusUp,
				types.HealthComponentWeatherAPI: types.HealthStatusDegraded,
			},
		},
		{
			name:     "Redis down outranks degraded API",
			apiKey:   "",
			useRedis: true,
			setupRedis: func(m redismock.ClientMock) {
				m.ExpectPing().SetErr(errors.New("redis error"))
			},
			expectedStatus: types.HealthStatusDown,
			expectedComps: map[string]types.HealthStatus{
				types.HealthComponentRedis:      types.HealthStatusDown,
				types.HealthComponentWeatherAPI: types.HealthStatusDegraded,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var service *HealthService
			client := weatherapi.NewClient("", tt.apiKey)

			if tt.useRedis {
				rdb, redisMock := redismock.NewClientMock()
				tt.setupRedis(redisMock)
				service = NewHealthService(rdb, client, "1.0.0")
				defer func() {
					assert.NoError(t, redisMock.ExpectationsWereMet())
				}()
			} else {
				service = NewHealthService(nil, client, "1.0.0")
			}
			service.SetActiveSessionsGetter(func() int { return 3 })

			health := service.CheckHealth(context.Background())

			assert.Equal(t, tt.expectedStatus, health.Status)
			assert.Equal(t, "1.0.0", health.Version)
			assert.Equal(t, 3, health.ActiveSessions)
			assert.NotEmpty(t, health.Timestamp)
			for comp, status := range tt.expectedComps {
				assert.Equal(t, status, health.Components[comp].Status, comp)
			}
			if tt.redisDetails != "" {
				assert.Equal(t, tt.redisDetails, health.Components[types.HealthComponentRedis].Details)
			}
		})
	}
}
