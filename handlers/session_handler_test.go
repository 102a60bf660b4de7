package handlers

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
	"github.com/NomadCrew/nomad-weather/internal/auth"
	"github.com/NomadCrew/nomad-weather/logger"
	"github.com/NomadCrew/nomad-weather/pkg/weatherapi"
	"github.com/NomadCrew/nomad-weather/services"
	"github.com/NomadCrew/nomad-weather/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-test-secret-0123456789abcdef"

func init() {
	logger.IsTest = true
	gin.SetMode(gin.TestMode)
}

// gatedClient answers London with a payload and anything else with 400,
// holding every answer until release is closed.
type gatedClient struct {
	release chan struct{}
}

func (g *gatedClient) GetCurrent(ctx context.Context, query string) (*weatherapi.Response, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if query != "London" {
		return &weatherapi.Response{StatusCode: http.StatusBadRequest}, nil
	}
	return &weatherapi.Response{
		StatusCode: http.StatusOK,
		Body: &types.WeatherPayload{
			Location: types.WeatherLocation{Name: "London", Country: "UK"},
			Current: types.CurrentWeather{
				TempC:     15,
				Condition: types.WeatherCondition{Text: "Cloudy", Icon: "//x/64x64/a.png"},
				Humidity:  70,
				PrecipMm:  0.1,
				WindKph:   10,
			},
		},
	}, nil
}

// errorRenderer stands in for the ErrorHandler middleware.
func errorRenderer(c *gin.Context) {
	c.Next()
	if len(c.Errors) == 0 {
		return
	}
	if appErr, ok := c.Errors.Last().Err.(*apperrors.AppError); ok {
		c.JSON(appErr.GetHTTPStatus(), gin.H{"type": appErr.Type})
		return
	}
	c.Status(http.StatusInternalServerError)
}

func setupSessionRouter(t *testing.T) (*gin.Engine, *services.SessionRegistry, *gatedClient) {
	t.Helper()

	client := &gatedClient{release: make(chan struct{})}
	registry := services.NewSessionRegistry(func(id string) *services.WeatherCoordinator {
		return services.NewWeatherCoordinator(client, services.CoordinatorOptions{SessionID: id})
	}, 0, 0)
	t.Cleanup(func() {
		select {
		case <-client.release:
		default:
			close(client.release)
		}
		registry.Shutdown()
	})

	h := NewSessionHandler(registry,
		&config.ServerConfig{SessionSecret: testSecret},
		&config.SessionConfig{TokenTTLMinutes: 5})
	h.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }

	r := gin.New()
	r.Use(errorRenderer)
	r.POST("/v1/sessions", h.OpenSessionHandler)
	r.DELETE("/v1/sessions/:id", h.CloseSessionHandler)
	r.POST("/v1/sessions/:id/requests", h.RequestWeatherHandler)
	r.GET("/v1/sessions/:id/state", h.GetStateHandler)
	r.GET("/v1/sessions/:id/view", h.GetViewHandler)
	return r, registry, client
}

func perform(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req, _ = http.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func openSession(t *testing.T, r *gin.Engine) types.SessionInfo {
	t.Helper()
	w := perform(r, http.MethodPost, "/v1/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var info types.SessionInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	return info
}

func TestOpenSessionHandler_IssuesToken(t *testing.T) {
	r, registry, _ := setupSessionRouter(t)

	info := openSession(t, r)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, 1, registry.Count())

	claims, err := auth.ValidateSessionToken(info.Token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, info.ID, claims.SessionID)
}

func TestRequestWeatherHandler_LoadingThenSuccess(t *testing.T) {
	r, _, client := setupSessionRouter(t)
	info := openSession(t, r)

	w := perform(r, http.MethodGet, "/v1/sessions/"+info.ID+"/state", "")
	assert.Equal(t, http.StatusNoContent, w.Code, "no state before the first request")

	w = perform(r, http.MethodPost, "/v1/sessions/"+info.ID+"/requests", `{"q":"London"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var loading types.WeatherState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loading))
	assert.True(t, loading.IsLoading())
	assert.Equal(t, "London", loading.Query)

	w = perform(r, http.MethodGet, "/v1/sessions/"+info.ID+"/view?theme=day", "")
	assert.Equal(t, "[day] Loading...\n", w.Body.String())

	close(client.release)

	var state types.WeatherState
	require.Eventually(t, func() bool {
		w := perform(r, http.MethodGet, "/v1/sessions/"+info.ID+"/state", "")
		if w.Code != http.StatusOK {
			return false
		}
		_ = json.Unmarshal(w.Body.Bytes(), &state)
		return state.IsSuccess()
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 15.0, state.Data.Current.TempC)
	assert.Equal(t, 70, state.Data.Current.Humidity)

	w = perform(r, http.MethodGet, "/v1/sessions/"+info.ID+"/view", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "[day] London, UK\n")
	assert.Contains(t, w.Body.String(), "Icon: https://x/128x128/a.png")
}

func TestRequestWeatherHandler_FailureMessage(t *testing.T) {
	r, _, client := setupSessionRouter(t)
	info := openSession(t, r)
	close(client.release)

	w := perform(r, http.MethodPost, "/v1/sessions/"+info.ID+"/requests", `{"q":"Zzzz"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		w := perform(r, http.MethodGet, "/v1/sessions/"+info.ID+"/view?theme=night", "")
		return w.Body.String() == "[night] Data Can't Be Loaded\n"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRequestWeatherHandler_BadBody(t *testing.T) {
	r, _, _ := setupSessionRouter(t)
	info := openSession(t, r)

	w := perform(r, http.MethodPost, "/v1/sessions/"+info.ID+"/requests", `{"q":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetViewHandler_BadTheme(t *testing.T) {
	r, _, _ := setupSessionRouter(t)
	info := openSession(t, r)

	w := perform(r, http.MethodGet, "/v1/sessions/"+info.ID+"/view?theme=dusk", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionHandler_UnknownSession(t *testing.T) {
	r, _, _ := setupSessionRouter(t)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodPost, "/v1/sessions/nope/requests", `{"q":"London"}`},
		{http.MethodGet, "/v1/sessions/nope/state", ""},
		{http.MethodGet, "/v1/sessions/nope/view", ""},
		{http.MethodDelete, "/v1/sessions/nope", ""},
	} {
		w := perform(r, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusNotFound, w.Code, tc.path)
	}
}

func TestCloseSessionHandler(t *testing.T) {
	r, registry, _ := setupSessionRouter(t)
	info := openSession(t, r)

	w := perform(r, http.MethodDelete, "/v1/sessions/"+info.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, registry.Count())

	w = perform(r, http.MethodGet, "/v1/sessions/"+info.ID+"/state", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) CheckHealth(ctx context.Context) types.HealthCheck {
	return m.Called(ctx).Get(0).(types.HealthCheck)
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name          string
		status        types.HealthStatus
		readinessCode int
	}{
		{"up", types.HealthStatusUp, http.StatusOK},
		{"degraded", types.HealthStatusDegraded, http.StatusOK},
		{"down", types.HealthStatusDown, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := new(MockHealthChecker)
			checker.On("CheckHealth", mock.Anything).Return(types.HealthCheck{Status: tt.status})

			h := NewHealthHandler(checker)
			r := gin.New()
			r.GET("/health", h.DetailedHealth)
			r.GET("/health/liveness", h.LivenessCheck)
			r.GET("/health/readiness", h.ReadinessCheck)

			assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/health/liveness", "").Code)
			assert.Equal(t, tt.readinessCode, perform(r, http.MethodGet, "/health/readiness", "").Code)

			w := perform(r, http.MethodGet, "/health", "")
			assert.Equal(t, http.StatusOK, w.Code)
			var body types.HealthCheck
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body.Status)
		})
	}
}
