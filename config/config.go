// Package config handles loading and validation of application configuration
// from environment variables and an optional .env file.
package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/NomadCrew/nomad-weather/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Environment represents the application's running environment (development or production).
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"

	minSecretLength = 32

	PolicyLastWriteWins    = "last_write_wins"
	PolicyCancelAndReplace = "cancel_and_replace"

	DefaultWeatherAPIBaseURL = "https://api.weatherapi.com"
)

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Environment    Environment `mapstructure:"ENVIRONMENT" yaml:"environment"`
	Port           string      `mapstructure:"PORT" yaml:"port"`
	AllowedOrigins []string    `mapstructure:"ALLOWED_ORIGINS" yaml:"allowed_origins"`
	Version        string      `mapstructure:"VERSION" yaml:"version"`
	// SessionSecret signs the bearer tokens handed out when a session is opened.
	SessionSecret  string   `mapstructure:"SESSION_SECRET" yaml:"session_secret"`
	TrustedProxies []string `mapstructure:"TRUSTED_PROXIES" yaml:"trusted_proxies"`
}

// RedisConfig holds Redis connection details.
type RedisConfig struct {
	Enabled      bool   `mapstructure:"ENABLED" yaml:"enabled"`
	Address      string `mapstructure:"ADDRESS" yaml:"address"`
	Password     string `mapstructure:"PASSWORD" yaml:"password"`
	DB           int    `mapstructure:"DB" yaml:"db"`
	UseTLS       bool   `mapstructure:"USE_TLS" yaml:"use_tls"`
	PoolSize     int    `mapstructure:"POOL_SIZE" yaml:"pool_size"`
	MinIdleConns int    `mapstructure:"MIN_IDLE_CONNS" yaml:"min_idle_conns"`
}

// WeatherAPIConfig holds the third-party weather endpoint settings.
type WeatherAPIConfig struct {
	BaseURL        string `mapstructure:"BASE_URL" yaml:"base_url"`
	APIKey         string `mapstructure:"API_KEY" yaml:"api_key"`
	TimeoutSeconds int    `mapstructure:"TIMEOUT_SECONDS" yaml:"timeout_seconds"`
}

// Timeout returns the HTTP client timeout for weather calls.
func (c WeatherAPIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CoordinatorConfig controls how a session's fetch coordinator handles overlapping requests.
type CoordinatorConfig struct {
	// Policy is either last_write_wins or cancel_and_replace.
	Policy           string `mapstructure:"POLICY" yaml:"policy"`
	SubscriberBuffer int    `mapstructure:"SUBSCRIBER_BUFFER" yaml:"subscriber_buffer"`
	ForwardBuffer    int    `mapstructure:"FORWARD_BUFFER" yaml:"forward_buffer"`
}

// SessionConfig controls session lifetime.
type SessionConfig struct {
	IdleTTLMinutes      int `mapstructure:"IDLE_TTL_MINUTES" yaml:"idle_ttl_minutes"`
	ReapIntervalSeconds int `mapstructure:"REAP_INTERVAL_SECONDS" yaml:"reap_interval_seconds"`
	TokenTTLMinutes     int `mapstructure:"TOKEN_TTL_MINUTES" yaml:"token_ttl_minutes"`
}

func (c SessionConfig) IdleTTL() time.Duration {
	return time.Duration(c.IdleTTLMinutes) * time.Minute
}

func (c SessionConfig) ReapInterval() time.Duration {
	return time.Duration(c.ReapIntervalSeconds) * time.Second
}

func (c SessionConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

// EventServiceConfig holds configuration for the Redis-based state fan-out.
type EventServiceConfig struct {
	PublishTimeoutSeconds   int `mapstructure:"PUBLISH_TIMEOUT_SECONDS" yaml:"publish_timeout_seconds"`
	SubscribeTimeoutSeconds int `mapstructure:"SUBSCRIBE_TIMEOUT_SECONDS" yaml:"subscribe_timeout_seconds"`
	EventBufferSize         int `mapstructure:"EVENT_BUFFER_SIZE" yaml:"event_buffer_size"`
}

// RateLimitConfig limits how often weather requests can be issued per client.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"REQUESTS_PER_MINUTE" yaml:"requests_per_minute"`
	WindowSeconds     int `mapstructure:"WINDOW_SECONDS" yaml:"window_seconds"`
}

// Window returns the rate limit window.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// Config aggregates all application configuration sections.
type Config struct {
	Server       ServerConfig       `mapstructure:"SERVER" yaml:"server"`
	Redis        RedisConfig        `mapstructure:"REDIS" yaml:"redis"`
	WeatherAPI   WeatherAPIConfig   `mapstructure:"WEATHER_API" yaml:"weather_api"`
	Coordinator  CoordinatorConfig  `mapstructure:"COORDINATOR" yaml:"coordinator"`
	Session      SessionConfig      `mapstructure:"SESSION" yaml:"session"`
	EventService EventServiceConfig `mapstructure:"EVENT_SERVICE" yaml:"event_service"`
	RateLimit    RateLimitConfig    `mapstructure:"RATE_LIMIT" yaml:"rate_limit"`
}

// IsDevelopment returns true if the application is running in development environment.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// IsProduction returns true if the application is running in production environment.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// WriteYAML writes the effective configuration as YAML with secrets masked.
func (c *Config) WriteYAML(w io.Writer) error {
	masked := *c
	masked.WeatherAPI.APIKey = logger.MaskAPIKey(c.WeatherAPI.APIKey)
	masked.Server.SessionSecret = logger.MaskSensitiveString(c.Server.SessionSecret, 2, 2)
	masked.Redis.Password = logger.MaskSensitiveString(c.Redis.Password, 0, 0)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(masked); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// LoadDotEnv loads a .env file from the working directory if one exists.
// Variables already present in the environment are not overridden.
func LoadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// bindEnvVars binds multiple environment variables to config keys.
// Format: []{configKey, envVar}
func bindEnvVars(v *viper.Viper, bindings [][2]string) error {
	for _, b := range bindings {
		if err := v.BindEnv(b[0], b[1]); err != nil {
			return fmt.Errorf("failed to bind %s: %w", b[0], err)
		}
	}
	return nil
}

// LoadConfig loads configuration from environment variables using Viper,
// applies defaults, unmarshals into Config and validates it.
func LoadConfig() (*Config, error) {
	v := viper.New()
	log := logger.GetLogger()

	v.SetDefault("SERVER.ENVIRONMENT", EnvDevelopment)
	v.SetDefault("SERVER.PORT", "8080")
	v.SetDefault("SERVER.ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("SERVER.VERSION", "dev")
	v.SetDefault("SERVER.SESSION_SECRET", "")
	v.SetDefault("SERVER.TRUSTED_PROXIES", []string{})
	v.SetDefault("REDIS.ENABLED", false)
	v.SetDefault("REDIS.ADDRESS", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.USE_TLS", false)
	v.SetDefault("REDIS.POOL_SIZE", 3)
	v.SetDefault("REDIS.MIN_IDLE_CONNS", 1)
	v.SetDefault("WEATHER_API.BASE_URL", DefaultWeatherAPIBaseURL)
	v.SetDefault("WEATHER_API.API_KEY", "")
	v.SetDefault("WEATHER_API.TIMEOUT_SECONDS", 10)
	v.SetDefault("COORDINATOR.POLICY", PolicyLastWriteWins)
	v.SetDefault("COORDINATOR.SUBSCRIBER_BUFFER", 16)
	v.SetDefault("COORDINATOR.FORWARD_BUFFER", 64)
	v.SetDefault("SESSION.IDLE_TTL_MINUTES", 30)
	v.SetDefault("SESSION.REAP_INTERVAL_SECONDS", 60)
	v.SetDefault("SESSION.TOKEN_TTL_MINUTES", 24*60)
	v.SetDefault("EVENT_SERVICE.PUBLISH_TIMEOUT_SECONDS", 5)
	v.SetDefault("EVENT_SERVICE.SUBSCRIBE_TIMEOUT_SECONDS", 10)
	v.SetDefault("EVENT_SERVICE.EVENT_BUFFER_SIZE", 100)
	v.SetDefault("RATE_LIMIT.REQUESTS_PER_MINUTE", 30)
	v.SetDefault("RATE_LIMIT.WINDOW_SECONDS", 60)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envBindings := [][2]string{
		// Server config
		{"SERVER.ENVIRONMENT", "SERVER_ENVIRONMENT"},
		{"SERVER.PORT", "PORT"},
		{"SERVER.ALLOWED_ORIGINS", "ALLOWED_ORIGINS"},
		{"SERVER.VERSION", "VERSION"},
		{"SERVER.SESSION_SECRET", "SESSION_SECRET"},
		{"SERVER.TRUSTED_PROXIES", "TRUSTED_PROXIES"},
		// Redis config
		{"REDIS.ENABLED", "REDIS_ENABLED"},
		{"REDIS.ADDRESS", "REDIS_ADDRESS"},
		{"REDIS.PASSWORD", "REDIS_PASSWORD"},
		{"REDIS.DB", "REDIS_DB"},
		{"REDIS.USE_TLS", "REDIS_USE_TLS"},
		{"REDIS.POOL_SIZE", "REDIS_POOL_SIZE"},
		{"REDIS.MIN_IDLE_CONNS", "REDIS_MIN_IDLE_CONNS"},
		// Weather API
		{"WEATHER_API.BASE_URL", "WEATHER_API_BASE_URL"},
		{"WEATHER_API.API_KEY", "WEATHER_API_KEY"},
		{"WEATHER_API.TIMEOUT_SECONDS", "WEATHER_API_TIMEOUT_SECONDS"},
		// Coordinator
		{"COORDINATOR.POLICY", "COORDINATOR_POLICY"},
		{"COORDINATOR.SUBSCRIBER_BUFFER", "COORDINATOR_SUBSCRIBER_BUFFER"},
		{"COORDINATOR.FORWARD_BUFFER", "COORDINATOR_FORWARD_BUFFER"},
		// Sessions
		{"SESSION.IDLE_TTL_MINUTES", "SESSION_IDLE_TTL_MINUTES"},
		{"SESSION.REAP_INTERVAL_SECONDS", "SESSION_REAP_INTERVAL_SECONDS"},
		{"SESSION.TOKEN_TTL_MINUTES", "SESSION_TOKEN_TTL_MINUTES"},
		// Event service config
		{"EVENT_SERVICE.PUBLISH_TIMEOUT_SECONDS", "EVENT_SERVICE_PUBLISH_TIMEOUT_SECONDS"},
		{"EVENT_SERVICE.SUBSCRIBE_TIMEOUT_SECONDS", "EVENT_SERVICE_SUBSCRIBE_TIMEOUT_SECONDS"},
		{"EVENT_SERVICE.EVENT_BUFFER_SIZE", "EVENT_SERVICE_EVENT_BUFFER_SIZE"},
		// Rate limit config
		{"RATE_LIMIT.REQUESTS_PER_MINUTE", "RATE_LIMIT_REQUESTS_PER_MINUTE"},
		{"RATE_LIMIT.WINDOW_SECONDS", "RATE_LIMIT_WINDOW_SECONDS"},
	}

	if err := bindEnvVars(v, envBindings); err != nil {
		return nil, err
	}

	log.Infow("Configuration loaded",
		"environment", v.GetString("SERVER.ENVIRONMENT"),
		"server_port", v.GetString("SERVER.PORT"),
		"weather_api_base_url", v.GetString("WEATHER_API.BASE_URL"),
		"weather_api_key", logger.MaskAPIKey(v.GetString("WEATHER_API.API_KEY")),
		"coordinator_policy", v.GetString("COORDINATOR.POLICY"),
		"redis_enabled", v.GetBool("REDIS.ENABLED"),
	)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal failed: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	log.Info("Configuration validated successfully")
	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	log := logger.GetLogger()

	if cfg.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if cfg.Server.Environment != EnvDevelopment && cfg.Server.Environment != EnvProduction {
		return fmt.Errorf("invalid environment %q", cfg.Server.Environment)
	}
	if cfg.IsProduction() && len(cfg.Server.SessionSecret) < minSecretLength {
		return fmt.Errorf("session secret must be at least %d characters long", minSecretLength)
	}
	if !containsWildcard(cfg.Server.AllowedOrigins) {
		for _, origin := range cfg.Server.AllowedOrigins {
			if _, err := url.ParseRequestURI(origin); err != nil {
				return fmt.Errorf("invalid allowed origin '%s': %w", origin, err)
			}
		}
	}

	u, err := url.Parse(cfg.WeatherAPI.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid weather API base URL %q", cfg.WeatherAPI.BaseURL)
	}
	if cfg.WeatherAPI.TimeoutSeconds <= 0 {
		return fmt.Errorf("weather API timeout must be positive")
	}
	if cfg.WeatherAPI.APIKey == "" {
		if cfg.IsProduction() {
			return fmt.Errorf("weather API key is required in production")
		}
		log.Warn("WEATHER_API_KEY is not set; every weather request will fail upstream")
	}

	switch cfg.Coordinator.Policy {
	case PolicyLastWriteWins, PolicyCancelAndReplace:
	default:
		return fmt.Errorf("unknown coordinator policy %q", cfg.Coordinator.Policy)
	}
	if cfg.Coordinator.SubscriberBuffer <= 0 {
		return fmt.Errorf("coordinator subscriber buffer must be positive")
	}
	if cfg.Coordinator.ForwardBuffer <= 0 {
		return fmt.Errorf("coordinator forward buffer must be positive")
	}

	if cfg.Session.IdleTTLMinutes <= 0 || cfg.Session.ReapIntervalSeconds <= 0 || cfg.Session.TokenTTLMinutes <= 0 {
		return fmt.Errorf("session TTLs and reap interval must be positive")
	}

	if cfg.Redis.Enabled && cfg.Redis.Address == "" {
		return fmt.Errorf("redis address is required when redis is enabled")
	}

	if cfg.RateLimit.RequestsPerMinute <= 0 || cfg.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("rate limit values must be positive")
	}

	return nil
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
