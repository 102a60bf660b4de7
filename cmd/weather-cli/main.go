// Command weather-cli is a terminal weather screen. Each city given as an
// argument, or read one per line from stdin, is one press of the button;
// every state transition is printed as it happens.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NomadCrew/nomad-weather/config"
	"github.com/NomadCrew/nomad-weather/internal/events"
	"github.com/NomadCrew/nomad-weather/logger"
	"github.com/NomadCrew/nomad-weather/pkg/weatherapi"
	"github.com/NomadCrew/nomad-weather/services"
	"github.com/redis/go-redis/v9"
)

func main() {
	printConfig := flag.Bool("print-config", false, "Print the effective configuration as YAML and exit")
	watchSession := flag.String("watch", "", "Follow a server session's transitions over Redis instead of fetching locally")
	theme := flag.String("theme", "auto", "Screen theme: day, night or auto")
	policy := flag.String("policy", "", "Override COORDINATOR_POLICY (last_write_wins or cancel_and_replace)")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	if os.Getenv("LOG_LEVEL") == "" {
		// Keep stdout for the screen.
		_ = os.Setenv("LOG_LEVEL", "warn")
	}
	logger.InitLogger()
	log := logger.GetLogger()
	defer logger.Close()

	if *policy != "" {
		_ = os.Setenv("COORDINATOR_POLICY", *policy)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *printConfig {
		if err := cfg.WriteYAML(os.Stdout); err != nil {
			log.Fatalf("Failed to print config: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *watchSession != "" {
		if !cfg.Redis.Enabled {
			log.Fatal("-watch requires REDIS_ENABLED=true")
		}
		rdb := redis.NewClient(config.RedisOptions(&cfg.Redis))
		defer rdb.Close()
		if err := config.PingRedis(ctx, rdb, 3, time.Second); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		publisher := events.NewRedisPublisher(rdb)
		defer publisher.Shutdown(context.Background())

		if err := watch(ctx, publisher, *watchSession, os.Stdout, *theme, time.Now); err != nil {
			log.Fatalf("Watch failed: %v", err)
		}
		return
	}

	client := weatherapi.NewClient(cfg.WeatherAPI.BaseURL, cfg.WeatherAPI.APIKey,
		weatherapi.WithTimeout(cfg.WeatherAPI.Timeout()))
	coordinator := services.NewWeatherCoordinator(client, services.CoordinatorOptions{
		SessionID:        "cli",
		Policy:           services.Policy(cfg.Coordinator.Policy),
		SubscriberBuffer: cfg.Coordinator.SubscriberBuffer,
	})
	defer coordinator.Close()

	r, unsubscribe, err := newRunner(ctx, coordinator, os.Stdout, *theme)
	if err != nil {
		log.Fatalf("Invalid flags: %v", err)
	}
	defer unsubscribe()

	if err := r.lookupAll(ctx, flag.Args(), os.Stdin); err != nil && ctx.Err() == nil {
		log.Errorf("Lookup failed: %v", err)
		os.Exit(1)
	}
}
