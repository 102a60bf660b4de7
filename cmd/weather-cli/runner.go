package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/NomadCrew/nomad-weather/internal/events"
	"github.com/NomadCrew/nomad-weather/internal/view"
	"github.com/NomadCrew/nomad-weather/services"
	"github.com/NomadCrew/nomad-weather/types"
	"github.com/google/uuid"
)

// runner drives one local weather screen and prints every transition.
type runner struct {
	coordinator *services.WeatherCoordinator
	states      <-chan types.WeatherState
	out         io.Writer
	theme       string
	now         func() time.Time
}

func newRunner(ctx context.Context, coordinator *services.WeatherCoordinator, out io.Writer, theme string) (*runner, func(), error) {
	if _, err := view.ParseTheme(theme, time.Now()); err != nil {
		return nil, nil, err
	}
	states, unsubscribe := coordinator.Subscribe(ctx)
	return &runner{
		coordinator: coordinator,
		states:      states,
		out:         out,
		theme:       theme,
		now:         time.Now,
	}, unsubscribe, nil
}

// lookup presses the button for city and prints the transitions it caused.
func (r *runner) lookup(city string) error {
	if _, err := r.coordinator.Request(city); err != nil {
		return err
	}
	r.coordinator.Wait()
	return r.drain()
}

func (r *runner) drain() error {
	for {
		select {
		case st, ok := <-r.states:
			if !ok {
				return nil
			}
			if err := r.render(st); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (r *runner) render(st types.WeatherState) error {
	theme, err := view.ParseTheme(r.theme, r.now())
	if err != nil {
		return err
	}
	return view.Render(r.out, st, theme)
}

// lookupAll runs cities from args, or one per non-blank stdin line when args is empty.
func (r *runner) lookupAll(ctx context.Context, args []string, in io.Reader) error {
	if len(args) > 0 {
		for _, city := range args {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.lookup(city); err != nil {
				return err
			}
		}
		return nil
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		city := strings.TrimSpace(scanner.Text())
		if city == "" {
			continue
		}
		if err := r.lookup(city); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// watch prints the transitions another process publishes for sessionID
// until ctx ends or the subscription closes.
func watch(ctx context.Context, publisher types.EventPublisher, sessionID string, out io.Writer, theme string, now func() time.Time) error {
	if _, err := view.ParseTheme(theme, now()); err != nil {
		return err
	}

	subscriberID := "cli-" + uuid.New().String()
	eventsCh, err := publisher.Subscribe(ctx, sessionID, subscriberID,
		types.EventTypeWeatherLoading, types.EventTypeWeatherSuccess, types.EventTypeWeatherError)
	if err != nil {
		return fmt.Errorf("subscribe to session %s: %w", sessionID, err)
	}
	defer func() {
		_ = publisher.Unsubscribe(context.Background(), sessionID, subscriberID)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-eventsCh:
			if !ok {
				return nil
			}
			st, err := events.DecodeState(ev)
			if err != nil {
				fmt.Fprintf(out, "skipping undecodable event %s: %v\n", ev.ID, err)
				continue
			}
			th, _ := view.ParseTheme(theme, now())
			if err := view.Render(out, st, th); err != nil {
				return err
			}
		}
	}
}
