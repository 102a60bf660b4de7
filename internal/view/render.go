// Package view renders a weather state as the text of the weather screen.
package view

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/NomadCrew/nomad-weather/types"
	"github.com/shopspring/decimal"
)

type Theme string

const (
	ThemeDay   Theme = "day"
	ThemeNight Theme = "night"

	iconSize = "128x128"
)

// ThemeAt returns ThemeNight outside 06:00-17:59 in t's location.
func ThemeAt(t time.Time) Theme {
	if h := t.Hour(); h < 6 || h > 17 {
		return ThemeNight
	}
	return ThemeDay
}

// ParseTheme accepts "day", "night", or "" / "auto" which resolves against now.
func ParseTheme(s string, now time.Time) (Theme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ThemeAt(now), nil
	case string(ThemeDay):
		return ThemeDay, nil
	case string(ThemeNight):
		return ThemeNight, nil
	default:
		return "", fmt.Errorf("unknown theme %q", s)
	}
}

const screenTemplate = `{{- if eq .State.Status "loading" -}}
[{{ .Theme }}] Loading...
{{ else if eq .State.Status "error" -}}
[{{ .Theme }}] {{ .State.Message }}
{{ else -}}
{{ with .State.Data -}}
[{{ $.Theme }}] {{ .Location.Name }}, {{ .Location.Country }}
{{ num .Current.TempC }}°C, {{ .Current.Condition.Text }}
Icon: {{ .Current.Condition.IconURL $.IconSize }}
Humidity: {{ .Current.Humidity }}%
Precipitation: {{ num .Current.PrecipMm }}mm
Wind: {{ num .Current.WindKph }}km/h
{{ end -}}
{{ end -}}`

var screen = template.Must(template.New("screen").Funcs(template.FuncMap{
	"num": formatNumber,
}).Parse(screenTemplate))

type screenData struct {
	State    types.WeatherState
	Theme    Theme
	IconSize string
}

// Render writes one of three branches: a progress line for Loading, the
// message for Error, the weather fields for Success. The theme only changes
// the header tag.
func Render(w io.Writer, state types.WeatherState, theme Theme) error {
	if state.IsSuccess() && state.Data == nil {
		return fmt.Errorf("success state without data")
	}
	data := screenData{
		State:    state,
		Theme:    theme,
		IconSize: iconSize,
	}
	if err := screen.Execute(w, data); err != nil {
		return fmt.Errorf("render screen: %w", err)
	}
	return nil
}

// RenderString is Render into a string.
func RenderString(state types.WeatherState, theme Theme) (string, error) {
	var sb strings.Builder
	if err := Render(&sb, state, theme); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// formatNumber prints API floats without binary noise, so 0.1 stays "0.1" and 15.0 is "15".
func formatNumber(v float64) string {
	return decimal.NewFromFloat(v).String()
}
