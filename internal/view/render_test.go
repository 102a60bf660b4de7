package view

import (
	"testing"
	"time"

	"github.com/NomadCrew/nomad-weather/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func londonPayload() *types.WeatherPayload {
	return &types.WeatherPayload{
		Location: types.WeatherLocation{Name: "London", Country: "UK"},
		Current: types.CurrentWeather{
			TempC:     15,
			Condition: types.WeatherCondition{Text: "Cloudy", Icon: "//x/64x64/a.png"},
			Humidity:  70,
			PrecipMm:  0.1,
			WindKph:   10,
		},
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name  string
		state types.WeatherState
		theme Theme
		want  string
	}{
		{
			name:  "loading",
			state: types.Loading[types.WeatherPayload](1, "London"),
			theme: ThemeDay,
			want:  "[day] Loading...\n",
		},
		{
			name:  "error",
			state: types.Failure[types.WeatherPayload](1, "Zzzz", types.ErrorMessageLoadFailed),
			theme: ThemeNight,
			want:  "[night] Data Can't Be Loaded\n",
		},
		{
			name:  "success day",
			state: types.Success(1, "London", londonPayload()),
			theme: ThemeDay,
			want: "[day] London, UK\n" +
				"15°C, Cloudy\n" +
				"Icon: https://x/128x128/a.png\n" +
				"Humidity: 70%\n" +
				"Precipitation: 0.1mm\n" +
				"Wind: 10km/h\n",
		},
		{
			name:  "success night keeps icon",
			state: types.Success(1, "London", londonPayload()),
			theme: ThemeNight,
			want: "[night] London, UK\n" +
				"15°C, Cloudy\n" +
				"Icon: https://x/128x128/a.png\n" +
				"Humidity: 70%\n" +
				"Precipitation: 0.1mm\n" +
				"Wind: 10km/h\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderString(tt.state, tt.theme)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_SuccessWithoutData(t *testing.T) {
	_, err := RenderString(types.WeatherState{Status: types.StatusSuccess}, ThemeDay)
	assert.Error(t, err)
}

func TestThemeAt(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2024, 1, 1, h, 30, 0, 0, time.UTC) }

	assert.Equal(t, ThemeNight, ThemeAt(at(5)))
	assert.Equal(t, ThemeDay, ThemeAt(at(6)))
	assert.Equal(t, ThemeDay, ThemeAt(at(17)))
	assert.Equal(t, ThemeNight, ThemeAt(at(18)))
	assert.Equal(t, ThemeNight, ThemeAt(at(0)))
}

func TestParseTheme(t *testing.T) {
	noon := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	for in, want := range map[string]Theme{"": ThemeDay, "auto": ThemeDay, "Night": ThemeNight, "day": ThemeDay} {
		got, err := ParseTheme(in, noon)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseTheme("dusk", noon)
	assert.Error(t, err)
}
