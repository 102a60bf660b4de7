package types

import "strings"

// WeatherPayload mirrors the weatherapi.com current.json document. Fields are
// display values passed through unmodified.
type WeatherPayload struct {
	Location WeatherLocation `json:"location"`
	Current  CurrentWeather  `json:"current"`
}

type WeatherLocation struct {
	Name      string  `json:"name"`
	Region    string  `json:"region,omitempty"`
	Country   string  `json:"country"`
	Lat       float64 `json:"lat,omitempty"`
	Lon       float64 `json:"lon,omitempty"`
	TzID      string  `json:"tz_id,omitempty"`
	Localtime string  `json:"localtime,omitempty"`
}

type CurrentWeather struct {
	LastUpdated string           `json:"last_updated,omitempty"`
	TempC       float64          `json:"temp_c"`
	TempF       float64          `json:"temp_f,omitempty"`
	IsDay       int              `json:"is_day,omitempty"`
	Condition   WeatherCondition `json:"condition"`
	WindKph     float64          `json:"wind_kph"`
	WindMph     float64          `json:"wind_mph,omitempty"`
	WindDir     string           `json:"wind_dir,omitempty"`
	PressureMb  float64          `json:"pressure_mb,omitempty"`
	PrecipMm    float64          `json:"precip_mm"`
	Humidity    int              `json:"humidity"`
	Cloud       int              `json:"cloud,omitempty"`
	FeelslikeC  float64          `json:"feelslike_c,omitempty"`
	UV          float64          `json:"uv,omitempty"`
}

type WeatherCondition struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
	Code int    `json:"code,omitempty"`
}

// IconURL turns the protocol-relative icon reference into an absolute URL at
// the given size, e.g. "128x128". An empty size keeps the API's 64x64 icon.
func (c WeatherCondition) IconURL(size string) string {
	if c.Icon == "" {
		return ""
	}
	icon := c.Icon
	if size != "" {
		icon = strings.ReplaceAll(icon, "64x64", size)
	}
	if strings.HasPrefix(icon, "//") {
		return "https:" + icon
	}
	return icon
}

// WeatherAPIError is the error document weatherapi.com returns with non-2xx responses.
type WeatherAPIError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
