package types

import "time"

// SessionInfo describes one open weather screen.
type SessionInfo struct {
	ID         string    `json:"id"`
	Token      string    `json:"token,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	LastActive time.Time `json:"lastActive"`
}

// WeatherRequest is the body of a button press.
type WeatherRequest struct {
	Query string `json:"q"`
}
