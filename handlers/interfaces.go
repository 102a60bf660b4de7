package handlers

import (
	"github.com/NomadCrew/nomad-weather/services"
)

// SessionStore is the part of the session registry the handlers need.
type SessionStore interface {
	Open() *services.Session
	Get(id string) (*services.Session, error)
	Close(id string) error
}
