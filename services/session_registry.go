package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/NomadCrew/nomad-weather/errors"
	"github.com/NomadCrew/nomad-weather/logger"
	"github.com/NomadCrew/nomad-weather/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CoordinatorFactory builds the coordinator backing a new session.
type CoordinatorFactory func(sessionID string) *WeatherCoordinator

// Session is one open weather screen.
type Session struct {
	ID          string
	Coordinator *WeatherCoordinator
	CreatedAt   time.Time
	lastActive  atomic.Int64
}

// Touch marks the session as used now.
func (s *Session) Touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) Info() types.SessionInfo {
	return types.SessionInfo{ID: s.ID, CreatedAt: s.CreatedAt, LastActive: s.LastActive()}
}

// SessionRegistry tracks open sessions. Opening a session builds a coordinator,
// closing it destroys the coordinator. Idle sessions without observers are reaped.
type SessionRegistry struct {
	factory      CoordinatorFactory
	idleTTL      time.Duration
	reapInterval time.Duration
	sessions     sync.Map // map[sessionID]*Session
	count        atomic.Int64
	log          *zap.SugaredLogger
	metrics      *coordinatorMetrics

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewSessionRegistry(factory CoordinatorFactory, idleTTL, reapInterval time.Duration) *SessionRegistry {
	return &SessionRegistry{
		factory:      factory,
		idleTTL:      idleTTL,
		reapInterval: reapInterval,
		log:          logger.GetLogger().Named("sessions"),
		metrics:      newCoordinatorMetrics(),
		stopCh:       make(chan struct{}),
	}
}

// Start runs the idle reaper until ctx ends or Shutdown is called.
func (r *SessionRegistry) Start(ctx context.Context) {
	if r.idleTTL <= 0 || r.reapInterval <= 0 {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.reapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				if n := r.Reap(time.Now()); n > 0 {
					r.log.Infow("Reaped idle sessions", "count", n)
				}
			}
		}
	}()
}

// Open creates a session with a fresh coordinator.
func (r *SessionRegistry) Open() *Session {
	id := uuid.New().String()
	s := &Session{
		ID:          id,
		Coordinator: r.factory(id),
		CreatedAt:   time.Now(),
	}
	s.Touch()
	r.sessions.Store(id, s)
	r.count.Add(1)
	r.metrics.activeSessions.Inc()
	r.log.Infow("Session opened", "session_id", id)
	return s
}

// Get returns the session and marks it active.
func (r *SessionRegistry) Get(id string) (*Session, error) {
	v, ok := r.sessions.Load(id)
	if !ok {
		return nil, apperrors.SessionNotFound(id)
	}
	s := v.(*Session)
	s.Touch()
	return s, nil
}

// Close removes the session and destroys its coordinator.
func (r *SessionRegistry) Close(id string) error {
	v, ok := r.sessions.LoadAndDelete(id)
	if !ok {
		return apperrors.SessionNotFound(id)
	}
	r.closeSession(v.(*Session))
	return nil
}

func (r *SessionRegistry) closeSession(s *Session) {
	s.Coordinator.Close()
	r.count.Add(-1)
	r.metrics.activeSessions.Dec()
	r.log.Infow("Session closed", "session_id", s.ID)
}

// Count returns the number of open sessions.
func (r *SessionRegistry) Count() int {
	return int(r.count.Load())
}

// Reap closes sessions idle for longer than the TTL as of now. Sessions with
// live observers are kept.
func (r *SessionRegistry) Reap(now time.Time) int {
	reaped := 0
	r.sessions.Range(func(key, value any) bool {
		s := value.(*Session)
		if s.Coordinator.SubscriberCount() > 0 {
			return true
		}
		if now.Sub(s.LastActive()) < r.idleTTL {
			return true
		}
		if _, loaded := r.sessions.LoadAndDelete(key); loaded {
			r.closeSession(s)
			reaped++
		}
		return true
	})
	return reaped
}

// Shutdown stops the reaper and closes every session.
func (r *SessionRegistry) Shutdown() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()

	r.sessions.Range(func(key, value any) bool {
		if _, loaded := r.sessions.LoadAndDelete(key); loaded {
			r.closeSession(value.(*Session))
		}
		return true
	})
	r.log.Info("Session registry shut down")
}
