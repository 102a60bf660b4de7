package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/NomadCrew/nomad-weather/types"
)

// MockPublisher implements types.EventPublisher in memory. It backs
// single-process deployments with Redis disabled and tests.
type MockPublisher struct {
	mu            sync.RWMutex
	events        map[string][]types.Event // key: sessionID
	subscriptions map[string]*mockSubscription
	closed        bool
}

type mockSubscription struct {
	sessionID string
	filters   []types.EventType
	ch        chan types.Event
}

var _ types.EventPublisher = (*MockPublisher)(nil)

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		events:        make(map[string][]types.Event),
		subscriptions: make(map[string]*mockSubscription),
	}
}

func (m *MockPublisher) Publish(ctx context.Context, sessionID string, event types.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("publisher is closed")
	}

	m.events[sessionID] = append(m.events[sessionID], event)

	for _, sub := range m.subscriptions {
		if sub.sessionID != sessionID || !matchesFilters(event.Type, sub.filters) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Channel is full, skip
		}
	}

	return nil
}

func (m *MockPublisher) Subscribe(ctx context.Context, sessionID string, subscriberID string, filters ...types.EventType) (<-chan types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("publisher is closed")
	}

	subKey := sessionID + ":" + subscriberID
	if _, exists := m.subscriptions[subKey]; exists {
		return nil, fmt.Errorf("subscription already exists")
	}

	sub := &mockSubscription{sessionID: sessionID, filters: filters, ch: make(chan types.Event, 100)}
	m.subscriptions[subKey] = sub
	return sub.ch, nil
}

func (m *MockPublisher) Unsubscribe(ctx context.Context, sessionID string, subscriberID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	subKey := sessionID + ":" + subscriberID
	sub, exists := m.subscriptions[subKey]
	if !exists {
		return fmt.Errorf("subscription not found")
	}

	close(sub.ch)
	delete(m.subscriptions, subKey)
	return nil
}

// GetEvents returns all events published for a session.
func (m *MockPublisher) GetEvents(sessionID string) []types.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Event, len(m.events[sessionID]))
	copy(out, m.events[sessionID])
	return out
}

// Close rejects further calls and closes every subscription.
func (m *MockPublisher) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for key, sub := range m.subscriptions {
		close(sub.ch)
		delete(m.subscriptions, key)
	}
}
