package session

import (
	"sync"
	"time"

	"github.com/kozaktomas/face-recall/internal/constants"
)

// Event types published during a session.
const (
	EventSessionStarted = "session_started"
	EventIdentity       = "identity"
	EventTranscript     = "transcript"
	EventEnrolled       = "enrolled"
	EventSessionStopped = "session_stopped"
)

// Event is a session notification delivered to listeners.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Message   string    `json:"message,omitempty"`
	Data      any       `json:"data,omitempty"`
	Time      time.Time `json:"time"`
}

// EventBroadcaster provides listener management and event broadcasting.
// A nil *EventBroadcaster drops every event.
type EventBroadcaster struct {
	listeners []chan Event
	mu        sync.RWMutex
}

// NewEventBroadcaster creates a broadcaster without listeners.
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{}
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener and closes its channel.
func (b *EventBroadcaster) RemoveListener(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// ListenerCount returns the number of registered listeners.
func (b *EventBroadcaster) ListenerCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// SendEvent sends an event to all listeners without blocking.
func (b *EventBroadcaster) SendEvent(event Event) {
	if b == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}
