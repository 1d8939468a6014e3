package auth

import (
	"sync"

	"github.com/google/uuid"
)

// SessionStatus tracks whether the profile behind the token is resolved
type SessionStatus string

const (
	StatusIdle    SessionStatus = "idle"
	StatusLoading SessionStatus = "loading"
	StatusReady   SessionStatus = "ready"
)

// SessionEventType identifies what happened to the session
type SessionEventType string

const (
	// EventSessionChanged fires on every Set and Clear
	EventSessionChanged SessionEventType = "session.changed"
	// EventSessionLoading fires when a profile fetch starts
	EventSessionLoading SessionEventType = "session.loading"
	// EventSessionReady fires when a load cycle completes
	EventSessionReady SessionEventType = "session.ready"
)

// SessionSnapshot is a copy of the session state at one point in time
type SessionSnapshot struct {
	Token  string
	Claims *TokenClaims
	User   *UserProfile
	Status SessionStatus
}

// Authenticated reports whether a user profile is resolved
func (s SessionSnapshot) Authenticated() bool {
	return s.User != nil
}

// SessionEvent is broadcast to every subscriber
type SessionEvent struct {
	Type     SessionEventType
	Snapshot SessionSnapshot
}

// SessionListener reacts to session events. Listeners run synchronously
// on the goroutine that mutated the store and must not block.
type SessionListener interface {
	OnSessionEvent(event SessionEvent)
}

// SessionListenerFunc adapts a function to the SessionListener interface.
type SessionListenerFunc func(event SessionEvent)

// OnSessionEvent implements SessionListener.
func (f SessionListenerFunc) OnSessionEvent(event SessionEvent) {
	if f == nil {
		return
	}
	f(event)
}

// Subscription is returned by Subscribe and removes the listener when
// no longer needed.
type Subscription struct {
	ID   uuid.UUID
	once sync.Once
	hub  *broadcaster
}

// Unsubscribe stops delivery. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.remove(s.ID)
	})
}

type subscriber struct {
	id       uuid.UUID
	listener SessionListener
}

type broadcaster struct {
	mu          sync.Mutex
	subscribers []subscriber
}

func (b *broadcaster) add(l SessionListener) *Subscription {
	id := uuid.New()
	b.mu.Lock()
	b.subscribers = append(b.subscribers, subscriber{id: id, listener: l})
	b.mu.Unlock()
	return &Subscription{ID: id, hub: b}
}

func (b *broadcaster) remove(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subscribers {
		if s.id == id {
			b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
			return
		}
	}
}

func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// publish delivers in subscription order. The subscriber list is copied
// so listeners may subscribe or unsubscribe while being notified.
func (b *broadcaster) publish(event SessionEvent) {
	b.mu.Lock()
	subs := make([]subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	for _, s := range subs {
		s.listener.OnSessionEvent(event)
	}
}
