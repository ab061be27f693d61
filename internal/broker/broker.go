// Package broker provides the in-memory session channel registry. It maps a
// client-chosen session ID to the push connections that joined it and fans
// result events out to them.
package broker

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/moodtunes/backend/internal/metrics"
)

// DefaultSessionID is used when a client joins or publishes without a session ID.
const DefaultSessionID = "default"

// Subscriber is a push-capable connection. Deliver must not block: it either
// queues the frame or reports that the connection can no longer accept it.
// A Deliver error prunes the subscriber exactly as Deregister would, and the
// broker then calls Close outside its lock.
type Subscriber interface {
	Deliver(msg []byte) error
	Close() error
}

// Broker is a session-scoped registry of subscribers. Each subscriber belongs
// to at most one session at a time. A single mutex serialises membership
// changes and fan-out, so every subscriber of a session sees events in
// Publish order.
type Broker struct {
	mu       sync.Mutex
	sessions map[string]map[Subscriber]struct{}
	members  map[Subscriber]string
	metrics  *metrics.Metrics
}

// New creates a ready-to-use Broker. m may be nil.
func New(m *metrics.Metrics) *Broker {
	return &Broker{
		sessions: make(map[string]map[Subscriber]struct{}),
		members:  make(map[Subscriber]string),
		metrics:  m,
	}
}

// NormalizeSessionID maps an empty session ID to DefaultSessionID.
func NormalizeSessionID(sessionID string) string {
	if sessionID == "" {
		return DefaultSessionID
	}
	return sessionID
}

// Register joins sub to sessionID, leaving any session it joined before.
// It returns the normalized session ID.
func (b *Broker) Register(sub Subscriber, sessionID string) string {
	sessionID = NormalizeSessionID(sessionID)

	b.mu.Lock()
	defer b.mu.Unlock()

	if current, ok := b.members[sub]; ok {
		if current == sessionID {
			return sessionID
		}
		b.removeLocked(sub)
	}

	if b.sessions[sessionID] == nil {
		b.sessions[sessionID] = make(map[Subscriber]struct{})
	}
	b.sessions[sessionID][sub] = struct{}{}
	b.members[sub] = sessionID
	b.metrics.SetRegistry(len(b.members), len(b.sessions))
	return sessionID
}

// Deregister removes sub from its session. Calling it for a subscriber that
// never joined, or was already removed, is a no-op.
func (b *Broker) Deregister(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

// removeLocked drops sub and, if it was the last member, the session entry.
func (b *Broker) removeLocked(sub Subscriber) {
	sessionID, ok := b.members[sub]
	if !ok {
		return
	}
	delete(b.members, sub)
	if subs, ok := b.sessions[sessionID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.sessions, sessionID)
		}
	}
	b.metrics.SetRegistry(len(b.members), len(b.sessions))
}

// Publish serialises event as JSON and delivers it to every subscriber joined
// to sessionID at the moment of the call. It returns how many subscribers
// accepted the event. Publishing to a session nobody joined is not an error.
func (b *Broker) Publish(sessionID string, event any) (int, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to encode event: %w", err)
	}
	sessionID = NormalizeSessionID(sessionID)

	var failed []Subscriber
	delivered := 0

	b.mu.Lock()
	for sub := range b.sessions[sessionID] {
		if err := sub.Deliver(payload); err != nil {
			failed = append(failed, sub)
			continue
		}
		delivered++
	}
	for _, sub := range failed {
		b.removeLocked(sub)
	}
	b.mu.Unlock()

	for _, sub := range failed {
		sub.Close()
	}

	b.metrics.ObservePublish(delivered, len(failed))
	return delivered, nil
}

// Subscribers returns the number of subscribers joined to sessionID.
func (b *Broker) Subscribers(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions[NormalizeSessionID(sessionID)])
}

// Sessions returns the number of sessions with at least one subscriber.
func (b *Broker) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// SessionOf reports the session sub is joined to.
func (b *Broker) SessionOf(sub Subscriber) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sessionID, ok := b.members[sub]
	return sessionID, ok
}
