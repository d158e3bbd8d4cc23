package realtime

import (
	"sync"
	"time"

	"dispatch/internal/domain/contractor"
)

// SessionRegistry holds the ephemeral sessions of connected contractors.
// Sessions outlive individual connections: a contractor reconnecting inside
// the disconnect grace window keeps the same session and never reads as offline.
type SessionRegistry struct {
	grace time.Duration

	mu       sync.RWMutex
	sessions map[string]*contractor.Session
}

// NewSessionRegistry constructs a registry with the given disconnect grace window.
func NewSessionRegistry(grace time.Duration) *SessionRegistry {
	return &SessionRegistry{
		grace:    grace,
		sessions: make(map[string]*contractor.Session),
	}
}

// GetOrCreate returns the contractor's session, creating it on first contact.
func (r *SessionRegistry) GetOrCreate(contractorID string, fleetOperatorID *string) *contractor.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[contractorID]; ok {
		s.SetFleetOperator(fleetOperatorID)
		return s
	}
	s := contractor.NewSession(contractorID, fleetOperatorID)
	r.sessions[contractorID] = s
	return s
}

// Get returns the session if one exists.
func (r *SessionRegistry) Get(contractorID string) (*contractor.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[contractorID]
	return s, ok
}

// Snapshot returns the current sessions. The slice is a copy; the sessions
// themselves are shared and guard their own state.
func (r *SessionRegistry) Snapshot() []*contractor.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*contractor.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// OnDisconnect drops the connection from the session and, when it was the
// last one, arms the grace timer. onOffline fires only if the contractor has
// not reconnected by the time the window closes.
func (r *SessionRegistry) OnDisconnect(contractorID, connID string, onOffline func()) {
	s, ok := r.Get(contractorID)
	if !ok {
		return
	}
	if remaining := s.RemoveConn(connID); remaining > 0 {
		return
	}
	s.StartGrace(r.grace, onOffline)
}

// Remove deletes a session, e.g. after the contractor went offline for good.
func (r *SessionRegistry) Remove(contractorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, contractorID)
}

// OnlineCount returns how many tracked sessions are currently online.
func (r *SessionRegistry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		if s.Online() {
			n++
		}
	}
	return n
}
