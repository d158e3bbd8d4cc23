package contractor

import (
	"sync"
	"time"

	"dispatch/internal/domain/geo"
)

// Session is the ephemeral live state of a connected contractor. It is owned
// by the tracker process and rebuilt from the contractor store on restart.
type Session struct {
	ContractorID string

	mu              sync.RWMutex
	fleetOperatorID *string
	online          bool
	lastLocation    *geo.StampedPoint
	connIDs         map[string]struct{}
	graceCancel     func() // pending disconnect grace timer, nil when none
}

// NewSession creates a session for a contractor's first connection.
func NewSession(contractorID string, fleetOperatorID *string) *Session {
	return &Session{
		ContractorID:    contractorID,
		fleetOperatorID: fleetOperatorID,
		connIDs:         make(map[string]struct{}),
	}
}

// FleetOperatorID returns the operator the contractor drives for, nil for
// open-market contractors.
func (s *Session) FleetOperatorID() *string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fleetOperatorID
}

// SetFleetOperator backfills the fleet link once the store has been
// consulted. A nil argument never clears a known link.
func (s *Session) SetFleetOperator(operatorID *string) {
	if operatorID == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fleetOperatorID = operatorID
}

// Online reports the current availability flag.
func (s *Session) Online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

// SetOnline flips the availability toggle.
func (s *Session) SetOnline(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = v
}

// ApplyLocation stores the fix only when its timestamp is newer than the
// current one. Returns false for stale or duplicate fixes.
func (s *Session) ApplyLocation(fix geo.StampedPoint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastLocation != nil && !fix.NewerThan(*s.lastLocation) {
		return false
	}
	cp := fix
	s.lastLocation = &cp
	return true
}

// LastLocation returns the newest applied fix, if any.
func (s *Session) LastLocation() (geo.StampedPoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastLocation == nil {
		return geo.StampedPoint{}, false
	}
	return *s.lastLocation, true
}

// AddConn registers a live connection id. Cancels a pending grace timer,
// so a reconnect inside the window is a network flap, not an offline event.
func (s *Session) AddConn(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connIDs[connID] = struct{}{}
	if s.graceCancel != nil {
		s.graceCancel()
		s.graceCancel = nil
	}
}

// RemoveConn drops a connection id and reports how many remain.
func (s *Session) RemoveConn(connID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connIDs, connID)
	return len(s.connIDs)
}

// ConnCount returns the number of live connections.
func (s *Session) ConnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connIDs)
}

// ConnIDs returns a copy of the live connection ids.
func (s *Session) ConnIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.connIDs))
	for id := range s.connIDs {
		out = append(out, id)
	}
	return out
}

// StartGrace arms the disconnect grace timer. onExpire fires after d unless a
// reconnect cancels it first. Any previously armed timer is replaced.
func (s *Session) StartGrace(d time.Duration, onExpire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graceCancel != nil {
		s.graceCancel()
	}

	t := time.AfterFunc(d, func() {
		s.mu.Lock()
		s.graceCancel = nil
		stillGone := len(s.connIDs) == 0
		s.mu.Unlock()
		if stillGone {
			onExpire()
		}
	})
	s.graceCancel = func() { t.Stop() }
}

// GracePending reports whether a disconnect grace timer is armed.
func (s *Session) GracePending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graceCancel != nil
}
