package contractor

import (
	"errors"
	"strings"
	"time"

	"dispatch/internal/domain/geo"
)

// Contractor is the domain entity corresponding to the `contractors` table.
type Contractor struct {
	// Identity & audit
	ID        string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Vetting & fleet
	ApprovalStatus ApprovalStatus
	IsOperator     bool
	OperatorID     *string // nil unless the contractor belongs to an operator's fleet

	// Live state mirrored from the tracker
	Online         bool
	LastLat        *float64
	LastLng        *float64
	LastLocationAt *time.Time

	// KPIs
	TotalJobs     int
	TotalEarnings float64
}

var (
	ErrUserIDRequired   = errors.New("user id is required")
	ErrNotApproved      = errors.New("contractor is not approved")
	ErrNotInFleet       = errors.New("contractor is not in the operator's fleet")
	ErrStaleLocation    = errors.New("location fix is older than the stored one")
	ErrLocationRequired = errors.New("contractor has no known location")
)

// NewContractor creates a contractor pending approval.
func NewContractor(userID string) (*Contractor, error) {
	if userID = strings.TrimSpace(userID); userID == "" {
		return nil, ErrUserIDRequired
	}

	now := time.Now().UTC()
	return &Contractor{
		UserID:         userID,
		CreatedAt:      now,
		UpdatedAt:      now,
		ApprovalStatus: ApprovalPending,
	}, nil
}

// InFleetOf reports whether the contractor belongs to the given operator.
func (c *Contractor) InFleetOf(operatorID string) bool {
	return c.OperatorID != nil && *c.OperatorID == operatorID
}

// Approved reports whether the contractor may take jobs.
func (c *Contractor) Approved() bool {
	return c.ApprovalStatus.Active()
}

// UpdateLocation applies a location fix if it is newer than the stored one.
// Out-of-order and duplicate fixes return ErrStaleLocation and leave state unchanged.
func (c *Contractor) UpdateLocation(fix geo.StampedPoint) error {
	if err := fix.Validate(); err != nil {
		return err
	}
	if c.LastLocationAt != nil && !fix.RecordedAt.After(*c.LastLocationAt) {
		return ErrStaleLocation
	}

	c.LastLat = &fix.Lat
	c.LastLng = &fix.Lng
	at := fix.RecordedAt
	c.LastLocationAt = &at
	c.touch()
	return nil
}

// Location returns the last known location, or an error when none exists.
func (c *Contractor) Location() (geo.Point, error) {
	if c.LastLat == nil || c.LastLng == nil {
		return geo.Point{}, ErrLocationRequired
	}
	return geo.Point{Lat: *c.LastLat, Lng: *c.LastLng}, nil
}

// SetOnline flips the online flag.
func (c *Contractor) SetOnline(online bool) {
	c.Online = online
	c.touch()
}

// ApplyEarnings increments counters after a completed job.
func (c *Contractor) ApplyEarnings(jobsDelta int, earningsDelta float64) {
	if jobsDelta > 0 {
		c.TotalJobs += jobsDelta
	}
	if earningsDelta > 0 {
		c.TotalEarnings += earningsDelta
	}
	c.touch()
}

func (c *Contractor) touch() {
	c.UpdatedAt = time.Now().UTC()
}
