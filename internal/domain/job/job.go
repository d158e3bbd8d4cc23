package job

import (
	"errors"
	"strings"
	"time"
)

// Item is one line of the customer's item summary.
type Item struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Job is the domain entity corresponding to the `jobs` table.
type Job struct {
	// Identity & audit
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Parties
	CustomerID string
	DriverID   *string // nil until assigned or accepted
	OperatorID *string // set when the job belongs to an operator's fleet

	// Geometry
	Address string
	Lat     float64
	Lng     float64

	// Commercial
	Items           []Item
	VolumeEstimate  float64
	BasePrice       float64
	ItemTotal       float64
	VolumePrice     float64
	ServiceFee      float64
	SurgeMultiplier float64
	TotalPrice      float64

	// Core state
	Status Status

	// Lifecycle timestamps, each set at most once
	DelegatedAt *time.Time
	AssignedAt  *time.Time
	AcceptedAt  *time.Time
	EnRouteAt   *time.Time
	ArrivedAt   *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time

	CancellationReason *string
}

var (
	ErrCustomerRequired   = errors.New("customer id is required")
	ErrAddressRequired    = errors.New("pickup address is required")
	ErrCoordinatesInvalid = errors.New("pickup coordinates are out of range")
	ErrInvalidTransition  = errors.New("invalid job status transition")
	ErrAlreadyAssigned    = errors.New("driver already assigned")
	ErrNoDriverAssigned   = errors.New("no driver assigned")
	ErrDriverRequired     = errors.New("driver id is required")
	ErrOperatorRequired   = errors.New("operator id is required")
)

// NewJob creates a job in PENDING state, or DELEGATING when operatorID is
// non-empty (the pickup address falls inside that operator's territory).
func NewJob(customerID, address string, lat, lng float64, items []Item, operatorID string) (*Job, error) {
	if customerID = strings.TrimSpace(customerID); customerID == "" {
		return nil, ErrCustomerRequired
	}
	if address = strings.TrimSpace(address); address == "" {
		return nil, ErrAddressRequired
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, ErrCoordinatesInvalid
	}

	now := time.Now().UTC()
	jb := &Job{
		CreatedAt:       now,
		UpdatedAt:       now,
		CustomerID:      customerID,
		Address:         address,
		Lat:             lat,
		Lng:             lng,
		Items:           items,
		SurgeMultiplier: 1.0,
		Status:          StatusPending,
	}

	if operatorID = strings.TrimSpace(operatorID); operatorID != "" {
		jb.OperatorID = &operatorID
		jb.Status = StatusDelegating
		jb.DelegatedAt = &now
	}

	return jb, nil
}

// AssignDriver sets the driver and moves DELEGATING -> ASSIGNED.
func (jb *Job) AssignDriver(driverID string) error {
	if driverID == "" {
		return ErrDriverRequired
	}
	if jb.DriverID != nil && *jb.DriverID != "" {
		return ErrAlreadyAssigned
	}
	if jb.Status != StatusDelegating {
		return ErrInvalidTransition
	}

	jb.DriverID = &driverID
	now := time.Now().UTC()
	jb.AssignedAt = &now
	jb.setStatus(StatusAssigned)
	return nil
}

// Accept moves PENDING -> ACCEPTED (open market) or ASSIGNED -> ACCEPTED
// (delegation confirm by the already-assigned driver).
func (jb *Job) Accept(driverID string) error {
	if driverID == "" {
		return ErrDriverRequired
	}

	switch jb.Status {
	case StatusPending:
		if jb.DriverID != nil && *jb.DriverID != "" {
			return ErrAlreadyAssigned
		}
		jb.DriverID = &driverID
	case StatusAssigned:
		if jb.DriverID == nil || *jb.DriverID != driverID {
			return ErrAlreadyAssigned
		}
	default:
		return ErrInvalidTransition
	}

	now := time.Now().UTC()
	jb.AcceptedAt = &now
	jb.setStatus(StatusAccepted)
	return nil
}

// RevertToDelegating clears the driver after a confirm timeout, ASSIGNED -> DELEGATING.
func (jb *Job) RevertToDelegating() error {
	if jb.Status != StatusAssigned {
		return ErrInvalidTransition
	}
	if jb.OperatorID == nil {
		return ErrOperatorRequired
	}

	jb.DriverID = nil
	jb.AssignedAt = nil
	jb.setStatus(StatusDelegating)
	return nil
}

// MarkEnRoute transitions ACCEPTED -> EN_ROUTE.
func (jb *Job) MarkEnRoute() error {
	if jb.DriverID == nil || *jb.DriverID == "" {
		return ErrNoDriverAssigned
	}
	if jb.Status != StatusAccepted {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	jb.EnRouteAt = &now
	jb.setStatus(StatusEnRoute)
	return nil
}

// MarkArrived transitions EN_ROUTE -> ARRIVED.
func (jb *Job) MarkArrived() error {
	if jb.DriverID == nil || *jb.DriverID == "" {
		return ErrNoDriverAssigned
	}
	if jb.Status != StatusEnRoute {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	jb.ArrivedAt = &now
	jb.setStatus(StatusArrived)
	return nil
}

// Start transitions ARRIVED -> STARTED.
func (jb *Job) Start() error {
	if jb.DriverID == nil || *jb.DriverID == "" {
		return ErrNoDriverAssigned
	}
	if jb.Status != StatusArrived {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	jb.StartedAt = &now
	jb.setStatus(StatusStarted)
	return nil
}

// Complete transitions STARTED -> COMPLETED.
func (jb *Job) Complete() error {
	if jb.Status != StatusStarted {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	jb.CompletedAt = &now
	jb.setStatus(StatusCompleted)
	return nil
}

// Cancel transitions to CANCELLED from any non-terminal state.
func (jb *Job) Cancel(reason string) error {
	if jb.Status.Terminal() {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	jb.CancelledAt = &now
	if rs := strings.TrimSpace(reason); rs != "" {
		jb.CancellationReason = &rs
	}
	jb.setStatus(StatusCancelled)
	return nil
}

// Active reports whether the job is in a live, driver-relevant state.
func (jb *Job) Active() bool {
	return jb.Status.HasDriver() && !jb.Status.Terminal()
}

// StatusTimestamp returns the timestamp recorded for the given status, if any.
func (jb *Job) StatusTimestamp(status Status) *time.Time {
	switch status {
	case StatusPending:
		t := jb.CreatedAt
		return &t
	case StatusDelegating:
		return jb.DelegatedAt
	case StatusAssigned:
		return jb.AssignedAt
	case StatusAccepted:
		return jb.AcceptedAt
	case StatusEnRoute:
		return jb.EnRouteAt
	case StatusArrived:
		return jb.ArrivedAt
	case StatusStarted:
		return jb.StartedAt
	case StatusCompleted:
		return jb.CompletedAt
	case StatusCancelled:
		return jb.CancelledAt
	default:
		return nil
	}
}

// ----- internal helpers -----

func (jb *Job) setStatus(status Status) {
	jb.Status = status
	jb.touch()
}

func (jb *Job) touch() {
	jb.UpdatedAt = time.Now().UTC()
}
