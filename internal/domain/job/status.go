package job

import (
	"errors"
	"strings"
)

// Status is a job lifecycle status as stored in the `jobs` table.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusDelegating Status = "DELEGATING"
	StatusAssigned   Status = "ASSIGNED"
	StatusAccepted   Status = "ACCEPTED"
	StatusEnRoute    Status = "EN_ROUTE"
	StatusArrived    Status = "ARRIVED"
	StatusStarted    Status = "STARTED"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

var ErrInvalidStatus = errors.New("invalid job status")

// ParseStatus normalizes (uppercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed job status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusPending, StatusDelegating, StatusAssigned, StatusAccepted,
		StatusEnRoute, StatusArrived, StatusStarted, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// CanTransitionTo specifies if the status can transition to the next status.
func (status Status) CanTransitionTo(next Status) bool {
	switch status {
	case StatusPending:
		// open-market accept jumps straight to ACCEPTED;
		// DELEGATING covers admin routing to an operator's fleet
		return next == StatusAccepted || next == StatusDelegating || next == StatusCancelled

	case StatusDelegating:
		return next == StatusAssigned || next == StatusCancelled

	case StatusAssigned:
		// ACCEPTED is the contractor confirm; DELEGATING is the
		// confirm-timeout revert back to the operator
		return next == StatusAccepted || next == StatusDelegating || next == StatusCancelled

	case StatusAccepted:
		return next == StatusEnRoute || next == StatusCancelled

	case StatusEnRoute:
		return next == StatusArrived || next == StatusCancelled

	case StatusArrived:
		return next == StatusStarted || next == StatusCancelled

	case StatusStarted:
		return next == StatusCompleted || next == StatusCancelled

	case StatusCompleted, StatusCancelled:
		return false

	default:
		return false
	}
}

// Terminal indicates if the status is in a terminal state.
func (status Status) Terminal() bool {
	return status == StatusCompleted || status == StatusCancelled
}

// HasDriver reports whether a job in this status must carry a driver id.
func (status Status) HasDriver() bool {
	switch status {
	case StatusAssigned, StatusAccepted, StatusEnRoute, StatusArrived, StatusStarted, StatusCompleted:
		return true
	default:
		return false
	}
}
