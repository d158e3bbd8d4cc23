package contractor

import (
	"errors"
	"strings"
)

// ApprovalStatus is a contractor vetting state as stored in the `contractors` table.
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "PENDING"
	ApprovalApproved  ApprovalStatus = "APPROVED"
	ApprovalSuspended ApprovalStatus = "SUSPENDED"
)

var ErrInvalidApprovalStatus = errors.New("invalid approval status")

// ParseApprovalStatus normalizes (uppercases+trims) and validates an approval status string.
func ParseApprovalStatus(in string) (ApprovalStatus, error) {
	status := ApprovalStatus(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidApprovalStatus
}

// Valid reports whether status is one of the allowed approval status constants.
func (status ApprovalStatus) Valid() bool {
	switch status {
	case ApprovalPending, ApprovalApproved, ApprovalSuspended:
		return true
	default:
		return false
	}
}

// String returns the string representation of the ApprovalStatus.
func (status ApprovalStatus) String() string {
	return string(status)
}

// Active reports whether the contractor may see and accept jobs.
func (status ApprovalStatus) Active() bool {
	return status == ApprovalApproved
}
