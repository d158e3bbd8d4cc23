package job

import (
	"errors"
	"strings"
)

// EventType corresponds to the values in the `job_event_type` table.
type EventType string

const (
	EventJobCreated         EventType = "JOB_CREATED"
	EventJobDelegated       EventType = "JOB_DELEGATED"
	EventDriverAssigned     EventType = "DRIVER_ASSIGNED"
	EventJobAccepted        EventType = "JOB_ACCEPTED"
	EventDriverEnRoute      EventType = "DRIVER_EN_ROUTE"
	EventDriverArrived      EventType = "DRIVER_ARRIVED"
	EventJobStarted         EventType = "JOB_STARTED"
	EventJobCompleted       EventType = "JOB_COMPLETED"
	EventJobCancelled       EventType = "JOB_CANCELLED"
	EventStatusChanged      EventType = "STATUS_CHANGED"
	EventDelegationTimedOut EventType = "DELEGATION_TIMED_OUT"
)

var ErrInvalidEventType = errors.New("invalid job event type")

// ParseEventType normalizes (uppercases+trims) and validates an event type string.
func ParseEventType(input string) (EventType, error) {
	eventType := EventType(strings.ToUpper(strings.TrimSpace(input)))
	if eventType.Valid() {
		return eventType, nil
	}
	return "", ErrInvalidEventType
}

// Valid reports whether eventType is one of the allowed event type constants.
func (eventType EventType) Valid() bool {
	switch eventType {
	case EventJobCreated,
		EventJobDelegated,
		EventDriverAssigned,
		EventJobAccepted,
		EventDriverEnRoute,
		EventDriverArrived,
		EventJobStarted,
		EventJobCompleted,
		EventJobCancelled,
		EventStatusChanged,
		EventDelegationTimedOut:
		return true
	default:
		return false
	}
}

// String returns the string representation of the EventType.
func (eventType EventType) String() string {
	return string(eventType)
}

// EventTypeForStatus returns the specific event name for a committed status.
func EventTypeForStatus(status Status) EventType {
	switch status {
	case StatusDelegating:
		return EventJobDelegated
	case StatusAssigned:
		return EventDriverAssigned
	case StatusAccepted:
		return EventJobAccepted
	case StatusEnRoute:
		return EventDriverEnRoute
	case StatusArrived:
		return EventDriverArrived
	case StatusStarted:
		return EventJobStarted
	case StatusCompleted:
		return EventJobCompleted
	case StatusCancelled:
		return EventJobCancelled
	default:
		return EventStatusChanged
	}
}
