package job

import (
	"encoding/json"
	"errors"
	"maps"
	"strings"
	"time"
)

// Event is the domain entity corresponding to the `job_events` table.
type Event struct {
	// Identity & audit
	ID        string
	CreatedAt time.Time

	// Foreign keys
	JobID string

	// Core payload
	Type EventType
	Data map[string]any
}

var (
	ErrJobIDRequired = errors.New("job id is required")
	ErrEventDataNil  = errors.New("event data must not be nil")
)

// NewEvent constructs a new domain Event.
func NewEvent(jobID string, eventType EventType, eventData map[string]any) (*Event, error) {
	if jobID = strings.TrimSpace(jobID); jobID == "" {
		return nil, ErrJobIDRequired
	}
	if !eventType.Valid() {
		return nil, ErrInvalidEventType
	}
	if eventData == nil {
		return nil, ErrEventDataNil
	}

	return &Event{
		JobID:     jobID,
		Type:      eventType,
		Data:      cloneMap(eventData),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Validate performs basic invariants checks mirroring DB constraints.
func (event *Event) Validate() error {
	if event.JobID == "" {
		return ErrJobIDRequired
	}
	if !event.Type.Valid() {
		return ErrInvalidEventType
	}
	if event.Data == nil {
		return ErrEventDataNil
	}
	return nil
}

// DataJSON returns event.Data encoded as JSON.
func (event *Event) DataJSON() ([]byte, error) {
	if event.Data == nil {
		return nil, ErrEventDataNil
	}
	return json.Marshal(event.Data)
}

// WithField sets/overwrites a single key in Data.
func (event *Event) WithField(key string, value any) {
	if event.Data == nil {
		event.Data = make(map[string]any)
	}
	event.Data[key] = value
}

// cloneMap makes a shallow copy of a map[string]any.
func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}

	dst := make(map[string]any, len(src))
	maps.Copy(dst, src)
	return dst
}
