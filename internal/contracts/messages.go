package contracts

import "time"

// JobStatusMessage is published to ExchangeJobTopic on every committed
// transition, routing key RouteJobStatusPrefix + status.
type JobStatusMessage struct {
	JobID     string    `json:"job_id"`
	OldStatus string    `json:"old_status,omitempty"`
	Status    string    `json:"status"`
	DriverID  string    `json:"driver_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Envelope
}

// NewJobMessage announces a freshly created open-market job to the tracker,
// which relays it to eligible nearby drivers.
type NewJobMessage struct {
	JobID      string   `json:"job_id"`
	Pickup     GeoPoint `json:"pickup"`
	TotalPrice float64  `json:"total_price"`
	OperatorID string   `json:"operator_id,omitempty"` // set for fleet-exclusive jobs
	Envelope
}

// EscalationMessage tells an operator a delegated assignment was not
// confirmed in time and the job is back in DELEGATING.
type EscalationMessage struct {
	JobID          string    `json:"job_id"`
	OperatorID     string    `json:"operator_id"`
	LapsedDriverID string    `json:"lapsed_driver_id"`
	RevertedAt     time.Time `json:"reverted_at"`
	Envelope
}

// NotificationRequest asks the (external) notification collaborator to push
// a message to a customer. The engine only emits it.
type NotificationRequest struct {
	CustomerID string         `json:"customer_id"`
	Kind       string         `json:"kind"` // e.g. "job_accepted", "job_update"
	Title      string         `json:"title"`
	Body       string         `json:"body"`
	Data       map[string]any `json:"data,omitempty"`
	Envelope
}

// LocationMessage is fanned out for every applied driver fix.
type LocationMessage struct {
	ContractorID string    `json:"contractor_id"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	RecordedAt   time.Time `json:"recorded_at"`
	JobID        string    `json:"job_id,omitempty"` // set when the driver holds an active job
	Envelope
}
