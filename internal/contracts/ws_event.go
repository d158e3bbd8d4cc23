package contracts

import "time"

// WS event type names, as delivered on the realtime channel. The names are
// the ones mobile and dashboard clients subscribe to.
const (
	WSEventJobNew            = "job:new"
	WSEventJobStatus         = "job:status"
	WSEventJobAccepted       = "job:accepted"
	WSEventDriverLocation    = "driver:location"
	WSEventContractorOnline  = "contractor:online"
	WSEventContractorOffline = "contractor:offline"
	WSEventJoined            = "joined"
	WSEventSnapshot          = "snapshot"
)

// WSJobStatus is pushed to a job room and the admin room on every transition.
type WSJobStatus struct {
	Type     string `json:"type"` // WSEventJobStatus or WSEventJobAccepted
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	DriverID string `json:"driver_id,omitempty"`
	Envelope
}

// WSDriverLocation is pushed to the job room and the admin room on every
// applied location fix of a driver with an active job.
type WSDriverLocation struct {
	Type         string    `json:"type"` // WSEventDriverLocation
	ContractorID string    `json:"contractor_id"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	RecordedAt   time.Time `json:"recorded_at"`
	JobID        string    `json:"job_id,omitempty"`
	Envelope
}

// WSContractorPresence is pushed to the admin room on online/offline flips.
type WSContractorPresence struct {
	Type         string `json:"type"` // WSEventContractorOnline / -Offline
	ContractorID string `json:"contractor_id"`
	Online       bool   `json:"online"`
	Envelope
}

// WSNewJob announces an eligible open-market job to a connected driver.
type WSNewJob struct {
	Type       string   `json:"type"` // WSEventJobNew
	JobID      string   `json:"job_id"`
	Pickup     GeoPoint `json:"pickup"`
	TotalPrice float64  `json:"total_price"`
	DistanceKM float64  `json:"distance_km,omitempty"`
	Envelope
}

// WSJoined acknowledges a room join.
type WSJoined struct {
	Type string `json:"type"` // WSEventJoined
	Room string `json:"room"`
}

// WSSnapshot reconciles a (re)joining client with the room's current state.
// Payload is the full job view for job rooms, or the active-jobs list for
// the admin room.
type WSSnapshot struct {
	Type    string `json:"type"` // WSEventSnapshot
	Room    string `json:"room"`
	Payload any    `json:"payload"`
}
