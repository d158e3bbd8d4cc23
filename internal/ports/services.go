package ports

import (
	"context"
	"time"

	"dispatch/internal/domain/job"
	"dispatch/internal/domain/user"
)

// ----- DTOs for the Dispatch Service -----

// CreateJobInput is the validated input required to create a job.
type CreateJobInput struct {
	CustomerID     string
	Address        string
	Lat            float64
	Lng            float64
	Items          []job.Item
	VolumeEstimate float64
}

// CreateJobResult is returned by DispatchService.CreateJob.
type CreateJobResult struct {
	JobID           string  `json:"job_id"`
	Status          string  `json:"status"`
	OperatorID      string  `json:"operator_id,omitempty"`
	TotalPrice      float64 `json:"total_price"`
	SurgeMultiplier float64 `json:"surge_multiplier"`
}

// Actor is the verified identity attached to every mutation.
type Actor struct {
	ID   string
	Role user.Role
}

// AcceptResult is returned to the winning driver.
type AcceptResult struct {
	JobID      string    `json:"job_id"`
	Status     string    `json:"status"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// DelegateInput names the operator's chosen fleet contractor.
type DelegateInput struct {
	JobID        string
	OperatorID   string
	ContractorID string
}

// DelegateResult is returned on a successful delegation.
type DelegateResult struct {
	JobID      string    `json:"job_id"`
	DriverID   string    `json:"driver_id"`
	Status     string    `json:"status"`
	AssignedAt time.Time `json:"assigned_at"`
	ConfirmBy  time.Time `json:"confirm_by"`
}

// TransitionInput advances a job along the lifecycle.
type TransitionInput struct {
	JobID  string
	Status job.Status
	Actor  Actor
}

// CancelInput cancels a job from any non-terminal state.
type CancelInput struct {
	JobID  string
	Reason string
	Actor  Actor
}

// FeedInput is the proximity query for one online contractor.
type FeedInput struct {
	ContractorID string
	Lat          float64
	Lng          float64
	RadiusKM     float64 // 0 means the configured default
}

// FeedEntry is one job summary in the proximity feed.
type FeedEntry struct {
	JobID      string    `json:"job_id"`
	Address    string    `json:"address"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Status     string    `json:"status"`
	TotalPrice float64   `json:"total_price"`
	DistanceKM float64   `json:"distance_km"`
	CreatedAt  time.Time `json:"created_at"`
}

// JobView is the full read model returned to parties of a job.
type JobView struct {
	JobID              string     `json:"job_id"`
	CustomerID         string     `json:"customer_id"`
	DriverID           string     `json:"driver_id,omitempty"`
	OperatorID         string     `json:"operator_id,omitempty"`
	Address            string     `json:"address"`
	Lat                float64    `json:"lat"`
	Lng                float64    `json:"lng"`
	Status             string     `json:"status"`
	Items              []job.Item `json:"items,omitempty"`
	TotalPrice         float64    `json:"total_price"`
	SurgeMultiplier    float64    `json:"surge_multiplier"`
	CreatedAt          time.Time  `json:"created_at"`
	AcceptedAt         *time.Time `json:"accepted_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`

	// History is the audit trail, populated for admin reads only.
	History []JobEventView `json:"history,omitempty"`
}

// JobEventView is one audit trail row of the job read model.
type JobEventView struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

// ViewOf builds the read model for one job entity.
func ViewOf(jb *job.Job) JobView {
	view := JobView{
		JobID:           jb.ID,
		CustomerID:      jb.CustomerID,
		Address:         jb.Address,
		Lat:             jb.Lat,
		Lng:             jb.Lng,
		Status:          jb.Status.String(),
		Items:           jb.Items,
		TotalPrice:      jb.TotalPrice,
		SurgeMultiplier: jb.SurgeMultiplier,
		CreatedAt:       jb.CreatedAt,
		AcceptedAt:      jb.AcceptedAt,
		CompletedAt:     jb.CompletedAt,
		CancelledAt:     jb.CancelledAt,
	}
	if jb.DriverID != nil {
		view.DriverID = *jb.DriverID
	}
	if jb.OperatorID != nil {
		view.OperatorID = *jb.OperatorID
	}
	if jb.CancellationReason != nil {
		view.CancellationReason = *jb.CancellationReason
	}
	return view
}

// ----- Dispatch Service Interface -----

// DispatchService owns the job lifecycle: registry, arbiter, feed, delegation.
type DispatchService interface {
	CreateJob(ctx context.Context, in CreateJobInput) (CreateJobResult, error)
	GetJob(ctx context.Context, jobID string, actor Actor) (JobView, error)
	Accept(ctx context.Context, jobID, contractorID string) (AcceptResult, error)
	Delegate(ctx context.Context, in DelegateInput) (DelegateResult, error)
	Transition(ctx context.Context, in TransitionInput) (JobView, error)
	Cancel(ctx context.Context, in CancelInput) (JobView, error)
	Feed(ctx context.Context, in FeedInput) ([]FeedEntry, error)
	StartEscalationSweeper(ctx context.Context) error
	StopEscalationSweeper()
}

// ---------------------------------------------------------------------------

// ----- DTOs for the Tracker Service -----

// ReportLocationInput is one GPS fix from a driver device.
type ReportLocationInput struct {
	ContractorID string
	Lat          float64
	Lng          float64
	RecordedAt   time.Time // zero means "now"
}

// ReportLocationResult acknowledges an applied fix.
type ReportLocationResult struct {
	Applied    bool      `json:"applied"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ToggleOnlineInput flips a contractor's availability.
type ToggleOnlineInput struct {
	ContractorID string
	Online       bool
}

// ----- Tracker Service Interface -----

// TrackerService ingests locations and fans out realtime events.
type TrackerService interface {
	ReportLocation(ctx context.Context, in ReportLocationInput) (ReportLocationResult, error)
	ToggleOnline(ctx context.Context, in ToggleOnlineInput) error
	RunBackgroundConsumers(ctx context.Context)
}

// ---------------------------------------------------------------------------

// ----- DTOs for the Admin Service -----

// OverviewMetrics groups the numeric KPIs for the admin overview.
type OverviewMetrics struct {
	ActiveJobs        int     `json:"active_jobs"`
	OnlineContractors int     `json:"online_contractors"`
	JobsToday         int     `json:"jobs_today"`
	RevenueToday      float64 `json:"revenue_today"`
	CancellationRate  float64 `json:"cancellation_rate"`
}

// SystemOverviewResult is the response DTO for GET /admin/overview.
type SystemOverviewResult struct {
	Timestamp time.Time       `json:"timestamp"`
	Metrics   OverviewMetrics `json:"metrics"`
}

// ActiveJobRow is a single live job row on the admin map.
type ActiveJobRow struct {
	JobID          string     `json:"job_id"`
	Status         string     `json:"status"`
	CustomerID     string     `json:"customer_id"`
	DriverID       string     `json:"driver_id,omitempty"`
	OperatorID     string     `json:"operator_id,omitempty"`
	Address        string     `json:"address"`
	Lat            float64    `json:"lat"`
	Lng            float64    `json:"lng"`
	DriverLat      *float64   `json:"driver_lat,omitempty"`
	DriverLng      *float64   `json:"driver_lng,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastTransition *time.Time `json:"last_transition,omitempty"`
}

// ActiveJobsResult is the response DTO for GET /admin/jobs/active.
type ActiveJobsResult struct {
	Jobs       []ActiveJobRow `json:"jobs"`
	TotalCount int            `json:"total_count"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
}

// ----- Admin Service Interface -----

// AdminService exposes monitoring operations for administrators.
type AdminService interface {
	GetSystemOverview(ctx context.Context) (SystemOverviewResult, error)
	GetActiveJobs(ctx context.Context, page, pageSize string) (ActiveJobsResult, error)
}

// ---------------------------------------------------------------------------

// EventPublisher publishes engine events to the message broker. Satisfied by
// the rabbitmq publisher; test code substitutes a fake.
type EventPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}
