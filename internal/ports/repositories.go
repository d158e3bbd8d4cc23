package ports

import (
	"context"
	"time"

	"dispatch/internal/domain/contractor"
	"dispatch/internal/domain/geo"
	"dispatch/internal/domain/job"
)

// UnitOfWork manages transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// JobRepository defines the methods for managing job data.
//
// Claim, AssignDriver, UpdateStatus, Cancel and RevertStaleAssignments are
// conditional writes: the precondition check and the write happen in one
// statement against the store, never as caller-side read-then-write.
type JobRepository interface {
	CreateJob(ctx context.Context, jb *job.Job) error
	GetByID(ctx context.Context, id string) (*job.Job, error)
	GetActiveForDriver(ctx context.Context, driverID string) (*job.Job, error)
	ListActiveForOperator(ctx context.Context, operatorID string) ([]*job.Job, error)

	// FindEligible returns unassigned jobs visible to a contractor at the
	// given point: PENDING for everyone, DELEGATING only when operatorID
	// matches the job's operator. Ordered nearest first, then oldest.
	FindEligible(ctx context.Context, lat, lng, radiusKm float64, operatorID *string, limit int) ([]EligibleJobRow, error)

	// Claim atomically sets driver_id and status ACCEPTED when the job is
	// PENDING and unassigned, or ASSIGNED to this very driver (delegation
	// confirm). Returns false without error when the condition did not hold.
	Claim(ctx context.Context, jobID, driverID string, at time.Time) (bool, error)

	// AssignDriver moves DELEGATING -> ASSIGNED with the driver set, only
	// when the job is still DELEGATING and unassigned.
	AssignDriver(ctx context.Context, jobID, driverID string, at time.Time) (bool, error)

	// UpdateStatus commits a lifecycle transition and stamps the matching
	// timeline column. A repeated identical transition is a no-op success.
	UpdateStatus(ctx context.Context, id string, status job.Status, at time.Time) error

	Cancel(ctx context.Context, jobID, reason string, at time.Time) error

	// RevertStaleAssignments returns ASSIGNED jobs whose assignment is older
	// than cutoff to DELEGATING, clearing the driver, and reports them along
	// with the driver who let the confirm window lapse.
	RevertStaleAssignments(ctx context.Context, cutoff time.Time) ([]RevertedAssignment, error)

	// Admin metrics.
	CountActive(ctx context.Context) (int, error)
	CountCreatedBetween(ctx context.Context, start, end time.Time) (int, error)
	SumRevenueCompletedBetween(ctx context.Context, start, end time.Time) (float64, error)
	CancellationRateBetween(ctx context.Context, start, end time.Time) (float64, error)
	HydrateActiveRows(ctx context.Context, offset, limit int) ([]ActiveJobRow, int, error)
}

// EligibleJobRow is a feed row with the precomputed distance to the caller.
type EligibleJobRow struct {
	Job        job.Job
	DistanceKM float64
}

// RevertedAssignment is one job put back into DELEGATING by the sweeper.
// Job holds the post-revert state; LapsedDriverID names the driver who was
// assigned and never confirmed.
type RevertedAssignment struct {
	Job            job.Job
	LapsedDriverID string
}

// JobEventRepository appends to the per-job audit trail.
type JobEventRepository interface {
	Append(ctx context.Context, e *job.Event) error
	ListForJob(ctx context.Context, jobID string, limit int) ([]*job.Event, error)
}

// ContractorRepository defines the methods for managing contractor data.
type ContractorRepository interface {
	CreateContractor(ctx context.Context, c *contractor.Contractor) error
	GetByID(ctx context.Context, id string) (*contractor.Contractor, error)
	GetByUserID(ctx context.Context, userID string) (*contractor.Contractor, error)
	SetOnline(ctx context.Context, id string, online bool) error

	// UpdateLocation applies a fix only when its timestamp is newer than the
	// stored one (conditional write). Returns false for stale fixes.
	UpdateLocation(ctx context.Context, id string, fix geo.StampedPoint) (bool, error)

	ListFleet(ctx context.Context, operatorID string) ([]*contractor.Contractor, error)
	IncrementCountersOnComplete(ctx context.Context, id string, earnings float64) error
	CountOnline(ctx context.Context) (int, error)
}

// TerritoryRepository resolves exclusive operator territories at job creation.
type TerritoryRepository interface {
	// ResolveOperator returns the id of the operator whose exclusive
	// territory contains the point, or "" when the job is open market.
	ResolveOperator(ctx context.Context, lat, lng float64) (string, error)
}
