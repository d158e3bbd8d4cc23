package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dispatch/internal/domain/job"
	"dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// jobColumns is the canonical select list for hydrating a job.Job.
const jobColumns = `
	id, created_at, updated_at, customer_id, driver_id, operator_id,
	address, lat, lng, items, volume_estimate,
	base_price, item_total, volume_price, service_fee, surge_multiplier, total_price,
	status, delegated_at, assigned_at, accepted_at, en_route_at, arrived_at,
	started_at, completed_at, cancelled_at, cancellation_reason`

// JobRepo persists jobs using pgx and plain SQL.
type JobRepo struct{}

// NewJobRepo constructs a new JobRepo.
func NewJobRepo() ports.JobRepository {
	return &JobRepo{}
}

// CreateJob inserts a new job row.
func (repo *JobRepo) CreateJob(ctx context.Context, jb *job.Job) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	itemsJSON, err := json.Marshal(jb.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO jobs (
			customer_id, operator_id, address, lat, lng, items, volume_estimate,
			base_price, item_total, volume_price, service_fee, surge_multiplier, total_price,
			status, delegated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at
	`,
		jb.CustomerID,
		jb.OperatorID,
		jb.Address,
		jb.Lat,
		jb.Lng,
		string(itemsJSON),
		jb.VolumeEstimate,
		jb.BasePrice,
		jb.ItemTotal,
		jb.VolumePrice,
		jb.ServiceFee,
		jb.SurgeMultiplier,
		jb.TotalPrice,
		jb.Status.String(),
		jb.DelegatedAt,
	).Scan(&jb.ID, &jb.CreatedAt, &jb.UpdatedAt)
	return err
}

// GetByID fetches a job by primary key (uuid).
func (repo *JobRepo) GetByID(ctx context.Context, id string) (*job.Job, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// GetActiveForDriver fetches the most recent live job held by a driver.
func (repo *JobRepo) GetActiveForDriver(ctx context.Context, driverID string) (*job.Job, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE driver_id = $1
		  AND status IN ('ASSIGNED', 'ACCEPTED', 'EN_ROUTE', 'ARRIVED', 'STARTED')
		ORDER BY created_at DESC
		LIMIT 1
	`, driverID)

	jb, err := scanJob(row)
	if err != nil {
		// no active job is not an error
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return jb, nil
}

// ListActiveForOperator returns the operator's non-terminal fleet jobs, oldest first.
func (repo *JobRepo) ListActiveForOperator(ctx context.Context, operatorID string) ([]*job.Job, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE operator_id = $1
		  AND status NOT IN ('COMPLETED', 'CANCELLED')
		ORDER BY created_at ASC
	`, operatorID)
	if err != nil {
		return nil, fmt.Errorf("query operator jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// FindEligible returns unassigned jobs within radiusKm of the point: PENDING
// jobs for everyone, plus DELEGATING jobs of the caller's own operator.
// Ordered nearest first, then oldest.
func (repo *JobRepo) FindEligible(ctx context.Context, lat, lng, radiusKm float64, operatorID *string, limit int) ([]ports.EligibleJobRow, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	// haversine over a bounding-box prefilter; 6371 km Earth radius
	rows, err := tx.Query(ctx, `
		WITH candidates AS (
			SELECT `+jobColumns+`,
			       6371 * 2 * asin(sqrt(
			           power(sin(radians(lat - $1) / 2), 2) +
			           cos(radians($1)) * cos(radians(lat)) *
			           power(sin(radians(lng - $2) / 2), 2)
			       )) AS distance_km
			FROM jobs
			WHERE driver_id IS NULL
			  AND (
			        status = 'PENDING'
			     OR (status = 'DELEGATING' AND $4::uuid IS NOT NULL AND operator_id = $4)
			  )
			  AND lat BETWEEN $1 - ($3 / 111.0) AND $1 + ($3 / 111.0)
			  AND lng BETWEEN $2 - ($3 / (111.0 * greatest(cos(radians($1)), 0.01)))
			              AND $2 + ($3 / (111.0 * greatest(cos(radians($1)), 0.01)))
		)
		SELECT * FROM candidates
		WHERE distance_km <= $3
		ORDER BY distance_km ASC, created_at ASC
		LIMIT $5
	`, lat, lng, radiusKm, operatorID, limit)
	if err != nil {
		return nil, fmt.Errorf("query eligible jobs: %w", err)
	}
	defer rows.Close()

	var out []ports.EligibleJobRow
	for rows.Next() {
		jb, distance, err := scanJobWithDistance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan eligible job: %w", err)
		}
		out = append(out, ports.EligibleJobRow{Job: *jb, DistanceKM: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return out, nil
}

// Claim is the accept arbiter: one conditional UPDATE decides the winner.
// The job must be PENDING and unassigned, or ASSIGNED to this very driver
// (delegation confirm). Returns false, nil when another driver got there first
// or the job left the claimable window.
func (repo *JobRepo) Claim(ctx context.Context, jobID, driverID string, at time.Time) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE jobs
		SET driver_id = $2,
		    status = 'ACCEPTED',
		    accepted_at = $3,
		    updated_at = now()
		WHERE id = $1
		  AND (
		        (status = 'PENDING' AND driver_id IS NULL)
		     OR (status = 'ASSIGNED' AND driver_id = $2)
		  )
	`, jobID, driverID, at)
	if err != nil {
		return false, err
	}
	// zero rows means the claim condition no longer holds
	return tag.RowsAffected() > 0, nil
}

// AssignDriver moves DELEGATING -> ASSIGNED with the driver set, only when the
// job is still DELEGATING and unassigned. Returns false, nil otherwise.
func (repo *JobRepo) AssignDriver(ctx context.Context, jobID, driverID string, at time.Time) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE jobs
		SET driver_id = $2,
		    status = 'ASSIGNED',
		    assigned_at = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'DELEGATING'
		  AND driver_id IS NULL
	`, jobID, driverID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateStatus commits a lifecycle transition and stamps the matching timeline
// column. A repeated identical transition is a no-op success.
func (repo *JobRepo) UpdateStatus(ctx context.Context, id string, status job.Status, at time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if !status.Valid() {
		return errors.New("invalid job status")
	}

	// lock the row and read current status to enforce transitions
	var current string
	err = tx.QueryRow(ctx, `
		SELECT status
		FROM jobs
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&current)
	if err != nil {
		return err
	}

	// idempotent success
	if current == status.String() {
		return nil
	}

	if !job.Status(current).CanTransitionTo(status) {
		return job.ErrInvalidTransition
	}

	query := `
	UPDATE jobs
	SET status = $1,
	    updated_at = now()
	`
	timelineColumn := timelineColumnFor(status)
	if timelineColumn != "updated_at" {
		query += `, ` + timelineColumn + ` = $2
		WHERE id = $3`
	} else {
		query += `
		WHERE id = $3`
	}

	_, err = tx.Exec(ctx, query, status.String(), at, id)
	return err
}

// Cancel sets cancellation_reason, stamps cancelled_at, and moves to CANCELLED.
func (repo *JobRepo) Cancel(ctx context.Context, jobID, reason string, at time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	var current string
	err = tx.QueryRow(ctx, `
		SELECT status
		FROM jobs
		WHERE id = $1
		FOR UPDATE
	`, jobID).Scan(&current)
	if err != nil {
		return err
	}

	// idempotent success
	if current == "CANCELLED" {
		return nil
	}
	if current == "COMPLETED" {
		return job.ErrInvalidTransition
	}

	_, err = tx.Exec(ctx, `
		UPDATE jobs
		SET status = 'CANCELLED',
		    cancellation_reason = $1,
		    cancelled_at = $2,
		    updated_at = now()
		WHERE id = $3
	`, reason, at, jobID)
	return err
}

// RevertStaleAssignments returns ASSIGNED jobs whose assignment is older than
// cutoff back to DELEGATING and clears the driver. The stale rows are locked
// with SKIP LOCKED first, so a driver confirming at the same instant either
// wins cleanly or loses cleanly, and concurrent sweepers never double-revert.
func (repo *JobRepo) RevertStaleAssignments(ctx context.Context, cutoff time.Time) ([]ports.RevertedAssignment, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	// lock the lapsed rows and remember who let the window lapse
	staleRows, err := tx.Query(ctx, `
		SELECT id, driver_id
		FROM jobs
		WHERE status = 'ASSIGNED'
		  AND operator_id IS NOT NULL
		  AND assigned_at < $1
		FOR UPDATE SKIP LOCKED
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("select stale assignments: %w", err)
	}

	ids := make([]string, 0, 8)
	lapsedBy := make(map[string]string, 8)
	for staleRows.Next() {
		var id string
		var driverID *string
		if err := staleRows.Scan(&id, &driverID); err != nil {
			staleRows.Close()
			return nil, fmt.Errorf("scan stale assignment: %w", err)
		}
		ids = append(ids, id)
		if driverID != nil {
			lapsedBy[id] = *driverID
		}
	}
	staleRows.Close()
	if err := staleRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := tx.Query(ctx, `
		UPDATE jobs
		SET status = 'DELEGATING',
		    driver_id = NULL,
		    assigned_at = NULL,
		    updated_at = now()
		WHERE id = ANY($1)
		RETURNING `+jobColumns,
		ids)
	if err != nil {
		return nil, fmt.Errorf("revert stale assignments: %w", err)
	}
	defer rows.Close()

	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, err
	}

	reverted := make([]ports.RevertedAssignment, 0, len(jobs))
	for _, jb := range jobs {
		reverted = append(reverted, ports.RevertedAssignment{Job: *jb, LapsedDriverID: lapsedBy[jb.ID]})
	}

	return reverted, nil
}

// ----- admin metrics -----

// CountActive counts all non-terminal jobs.
func (repo *JobRepo) CountActive(ctx context.Context) (int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var n int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM jobs
		WHERE status NOT IN ('COMPLETED', 'CANCELLED')
	`).Scan(&n)
	return n, err
}

// CountCreatedBetween counts jobs created in [start, end).
func (repo *JobRepo) CountCreatedBetween(ctx context.Context, start, end time.Time) (int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var n int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM jobs
		WHERE created_at >= $1 AND created_at < $2
	`, start, end).Scan(&n)
	return n, err
}

// SumRevenueCompletedBetween sums total_price over jobs completed in [start, end).
func (repo *JobRepo) SumRevenueCompletedBetween(ctx context.Context, start, end time.Time) (float64, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var total float64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_price), 0)
		FROM jobs
		WHERE status = 'COMPLETED'
		  AND completed_at >= $1 AND completed_at < $2
	`, start, end).Scan(&total)
	return total, err
}

// CancellationRateBetween is cancelled / created over [start, end), 0 when no jobs.
func (repo *JobRepo) CancellationRateBetween(ctx context.Context, start, end time.Time) (float64, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var created, cancelled int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'CANCELLED')
		FROM jobs
		WHERE created_at >= $1 AND created_at < $2
	`, start, end).Scan(&created, &cancelled)
	if err != nil {
		return 0, err
	}
	if created == 0 {
		return 0, nil
	}
	return float64(cancelled) / float64(created), nil
}

// HydrateActiveRows pages through live jobs joined with the assigned driver's
// last known position, newest first. Also returns the total live-job count.
func (repo *JobRepo) HydrateActiveRows(ctx context.Context, offset, limit int) ([]ports.ActiveJobRow, int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	var total int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM jobs
		WHERE status NOT IN ('COMPLETED', 'CANCELLED')
	`).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := tx.Query(ctx, `
		SELECT j.id, j.status, j.customer_id, j.driver_id, j.operator_id,
		       j.address, j.lat, j.lng,
		       c.last_lat, c.last_lng,
		       j.created_at, j.updated_at
		FROM jobs j
		LEFT JOIN contractors c ON c.id = j.driver_id
		WHERE j.status NOT IN ('COMPLETED', 'CANCELLED')
		ORDER BY j.created_at DESC
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("query active jobs: %w", err)
	}
	defer rows.Close()

	var out []ports.ActiveJobRow
	for rows.Next() {
		var r ports.ActiveJobRow
		var driverID, operatorID *string
		var lastTransition time.Time
		err := rows.Scan(
			&r.JobID, &r.Status, &r.CustomerID, &driverID, &operatorID,
			&r.Address, &r.Lat, &r.Lng,
			&r.DriverLat, &r.DriverLng,
			&r.CreatedAt, &lastTransition,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan active job: %w", err)
		}
		if driverID != nil {
			r.DriverID = *driverID
		}
		if operatorID != nil {
			r.OperatorID = *operatorID
		}
		r.LastTransition = &lastTransition
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	return out, total, nil
}

// --- helpers ---

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJobInto(row rowScanner, extra ...any) (*job.Job, error) {
	var jb job.Job
	var status string
	var itemsJSON []byte

	dest := []any{
		&jb.ID, &jb.CreatedAt, &jb.UpdatedAt, &jb.CustomerID, &jb.DriverID, &jb.OperatorID,
		&jb.Address, &jb.Lat, &jb.Lng, &itemsJSON, &jb.VolumeEstimate,
		&jb.BasePrice, &jb.ItemTotal, &jb.VolumePrice, &jb.ServiceFee, &jb.SurgeMultiplier, &jb.TotalPrice,
		&status, &jb.DelegatedAt, &jb.AssignedAt, &jb.AcceptedAt, &jb.EnRouteAt, &jb.ArrivedAt,
		&jb.StartedAt, &jb.CompletedAt, &jb.CancelledAt, &jb.CancellationReason,
	}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	jb.Status = job.Status(status)
	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &jb.Items); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
	}

	return &jb, nil
}

func scanJob(row rowScanner) (*job.Job, error) {
	return scanJobInto(row)
}

func scanJobWithDistance(row rowScanner) (*job.Job, float64, error) {
	var distance float64
	jb, err := scanJobInto(row, &distance)
	return jb, distance, err
}

func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var out []*job.Job
	for rows.Next() {
		jb, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, jb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// timelineColumnFor maps a status to the timeline column that must be stamped.
func timelineColumnFor(status job.Status) string {
	switch status {
	case job.StatusDelegating:
		return "delegated_at"
	case job.StatusAssigned:
		return "assigned_at"
	case job.StatusAccepted:
		return "accepted_at"
	case job.StatusEnRoute:
		return "en_route_at"
	case job.StatusArrived:
		return "arrived_at"
	case job.StatusStarted:
		return "started_at"
	case job.StatusCompleted:
		return "completed_at"
	case job.StatusCancelled:
		return "cancelled_at"
	default:
		return "updated_at"
	}
}
