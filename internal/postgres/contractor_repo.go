package postgres

import (
	"context"
	"fmt"

	"dispatch/internal/domain/contractor"
	"dispatch/internal/domain/geo"
	"dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

const contractorColumns = `
	id, user_id, created_at, updated_at, approval_status, is_operator, operator_id,
	online, last_lat, last_lng, last_location_at, total_jobs, total_earnings`

// ContractorRepo persists contractors using pgx and plain SQL.
type ContractorRepo struct{}

// NewContractorRepo constructs a new ContractorRepo.
func NewContractorRepo() ports.ContractorRepository {
	return &ContractorRepo{}
}

// CreateContractor inserts a new contractor row.
func (repo *ContractorRepo) CreateContractor(ctx context.Context, c *contractor.Contractor) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	return tx.QueryRow(ctx, `
		INSERT INTO contractors (user_id, approval_status, is_operator, operator_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`,
		c.UserID,
		c.ApprovalStatus.String(),
		c.IsOperator,
		c.OperatorID,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

// GetByID fetches a contractor by primary key (uuid).
func (repo *ContractorRepo) GetByID(ctx context.Context, id string) (*contractor.Contractor, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `SELECT `+contractorColumns+` FROM contractors WHERE id = $1`, id)
	return scanContractor(row)
}

// GetByUserID fetches a contractor by the owning user account.
func (repo *ContractorRepo) GetByUserID(ctx context.Context, userID string) (*contractor.Contractor, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `SELECT `+contractorColumns+` FROM contractors WHERE user_id = $1`, userID)
	return scanContractor(row)
}

// SetOnline flips the availability flag.
func (repo *ContractorRepo) SetOnline(ctx context.Context, id string, online bool) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE contractors
		SET online = $1,
		    updated_at = now()
		WHERE id = $2
	`, online, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpdateLocation applies a fix only when its timestamp is strictly newer than
// the stored one. The timestamp comparison and the write are one statement, so
// out-of-order fixes arriving concurrently converge on the newest regardless
// of arrival order. Returns false, nil for stale fixes.
func (repo *ContractorRepo) UpdateLocation(ctx context.Context, id string, fix geo.StampedPoint) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	if err := fix.Validate(); err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE contractors
		SET last_lat = $1,
		    last_lng = $2,
		    last_location_at = $3,
		    updated_at = now()
		WHERE id = $4
		  AND (last_location_at IS NULL OR last_location_at < $3)
	`, fix.Lat, fix.Lng, fix.RecordedAt, id)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() > 0, nil
}

// ListFleet returns all contractors in an operator's fleet.
func (repo *ContractorRepo) ListFleet(ctx context.Context, operatorID string) ([]*contractor.Contractor, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+contractorColumns+`
		FROM contractors
		WHERE operator_id = $1
		ORDER BY created_at ASC
	`, operatorID)
	if err != nil {
		return nil, fmt.Errorf("query fleet: %w", err)
	}
	defer rows.Close()

	var out []*contractor.Contractor
	for rows.Next() {
		c, err := scanContractor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contractor: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return out, nil
}

// IncrementCountersOnComplete bumps the KPI counters after a completed job.
func (repo *ContractorRepo) IncrementCountersOnComplete(ctx context.Context, id string, earnings float64) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE contractors
		SET total_jobs = total_jobs + 1,
		    total_earnings = total_earnings + $1,
		    updated_at = now()
		WHERE id = $2
	`, earnings, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// CountOnline counts contractors currently marked online.
func (repo *ContractorRepo) CountOnline(ctx context.Context) (int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var n int
	err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM contractors WHERE online`).Scan(&n)
	return n, err
}

// --- helpers ---

func scanContractor(row rowScanner) (*contractor.Contractor, error) {
	var c contractor.Contractor
	var approval string

	err := row.Scan(
		&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt, &approval, &c.IsOperator, &c.OperatorID,
		&c.Online, &c.LastLat, &c.LastLng, &c.LastLocationAt, &c.TotalJobs, &c.TotalEarnings,
	)
	if err != nil {
		return nil, err
	}

	c.ApprovalStatus = contractor.ApprovalStatus(approval)
	return &c, nil
}
