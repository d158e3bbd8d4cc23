package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"dispatch/internal/domain/job"
	"dispatch/internal/ports"
)

// JobEventRepo persists job events using pgx and plain SQL.
type JobEventRepo struct{}

// NewJobEventRepo constructs a new JobEventRepo.
func NewJobEventRepo() ports.JobEventRepository {
	return &JobEventRepo{}
}

// Append inserts a new job_events row.
func (repo *JobEventRepo) Append(ctx context.Context, event *job.Event) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	// validate event before inserting
	if err := event.Validate(); err != nil {
		return err
	}

	data, err := event.DataJSON()
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO job_events (job_id, event_type, event_data)
		VALUES ($1, $2, $3::jsonb)
		RETURNING id, created_at
	`,
		event.JobID,
		event.Type.String(),
		string(data),
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return err
	}

	return nil
}

// ListForJob returns the audit trail for a job, oldest first.
func (repo *JobEventRepo) ListForJob(ctx context.Context, jobID string, limit int) ([]*job.Event, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, created_at, job_id, event_type, event_data
		FROM job_events
		WHERE job_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("query job events: %w", err)
	}
	defer rows.Close()

	var out []*job.Event
	for rows.Next() {
		var e job.Event
		var eventType string
		var dataJSON []byte
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.JobID, &eventType, &dataJSON); err != nil {
			return nil, fmt.Errorf("scan job event: %w", err)
		}
		e.Type = job.EventType(eventType)
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &e.Data); err != nil {
				return nil, fmt.Errorf("unmarshal event data: %w", err)
			}
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return out, nil
}
