package service

import (
	"context"
	"errors"
	"fmt"

	"dispatch/internal/domain/job"
	"dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// ErrJobNotFound is returned by JobSnapshot for unknown job ids.
var ErrJobNotFound = errors.New("job does not exist")

// JobSnapshot reads the current view of one job so a (re)joining websocket
// client can reconcile missed events.
func (service *TrackerService) JobSnapshot(ctx context.Context, jobID string) (ports.JobView, error) {
	var jb *job.Job
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		jb, err = service.jobRepo.GetByID(txCtx, jobID)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ports.JobView{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return ports.JobView{}, err
	}
	return ports.ViewOf(jb), nil
}

// FleetJobs reads the operator's live jobs so a connecting operator can be
// placed in each job's room with a current snapshot.
func (service *TrackerService) FleetJobs(ctx context.Context, operatorID string) ([]ports.JobView, error) {
	var views []ports.JobView
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		jobs, err := service.jobRepo.ListActiveForOperator(txCtx, operatorID)
		if err != nil {
			return err
		}
		for _, jb := range jobs {
			views = append(views, ports.ViewOf(jb))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

const adminSnapshotLimit = 100

// AdminSnapshot reads the current live jobs for a joining admin dashboard.
func (service *TrackerService) AdminSnapshot(ctx context.Context) ([]ports.ActiveJobRow, error) {
	var rows []ports.ActiveJobRow
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		rows, _, err = service.jobRepo.HydrateActiveRows(txCtx, 0, adminSnapshotLimit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
