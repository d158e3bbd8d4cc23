package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dispatch/internal/contracts"
	"dispatch/internal/domain/job"
	"dispatch/internal/ports"
)

// Cancel moves a job to CANCELLED from any non-terminal state. Customers may
// cancel their own jobs, operators their fleet jobs, admins any job; drivers
// may not cancel at all. Cancelling an already cancelled job is a no-op success.
func (service *dispatchService) Cancel(ctx context.Context, in ports.CancelInput) (ports.JobView, error) {
	ctx = service.logger.WithJobID(ctx, in.JobID)
	correlationID := generateCorrelationID()
	cancelledAt := time.Now().UTC()

	if !in.Actor.Role.MayCancel() {
		return ports.JobView{}, fmt.Errorf("%w: role %s may not cancel jobs", ErrForbidden, in.Actor.Role.String())
	}

	var (
		view      ports.JobView
		oldStatus job.Status
		driverID  string
	)

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		jb, err := service.jobRepo.GetByID(txCtx, in.JobID)
		if err != nil {
			return mapStoreErr(err)
		}
		oldStatus = jb.Status
		if jb.DriverID != nil {
			driverID = *jb.DriverID
		}

		switch {
		case in.Actor.Role.IsCustomer() && jb.CustomerID != in.Actor.ID:
			return fmt.Errorf("%w: job belongs to another customer", ErrForbidden)
		case in.Actor.Role.IsOperator() && (jb.OperatorID == nil || *jb.OperatorID != in.Actor.ID):
			return fmt.Errorf("%w: job does not belong to this operator", ErrForbidden)
		}

		if jb.Status == job.StatusCompleted {
			return fmt.Errorf("%w: completed jobs cannot be cancelled", ErrInvalidTransition)
		}

		if err := service.jobRepo.Cancel(txCtx, in.JobID, in.Reason, cancelledAt); err != nil {
			if errors.Is(err, job.ErrInvalidTransition) {
				return fmt.Errorf("%w: completed jobs cannot be cancelled", ErrInvalidTransition)
			}
			return err
		}

		if oldStatus != job.StatusCancelled {
			if err := service.appendEvent(txCtx, in.JobID, job.EventJobCancelled, map[string]any{
				"old_status": oldStatus.String(),
				"actor_id":   in.Actor.ID,
				"reason":     in.Reason,
			}); err != nil {
				return err
			}
		}

		fresh, err := service.jobRepo.GetByID(txCtx, in.JobID)
		if err != nil {
			return err
		}
		view = ports.ViewOf(fresh)
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "job_cancel_failed", "Failed to cancel job", err, map[string]any{
			"job_id":     in.JobID,
			"actor_id":   in.Actor.ID,
			"request_id": correlationID,
		})
		return ports.JobView{}, err
	}

	// repeat cancel: already terminal, nothing to publish
	if oldStatus == job.StatusCancelled {
		return view, nil
	}

	// fan-out: CANCELLED status (best-effort, outside tx)
	if err := service.publishJobStatus(ctx, contracts.JobStatusMessage{
		JobID:     in.JobID,
		OldStatus: oldStatus.String(),
		Status:    job.StatusCancelled.String(),
		DriverID:  driverID,
		Timestamp: cancelledAt,
		Envelope: contracts.Envelope{
			CorrelationID: correlationID,
			Producer:      producerName,
		},
	}); err != nil {
		service.logger.Error(ctx, "job_status_publish_failed", "Failed to publish CANCELLED status", err, map[string]any{
			"job_id":     in.JobID,
			"request_id": correlationID,
		})
	}

	service.logger.Info(ctx, "job_cancelled", fmt.Sprintf("Job %s cancelled", in.JobID), map[string]any{
		"job_id":     in.JobID,
		"reason":     in.Reason,
		"request_id": correlationID,
	})

	return view, nil
}
