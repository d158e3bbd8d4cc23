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

// Transition advances a job along EN_ROUTE -> ARRIVED -> STARTED -> COMPLETED.
// Only the assigned driver (or an admin) may drive these edges, and the store
// enforces the lifecycle graph, so a stale or duplicate request cannot skip a
// stage. Repeating the current status is a no-op success.
func (service *dispatchService) Transition(ctx context.Context, in ports.TransitionInput) (ports.JobView, error) {
	ctx = service.logger.WithJobID(ctx, in.JobID)
	correlationID := generateCorrelationID()
	at := time.Now().UTC()

	if !in.Status.Valid() {
		return ports.JobView{}, fmt.Errorf("%w: unknown status %q", ErrValidation, string(in.Status))
	}
	switch in.Status {
	case job.StatusEnRoute, job.StatusArrived, job.StatusStarted, job.StatusCompleted:
	default:
		return ports.JobView{}, fmt.Errorf("%w: status %s cannot be set directly", ErrValidation, in.Status.String())
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

		if jb.DriverID == nil {
			return fmt.Errorf("%w: job has no assigned driver", ErrConflict)
		}
		driverID = *jb.DriverID

		// only the job's own driver may progress it; admins may override
		if !in.Actor.Role.IsAdmin() && in.Actor.ID != driverID {
			return fmt.Errorf("%w: only the assigned driver may update this job", ErrForbidden)
		}

		if !jb.Status.CanTransitionTo(in.Status) {
			if jb.Status == in.Status {
				// repeated transition, report current state unchanged
				view = ports.ViewOf(jb)
				return nil
			}
			return fmt.Errorf("%w: cannot move %s to %s", ErrInvalidTransition, jb.Status.String(), in.Status.String())
		}

		if err := service.jobRepo.UpdateStatus(txCtx, in.JobID, in.Status, at); err != nil {
			// the store re-checks the edge under its row lock
			if errors.Is(err, job.ErrInvalidTransition) {
				return fmt.Errorf("%w: cannot move %s to %s", ErrInvalidTransition, jb.Status.String(), in.Status.String())
			}
			return err
		}

		if err := service.appendEvent(txCtx, in.JobID, job.EventTypeForStatus(in.Status), map[string]any{
			"old_status": oldStatus.String(),
			"new_status": in.Status.String(),
			"actor_id":   in.Actor.ID,
		}); err != nil {
			return err
		}

		// completion settles the driver's counters in the same tx
		if in.Status == job.StatusCompleted {
			earnings := jb.TotalPrice - jb.ServiceFee
			if err := service.contractorRepo.IncrementCountersOnComplete(txCtx, driverID, earnings); err != nil {
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
		service.logger.Error(ctx, "job_transition_failed", "Failed to transition job", err, map[string]any{
			"job_id":     in.JobID,
			"to_status":  in.Status.String(),
			"actor_id":   in.Actor.ID,
			"request_id": correlationID,
		})
		return ports.JobView{}, err
	}

	// no-op repeat: nothing changed, nothing to publish
	if oldStatus == in.Status {
		return view, nil
	}

	// fan-out: new status (best-effort, outside tx)
	if err := service.publishJobStatus(ctx, contracts.JobStatusMessage{
		JobID:     in.JobID,
		OldStatus: oldStatus.String(),
		Status:    in.Status.String(),
		DriverID:  driverID,
		Timestamp: at,
		Envelope: contracts.Envelope{
			CorrelationID: correlationID,
			Producer:      producerName,
		},
	}); err != nil {
		service.logger.Error(ctx, "job_status_publish_failed", "Failed to publish status update", err, map[string]any{
			"job_id":     in.JobID,
			"request_id": correlationID,
		})
	}

	if in.Status == job.StatusCompleted {
		service.publishNotification(ctx, contracts.NotificationRequest{
			CustomerID: view.CustomerID,
			Kind:       "job_update",
			Title:      "Pickup complete",
			Body:       "Your pickup has been completed.",
			Data:       map[string]any{"job_id": in.JobID},
			Envelope: contracts.Envelope{
				CorrelationID: correlationID,
				Producer:      producerName,
				SentAt:        time.Now().UTC(),
			},
		})
	}

	service.logger.Info(ctx, "job_transitioned",
		fmt.Sprintf("Job %s moved %s -> %s", in.JobID, oldStatus.String(), in.Status.String()),
		map[string]any{
			"job_id":     in.JobID,
			"old_status": oldStatus.String(),
			"new_status": in.Status.String(),
			"request_id": correlationID,
		},
	)

	return view, nil
}
