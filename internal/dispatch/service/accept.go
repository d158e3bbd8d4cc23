package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dispatch/internal/contracts"
	"dispatch/internal/domain/job"
	"dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// Accept arbitrates competing claims for one job. The decision is a single
// conditional write in the store, so exactly one contractor wins no matter how
// many accept at once; everyone else gets ErrConflict and the job unchanged.
// For a delegated job only the assigned fleet driver may confirm.
func (service *dispatchService) Accept(ctx context.Context, jobID, contractorID string) (ports.AcceptResult, error) {
	ctx = service.logger.WithJobID(ctx, jobID)
	correlationID := generateCorrelationID()
	acceptedAt := time.Now().UTC()

	var (
		won        bool
		customerID string
	)

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		// the contractor must exist, be approved and be free
		c, err := service.contractorRepo.GetByID(txCtx, contractorID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: contractor does not exist", ErrNotFound)
			}
			return err
		}
		if !c.Approved() {
			return fmt.Errorf("%w: contractor is not approved", ErrForbidden)
		}

		active, err := service.jobRepo.GetActiveForDriver(txCtx, contractorID)
		if err != nil {
			return err
		}
		if active != nil && active.ID != jobID {
			return fmt.Errorf("%w: contractor already holds an active job", ErrConflict)
		}

		// the arbiter: one conditional write decides the winner
		ok, err := service.jobRepo.Claim(txCtx, jobID, contractorID, acceptedAt)
		if err != nil {
			return err
		}
		won = ok
		if !won {
			// distinguish a lost race from a missing job for the caller
			jb, err := service.jobRepo.GetByID(txCtx, jobID)
			if err != nil {
				return mapStoreErr(err)
			}
			return fmt.Errorf("%w: job is %s", ErrConflict, jb.Status.String())
		}

		jb, err := service.jobRepo.GetByID(txCtx, jobID)
		if err != nil {
			return err
		}
		customerID = jb.CustomerID

		return service.appendEvent(txCtx, jobID, job.EventJobAccepted, map[string]any{
			"contractor_id": contractorID,
		})
	})
	if err != nil {
		service.logger.Error(ctx, "job_accept_failed", "Failed to accept job", err, map[string]any{
			"job_id":        jobID,
			"contractor_id": contractorID,
			"request_id":    correlationID,
		})
		return ports.AcceptResult{}, err
	}

	// fan-out: accepted status, losers' feeds converge on it (best-effort, outside tx)
	if err := service.publishJobStatus(ctx, contracts.JobStatusMessage{
		JobID:     jobID,
		Status:    job.StatusAccepted.String(),
		DriverID:  contractorID,
		Timestamp: acceptedAt,
		Envelope: contracts.Envelope{
			CorrelationID: correlationID,
			Producer:      producerName,
		},
	}); err != nil {
		service.logger.Error(ctx, "job_status_publish_failed", "Failed to publish ACCEPTED status", err, map[string]any{
			"job_id":     jobID,
			"request_id": correlationID,
		})
	}

	service.publishNotification(ctx, contracts.NotificationRequest{
		CustomerID: customerID,
		Kind:       "job_accepted",
		Title:      "Driver on the way",
		Body:       "A driver accepted your pickup request.",
		Data:       map[string]any{"job_id": jobID, "driver_id": contractorID},
		Envelope: contracts.Envelope{
			CorrelationID: correlationID,
			Producer:      producerName,
			SentAt:        time.Now().UTC(),
		},
	})

	service.logger.Info(ctx, "job_accepted", fmt.Sprintf("Job %s accepted", jobID), map[string]any{
		"job_id":        jobID,
		"contractor_id": contractorID,
		"request_id":    correlationID,
	})

	return ports.AcceptResult{
		JobID:      jobID,
		Status:     job.StatusAccepted.String(),
		AcceptedAt: acceptedAt,
	}, nil
}
