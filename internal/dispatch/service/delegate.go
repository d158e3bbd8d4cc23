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

// Delegate hands a DELEGATING fleet job to one of the operator's contractors.
// The assignment is provisional: the driver must confirm (accept) within the
// configured window or the sweeper reverts the job and escalates back to the
// operator. An operator can never delegate another operator's job.
func (service *dispatchService) Delegate(ctx context.Context, in ports.DelegateInput) (ports.DelegateResult, error) {
	ctx = service.logger.WithJobID(ctx, in.JobID)
	correlationID := generateCorrelationID()
	assignedAt := time.Now().UTC()

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		jb, err := service.jobRepo.GetByID(txCtx, in.JobID)
		if err != nil {
			return mapStoreErr(err)
		}

		// ownership check before any state is touched
		if jb.OperatorID == nil || *jb.OperatorID != in.OperatorID {
			return fmt.Errorf("%w: job does not belong to this operator", ErrForbidden)
		}

		c, err := service.contractorRepo.GetByID(txCtx, in.ContractorID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: contractor does not exist", ErrNotFound)
			}
			return err
		}
		if !c.InFleetOf(in.OperatorID) {
			return fmt.Errorf("%w: contractor is not in this operator's fleet", ErrForbidden)
		}
		if !c.Approved() {
			return fmt.Errorf("%w: contractor is not approved", ErrForbidden)
		}

		ok, err := service.jobRepo.AssignDriver(txCtx, in.JobID, in.ContractorID, assignedAt)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: job is %s", ErrConflict, jb.Status.String())
		}

		return service.appendEvent(txCtx, in.JobID, job.EventDriverAssigned, map[string]any{
			"operator_id":   in.OperatorID,
			"contractor_id": in.ContractorID,
		})
	})
	if err != nil {
		service.logger.Error(ctx, "job_delegate_failed", "Failed to delegate job", err, map[string]any{
			"job_id":        in.JobID,
			"operator_id":   in.OperatorID,
			"contractor_id": in.ContractorID,
			"request_id":    correlationID,
		})
		return ports.DelegateResult{}, err
	}

	// fan-out: ASSIGNED status (best-effort, outside tx)
	if err := service.publishJobStatus(ctx, contracts.JobStatusMessage{
		JobID:     in.JobID,
		OldStatus: job.StatusDelegating.String(),
		Status:    job.StatusAssigned.String(),
		DriverID:  in.ContractorID,
		Timestamp: assignedAt,
		Envelope: contracts.Envelope{
			CorrelationID: correlationID,
			Producer:      producerName,
		},
	}); err != nil {
		service.logger.Error(ctx, "job_status_publish_failed", "Failed to publish ASSIGNED status", err, map[string]any{
			"job_id":     in.JobID,
			"request_id": correlationID,
		})
	}

	confirmBy := assignedAt.Add(service.cfg.Engine.DelegationTimeout)

	service.logger.Info(ctx, "job_delegated", fmt.Sprintf("Job %s delegated", in.JobID), map[string]any{
		"job_id":        in.JobID,
		"operator_id":   in.OperatorID,
		"contractor_id": in.ContractorID,
		"confirm_by":    confirmBy.Format(time.RFC3339),
		"request_id":    correlationID,
	})

	return ports.DelegateResult{
		JobID:      in.JobID,
		DriverID:   in.ContractorID,
		Status:     job.StatusAssigned.String(),
		AssignedAt: assignedAt,
		ConfirmBy:  confirmBy,
	}, nil
}
