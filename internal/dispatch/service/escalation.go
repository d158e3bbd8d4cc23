package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dispatch/internal/contracts"
	"dispatch/internal/domain/job"
	"dispatch/internal/ports"

	"github.com/robfig/cron/v3"
)

// StartEscalationSweeper schedules the periodic sweep that reverts delegated
// assignments nobody confirmed in time. Safe to run in every dispatch
// instance: the revert is conditional in the store, so two sweepers racing
// revert each job exactly once.
func (service *dispatchService) StartEscalationSweeper(ctx context.Context) error {
	if service.sweeper != nil {
		return nil
	}

	runner := cron.New()
	spec := fmt.Sprintf("@every %s", service.cfg.Engine.EscalationSweepPeriod)

	_, err := runner.AddFunc(spec, func() {
		service.sweepStaleAssignments(context.WithoutCancel(ctx))
	})
	if err != nil {
		return fmt.Errorf("schedule escalation sweep: %w", err)
	}

	runner.Start()
	service.sweeper = runner

	service.logger.Info(ctx, "escalation_sweeper_started", "Escalation sweeper scheduled", map[string]any{
		"period":             service.cfg.Engine.EscalationSweepPeriod.String(),
		"delegation_timeout": service.cfg.Engine.DelegationTimeout.String(),
	})

	return nil
}

// StopEscalationSweeper stops the sweep schedule and waits for a running sweep.
func (service *dispatchService) StopEscalationSweeper() {
	if service.sweeper == nil {
		return
	}
	<-service.sweeper.Stop().Done()
	service.sweeper = nil
}

// sweepStaleAssignments reverts every ASSIGNED job whose confirm window
// lapsed back to DELEGATING and escalates each one to its operator.
func (service *dispatchService) sweepStaleAssignments(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-service.cfg.Engine.DelegationTimeout)

	var reverted []ports.RevertedAssignment
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		reverted, err = service.jobRepo.RevertStaleAssignments(txCtx, cutoff)
		if err != nil {
			return err
		}
		for _, ra := range reverted {
			if err := service.appendEvent(txCtx, ra.Job.ID, job.EventDelegationTimedOut, map[string]any{
				"lapsed_driver_id": ra.LapsedDriverID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "escalation_sweep_failed", "Failed to revert stale assignments", err, nil)
		return
	}
	if len(reverted) == 0 {
		return
	}

	now := time.Now().UTC()
	for _, ra := range reverted {
		jb := ra.Job
		jobCtx := service.logger.WithJobID(ctx, jb.ID)
		correlationID := generateCorrelationID()

		operatorID := ""
		if jb.OperatorID != nil {
			operatorID = *jb.OperatorID
		}

		// tell the operator the assignment lapsed
		msg := contracts.EscalationMessage{
			JobID:          jb.ID,
			OperatorID:     operatorID,
			LapsedDriverID: ra.LapsedDriverID,
			RevertedAt:     now,
			Envelope: contracts.Envelope{
				CorrelationID: correlationID,
				Producer:      producerName,
				SentAt:        now,
			},
		}
		if err := service.publishEscalation(jobCtx, msg); err != nil {
			service.logger.Error(jobCtx, "escalation_publish_failed", "Failed to publish escalation", err, map[string]any{
				"job_id":      jb.ID,
				"operator_id": operatorID,
			})
		}

		// and put the job back on the fleet's radar
		if err := service.publishJobStatus(jobCtx, contracts.JobStatusMessage{
			JobID:     jb.ID,
			OldStatus: job.StatusAssigned.String(),
			Status:    job.StatusDelegating.String(),
			Timestamp: now,
			Envelope: contracts.Envelope{
				CorrelationID: correlationID,
				Producer:      producerName,
			},
		}); err != nil {
			service.logger.Error(jobCtx, "job_status_publish_failed", "Failed to publish DELEGATING status", err, map[string]any{
				"job_id": jb.ID,
			})
		}

		service.logger.Info(jobCtx, "delegation_escalated",
			fmt.Sprintf("Job %s assignment lapsed, reverted to DELEGATING", jb.ID),
			map[string]any{
				"job_id":      jb.ID,
				"operator_id": operatorID,
				"request_id":  correlationID,
			},
		)
	}
}

// publishEscalation routes the message to the operator's escalation stream,
// job.escalation.{operator_id}.
func (service *dispatchService) publishEscalation(ctx context.Context, msg contracts.EscalationMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return service.pub.Publish(contracts.ExchangeJobTopic, contracts.RouteEscalationPrefix+msg.OperatorID, body)
}
