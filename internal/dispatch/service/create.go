package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dispatch/internal/contracts"
	"dispatch/internal/domain/job"
	"dispatch/internal/ports"
)

// CreateJob registers a pickup job. The pickup point is resolved against
// operator territories first: inside a territory the job starts DELEGATING and
// belongs to that operator's fleet, otherwise it starts PENDING on the open
// market. The quote is computed once at creation and frozen on the job.
func (service *dispatchService) CreateJob(ctx context.Context, in ports.CreateJobInput) (ports.CreateJobResult, error) {
	if strings.TrimSpace(in.CustomerID) == "" {
		return ports.CreateJobResult{}, fmt.Errorf("%w: customer_id is required", ErrValidation)
	}

	correlationID := generateCorrelationID()

	var created *job.Job

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		// resolve the operator territory, "" means open market
		operatorID, err := service.territoryRepo.ResolveOperator(txCtx, in.Lat, in.Lng)
		if err != nil {
			return err
		}

		jb, err := job.NewJob(in.CustomerID, in.Address, in.Lat, in.Lng, in.Items, operatorID)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrValidation, err.Error())
		}
		jb.VolumeEstimate = in.VolumeEstimate
		jb.ApplyQuote(job.ComputeQuote(in.Items, service.cfg.Engine.DefaultSurge))

		if err := service.jobRepo.CreateJob(txCtx, jb); err != nil {
			return err
		}

		eventData := map[string]any{
			"customer_id": jb.CustomerID,
			"status":      jb.Status.String(),
			"total_price": jb.TotalPrice,
		}
		if operatorID != "" {
			eventData["operator_id"] = operatorID
		}
		if err := service.appendEvent(txCtx, jb.ID, job.EventJobCreated, eventData); err != nil {
			return err
		}
		if jb.Status == job.StatusDelegating {
			if err := service.appendEvent(txCtx, jb.ID, job.EventJobDelegated, map[string]any{
				"operator_id": operatorID,
			}); err != nil {
				return err
			}
		}

		created = jb
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "job_create_failed", "Failed to create job", err, map[string]any{
			"customer_id": in.CustomerID,
			"request_id":  correlationID,
		})
		return ports.CreateJobResult{}, err
	}

	ctx = service.logger.WithJobID(ctx, created.ID)

	// announce the job for pickup feeds (best-effort, outside tx)
	newMsg := contracts.NewJobMessage{
		JobID: created.ID,
		Pickup: contracts.GeoPoint{
			Lat:     created.Lat,
			Lng:     created.Lng,
			Address: created.Address,
		},
		TotalPrice: created.TotalPrice,
		Envelope: contracts.Envelope{
			CorrelationID: correlationID,
			Producer:      producerName,
			SentAt:        time.Now().UTC(),
		},
	}
	if created.OperatorID != nil {
		newMsg.OperatorID = *created.OperatorID
	}
	if err := service.publishNewJob(ctx, newMsg); err != nil {
		service.logger.Error(ctx, "job_new_publish_failed", "Failed to publish new job to RabbitMQ", err, map[string]any{
			"job_id":     created.ID,
			"request_id": correlationID,
		})
	}

	// publish initial status so trackers and the admin board pick it up
	if err := service.publishJobStatus(ctx, contracts.JobStatusMessage{
		JobID:     created.ID,
		Status:    created.Status.String(),
		Timestamp: time.Now().UTC(),
		Envelope: contracts.Envelope{
			CorrelationID: correlationID,
			Producer:      producerName,
		},
	}); err != nil {
		service.logger.Error(ctx, "job_status_publish_failed", "Failed to publish job status to RabbitMQ", err, map[string]any{
			"job_id":     created.ID,
			"request_id": correlationID,
		})
	}

	service.logger.Info(ctx, "job_created", fmt.Sprintf("Job %s created", created.ID), map[string]any{
		"job_id":      created.ID,
		"customer_id": created.CustomerID,
		"status":      created.Status.String(),
		"total_price": created.TotalPrice,
		"request_id":  correlationID,
	})

	result := ports.CreateJobResult{
		JobID:           created.ID,
		Status:          created.Status.String(),
		TotalPrice:      created.TotalPrice,
		SurgeMultiplier: created.SurgeMultiplier,
	}
	if created.OperatorID != nil {
		result.OperatorID = *created.OperatorID
	}
	return result, nil
}
