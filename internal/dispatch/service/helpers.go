package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dispatch/internal/contracts"
	"dispatch/internal/domain/job"

	"github.com/jackc/pgx/v5"
)

const producerName = "dispatch-service"

// generateCorrelationID creates a simple correlation ID for tracing requests.
func generateCorrelationID() string {
	var b [3]byte // 6 hex chars
	_, _ = rand.Read(b[:])
	ts := time.Now().UTC().Format("20060102T150405")
	return "req_" + ts + "_" + hex.EncodeToString(b[:])
}

// publishJobStatus sends a status update to the job topic exchange using
// routing key job.status.{status}, e.g. job.status.accepted.
func (service *dispatchService) publishJobStatus(ctx context.Context, msg contracts.JobStatusMessage) error {
	routingKey := contracts.RouteJobStatusPrefix + strings.ToLower(msg.Status)

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := service.pub.Publish(contracts.ExchangeJobTopic, routingKey, body); err != nil {
		return err
	}

	service.logger.Info(ctx, "job_status_published", "Published job status to RabbitMQ", map[string]any{
		"routing_key": routingKey,
	})

	return nil
}

// publishNewJob announces a fresh open-market or fleet job on job.new.
func (service *dispatchService) publishNewJob(ctx context.Context, msg contracts.NewJobMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := service.pub.Publish(contracts.ExchangeJobTopic, contracts.RouteJobNew, body); err != nil {
		return err
	}

	service.logger.Info(ctx, "job_new_published", "Published new job to RabbitMQ", map[string]any{
		"routing_key": contracts.RouteJobNew,
	})

	return nil
}

// publishNotification emits a push request for the customer on
// notify.customer.{customer_id}. The engine never delivers pushes itself.
func (service *dispatchService) publishNotification(ctx context.Context, msg contracts.NotificationRequest) {
	routingKey := contracts.RouteNotifyPrefix + msg.CustomerID

	body, err := json.Marshal(msg)
	if err != nil {
		service.logger.Error(ctx, "notification_marshal_failed", "Failed to marshal notification request", err, nil)
		return
	}
	if err := service.pub.Publish(contracts.ExchangeJobTopic, routingKey, body); err != nil {
		service.logger.Error(ctx, "notification_publish_failed", "Failed to publish notification request", err, map[string]any{
			"routing_key": routingKey,
		})
	}
}

// appendEvent adds a row to the job's audit trail. Callers invoke it inside
// their transaction so the trail commits together with the state change.
func (service *dispatchService) appendEvent(ctx context.Context, jobID string, eventType job.EventType, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	event, err := job.NewEvent(jobID, eventType, data)
	if err != nil {
		return err
	}
	return service.jobEventRepo.Append(ctx, event)
}

// mapStoreErr converts row-not-found into the service's sentinel.
func mapStoreErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, "job does not exist")
	}
	return err
}
