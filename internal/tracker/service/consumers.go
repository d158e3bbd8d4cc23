package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dispatch/internal/contracts"
	"dispatch/internal/domain/contractor"
	"dispatch/internal/domain/geo"
	"dispatch/internal/domain/job"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	consumerRetryDelay = 3 * time.Second
	defaultPrefetch    = 10
)

// SetConsumerPrefetch overrides the per-channel prefetch before the consumers
// start. Zero or negative keeps the default.
func (service *TrackerService) SetConsumerPrefetch(n int) {
	if n > 0 {
		service.prefetch = n
	}
}

// RunBackgroundConsumers starts the broker consumers that feed the realtime
// hub. Each consumer runs in its own goroutine and reconnects with a fixed
// delay until ctx is cancelled. The call itself returns immediately.
func (service *TrackerService) RunBackgroundConsumers(ctx context.Context) {
	go service.consumeLoop(ctx, contracts.QueueJobStatus, "tracker-job-status", service.handleJobStatusDelivery)
	go service.consumeLoop(ctx, contracts.QueueJobEscalations, "tracker-escalations", service.handleEscalationDelivery)
}

// consumeLoop keeps one queue consumer alive across channel and connection
// failures. Consume blocks until the channel dies or ctx is cancelled.
func (service *TrackerService) consumeLoop(
	ctx context.Context,
	queue string,
	tag string,
	handler func(context.Context, amqp.Delivery) error,
) {
	prefetch := service.prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	for {
		err := service.mq.Consume(ctx, queue, tag, prefetch, handler)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			service.logger.Error(ctx, "consumer_restart", "Queue consumer stopped, restarting", err, map[string]any{
				"queue": queue,
			})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(consumerRetryDelay):
		}
	}
}

// handleJobStatusDelivery relays job.new announcements and job.status.*
// transitions onto the websocket rooms.
func (service *TrackerService) handleJobStatusDelivery(ctx context.Context, d amqp.Delivery) error {
	if d.RoutingKey == contracts.RouteJobNew {
		return service.relayNewJob(ctx, d.Body)
	}
	if strings.HasPrefix(d.RoutingKey, contracts.RouteJobStatusPrefix) {
		return service.relayJobStatus(ctx, d.Body)
	}

	service.logger.Debug(ctx, "consumer_skip", "Ignoring delivery with unknown routing key", map[string]any{
		"queue":       contracts.QueueJobStatus,
		"routing_key": d.RoutingKey,
	})
	return nil
}

func (service *TrackerService) relayNewJob(ctx context.Context, body []byte) error {
	var msg contracts.NewJobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode new job message: %w", err)
	}
	if msg.JobID == "" {
		return fmt.Errorf("new job message without job_id")
	}

	ev := contracts.WSNewJob{
		Type:       contracts.WSEventJobNew,
		JobID:      msg.JobID,
		Pickup:     msg.Pickup,
		TotalPrice: msg.TotalPrice,
		Envelope:   msg.Envelope,
	}
	service.hub.Broadcast(contracts.RoomAdmin, ev)

	// push to every connected contractor whose live session makes the job
	// claimable, mirroring the pickup feed rules
	pushed := 0
	for _, s := range service.sessions.Snapshot() {
		distance, ok := sessionJobDistance(s, &msg, service.cfg.Engine.FeedRadiusKM)
		if !ok {
			continue
		}
		driverEv := ev
		driverEv.DistanceKM = distance
		for _, connID := range s.ConnIDs() {
			if err := service.hub.SendTo(connID, driverEv); err == nil {
				pushed++
			}
		}
	}

	service.logger.Debug(ctx, "job_new_relayed", "New job pushed to realtime clients", map[string]any{
		"job_id":      msg.JobID,
		"connections": pushed,
	})
	return nil
}

// sessionJobDistance reports whether a live session is eligible for job
// announcements and at what distance: the contractor must be online with a
// known position inside radiusKM, and a fleet-exclusive job only reaches
// that operator's own contractors.
func sessionJobDistance(s *contractor.Session, msg *contracts.NewJobMessage, radiusKM float64) (float64, bool) {
	if !s.Online() {
		return 0, false
	}
	if msg.OperatorID != "" {
		op := s.FleetOperatorID()
		if op == nil || *op != msg.OperatorID {
			return 0, false
		}
	}
	fix, ok := s.LastLocation()
	if !ok {
		return 0, false
	}
	distance := fix.Point.DistanceKM(geo.Point{Lat: msg.Pickup.Lat, Lng: msg.Pickup.Lng})
	if distance > radiusKM {
		return 0, false
	}
	return distance, true
}

func (service *TrackerService) relayJobStatus(ctx context.Context, body []byte) error {
	var msg contracts.JobStatusMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode job status message: %w", err)
	}
	if msg.JobID == "" {
		return fmt.Errorf("job status message without job_id")
	}

	// acceptance gets its own event name so driver apps can tell a won claim
	// apart from an ordinary progress update
	eventType := contracts.WSEventJobStatus
	if msg.Status == job.StatusAccepted.String() {
		eventType = contracts.WSEventJobAccepted
	}

	ev := contracts.WSJobStatus{
		Type:     eventType,
		JobID:    msg.JobID,
		Status:   msg.Status,
		DriverID: msg.DriverID,
		Envelope: msg.Envelope,
	}
	service.hub.Broadcast(contracts.JobRoom(msg.JobID), ev)
	service.hub.Broadcast(contracts.RoomAdmin, ev)
	return nil
}

// handleEscalationDelivery relays lapsed delegations to the job room and the
// admin room. The affected operator sits in both, having joined them on
// connect.
func (service *TrackerService) handleEscalationDelivery(ctx context.Context, d amqp.Delivery) error {
	var msg contracts.EscalationMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		return fmt.Errorf("decode escalation message: %w", err)
	}
	if msg.JobID == "" {
		return fmt.Errorf("escalation message without job_id")
	}

	ev := contracts.WSJobStatus{
		Type:     contracts.WSEventJobStatus,
		JobID:    msg.JobID,
		Status:   job.StatusDelegating.String(),
		Envelope: msg.Envelope,
	}
	service.hub.Broadcast(contracts.JobRoom(msg.JobID), ev)
	service.hub.Broadcast(contracts.RoomAdmin, ev)

	service.logger.Info(ctx, "escalation_relayed", "Delegation escalation pushed to realtime clients", map[string]any{
		"job_id":           msg.JobID,
		"operator_id":      msg.OperatorID,
		"lapsed_driver_id": msg.LapsedDriverID,
	})
	return nil
}
