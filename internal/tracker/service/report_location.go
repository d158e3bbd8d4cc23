package service

import (
	"context"
	"encoding/json"
	"time"

	"dispatch/internal/contracts"
	"dispatch/internal/domain/geo"
	"dispatch/internal/ports"
)

// ReportLocation applies one GPS fix. Ordering is by the fix's own timestamp,
// not arrival order: the session and the store both reject fixes that are not
// strictly newer than what they hold, so replayed or out-of-order batches
// converge on the newest fix no matter how they interleave. Stale fixes are
// acknowledged with Applied=false, never an error.
func (service *TrackerService) ReportLocation(ctx context.Context, in ports.ReportLocationInput) (ports.ReportLocationResult, error) {
	corrID := generateCorrelationID()

	recordedAt := in.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	fix := geo.StampedPoint{
		Point:      geo.Point{Lat: in.Lat, Lng: in.Lng},
		RecordedAt: recordedAt.UTC(),
	}
	if err := fix.Validate(); err != nil {
		return ports.ReportLocationResult{}, err
	}

	var (
		applied     bool
		activeJobID string
	)

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		// conditional write: the store also compares timestamps
		ok, err := service.contractorRepo.UpdateLocation(txCtx, in.ContractorID, fix)
		if err != nil {
			return err
		}
		applied = ok
		if !applied {
			return nil
		}

		if jb, err := service.jobRepo.GetActiveForDriver(txCtx, in.ContractorID); err == nil && jb != nil {
			activeJobID = jb.ID
		}
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "location_report_failed", "Failed to apply location fix", err, map[string]any{
			"contractor_id": in.ContractorID,
			"request_id":    corrID,
		})
		return ports.ReportLocationResult{}, err
	}

	if !applied {
		service.logger.Debug(ctx, "location_fix_stale", "Dropped stale location fix", map[string]any{
			"contractor_id": in.ContractorID,
			"recorded_at":   fix.RecordedAt.Format(time.RFC3339),
		})
		return ports.ReportLocationResult{Applied: false, RecordedAt: fix.RecordedAt}, nil
	}

	// keep the in-memory session in step with the store
	if s, ok := service.sessions.Get(in.ContractorID); ok {
		s.ApplyLocation(fix)
	}

	// fan out on the location exchange (best-effort, outside tx)
	locMsg := contracts.LocationMessage{
		ContractorID: in.ContractorID,
		Lat:          fix.Lat,
		Lng:          fix.Lng,
		RecordedAt:   fix.RecordedAt,
		JobID:        activeJobID,
		Envelope: contracts.Envelope{
			Producer:      producerName,
			CorrelationID: corrID,
			SentAt:        time.Now().UTC(),
		},
	}
	if body, err := json.Marshal(locMsg); err == nil {
		if err := service.pub.Publish(contracts.ExchangeLocationFanout, "", body); err != nil {
			service.logger.Error(ctx, "location_publish_failed", "Failed to broadcast location fix to RabbitMQ", err, map[string]any{
				"contractor_id": in.ContractorID,
				"request_id":    corrID,
			})
		}
	}

	// live parties see the driver move; hub writes are fire-and-forget
	wsMsg := contracts.WSDriverLocation{
		Type:         contracts.WSEventDriverLocation,
		ContractorID: in.ContractorID,
		Lat:          fix.Lat,
		Lng:          fix.Lng,
		RecordedAt:   fix.RecordedAt,
		JobID:        activeJobID,
		Envelope: contracts.Envelope{
			CorrelationID: corrID,
			Producer:      producerName,
		},
	}
	for _, room := range locationRooms(activeJobID) {
		service.hub.Broadcast(room, wsMsg)
	}

	return ports.ReportLocationResult{Applied: true, RecordedAt: fix.RecordedAt}, nil
}

// locationRooms lists the rooms a driver:location event reaches. An idle
// contractor's fixes only feed the store and the fanout exchange; the job
// room and the admin board hear from drivers on an active job.
func locationRooms(activeJobID string) []string {
	if activeJobID == "" {
		return nil
	}
	return []string{contracts.JobRoom(activeJobID), contracts.RoomAdmin}
}
