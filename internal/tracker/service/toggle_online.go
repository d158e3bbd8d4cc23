package service

import (
	"context"
	"errors"
	"fmt"

	"dispatch/internal/contracts"
	"dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// ToggleOnline flips a contractor's availability in the store and the session,
// and tells the admin room about the presence change.
func (service *TrackerService) ToggleOnline(ctx context.Context, in ports.ToggleOnlineInput) error {
	corrID := generateCorrelationID()

	var fleetOperatorID *string

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		c, err := service.contractorRepo.GetByID(txCtx, in.ContractorID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("contractor %s does not exist", in.ContractorID)
			}
			return err
		}
		if in.Online && !c.Approved() {
			return fmt.Errorf("contractor %s is not approved", in.ContractorID)
		}
		fleetOperatorID = c.OperatorID

		return service.contractorRepo.SetOnline(txCtx, in.ContractorID, in.Online)
	})
	if err != nil {
		service.logger.Error(ctx, "toggle_online_failed", "Failed to flip contractor availability", err, map[string]any{
			"contractor_id": in.ContractorID,
			"online":        in.Online,
			"request_id":    corrID,
		})
		return err
	}

	s := service.sessions.GetOrCreate(in.ContractorID, fleetOperatorID)
	s.SetOnline(in.Online)

	eventType := contracts.WSEventContractorOffline
	if in.Online {
		eventType = contracts.WSEventContractorOnline
	}
	service.hub.Broadcast(contracts.RoomAdmin, contracts.WSContractorPresence{
		Type:         eventType,
		ContractorID: in.ContractorID,
		Online:       in.Online,
		Envelope: contracts.Envelope{
			CorrelationID: corrID,
			Producer:      producerName,
		},
	})

	service.logger.Info(ctx, "contractor_presence_changed", "Contractor availability changed", map[string]any{
		"contractor_id": in.ContractorID,
		"online":        in.Online,
		"request_id":    corrID,
	})

	return nil
}

// ConnectContractor registers a contractor's socket with the presence
// session, pulling the fleet link from the store so new-job fan-out can tell
// fleets apart. An unknown contractor still gets a session; the store lookup
// is advisory here, approval is enforced when they toggle online.
func (service *TrackerService) ConnectContractor(ctx context.Context, contractorID, connID string) {
	var fleetOperatorID *string

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		c, err := service.contractorRepo.GetByID(txCtx, contractorID)
		if err != nil {
			return err
		}
		fleetOperatorID = c.OperatorID
		return nil
	})
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		service.logger.Error(ctx, "session_fleet_lookup_failed", "Failed to load contractor fleet link", err, map[string]any{
			"contractor_id": contractorID,
		})
	}

	s := service.sessions.GetOrCreate(contractorID, fleetOperatorID)
	s.AddConn(connID)
}

// HandleDisconnect arms the grace window after a contractor's last socket
// drops. A reconnect inside the window cancels the timer; only a true
// departure is demoted to offline.
func (service *TrackerService) HandleDisconnect(ctx context.Context, contractorID, connID string) {
	service.sessions.OnDisconnect(contractorID, connID, func() {
		offCtx := context.WithoutCancel(ctx)
		if err := service.ToggleOnline(offCtx, ports.ToggleOnlineInput{
			ContractorID: contractorID,
			Online:       false,
		}); err != nil {
			service.logger.Error(offCtx, "grace_offline_failed", "Failed to mark contractor offline after grace window", err, map[string]any{
				"contractor_id": contractorID,
			})
		}
	})
}
