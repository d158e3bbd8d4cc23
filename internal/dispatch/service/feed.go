package service

import (
	"context"
	"errors"
	"fmt"

	"dispatch/internal/domain/geo"
	"dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

const feedLimit = 50

// Feed returns the jobs a contractor may claim near a point: open-market
// PENDING jobs for everyone, plus DELEGATING jobs of the contractor's own
// fleet operator. Nearest first, then oldest, capped at feedLimit.
func (service *dispatchService) Feed(ctx context.Context, in ports.FeedInput) ([]ports.FeedEntry, error) {
	if err := (geo.Point{Lat: in.Lat, Lng: in.Lng}).Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	radius := in.RadiusKM
	if radius <= 0 {
		radius = service.cfg.Engine.FeedRadiusKM
	}

	var rows []ports.EligibleJobRow

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		c, err := service.contractorRepo.GetByID(txCtx, in.ContractorID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: contractor does not exist", ErrNotFound)
			}
			return err
		}
		if !c.Approved() {
			return fmt.Errorf("%w: contractor is not approved", ErrForbidden)
		}

		rows, err = service.jobRepo.FindEligible(txCtx, in.Lat, in.Lng, radius, c.OperatorID, feedLimit)
		return err
	})
	if err != nil {
		service.logger.Error(ctx, "job_feed_failed", "Failed to build job feed", err, map[string]any{
			"contractor_id": in.ContractorID,
		})
		return nil, err
	}

	entries := make([]ports.FeedEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, ports.FeedEntry{
			JobID:      row.Job.ID,
			Address:    row.Job.Address,
			Lat:        row.Job.Lat,
			Lng:        row.Job.Lng,
			Status:     row.Job.Status.String(),
			TotalPrice: row.Job.TotalPrice,
			DistanceKM: row.DistanceKM,
			CreatedAt:  row.Job.CreatedAt,
		})
	}

	return entries, nil
}
