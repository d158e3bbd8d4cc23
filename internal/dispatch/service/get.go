package service

import (
	"context"
	"fmt"

	"dispatch/internal/ports"
)

// auditTrailLimit caps how many audit rows a single read returns.
const auditTrailLimit = 100

// GetJob returns the job read model to a party of the job: the customer who
// created it, the assigned driver, the owning operator or an admin.
func (service *dispatchService) GetJob(ctx context.Context, jobID string, actor ports.Actor) (ports.JobView, error) {
	var view ports.JobView

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		jb, err := service.jobRepo.GetByID(txCtx, jobID)
		if err != nil {
			return mapStoreErr(err)
		}

		allowed := actor.Role.IsAdmin() ||
			jb.CustomerID == actor.ID ||
			(jb.DriverID != nil && *jb.DriverID == actor.ID) ||
			(jb.OperatorID != nil && *jb.OperatorID == actor.ID)
		if !allowed {
			return fmt.Errorf("%w: not a party of this job", ErrForbidden)
		}

		view = ports.ViewOf(jb)

		// admins also get the audit trail
		if actor.Role.IsAdmin() {
			events, err := service.jobEventRepo.ListForJob(txCtx, jobID, auditTrailLimit)
			if err != nil {
				return err
			}
			for _, e := range events {
				view.History = append(view.History, ports.JobEventView{
					Type:      e.Type.String(),
					Data:      e.Data,
					CreatedAt: e.CreatedAt,
				})
			}
		}
		return nil
	})
	if err != nil {
		return ports.JobView{}, err
	}

	return view, nil
}
