package service

import (
	"context"
	"strconv"
	"time"

	"dispatch/internal/common/config"
	"dispatch/internal/common/logger"
	"dispatch/internal/ports"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
)

// adminService serves read-only monitoring views over the job and contractor
// stores. It never mutates state.
type adminService struct {
	logger         *logger.Logger
	cfg            *config.Config
	uow            ports.UnitOfWork
	jobRepo        ports.JobRepository
	contractorRepo ports.ContractorRepository
}

// NewAdminService constructs the service with required dependencies.
func NewAdminService(
	logger *logger.Logger,
	cfg *config.Config,
	uow ports.UnitOfWork,
	jobRepo ports.JobRepository,
	contractorRepo ports.ContractorRepository,
) ports.AdminService {
	return &adminService{
		logger:         logger,
		cfg:            cfg,
		uow:            uow,
		jobRepo:        jobRepo,
		contractorRepo: contractorRepo,
	}
}

// GetSystemOverview aggregates the dashboard KPIs. "Today" is the current
// UTC calendar day.
func (service *adminService) GetSystemOverview(ctx context.Context) (ports.SystemOverviewResult, error) {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var m ports.OverviewMetrics
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		if m.ActiveJobs, err = service.jobRepo.CountActive(txCtx); err != nil {
			return err
		}
		if m.JobsToday, err = service.jobRepo.CountCreatedBetween(txCtx, midnight, now); err != nil {
			return err
		}
		if m.RevenueToday, err = service.jobRepo.SumRevenueCompletedBetween(txCtx, midnight, now); err != nil {
			return err
		}
		if m.CancellationRate, err = service.jobRepo.CancellationRateBetween(txCtx, midnight, now); err != nil {
			return err
		}
		if m.OnlineContractors, err = service.contractorRepo.CountOnline(txCtx); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "overview_failed", "Failed to aggregate system overview", err, nil)
		return ports.SystemOverviewResult{}, err
	}

	return ports.SystemOverviewResult{Timestamp: now, Metrics: m}, nil
}

// GetActiveJobs returns the live jobs page for the admin map. page and
// pageSize arrive as raw query strings; anything unparsable falls back to
// the defaults.
func (service *adminService) GetActiveJobs(ctx context.Context, page, pageSize string) (ports.ActiveJobsResult, error) {
	p := parsePositive(page, defaultPage)
	size := parsePositive(pageSize, defaultPageSize)
	if size > maxPageSize {
		size = maxPageSize
	}
	offset := (p - 1) * size

	var rows []ports.ActiveJobRow
	var total int
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		rows, total, err = service.jobRepo.HydrateActiveRows(txCtx, offset, size)
		return err
	})
	if err != nil {
		service.logger.Error(ctx, "active_jobs_failed", "Failed to load active jobs", err, nil)
		return ports.ActiveJobsResult{}, err
	}

	if rows == nil {
		rows = []ports.ActiveJobRow{}
	}
	return ports.ActiveJobsResult{
		Jobs:       rows,
		TotalCount: total,
		Page:       p,
		PageSize:   size,
	}, nil
}

func parsePositive(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
