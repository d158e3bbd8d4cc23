package service

import (
	"dispatch/internal/common/config"
	"dispatch/internal/common/logger"
	"dispatch/internal/ports"
	"dispatch/internal/rabbitmq"

	"github.com/robfig/cron/v3"
)

// dispatchService encapsulates the job lifecycle logic and dependencies.
type dispatchService struct {
	logger         *logger.Logger
	cfg            *config.Config
	uow            ports.UnitOfWork
	jobRepo        ports.JobRepository
	jobEventRepo   ports.JobEventRepository
	contractorRepo ports.ContractorRepository
	territoryRepo  ports.TerritoryRepository
	pub            ports.EventPublisher

	sweeper *cron.Cron
}

// NewDispatchService creates a new DispatchService with the provided dependencies.
func NewDispatchService(
	logger *logger.Logger,
	cfg *config.Config,
	uow ports.UnitOfWork,
	jobRepo ports.JobRepository,
	jobEventRepo ports.JobEventRepository,
	contractorRepo ports.ContractorRepository,
	territoryRepo ports.TerritoryRepository,
	pub *rabbitmq.MQPublisher,
) ports.DispatchService {
	return &dispatchService{
		logger:         logger,
		cfg:            cfg,
		uow:            uow,
		jobRepo:        jobRepo,
		jobEventRepo:   jobEventRepo,
		contractorRepo: contractorRepo,
		territoryRepo:  territoryRepo,
		pub:            pub,
	}
}
