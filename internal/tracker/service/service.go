package service

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"dispatch/internal/common/config"
	"dispatch/internal/common/logger"
	"dispatch/internal/ports"
	"dispatch/internal/rabbitmq"
	"dispatch/internal/realtime"
)

const producerName = "tracker-service"

// TrackerService ingests driver state and fans engine events out to the
// realtime hub. It owns the ephemeral presence sessions; the contractor store
// only mirrors the durable bits (online flag, last location).
type TrackerService struct {
	logger         *logger.Logger
	cfg            *config.Config
	uow            ports.UnitOfWork
	contractorRepo ports.ContractorRepository
	jobRepo        ports.JobRepository
	sessions       *realtime.SessionRegistry
	hub            *realtime.Hub
	pub            ports.EventPublisher
	mq             *rabbitmq.Client
	prefetch       int
}

// NewTrackerService constructs the service with required dependencies.
func NewTrackerService(
	logger *logger.Logger,
	cfg *config.Config,
	uow ports.UnitOfWork,
	contractorRepo ports.ContractorRepository,
	jobRepo ports.JobRepository,
	sessions *realtime.SessionRegistry,
	hub *realtime.Hub,
	pub *rabbitmq.MQPublisher,
	mq *rabbitmq.Client,
) *TrackerService {
	return &TrackerService{
		logger:         logger,
		cfg:            cfg,
		uow:            uow,
		contractorRepo: contractorRepo,
		jobRepo:        jobRepo,
		sessions:       sessions,
		hub:            hub,
		pub:            pub,
		mq:             mq,
	}
}

// Sessions exposes the registry to the WS handler.
func (service *TrackerService) Sessions() *realtime.SessionRegistry {
	return service.sessions
}

// Hub exposes the realtime hub to the WS handler.
func (service *TrackerService) Hub() *realtime.Hub {
	return service.hub
}

// generateCorrelationID creates a simple correlation ID for tracing requests.
func generateCorrelationID() string {
	var b [3]byte // 6 hex chars
	_, _ = rand.Read(b[:])
	ts := time.Now().UTC().Format("20060102T150405")
	return "req_" + ts + "_" + hex.EncodeToString(b[:])
}
