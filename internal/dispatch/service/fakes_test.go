package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dispatch/internal/common/config"
	"dispatch/internal/common/logger"
	"dispatch/internal/domain/contractor"
	"dispatch/internal/domain/geo"
	"dispatch/internal/domain/job"
	"dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// ----- in-memory doubles for the store and the broker -----

type memUoW struct{}

func (memUoW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type published struct {
	Exchange   string
	RoutingKey string
	Body       []byte
}

type memPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *memPublisher) Publish(exchange, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(body))
	copy(cp, body)
	p.msgs = append(p.msgs, published{Exchange: exchange, RoutingKey: routingKey, Body: cp})
	return nil
}

func (p *memPublisher) byKey(key string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.msgs {
		if m.RoutingKey == key {
			out = append(out, m)
		}
	}
	return out
}

type memJobRepo struct {
	mu   sync.Mutex
	seq  int
	jobs map[string]*job.Job

	eligible   []ports.EligibleJobRow
	lastRadius float64
	lastOp     *string
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[string]*job.Job)}
}

func (r *memJobRepo) put(jb *job.Job) *job.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	if jb.ID == "" {
		r.seq++
		jb.ID = fmt.Sprintf("job-%03d", r.seq)
	}
	r.jobs[jb.ID] = jb
	return jb
}

func (r *memJobRepo) CreateJob(_ context.Context, jb *job.Job) error {
	r.put(jb)
	return nil
}

func (r *memJobRepo) GetByID(_ context.Context, id string) (*job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	jb, ok := r.jobs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *jb
	return &cp, nil
}

func (r *memJobRepo) GetActiveForDriver(_ context.Context, driverID string) (*job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, jb := range r.jobs {
		if jb.DriverID != nil && *jb.DriverID == driverID && jb.Status.HasDriver() && !jb.Status.Terminal() {
			cp := *jb
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memJobRepo) ListActiveForOperator(_ context.Context, operatorID string) ([]*job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*job.Job
	for _, jb := range r.jobs {
		if jb.OperatorID != nil && *jb.OperatorID == operatorID && !jb.Status.Terminal() {
			cp := *jb
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memJobRepo) FindEligible(_ context.Context, _, _, radiusKm float64, operatorID *string, _ int) ([]ports.EligibleJobRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastRadius = radiusKm
	r.lastOp = operatorID
	return r.eligible, nil
}

func (r *memJobRepo) Claim(_ context.Context, jobID, driverID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	jb, ok := r.jobs[jobID]
	if !ok {
		return false, nil
	}
	open := jb.Status == job.StatusPending && jb.DriverID == nil
	confirm := jb.Status == job.StatusAssigned && jb.DriverID != nil && *jb.DriverID == driverID
	if !open && !confirm {
		return false, nil
	}
	d := driverID
	jb.DriverID = &d
	jb.Status = job.StatusAccepted
	jb.AcceptedAt = &at
	return true, nil
}

func (r *memJobRepo) AssignDriver(_ context.Context, jobID, driverID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	jb, ok := r.jobs[jobID]
	if !ok || jb.Status != job.StatusDelegating || jb.DriverID != nil {
		return false, nil
	}
	d := driverID
	jb.DriverID = &d
	jb.Status = job.StatusAssigned
	jb.AssignedAt = &at
	return true, nil
}

func (r *memJobRepo) UpdateStatus(_ context.Context, id string, status job.Status, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	jb, ok := r.jobs[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if jb.Status == status {
		return nil
	}
	if !jb.Status.CanTransitionTo(status) {
		return job.ErrInvalidTransition
	}
	jb.Status = status
	switch status {
	case job.StatusEnRoute:
		jb.EnRouteAt = &at
	case job.StatusArrived:
		jb.ArrivedAt = &at
	case job.StatusStarted:
		jb.StartedAt = &at
	case job.StatusCompleted:
		jb.CompletedAt = &at
	}
	return nil
}

func (r *memJobRepo) Cancel(_ context.Context, jobID, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	jb, ok := r.jobs[jobID]
	if !ok {
		return pgx.ErrNoRows
	}
	if jb.Status == job.StatusCancelled {
		return nil
	}
	if jb.Status == job.StatusCompleted {
		return job.ErrInvalidTransition
	}
	jb.Status = job.StatusCancelled
	jb.CancelledAt = &at
	if reason != "" {
		rs := reason
		jb.CancellationReason = &rs
	}
	return nil
}

func (r *memJobRepo) RevertStaleAssignments(_ context.Context, cutoff time.Time) ([]ports.RevertedAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ports.RevertedAssignment
	for _, jb := range r.jobs {
		if jb.Status != job.StatusAssigned || jb.OperatorID == nil {
			continue
		}
		if jb.AssignedAt == nil || !jb.AssignedAt.Before(cutoff) {
			continue
		}
		lapsed := ""
		if jb.DriverID != nil {
			lapsed = *jb.DriverID
		}
		jb.DriverID = nil
		jb.AssignedAt = nil
		jb.Status = job.StatusDelegating
		out = append(out, ports.RevertedAssignment{Job: *jb, LapsedDriverID: lapsed})
	}
	return out, nil
}

func (r *memJobRepo) CountActive(context.Context) (int, error) { return 0, nil }
func (r *memJobRepo) CountCreatedBetween(context.Context, time.Time, time.Time) (int, error) {
	return 0, nil
}
func (r *memJobRepo) SumRevenueCompletedBetween(context.Context, time.Time, time.Time) (float64, error) {
	return 0, nil
}
func (r *memJobRepo) CancellationRateBetween(context.Context, time.Time, time.Time) (float64, error) {
	return 0, nil
}
func (r *memJobRepo) HydrateActiveRows(context.Context, int, int) ([]ports.ActiveJobRow, int, error) {
	return nil, 0, nil
}

type memContractorRepo struct {
	mu          sync.Mutex
	contractors map[string]*contractor.Contractor
	earnings    map[string]float64
}

func newMemContractorRepo() *memContractorRepo {
	return &memContractorRepo{
		contractors: make(map[string]*contractor.Contractor),
		earnings:    make(map[string]float64),
	}
}

func (r *memContractorRepo) put(c *contractor.Contractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contractors[c.ID] = c
}

func (r *memContractorRepo) CreateContractor(_ context.Context, c *contractor.Contractor) error {
	r.put(c)
	return nil
}

func (r *memContractorRepo) GetByID(_ context.Context, id string) (*contractor.Contractor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contractors[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (r *memContractorRepo) GetByUserID(_ context.Context, userID string) (*contractor.Contractor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contractors {
		if c.UserID == userID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memContractorRepo) SetOnline(_ context.Context, id string, online bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contractors[id]
	if !ok {
		return pgx.ErrNoRows
	}
	c.Online = online
	return nil
}

func (r *memContractorRepo) UpdateLocation(_ context.Context, id string, fix geo.StampedPoint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contractors[id]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if c.LastLocationAt != nil && !fix.RecordedAt.After(*c.LastLocationAt) {
		return false, nil
	}
	c.LastLat = &fix.Lat
	c.LastLng = &fix.Lng
	at := fix.RecordedAt
	c.LastLocationAt = &at
	return true, nil
}

func (r *memContractorRepo) ListFleet(_ context.Context, operatorID string) ([]*contractor.Contractor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*contractor.Contractor
	for _, c := range r.contractors {
		if c.OperatorID != nil && *c.OperatorID == operatorID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memContractorRepo) IncrementCountersOnComplete(_ context.Context, id string, earnings float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contractors[id]
	if !ok {
		return pgx.ErrNoRows
	}
	c.TotalJobs++
	c.TotalEarnings += earnings
	r.earnings[id] += earnings
	return nil
}

func (r *memContractorRepo) CountOnline(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.contractors {
		if c.Online {
			n++
		}
	}
	return n, nil
}

type memTerritoryRepo struct {
	operatorID string
}

func (r *memTerritoryRepo) ResolveOperator(context.Context, float64, float64) (string, error) {
	return r.operatorID, nil
}

type memEventRepo struct {
	mu     sync.Mutex
	events []*job.Event
}

func (r *memEventRepo) Append(_ context.Context, e *job.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *memEventRepo) ListForJob(_ context.Context, jobID string, _ int) ([]*job.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*job.Event
	for _, e := range r.events {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ----- wiring helpers -----

type testEnv struct {
	svc         *dispatchService
	jobs        *memJobRepo
	contractors *memContractorRepo
	territory   *memTerritoryRepo
	events      *memEventRepo
	pub         *memPublisher
	cfg         *config.Config
}

func newTestEnv() *testEnv {
	cfg := &config.Config{}
	cfg.Engine.FeedRadiusKM = 30
	cfg.Engine.DelegationTimeout = 5 * time.Minute
	cfg.Engine.EscalationSweepPeriod = 30 * time.Second
	cfg.Engine.GracePeriod = 5 * time.Second
	cfg.Engine.DefaultSurge = 1.0

	env := &testEnv{
		jobs:        newMemJobRepo(),
		contractors: newMemContractorRepo(),
		territory:   &memTerritoryRepo{},
		events:      &memEventRepo{},
		pub:         &memPublisher{},
		cfg:         cfg,
	}
	env.svc = &dispatchService{
		logger:         logger.New("dispatch-test"),
		cfg:            cfg,
		uow:            memUoW{},
		jobRepo:        env.jobs,
		jobEventRepo:   env.events,
		contractorRepo: env.contractors,
		territoryRepo:  env.territory,
		pub:            env.pub,
	}
	return env
}

func approvedContractor(id string, operatorID *string) *contractor.Contractor {
	now := time.Now().UTC()
	return &contractor.Contractor{
		ID:             id,
		UserID:         "user-" + id,
		CreatedAt:      now,
		UpdatedAt:      now,
		ApprovalStatus: contractor.ApprovalApproved,
		OperatorID:     operatorID,
	}
}

func seedPendingJob(env *testEnv, customerID string) *job.Job {
	jb, _ := job.NewJob(customerID, "12 Main St", 52.52, 13.40, nil, "")
	jb.ApplyQuote(job.ComputeQuote(nil, 1.0))
	return env.jobs.put(jb)
}

func seedDelegatingJob(env *testEnv, customerID, operatorID string) *job.Job {
	jb, _ := job.NewJob(customerID, "12 Main St", 52.52, 13.40, nil, operatorID)
	jb.ApplyQuote(job.ComputeQuote(nil, 1.0))
	return env.jobs.put(jb)
}
