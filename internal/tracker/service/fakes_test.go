package service

import (
	"context"
	"sync"
	"time"

	"dispatch/internal/common/config"
	"dispatch/internal/common/logger"
	"dispatch/internal/domain/contractor"
	"dispatch/internal/domain/geo"
	"dispatch/internal/domain/job"
	"dispatch/internal/ports"
	"dispatch/internal/realtime"

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

func (p *memPublisher) byExchange(exchange string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.msgs {
		if m.Exchange == exchange {
			out = append(out, m)
		}
	}
	return out
}

// memContractorRepo fakes the contractor store with the same conditional
// location semantics the SQL layer has.
type memContractorRepo struct {
	mu          sync.Mutex
	contractors map[string]*contractor.Contractor
}

func newMemContractorRepo() *memContractorRepo {
	return &memContractorRepo{contractors: make(map[string]*contractor.Contractor)}
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

// memJobRepo fakes only the reads the tracker issues; writes belong to the
// dispatch side.
type memJobRepo struct {
	mu         sync.Mutex
	jobs       map[string]*job.Job
	activeRows []ports.ActiveJobRow
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[string]*job.Job)}
}

func (r *memJobRepo) put(jb *job.Job) *job.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
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

func (r *memJobRepo) FindEligible(context.Context, float64, float64, float64, *string, int) ([]ports.EligibleJobRow, error) {
	return nil, nil
}

func (r *memJobRepo) Claim(context.Context, string, string, time.Time) (bool, error) {
	return false, nil
}

func (r *memJobRepo) AssignDriver(context.Context, string, string, time.Time) (bool, error) {
	return false, nil
}

func (r *memJobRepo) UpdateStatus(context.Context, string, job.Status, time.Time) error {
	return nil
}

func (r *memJobRepo) Cancel(context.Context, string, string, time.Time) error { return nil }

func (r *memJobRepo) RevertStaleAssignments(context.Context, time.Time) ([]ports.RevertedAssignment, error) {
	return nil, nil
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
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeRows, len(r.activeRows), nil
}

// ----- wiring helpers -----

type testEnv struct {
	svc         *TrackerService
	jobs        *memJobRepo
	contractors *memContractorRepo
	pub         *memPublisher
}

func newTestEnv(grace time.Duration) *testEnv {
	cfg := &config.Config{}
	cfg.Engine.GracePeriod = grace
	cfg.Engine.FeedRadiusKM = 30

	log := logger.New("tracker-test")
	env := &testEnv{
		jobs:        newMemJobRepo(),
		contractors: newMemContractorRepo(),
		pub:         &memPublisher{},
	}
	env.svc = &TrackerService{
		logger:         log,
		cfg:            cfg,
		uow:            memUoW{},
		contractorRepo: env.contractors,
		jobRepo:        env.jobs,
		sessions:       realtime.NewSessionRegistry(grace),
		hub:            realtime.NewHub(log),
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
