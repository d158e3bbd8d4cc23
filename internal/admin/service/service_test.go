package service

import (
	"context"
	"testing"
	"time"

	"dispatch/internal/common/config"
	"dispatch/internal/common/logger"
	"dispatch/internal/domain/contractor"
	"dispatch/internal/domain/geo"
	"dispatch/internal/domain/job"
	"dispatch/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memUoW struct{}

func (memUoW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// metricsJobRepo serves canned aggregates and records the paging arguments.
type metricsJobRepo struct {
	active       int
	createdToday int
	revenue      float64
	cancelRate   float64
	rows         []ports.ActiveJobRow
	total        int

	lastOffset int
	lastLimit  int
}

func (r *metricsJobRepo) CreateJob(context.Context, *job.Job) error         { return nil }
func (r *metricsJobRepo) GetByID(context.Context, string) (*job.Job, error) { return nil, nil }
func (r *metricsJobRepo) GetActiveForDriver(context.Context, string) (*job.Job, error) {
	return nil, nil
}
func (r *metricsJobRepo) ListActiveForOperator(context.Context, string) ([]*job.Job, error) {
	return nil, nil
}
func (r *metricsJobRepo) FindEligible(context.Context, float64, float64, float64, *string, int) ([]ports.EligibleJobRow, error) {
	return nil, nil
}
func (r *metricsJobRepo) Claim(context.Context, string, string, time.Time) (bool, error) {
	return false, nil
}
func (r *metricsJobRepo) AssignDriver(context.Context, string, string, time.Time) (bool, error) {
	return false, nil
}
func (r *metricsJobRepo) UpdateStatus(context.Context, string, job.Status, time.Time) error {
	return nil
}
func (r *metricsJobRepo) Cancel(context.Context, string, string, time.Time) error { return nil }
func (r *metricsJobRepo) RevertStaleAssignments(context.Context, time.Time) ([]ports.RevertedAssignment, error) {
	return nil, nil
}

func (r *metricsJobRepo) CountActive(context.Context) (int, error) { return r.active, nil }
func (r *metricsJobRepo) CountCreatedBetween(context.Context, time.Time, time.Time) (int, error) {
	return r.createdToday, nil
}
func (r *metricsJobRepo) SumRevenueCompletedBetween(context.Context, time.Time, time.Time) (float64, error) {
	return r.revenue, nil
}
func (r *metricsJobRepo) CancellationRateBetween(context.Context, time.Time, time.Time) (float64, error) {
	return r.cancelRate, nil
}
func (r *metricsJobRepo) HydrateActiveRows(_ context.Context, offset, limit int) ([]ports.ActiveJobRow, int, error) {
	r.lastOffset = offset
	r.lastLimit = limit
	return r.rows, r.total, nil
}

type onlineCountRepo struct {
	online int
}

func (r *onlineCountRepo) CreateContractor(context.Context, *contractor.Contractor) error {
	return nil
}
func (r *onlineCountRepo) GetByID(context.Context, string) (*contractor.Contractor, error) {
	return nil, nil
}
func (r *onlineCountRepo) GetByUserID(context.Context, string) (*contractor.Contractor, error) {
	return nil, nil
}
func (r *onlineCountRepo) SetOnline(context.Context, string, bool) error { return nil }
func (r *onlineCountRepo) UpdateLocation(context.Context, string, geo.StampedPoint) (bool, error) {
	return false, nil
}
func (r *onlineCountRepo) ListFleet(context.Context, string) ([]*contractor.Contractor, error) {
	return nil, nil
}
func (r *onlineCountRepo) IncrementCountersOnComplete(context.Context, string, float64) error {
	return nil
}
func (r *onlineCountRepo) CountOnline(context.Context) (int, error) { return r.online, nil }

func newService(jobs *metricsJobRepo, contractors *onlineCountRepo) ports.AdminService {
	return NewAdminService(logger.New("admin-test"), &config.Config{}, memUoW{}, jobs, contractors)
}

func TestGetSystemOverview(t *testing.T) {
	ctx := context.Background()

	jobs := &metricsJobRepo{active: 7, createdToday: 42, revenue: 1234.56, cancelRate: 0.125}
	contractors := &onlineCountRepo{online: 11}
	svc := newService(jobs, contractors)

	res, err := svc.GetSystemOverview(ctx)
	require.NoError(t, err)

	assert.Equal(t, 7, res.Metrics.ActiveJobs)
	assert.Equal(t, 42, res.Metrics.JobsToday)
	assert.Equal(t, 1234.56, res.Metrics.RevenueToday)
	assert.Equal(t, 0.125, res.Metrics.CancellationRate)
	assert.Equal(t, 11, res.Metrics.OnlineContractors)
	assert.False(t, res.Timestamp.IsZero())
}

func TestGetActiveJobs(t *testing.T) {
	ctx := context.Background()

	t.Run("should page with the requested values", func(t *testing.T) {
		jobs := &metricsJobRepo{
			rows:  []ports.ActiveJobRow{{JobID: "job-1", Status: "EN_ROUTE"}},
			total: 31,
		}
		svc := newService(jobs, &onlineCountRepo{})

		res, err := svc.GetActiveJobs(ctx, "3", "10")
		require.NoError(t, err)

		assert.Equal(t, 20, jobs.lastOffset)
		assert.Equal(t, 10, jobs.lastLimit)
		assert.Equal(t, 3, res.Page)
		assert.Equal(t, 10, res.PageSize)
		assert.Equal(t, 31, res.TotalCount)
		require.Len(t, res.Jobs, 1)
		assert.Equal(t, "job-1", res.Jobs[0].JobID)
	})

	t.Run("should fall back to defaults on unparsable paging", func(t *testing.T) {
		jobs := &metricsJobRepo{}
		svc := newService(jobs, &onlineCountRepo{})

		res, err := svc.GetActiveJobs(ctx, "zero", "")
		require.NoError(t, err)

		assert.Equal(t, 1, res.Page)
		assert.Equal(t, 20, res.PageSize)
		assert.Equal(t, 0, jobs.lastOffset)
	})

	t.Run("should treat zero and negatives as defaults and cap the page size", func(t *testing.T) {
		jobs := &metricsJobRepo{}
		svc := newService(jobs, &onlineCountRepo{})

		res, err := svc.GetActiveJobs(ctx, "0", "999")
		require.NoError(t, err)

		assert.Equal(t, 1, res.Page)
		assert.Equal(t, 100, res.PageSize)
		assert.Equal(t, 100, jobs.lastLimit)
	})

	t.Run("should return an empty slice rather than null", func(t *testing.T) {
		svc := newService(&metricsJobRepo{}, &onlineCountRepo{})

		res, err := svc.GetActiveJobs(ctx, "1", "20")
		require.NoError(t, err)
		assert.NotNil(t, res.Jobs)
		assert.Empty(t, res.Jobs)
	})
}
