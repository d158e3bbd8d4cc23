package service

import (
	"context"
	"sync"
	"testing"

	"dispatch/internal/contracts"
	"dispatch/internal/domain/contractor"
	"dispatch/internal/domain/job"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccept(t *testing.T) {
	ctx := context.Background()

	t.Run("should let an approved free driver claim a pending job", func(t *testing.T) {
		env := newTestEnv()
		env.contractors.put(approvedContractor("drv-1", nil))
		jb := seedPendingJob(env, "cust-1")

		res, err := env.svc.Accept(ctx, jb.ID, "drv-1")
		require.NoError(t, err)
		assert.Equal(t, job.StatusAccepted.String(), res.Status)

		stored, _ := env.jobs.GetByID(ctx, jb.ID)
		require.NotNil(t, stored.DriverID)
		assert.Equal(t, "drv-1", *stored.DriverID)

		assert.Len(t, env.pub.byKey(contracts.RouteJobStatusPrefix+"accepted"), 1)

		// exactly one trail row per committed claim
		trail, err := env.events.ListForJob(ctx, jb.ID, 10)
		require.NoError(t, err)
		require.Len(t, trail, 1)
		assert.Equal(t, job.EventJobAccepted, trail[0].Type)
	})

	t.Run("should pick exactly one winner out of racing claims", func(t *testing.T) {
		env := newTestEnv()
		jb := seedPendingJob(env, "cust-1")

		const racers = 16
		for i := 0; i < racers; i++ {
			env.contractors.put(approvedContractor(driverName(i), nil))
		}

		var wg sync.WaitGroup
		errs := make([]error, racers)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = env.svc.Accept(ctx, jb.ID, driverName(i))
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
			} else {
				assert.ErrorIs(t, err, ErrConflict)
			}
		}
		assert.Equal(t, 1, wins)

		stored, _ := env.jobs.GetByID(ctx, jb.ID)
		assert.Equal(t, job.StatusAccepted, stored.Status)
		require.NotNil(t, stored.DriverID)
		assert.Len(t, env.pub.byKey(contracts.RouteJobStatusPrefix+"accepted"), 1)
	})

	t.Run("should let the assigned fleet driver confirm a delegation", func(t *testing.T) {
		env := newTestEnv()
		op := "op-1"
		env.contractors.put(approvedContractor("drv-1", &op))
		jb := seedDelegatingJob(env, "cust-1", op)
		_, err := env.jobs.AssignDriver(ctx, jb.ID, "drv-1", jb.CreatedAt)
		require.NoError(t, err)

		_, err = env.svc.Accept(ctx, jb.ID, "drv-1")
		require.NoError(t, err)

		stored, _ := env.jobs.GetByID(ctx, jb.ID)
		assert.Equal(t, job.StatusAccepted, stored.Status)
	})

	t.Run("should refuse anyone else confirming a delegated assignment", func(t *testing.T) {
		env := newTestEnv()
		op := "op-1"
		env.contractors.put(approvedContractor("drv-1", &op))
		env.contractors.put(approvedContractor("drv-2", nil))
		jb := seedDelegatingJob(env, "cust-1", op)
		_, err := env.jobs.AssignDriver(ctx, jb.ID, "drv-1", jb.CreatedAt)
		require.NoError(t, err)

		_, err = env.svc.Accept(ctx, jb.ID, "drv-2")
		require.ErrorIs(t, err, ErrConflict)
	})

	t.Run("should refuse an unapproved contractor", func(t *testing.T) {
		env := newTestEnv()
		c := approvedContractor("drv-1", nil)
		c.ApprovalStatus = contractor.ApprovalPending
		env.contractors.put(c)
		jb := seedPendingJob(env, "cust-1")

		_, err := env.svc.Accept(ctx, jb.ID, "drv-1")
		require.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("should refuse a contractor already holding an active job", func(t *testing.T) {
		env := newTestEnv()
		env.contractors.put(approvedContractor("drv-1", nil))
		first := seedPendingJob(env, "cust-1")
		second := seedPendingJob(env, "cust-2")

		_, err := env.svc.Accept(ctx, first.ID, "drv-1")
		require.NoError(t, err)

		_, err = env.svc.Accept(ctx, second.ID, "drv-1")
		require.ErrorIs(t, err, ErrConflict)
	})

	t.Run("should report a repeated accept of the same job as conflict", func(t *testing.T) {
		// the job the driver already holds does not trip the busy check,
		// but the claim finds it no longer PENDING
		env := newTestEnv()
		env.contractors.put(approvedContractor("drv-1", nil))
		jb := seedPendingJob(env, "cust-1")

		_, err := env.svc.Accept(ctx, jb.ID, "drv-1")
		require.NoError(t, err)

		_, err = env.svc.Accept(ctx, jb.ID, "drv-1")
		require.ErrorIs(t, err, ErrConflict)
	})

	t.Run("should report an unknown contractor as not found", func(t *testing.T) {
		env := newTestEnv()
		jb := seedPendingJob(env, "cust-1")

		_, err := env.svc.Accept(ctx, jb.ID, "ghost")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("should report an unknown job as not found", func(t *testing.T) {
		env := newTestEnv()
		env.contractors.put(approvedContractor("drv-1", nil))

		_, err := env.svc.Accept(ctx, "job-missing", "drv-1")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("should notify the customer once on a win", func(t *testing.T) {
		env := newTestEnv()
		env.contractors.put(approvedContractor("drv-1", nil))
		jb := seedPendingJob(env, "cust-9")

		_, err := env.svc.Accept(ctx, jb.ID, "drv-1")
		require.NoError(t, err)

		assert.Len(t, env.pub.byKey(contracts.RouteNotifyPrefix+"cust-9"), 1)
	})
}

func driverName(i int) string {
	return "drv-" + string(rune('a'+i))
}
