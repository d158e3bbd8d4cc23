package service

import (
	"context"
	"testing"

	"dispatch/internal/contracts"
	"dispatch/internal/domain/job"
	"dispatch/internal/domain/user"
	"dispatch/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("should let the customer cancel their own job", func(t *testing.T) {
		env := newTestEnv()
		jb := seedPendingJob(env, "cust-1")

		view, err := env.svc.Cancel(ctx, ports.CancelInput{
			JobID: jb.ID, Reason: "changed plans",
			Actor: ports.Actor{ID: "cust-1", Role: user.RoleCustomer},
		})
		require.NoError(t, err)

		assert.Equal(t, job.StatusCancelled.String(), view.Status)
		assert.Equal(t, "changed plans", view.CancellationReason)
		assert.Len(t, env.pub.byKey(contracts.RouteJobStatusPrefix+"cancelled"), 1)
	})

	t.Run("should refuse a customer cancelling someone else's job", func(t *testing.T) {
		env := newTestEnv()
		jb := seedPendingJob(env, "cust-1")

		_, err := env.svc.Cancel(ctx, ports.CancelInput{
			JobID: jb.ID, Actor: ports.Actor{ID: "cust-2", Role: user.RoleCustomer},
		})
		require.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("should refuse drivers outright", func(t *testing.T) {
		env := newTestEnv()
		jb := seedPendingJob(env, "cust-1")

		_, err := env.svc.Cancel(ctx, ports.CancelInput{
			JobID: jb.ID, Actor: ports.Actor{ID: "drv-1", Role: user.RoleDriver},
		})
		require.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("should let an operator cancel only their fleet jobs", func(t *testing.T) {
		env := newTestEnv()
		fleet := seedDelegatingJob(env, "cust-1", "op-1")
		open := seedPendingJob(env, "cust-2")

		_, err := env.svc.Cancel(ctx, ports.CancelInput{
			JobID: fleet.ID, Actor: ports.Actor{ID: "op-1", Role: user.RoleOperator},
		})
		require.NoError(t, err)

		_, err = env.svc.Cancel(ctx, ports.CancelInput{
			JobID: open.ID, Actor: ports.Actor{ID: "op-1", Role: user.RoleOperator},
		})
		require.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("should let an admin cancel any live job", func(t *testing.T) {
		env := newTestEnv()
		jb := seedDelegatingJob(env, "cust-1", "op-1")

		_, err := env.svc.Cancel(ctx, ports.CancelInput{
			JobID: jb.ID, Actor: ports.Actor{ID: "admin-1", Role: user.RoleAdmin},
		})
		require.NoError(t, err)
	})

	t.Run("should refuse cancelling a completed job", func(t *testing.T) {
		env := newTestEnv()
		env.contractors.put(approvedContractor("drv-1", nil))
		jb := seedPendingJob(env, "cust-1")
		driver := ports.Actor{ID: "drv-1", Role: user.RoleDriver}

		_, err := env.svc.Accept(ctx, jb.ID, "drv-1")
		require.NoError(t, err)
		for _, next := range []job.Status{job.StatusEnRoute, job.StatusArrived, job.StatusStarted, job.StatusCompleted} {
			_, err := env.svc.Transition(ctx, ports.TransitionInput{JobID: jb.ID, Status: next, Actor: driver})
			require.NoError(t, err)
		}

		_, err = env.svc.Cancel(ctx, ports.CancelInput{
			JobID: jb.ID, Actor: ports.Actor{ID: "cust-1", Role: user.RoleCustomer},
		})
		require.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("should treat a repeated cancel as a no-op without publishing twice", func(t *testing.T) {
		env := newTestEnv()
		jb := seedPendingJob(env, "cust-1")
		actor := ports.Actor{ID: "cust-1", Role: user.RoleCustomer}

		_, err := env.svc.Cancel(ctx, ports.CancelInput{JobID: jb.ID, Actor: actor})
		require.NoError(t, err)

		view, err := env.svc.Cancel(ctx, ports.CancelInput{JobID: jb.ID, Actor: actor})
		require.NoError(t, err)
		assert.Equal(t, job.StatusCancelled.String(), view.Status)

		assert.Len(t, env.pub.byKey(contracts.RouteJobStatusPrefix+"cancelled"), 1)

		trail, err := env.events.ListForJob(ctx, jb.ID, 10)
		require.NoError(t, err)
		require.Len(t, trail, 1)
		assert.Equal(t, job.EventJobCancelled, trail[0].Type)
	})

	t.Run("should report an unknown job as not found", func(t *testing.T) {
		env := newTestEnv()
		_, err := env.svc.Cancel(ctx, ports.CancelInput{
			JobID: "job-missing", Actor: ports.Actor{ID: "cust-1", Role: user.RoleCustomer},
		})
		require.ErrorIs(t, err, ErrNotFound)
	})
}
