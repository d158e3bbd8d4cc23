package job_test

import (
	"testing"

	"dispatch/internal/domain/job"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingJob(t *testing.T) *job.Job {
	t.Helper()
	jb, err := job.NewJob("cust-1", "12 Main St", 52.52, 13.40, nil, "")
	require.NoError(t, err)
	return jb
}

func TestNewJob(t *testing.T) {
	t.Run("should start PENDING on the open market", func(t *testing.T) {
		jb := newPendingJob(t)
		assert.Equal(t, job.StatusPending, jb.Status)
		assert.Nil(t, jb.OperatorID)
		assert.Nil(t, jb.DelegatedAt)
	})

	t.Run("should start DELEGATING inside an operator territory", func(t *testing.T) {
		jb, err := job.NewJob("cust-1", "12 Main St", 52.52, 13.40, nil, "op-1")
		require.NoError(t, err)

		assert.Equal(t, job.StatusDelegating, jb.Status)
		require.NotNil(t, jb.OperatorID)
		assert.Equal(t, "op-1", *jb.OperatorID)
		assert.NotNil(t, jb.DelegatedAt)
	})

	t.Run("should reject a blank customer", func(t *testing.T) {
		_, err := job.NewJob("  ", "12 Main St", 52.52, 13.40, nil, "")
		require.ErrorIs(t, err, job.ErrCustomerRequired)
	})

	t.Run("should reject a blank address", func(t *testing.T) {
		_, err := job.NewJob("cust-1", "", 52.52, 13.40, nil, "")
		require.ErrorIs(t, err, job.ErrAddressRequired)
	})

	t.Run("should reject out-of-range coordinates", func(t *testing.T) {
		_, err := job.NewJob("cust-1", "12 Main St", 91, 13.40, nil, "")
		require.ErrorIs(t, err, job.ErrCoordinatesInvalid)
	})
}

func TestJob_Accept(t *testing.T) {
	t.Run("should accept a pending open-market job", func(t *testing.T) {
		jb := newPendingJob(t)
		require.NoError(t, jb.Accept("drv-1"))

		assert.Equal(t, job.StatusAccepted, jb.Status)
		require.NotNil(t, jb.DriverID)
		assert.Equal(t, "drv-1", *jb.DriverID)
		assert.NotNil(t, jb.AcceptedAt)
	})

	t.Run("should let the assigned driver confirm a delegation", func(t *testing.T) {
		jb, err := job.NewJob("cust-1", "12 Main St", 52.52, 13.40, nil, "op-1")
		require.NoError(t, err)
		require.NoError(t, jb.AssignDriver("drv-1"))

		require.NoError(t, jb.Accept("drv-1"))
		assert.Equal(t, job.StatusAccepted, jb.Status)
	})

	t.Run("should refuse another driver confirming someone else's assignment", func(t *testing.T) {
		jb, err := job.NewJob("cust-1", "12 Main St", 52.52, 13.40, nil, "op-1")
		require.NoError(t, err)
		require.NoError(t, jb.AssignDriver("drv-1"))

		require.ErrorIs(t, jb.Accept("drv-2"), job.ErrAlreadyAssigned)
	})

	t.Run("should refuse accepting an already accepted job", func(t *testing.T) {
		jb := newPendingJob(t)
		require.NoError(t, jb.Accept("drv-1"))
		require.ErrorIs(t, jb.Accept("drv-2"), job.ErrInvalidTransition)
	})
}

func TestJob_Lifecycle(t *testing.T) {
	t.Run("should walk the full happy path and stamp each step once", func(t *testing.T) {
		jb := newPendingJob(t)

		require.NoError(t, jb.Accept("drv-1"))
		require.NoError(t, jb.MarkEnRoute())
		require.NoError(t, jb.MarkArrived())
		require.NoError(t, jb.Start())
		require.NoError(t, jb.Complete())

		assert.Equal(t, job.StatusCompleted, jb.Status)
		assert.NotNil(t, jb.AcceptedAt)
		assert.NotNil(t, jb.EnRouteAt)
		assert.NotNil(t, jb.ArrivedAt)
		assert.NotNil(t, jb.StartedAt)
		assert.NotNil(t, jb.CompletedAt)
	})

	t.Run("should refuse skipping a step", func(t *testing.T) {
		jb := newPendingJob(t)
		require.NoError(t, jb.Accept("drv-1"))
		require.ErrorIs(t, jb.Start(), job.ErrInvalidTransition)
	})

	t.Run("should refuse progress without a driver", func(t *testing.T) {
		jb := newPendingJob(t)
		require.ErrorIs(t, jb.MarkEnRoute(), job.ErrNoDriverAssigned)
	})
}

func TestJob_RevertToDelegating(t *testing.T) {
	t.Run("should clear the driver and return to the operator", func(t *testing.T) {
		jb, err := job.NewJob("cust-1", "12 Main St", 52.52, 13.40, nil, "op-1")
		require.NoError(t, err)
		require.NoError(t, jb.AssignDriver("drv-1"))

		require.NoError(t, jb.RevertToDelegating())

		assert.Equal(t, job.StatusDelegating, jb.Status)
		assert.Nil(t, jb.DriverID)
		assert.Nil(t, jb.AssignedAt)
	})

	t.Run("should refuse outside ASSIGNED", func(t *testing.T) {
		jb := newPendingJob(t)
		require.ErrorIs(t, jb.RevertToDelegating(), job.ErrInvalidTransition)
	})
}

func TestJob_Cancel(t *testing.T) {
	t.Run("should cancel from any live state and keep the reason", func(t *testing.T) {
		jb := newPendingJob(t)
		require.NoError(t, jb.Accept("drv-1"))

		require.NoError(t, jb.Cancel("customer changed plans"))

		assert.Equal(t, job.StatusCancelled, jb.Status)
		require.NotNil(t, jb.CancellationReason)
		assert.Equal(t, "customer changed plans", *jb.CancellationReason)
	})

	t.Run("should refuse cancelling a completed job", func(t *testing.T) {
		jb := newPendingJob(t)
		require.NoError(t, jb.Accept("drv-1"))
		require.NoError(t, jb.MarkEnRoute())
		require.NoError(t, jb.MarkArrived())
		require.NoError(t, jb.Start())
		require.NoError(t, jb.Complete())

		require.ErrorIs(t, jb.Cancel("too late"), job.ErrInvalidTransition)
	})

	t.Run("should drop a blank reason", func(t *testing.T) {
		jb := newPendingJob(t)
		require.NoError(t, jb.Cancel("   "))
		assert.Nil(t, jb.CancellationReason)
	})
}
