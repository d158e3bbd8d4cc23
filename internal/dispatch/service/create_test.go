package service

import (
	"context"
	"testing"

	"dispatch/internal/contracts"
	"dispatch/internal/domain/job"
	"dispatch/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateJob(t *testing.T) {
	ctx := context.Background()

	t.Run("should create an open-market job as PENDING", func(t *testing.T) {
		env := newTestEnv()

		res, err := env.svc.CreateJob(ctx, ports.CreateJobInput{
			CustomerID: "cust-1",
			Address:    "12 Main St",
			Lat:        52.52,
			Lng:        13.40,
		})
		require.NoError(t, err)

		assert.Equal(t, job.StatusPending.String(), res.Status)
		assert.Empty(t, res.OperatorID)
		assert.InDelta(t, 106.92, res.TotalPrice, 0.001) // base 99 plus 8 percent fee

		assert.Len(t, env.pub.byKey(contracts.RouteJobNew), 1)
		assert.Len(t, env.pub.byKey(contracts.RouteJobStatusPrefix+"pending"), 1)

		trail, err := env.events.ListForJob(ctx, res.JobID, 10)
		require.NoError(t, err)
		require.Len(t, trail, 1)
		assert.Equal(t, job.EventJobCreated, trail[0].Type)
		assert.Equal(t, "cust-1", trail[0].Data["customer_id"])
	})

	t.Run("should create a territory job as DELEGATING for its operator", func(t *testing.T) {
		env := newTestEnv()
		env.territory.operatorID = "op-1"

		res, err := env.svc.CreateJob(ctx, ports.CreateJobInput{
			CustomerID: "cust-1",
			Address:    "12 Main St",
			Lat:        52.52,
			Lng:        13.40,
		})
		require.NoError(t, err)

		assert.Equal(t, job.StatusDelegating.String(), res.Status)
		assert.Equal(t, "op-1", res.OperatorID)

		stored, _ := env.jobs.GetByID(ctx, res.JobID)
		require.NotNil(t, stored.OperatorID)
		assert.NotNil(t, stored.DelegatedAt)

		trail, err := env.events.ListForJob(ctx, res.JobID, 10)
		require.NoError(t, err)
		require.Len(t, trail, 2)
		assert.Equal(t, job.EventJobCreated, trail[0].Type)
		assert.Equal(t, job.EventJobDelegated, trail[1].Type)
		assert.Equal(t, "op-1", trail[1].Data["operator_id"])
	})

	t.Run("should freeze the quote on the job at creation", func(t *testing.T) {
		env := newTestEnv()
		items := []job.Item{{Name: "chair", Quantity: 4, Price: 25}}

		res, err := env.svc.CreateJob(ctx, ports.CreateJobInput{
			CustomerID: "cust-1",
			Address:    "12 Main St",
			Lat:        52.52,
			Lng:        13.40,
			Items:      items,
		})
		require.NoError(t, err)

		want := job.ComputeQuote(items, 1.0)
		stored, _ := env.jobs.GetByID(ctx, res.JobID)
		assert.Equal(t, want.TotalPrice, stored.TotalPrice)
		assert.Equal(t, want.VolumePrice, stored.VolumePrice)
		assert.Equal(t, want.ServiceFee, stored.ServiceFee)
	})

	t.Run("should reject a blank customer", func(t *testing.T) {
		env := newTestEnv()
		_, err := env.svc.CreateJob(ctx, ports.CreateJobInput{
			CustomerID: "  ",
			Address:    "12 Main St",
			Lat:        52.52,
			Lng:        13.40,
		})
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("should reject out-of-range coordinates", func(t *testing.T) {
		env := newTestEnv()
		_, err := env.svc.CreateJob(ctx, ports.CreateJobInput{
			CustomerID: "cust-1",
			Address:    "12 Main St",
			Lat:        123,
			Lng:        13.40,
		})
		require.ErrorIs(t, err, ErrValidation)
	})
}
