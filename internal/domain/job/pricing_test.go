package job_test

import (
	"testing"

	"dispatch/internal/domain/job"

	"github.com/stretchr/testify/assert"
)

func TestComputeQuote(t *testing.T) {
	t.Run("should charge only the base price and fee for no items", func(t *testing.T) {
		q := job.ComputeQuote(nil, 1.0)

		assert.Equal(t, 99.00, q.BasePrice)
		assert.Equal(t, 0.0, q.ItemTotal)
		assert.Equal(t, 0.0, q.VolumePrice)
		assert.InDelta(t, 7.92, q.ServiceFee, 0.001)   // 99 * 0.08
		assert.InDelta(t, 106.92, q.TotalPrice, 0.001) // 99 + 7.92
		assert.Equal(t, 1.0, q.SurgeMultiplier)
	})

	t.Run("should sum item lines without a discount below four items", func(t *testing.T) {
		items := []job.Item{
			{Name: "sofa", Quantity: 1, Price: 50},
			{Name: "box", Quantity: 2, Price: 10},
		}
		q := job.ComputeQuote(items, 1.0)

		assert.Equal(t, 70.0, q.ItemTotal)
		assert.Equal(t, 0.0, q.VolumePrice)
		// (99 + 70) * 1.08
		assert.InDelta(t, 182.52, q.TotalPrice, 0.001)
	})

	t.Run("should apply the 10 percent discount from four items", func(t *testing.T) {
		items := []job.Item{{Name: "chair", Quantity: 4, Price: 25}}
		q := job.ComputeQuote(items, 1.0)

		assert.Equal(t, 100.0, q.ItemTotal)
		assert.Equal(t, -10.0, q.VolumePrice)
		// (99 + 100 - 10) * 1.08
		assert.InDelta(t, 204.12, q.TotalPrice, 0.001)
	})

	t.Run("should apply the 15 percent discount from seven items", func(t *testing.T) {
		items := []job.Item{
			{Name: "box", Quantity: 5, Price: 10},
			{Name: "lamp", Quantity: 2, Price: 15},
		}
		q := job.ComputeQuote(items, 1.0)

		assert.Equal(t, 80.0, q.ItemTotal)
		assert.Equal(t, -12.0, q.VolumePrice)
	})

	t.Run("should multiply the subtotal by the surge before the fee", func(t *testing.T) {
		q := job.ComputeQuote(nil, 1.5)

		// 99 * 1.5 = 148.50, fee 11.88, total 160.38
		assert.InDelta(t, 11.88, q.ServiceFee, 0.001)
		assert.InDelta(t, 160.38, q.TotalPrice, 0.001)
	})

	t.Run("should clamp surge below one to one", func(t *testing.T) {
		q := job.ComputeQuote(nil, 0.3)
		assert.Equal(t, 1.0, q.SurgeMultiplier)
		assert.InDelta(t, 106.92, q.TotalPrice, 0.001)
	})

	t.Run("should treat non-positive quantity as one and skip negative prices", func(t *testing.T) {
		items := []job.Item{
			{Name: "mirror", Quantity: 0, Price: 20},
			{Name: "junk", Quantity: 3, Price: -5},
		}
		q := job.ComputeQuote(items, 1.0)
		assert.Equal(t, 20.0, q.ItemTotal)
	})
}

func TestJob_ApplyQuote(t *testing.T) {
	jb, err := job.NewJob("cust-1", "12 Main St", 52.52, 13.40, nil, "")
	assert.NoError(t, err)

	q := job.ComputeQuote([]job.Item{{Name: "desk", Quantity: 1, Price: 30}}, 1.0)
	jb.ApplyQuote(q)

	assert.Equal(t, q.TotalPrice, jb.TotalPrice)
	assert.Equal(t, q.ServiceFee, jb.ServiceFee)
	assert.Equal(t, q.SurgeMultiplier, jb.SurgeMultiplier)
	assert.Equal(t, q.ItemTotal, jb.ItemTotal)
}
