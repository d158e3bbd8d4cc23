package job

import "math"

const (
	// BasePickupPrice is the flat callout component of every quote.
	BasePickupPrice = 99.00

	// ServiceFeeRate is applied to the surged subtotal.
	ServiceFeeRate = 0.08
)

// Quote is the price breakdown computed at job creation.
type Quote struct {
	BasePrice       float64
	ItemTotal       float64
	VolumePrice     float64 // negative: volume discount applied to the item total
	ServiceFee      float64
	SurgeMultiplier float64
	TotalPrice      float64
}

// volumeDiscountRate returns the discount rate for the total item quantity.
func volumeDiscountRate(totalQuantity int) float64 {
	switch {
	case totalQuantity >= 7:
		return 0.15
	case totalQuantity >= 4:
		return 0.10
	default:
		return 0.0
	}
}

// ComputeQuote prices a job: base + items - volume discount, surged, plus service fee.
func ComputeQuote(items []Item, surgeMultiplier float64) Quote {
	if surgeMultiplier < 1.0 {
		surgeMultiplier = 1.0
	}

	var itemTotal float64
	var totalQuantity int
	for _, it := range items {
		qty := it.Quantity
		if qty < 1 {
			qty = 1
		}
		if it.Price < 0 {
			continue
		}
		itemTotal += it.Price * float64(qty)
		totalQuantity += qty
	}

	volumePrice := -round2(itemTotal * volumeDiscountRate(totalQuantity))

	subtotal := BasePickupPrice + itemTotal + volumePrice
	surged := subtotal * surgeMultiplier
	serviceFee := round2(surged * ServiceFeeRate)
	total := round2(surged + serviceFee)

	return Quote{
		BasePrice:       BasePickupPrice,
		ItemTotal:       round2(itemTotal),
		VolumePrice:     volumePrice,
		ServiceFee:      serviceFee,
		SurgeMultiplier: surgeMultiplier,
		TotalPrice:      total,
	}
}

// ApplyQuote copies a quote onto the job's commercial fields.
func (jb *Job) ApplyQuote(q Quote) {
	jb.BasePrice = q.BasePrice
	jb.ItemTotal = q.ItemTotal
	jb.VolumePrice = q.VolumePrice
	jb.ServiceFee = q.ServiceFee
	jb.SurgeMultiplier = q.SurgeMultiplier
	jb.TotalPrice = q.TotalPrice
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
