package domain

// Pricing is the result of the multi-item discount calculation.
// Recomputing from the same item list always yields the same result.
type Pricing struct {
	Subtotal       int64
	DiscountTier   int
	DiscountAmount int64
	FinalAmount    int64
}

// Discount tiers by item count: 1 item 0%, 2 items 10%, 3+ items 15%.
const (
	twoItemDiscountPercent  = 10
	manyItemDiscountPercent = 15
)

// CalculatePricing computes subtotal, discount tier and final amount
// for an ordered list of item prices. Amounts are whole currency
// units; the discount is rounded half-up to the nearest unit.
func CalculatePricing(prices []int64) (Pricing, error) {
	if len(prices) == 0 {
		return Pricing{}, NewValidation("order must contain at least one item")
	}

	var subtotal int64
	for _, p := range prices {
		subtotal += p
	}

	var tier int
	switch {
	case len(prices) == 2:
		tier = twoItemDiscountPercent
	case len(prices) >= 3:
		tier = manyItemDiscountPercent
	}

	discount := (subtotal*int64(tier) + 50) / 100

	return Pricing{
		Subtotal:       subtotal,
		DiscountTier:   tier,
		DiscountAmount: discount,
		FinalAmount:    subtotal - discount,
	}, nil
}
