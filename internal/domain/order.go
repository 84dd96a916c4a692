package domain

import (
	"crypto/rand"
	"encoding/base32"
	"time"

	"github.com/google/uuid"
)

// PaymentDeadlineWindow is the canonical deadline policy: payment is
// due 120 hours after order creation.
const PaymentDeadlineWindow = 120 * time.Hour

const orderNumberPrefix = "ORD"

var base32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewOrderNumber generates a human-legible, collision-resistant order
// number of the form ORD-20060102-XXXXXX. The suffix is 6 chars of
// base32 over random bytes; uniqueness is still enforced by the store.
func NewOrderNumber(now time.Time) string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	suffix := base32NoPad.EncodeToString(b)[:6]
	return orderNumberPrefix + "-" + now.Format("20060102") + "-" + suffix
}

// NewOrder builds the order aggregate from validated items and a
// computed pricing. Items get their OrderID and per-item discount
// share assigned here.
func NewOrder(parentID uuid.UUID, items []OrderItem, pricing Pricing, paymentMethod, notes, groupCode string, now time.Time) Order {
	order := Order{
		ID:              uuid.New(),
		OrderNumber:     NewOrderNumber(now),
		ParentID:        parentID,
		Status:          OrderPendingPayment,
		PaymentMethod:   paymentMethod,
		TotalAmount:     pricing.Subtotal,
		DiscountAmount:  pricing.DiscountAmount,
		FinalAmount:     pricing.FinalAmount,
		GroupCode:       groupCode,
		PaymentDeadline: now.Add(PaymentDeadlineWindow),
		Notes:           notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// Spread the discount over items proportionally to price so that
	// per-item discounts sum to the order discount. The last item
	// absorbs the rounding remainder.
	var spread int64
	for i := range items {
		items[i].ID = uuid.New()
		items[i].OrderID = order.ID
		if pricing.Subtotal > 0 {
			items[i].DiscountAmount = pricing.DiscountAmount * items[i].Price / pricing.Subtotal
		}
		spread += items[i].DiscountAmount
	}
	if n := len(items); n > 0 {
		items[n-1].DiscountAmount += pricing.DiscountAmount - spread
	}
	order.Items = items
	return order
}
