package domain

// allowedTransitions maps each order status to the statuses it may
// move to. Both cancelled variants are terminal; confirmed is
// terminal.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderPendingPayment: {
		OrderPaymentSubmitted,
		OrderCancelledManual,
		OrderCancelledTimeout,
	},
	OrderPaymentSubmitted: {
		OrderConfirmed,
		OrderCancelledManual,
		OrderCancelledTimeout,
	},
	OrderConfirmed:        {},
	OrderCancelledManual:  {},
	OrderCancelledTimeout: {},
}

func CanTransition(from, to OrderStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an IllegalTransition error if from -> to
// is not allowed. Illegal transitions are rejected, never coerced.
func ValidateTransition(from, to OrderStatus) error {
	if !CanTransition(from, to) {
		return NewIllegalTransition(from, to)
	}
	return nil
}
