package domain

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderPendingPayment, OrderPaymentSubmitted, true},
		{OrderPendingPayment, OrderCancelledManual, true},
		{OrderPendingPayment, OrderCancelledTimeout, true},
		{OrderPendingPayment, OrderConfirmed, false},
		{OrderPaymentSubmitted, OrderConfirmed, true},
		{OrderPaymentSubmitted, OrderCancelledManual, true},
		{OrderConfirmed, OrderCancelledManual, false},
		{OrderConfirmed, OrderConfirmed, false},
		{OrderCancelledManual, OrderConfirmed, false},
		{OrderCancelledManual, OrderCancelledTimeout, false},
		{OrderCancelledTimeout, OrderCancelledManual, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestValidateTransition_IllegalCarriesCode(t *testing.T) {
	err := ValidateTransition(OrderCancelledManual, OrderConfirmed)
	if err == nil {
		t.Fatal("expected error")
	}
	if CodeOf(err) != CodeIllegalTransition {
		t.Errorf("code = %s, want %s", CodeOf(err), CodeIllegalTransition)
	}
}

func TestOrderStatus_Terminal(t *testing.T) {
	for _, s := range []OrderStatus{OrderConfirmed, OrderCancelledManual, OrderCancelledTimeout} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []OrderStatus{OrderPendingPayment, OrderPaymentSubmitted} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
