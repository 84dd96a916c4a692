package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/activity-bookings/internal/domain"
)

func createOrder(t *testing.T, svc *Service, store *fakeStore, sessionID uuid.UUID) *domain.Order {
	t.Helper()
	parentID := uuid.New()
	childID := addChild(store, parentID, "Mia")
	order, err := svc.ComposeAndPersistOrder(context.Background(), OrderRequest{
		ParentID:      parentID,
		Items:         []ItemRequest{{SessionID: sessionID, ChildID: childID}},
		PaymentMethod: "bank_transfer",
	})
	if err != nil {
		t.Fatal(err)
	}
	return order
}

func TestSubmitPaymentProof(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)
	sessionID := addSession(store, 10, 0, 1000)
	order := createOrder(t, svc, store, sessionID)

	updated, err := svc.SubmitPaymentProof(ctx, order.OrderNumber, "https://cdn.example/proof1.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != domain.OrderPaymentSubmitted {
		t.Errorf("status = %s, want %s", updated.Status, domain.OrderPaymentSubmitted)
	}

	events := store.outboxEventTypes()
	submittedEvents := 0
	for _, e := range events {
		if e == "order.payment_submitted" {
			submittedEvents++
		}
	}
	if submittedEvents != 1 {
		t.Fatalf("expected one payment_submitted event, got %d", submittedEvents)
	}

	// Resubmission re-attaches the latest proof without a second event.
	updated, err = svc.SubmitPaymentProof(ctx, order.OrderNumber, "https://cdn.example/proof2.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if updated.PaymentProofURL != "https://cdn.example/proof2.jpg" {
		t.Errorf("proof url = %s, want latest", updated.PaymentProofURL)
	}
	submittedEvents = 0
	for _, e := range store.outboxEventTypes() {
		if e == "order.payment_submitted" {
			submittedEvents++
		}
	}
	if submittedEvents != 1 {
		t.Errorf("resubmission must not re-fire the event, got %d", submittedEvents)
	}
}

func TestConfirmPayment(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)
	sessionID := addSession(store, 10, 0, 1000)
	order := createOrder(t, svc, store, sessionID)

	// Confirming before proof submission is illegal.
	_, err := svc.ConfirmPayment(ctx, order.OrderNumber)
	if domain.CodeOf(err) != domain.CodeIllegalTransition {
		t.Errorf("expected illegal transition, got %v", err)
	}

	if _, err := svc.SubmitPaymentProof(ctx, order.OrderNumber, "https://cdn.example/proof.jpg"); err != nil {
		t.Fatal(err)
	}
	confirmed, err := svc.ConfirmPayment(ctx, order.OrderNumber)
	if err != nil {
		t.Fatal(err)
	}
	if confirmed.Status != domain.OrderConfirmed {
		t.Errorf("status = %s, want confirmed", confirmed.Status)
	}
}

func TestCancelOrder_ReleasesCapacityOnce(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)
	sessionID := addSession(store, 10, 0, 1000)
	order := createOrder(t, svc, store, sessionID)

	if store.sessions[sessionID].CurrentRegistrations != 1 {
		t.Fatalf("setup: registrations = %d", store.sessions[sessionID].CurrentRegistrations)
	}

	cancelled, err := svc.CancelOrder(ctx, order.OrderNumber, "parent request", false)
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != domain.OrderCancelledManual {
		t.Errorf("status = %s, want cancelled_manual", cancelled.Status)
	}
	if store.sessions[sessionID].CurrentRegistrations != 0 {
		t.Errorf("capacity not released, registrations = %d", store.sessions[sessionID].CurrentRegistrations)
	}

	// Re-cancelling is an illegal transition and must not release again.
	_, err = svc.CancelOrder(ctx, order.OrderNumber, "again", true)
	if domain.CodeOf(err) != domain.CodeIllegalTransition {
		t.Errorf("expected illegal transition, got %v", err)
	}
	if store.sessions[sessionID].CurrentRegistrations != 0 {
		t.Errorf("capacity released twice, registrations = %d", store.sessions[sessionID].CurrentRegistrations)
	}
}

func TestCancelOrder_ConfirmedIsIllegal(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)
	sessionID := addSession(store, 10, 0, 1000)
	order := createOrder(t, svc, store, sessionID)

	if _, err := svc.SubmitPaymentProof(ctx, order.OrderNumber, "https://cdn.example/proof.jpg"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ConfirmPayment(ctx, order.OrderNumber); err != nil {
		t.Fatal(err)
	}

	_, err := svc.CancelOrder(ctx, order.OrderNumber, "late", true)
	if domain.CodeOf(err) != domain.CodeIllegalTransition {
		t.Errorf("expected illegal transition, got %v", err)
	}
	if store.sessions[sessionID].CurrentRegistrations != 1 {
		t.Errorf("confirmed order capacity must stay reserved, registrations = %d",
			store.sessions[sessionID].CurrentRegistrations)
	}
}

func TestExpireOverdueOrders(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)
	sessionID := addSession(store, 10, 0, 1000)
	order := createOrder(t, svc, store, sessionID)

	// Move the clock past the payment deadline.
	svc.now = func() time.Time { return time.Now().Add(121 * time.Hour) }

	n, err := svc.ExpireOverdueOrders(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}

	got, err := store.GetOrderByNumber(ctx, order.OrderNumber)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.OrderCancelledTimeout {
		t.Errorf("status = %s, want cancelled_timeout", got.Status)
	}
	if store.sessions[sessionID].CurrentRegistrations != 0 {
		t.Errorf("capacity not released on timeout, registrations = %d",
			store.sessions[sessionID].CurrentRegistrations)
	}
}
