package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/activity-bookings/internal/domain"
)

func TestJoinWaitlist(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)
	parentID := uuid.New()
	full := addSession(store, 1, 1, 1000)
	open := addSession(store, 10, 0, 1000)
	childID := addChild(store, parentID, "Mia")

	entry, err := svc.JoinWaitlist(ctx, full, parentID, childID)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Position != 1 || entry.Status != domain.WaitlistWaiting {
		t.Errorf("entry = %+v, want position 1 waiting", entry)
	}

	second, err := svc.JoinWaitlist(ctx, full, parentID, childID)
	if err != nil {
		t.Fatal(err)
	}
	if second.Position != 2 {
		t.Errorf("second position = %d, want 2", second.Position)
	}

	// A session with free seats has no waitlist.
	_, err = svc.JoinWaitlist(ctx, open, parentID, childID)
	if domain.CodeOf(err) != domain.CodeValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestRemoveWaitlistEntry_KeepsPositions(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)
	parentID := uuid.New()
	sessionID := addSession(store, 1, 1, 1000)
	childID := addChild(store, parentID, "Mia")

	first, err := svc.JoinWaitlist(ctx, sessionID, parentID, childID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.JoinWaitlist(ctx, sessionID, parentID, childID)
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.RemoveWaitlistEntry(ctx, first.ID); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetWaitlistEntry(ctx, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Position != 2 {
		t.Errorf("position renumbered to %d, want stable 2", got.Position)
	}

	// The next candidate skips the cancelled entry.
	next, err := svc.NextWaitlistCandidate(ctx, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if next.ID != second.ID {
		t.Errorf("next candidate = %v, want second entry %v", next.ID, second.ID)
	}

	// Removing twice is rejected.
	if err := svc.RemoveWaitlistEntry(ctx, first.ID); err == nil {
		t.Error("expected error removing a cancelled entry")
	}
}

func TestPromoteWaitlistEntry(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)
	parentID := uuid.New()
	sessionID := addSession(store, 1, 0, 2500)
	childID := addChild(store, parentID, "Mia")

	blocker := createOrder(t, svc, store, sessionID)

	entry, err := svc.JoinWaitlist(ctx, sessionID, parentID, childID)
	if err != nil {
		t.Fatal(err)
	}

	// Still full: promotion fails with a capacity error, entry stays
	// waiting.
	_, err = svc.PromoteWaitlistEntry(ctx, entry.ID)
	if domain.CodeOf(err) != domain.CodeCapacityExceeded {
		t.Fatalf("expected capacity exceeded, got %v", err)
	}
	got, _ := store.GetWaitlistEntry(ctx, entry.ID)
	if got.Status != domain.WaitlistWaiting {
		t.Errorf("entry status = %s, want still waiting", got.Status)
	}

	// Cancellation frees the seat; promotion then creates a real order.
	if _, err := svc.CancelOrder(ctx, blocker.OrderNumber, "freed", true); err != nil {
		t.Fatal(err)
	}
	order, err := svc.PromoteWaitlistEntry(ctx, entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if order.Status != domain.OrderPendingPayment {
		t.Errorf("promoted order status = %s, want pending_payment", order.Status)
	}
	if order.FinalAmount != 2500 {
		t.Errorf("promoted order amount = %d, want 2500 (single item, no discount)", order.FinalAmount)
	}
	got, _ = store.GetWaitlistEntry(ctx, entry.ID)
	if got.Status != domain.WaitlistPromoted {
		t.Errorf("entry status = %s, want promoted", got.Status)
	}
	promotedEvents := 0
	for _, e := range store.outboxEventTypes() {
		if e == "waitlist.promoted" {
			promotedEvents++
		}
	}
	if promotedEvents != 1 {
		t.Errorf("waitlist.promoted events = %d, want 1", promotedEvents)
	}
	if store.sessions[sessionID].CurrentRegistrations != 1 {
		t.Errorf("registrations = %d, want 1", store.sessions[sessionID].CurrentRegistrations)
	}

	// A promoted entry cannot be promoted again.
	if _, err := svc.PromoteWaitlistEntry(ctx, entry.ID); err == nil {
		t.Error("expected error promoting a promoted entry")
	}
}

func TestExpireWaitlistEntries(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)
	parentID := uuid.New()
	sessionID := addSession(store, 1, 1, 1000)
	childID := addChild(store, parentID, "Mia")

	entry, err := svc.JoinWaitlist(ctx, sessionID, parentID, childID)
	if err != nil {
		t.Fatal(err)
	}

	svc.now = func() time.Time { return time.Now().Add(73 * time.Hour) }
	n, err := svc.ExpireWaitlistEntries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expired = %d, want 1", n)
	}
	got, _ := store.GetWaitlistEntry(ctx, entry.ID)
	if got.Status != domain.WaitlistExpired {
		t.Errorf("status = %s, want expired", got.Status)
	}

	// Expired entries cannot be promoted.
	if _, err := svc.PromoteWaitlistEntry(ctx, entry.ID); err == nil {
		t.Error("expected error promoting an expired entry")
	}
}
