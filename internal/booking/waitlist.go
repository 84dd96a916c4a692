package booking

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/activity-bookings/internal/adapters/crdb"
	"github.com/robertarktes/activity-bookings/internal/domain"
	"github.com/robertarktes/activity-bookings/internal/observability"
)

// JoinWaitlist records overflow demand for a full session. Only valid
// while the session has no remaining seats; callers are expected to
// offer the waitlist after a capacity rejection.
func (s *Service) JoinWaitlist(ctx context.Context, sessionID, parentID, childID uuid.UUID) (*domain.WaitlistEntry, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Available() > 0 {
		return nil, domain.NewValidation("session has %d available seats, waitlist not open", session.Available())
	}

	child, err := s.store.GetChild(ctx, childID)
	if err != nil {
		return nil, err
	}
	if child.ParentID != parentID {
		return nil, domain.NewNotFound("child")
	}

	now := s.now()
	entry := &domain.WaitlistEntry{
		ID:        uuid.New(),
		SessionID: sessionID,
		ParentID:  parentID,
		ChildID:   childID,
		Status:    domain.WaitlistWaiting,
		CreatedAt: now,
		ExpiresAt: now.Add(s.waitlistTTL),
	}

	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		if err := s.store.InsertWaitlistEntry(ctx, tx, entry); err != nil {
			return err
		}
		payload, err := json.Marshal(map[string]interface{}{
			"entry_id":   entry.ID,
			"session_id": sessionID,
			"position":   entry.Position,
		})
		if err != nil {
			return err
		}
		return s.store.InsertOutbox(ctx, tx, crdb.OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "waitlist",
			AggregateID:   entry.ID,
			EventType:     "waitlist.joined",
			Payload:       payload,
			DedupeKey:     uuid.New().String(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.auditEvent(ctx, "waitlist.joined", entry.ID, parentID, map[string]interface{}{
		"session_id": sessionID,
		"position":   entry.Position,
	})
	return entry, nil
}

// PromoteWaitlistEntry converts a waiting entry into a real order.
// Promotion goes through the same composition and persistence path as
// a normal order: capacity is re-reserved atomically, and the entry
// flips to promoted inside that same transaction. On a capacity
// failure the entry stays waiting.
func (s *Service) PromoteWaitlistEntry(ctx context.Context, entryID uuid.UUID) (*domain.Order, error) {
	entry, err := s.store.GetWaitlistEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status != domain.WaitlistWaiting {
		return nil, domain.NewValidation("waitlist entry is %s, only waiting entries can be promoted", entry.Status)
	}
	if s.now().After(entry.ExpiresAt) {
		return nil, domain.NewValidation("waitlist entry has expired")
	}

	order, sessionSeats, err := s.composeOrder(ctx, OrderRequest{
		ParentID: entry.ParentID,
		Items: []ItemRequest{
			{SessionID: entry.SessionID, ChildID: entry.ChildID},
		},
		PaymentMethod: "bank_transfer",
		Notes:         "waitlist promotion",
	})
	if err != nil {
		return nil, err
	}

	err = s.persistOrder(ctx, order, sessionSeats, func(tx pgx.Tx) error {
		if err := s.store.UpdateWaitlistStatus(ctx, tx, entry.ID, domain.WaitlistWaiting, domain.WaitlistPromoted); err != nil {
			return err
		}
		payload, err := json.Marshal(map[string]interface{}{
			"entry_id":     entry.ID,
			"session_id":   entry.SessionID,
			"order_number": order.OrderNumber,
		})
		if err != nil {
			return err
		}
		return s.store.InsertOutbox(ctx, tx, crdb.OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "waitlist",
			AggregateID:   entry.ID,
			EventType:     "waitlist.promoted",
			Payload:       payload,
			DedupeKey:     uuid.New().String(),
		})
	})
	if err != nil {
		return nil, err
	}

	observability.WaitlistPromotions.Inc()
	s.auditEvent(ctx, "waitlist.promoted", entry.ID, entry.ParentID, map[string]interface{}{
		"session_id":   entry.SessionID,
		"order_number": order.OrderNumber,
	})
	return order, nil
}

// RemoveWaitlistEntry cancels a waiting entry. Positions of remaining
// entries are never renumbered.
func (s *Service) RemoveWaitlistEntry(ctx context.Context, entryID uuid.UUID) error {
	entry, err := s.store.GetWaitlistEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.Status != domain.WaitlistWaiting {
		return domain.NewValidation("waitlist entry is %s, only waiting entries can be removed", entry.Status)
	}

	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		return s.store.UpdateWaitlistStatus(ctx, tx, entryID, domain.WaitlistWaiting, domain.WaitlistCancelled)
	})
	if err != nil {
		return err
	}

	s.auditEvent(ctx, "waitlist.removed", entry.ID, entry.ParentID, map[string]interface{}{
		"session_id": entry.SessionID,
	})
	return nil
}

// NextWaitlistCandidate returns the lowest-position waiting entry for
// a session. The admin promotion flow uses it to pick who gets a freed
// seat.
func (s *Service) NextWaitlistCandidate(ctx context.Context, sessionID uuid.UUID) (*domain.WaitlistEntry, error) {
	return s.store.FirstWaiting(ctx, sessionID)
}

// ExpireWaitlistEntries sweeps waiting entries past their expiry.
func (s *Service) ExpireWaitlistEntries(ctx context.Context) (int64, error) {
	return s.store.ExpireWaitlistEntries(ctx, s.now())
}
