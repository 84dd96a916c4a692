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

// SubmitPaymentProof attaches an uploaded proof and moves the order to
// payment_submitted. Resubmission while already submitted re-attaches
// the latest proof without firing the transition again.
func (s *Service) SubmitPaymentProof(ctx context.Context, orderNumber, proofURL string) (*domain.Order, error) {
	if proofURL == "" {
		return nil, domain.NewValidation("payment proof is required")
	}

	order, err := s.store.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case domain.OrderPaymentSubmitted:
		// Idempotent resubmission: latest proof wins, no event.
		err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
			return s.store.SetPaymentProof(ctx, tx, order.ID, proofURL)
		})
	case domain.OrderPendingPayment:
		err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
			if err := s.store.UpdateOrderStatus(ctx, tx, order.ID, domain.OrderPendingPayment, domain.OrderPaymentSubmitted); err != nil {
				return err
			}
			if err := s.store.SetPaymentProof(ctx, tx, order.ID, proofURL); err != nil {
				return err
			}
			order.Status = domain.OrderPaymentSubmitted
			return s.insertOrderOutbox(ctx, tx, order, "order.payment_submitted")
		})
	default:
		return nil, domain.NewIllegalTransition(order.Status, domain.OrderPaymentSubmitted)
	}
	if err != nil {
		return nil, err
	}
	order.PaymentProofURL = proofURL

	if s.proofs != nil {
		if err := s.proofs.Record(ctx, orderNumber, proofURL, s.now()); err != nil {
			s.logger.WithField("order_number", orderNumber).Error("proof archive failed: ", err)
		}
	}
	s.auditEvent(ctx, "order.payment_submitted", order.ID, order.ParentID, map[string]interface{}{
		"order_number": orderNumber,
		"proof_url":    proofURL,
	})
	return order, nil
}

// ConfirmPayment is the admin reconciliation step:
// payment_submitted -> confirmed.
func (s *Service) ConfirmPayment(ctx context.Context, orderNumber string) (*domain.Order, error) {
	order, err := s.store.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateTransition(order.Status, domain.OrderConfirmed); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		if err := s.store.UpdateOrderStatus(ctx, tx, order.ID, order.Status, domain.OrderConfirmed); err != nil {
			return err
		}
		order.Status = domain.OrderConfirmed
		return s.insertOrderOutbox(ctx, tx, order, "order.confirmed")
	})
	if err != nil {
		return nil, err
	}

	if s.proofs != nil {
		if err := s.proofs.MarkReconciled(ctx, orderNumber); err != nil {
			s.logger.WithField("order_number", orderNumber).Error("proof reconciliation flag failed: ", err)
		}
	}
	s.auditEvent(ctx, "order.confirmed", order.ID, order.ParentID, map[string]interface{}{
		"order_number": orderNumber,
	})
	return order, nil
}

// CancelOrder cancels a pre-terminal order and releases its reserved
// capacity exactly once, in the same transaction as the status flip.
// isAdmin selects the audit actor; the expiry worker goes through
// cancelOrder directly for the timeout variant.
func (s *Service) CancelOrder(ctx context.Context, orderNumber, reason string, isAdmin bool) (*domain.Order, error) {
	actor := "parent"
	if isAdmin {
		actor = "admin"
	}
	return s.cancelOrder(ctx, orderNumber, reason, domain.OrderCancelledManual, actor)
}

func (s *Service) cancelOrder(ctx context.Context, orderNumber, reason string, target domain.OrderStatus, actor string) (*domain.Order, error) {
	order, err := s.store.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateTransition(order.Status, target); err != nil {
		return nil, err
	}

	sessionSeats := make(map[uuid.UUID]int)
	for _, item := range order.Items {
		sessionSeats[item.SessionID]++
	}

	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		// The guarded status update is what makes release-once hold
		// under concurrent cancellation: the loser gets zero rows.
		if err := s.store.UpdateOrderStatus(ctx, tx, order.ID, order.Status, target); err != nil {
			return err
		}
		for sessionID, seats := range sessionSeats {
			if err := s.store.ReleaseCapacity(ctx, tx, sessionID, seats); err != nil {
				return err
			}
		}
		prev := order.Status
		order.Status = target
		if err := s.insertOrderOutbox(ctx, tx, order, "order.cancelled"); err != nil {
			order.Status = prev
			return err
		}
		return s.insertCapacityReleasedOutbox(ctx, tx, sessionSeats)
	})
	if err != nil {
		return nil, err
	}

	sessionIDs := make([]uuid.UUID, 0, len(sessionSeats))
	for id := range sessionSeats {
		sessionIDs = append(sessionIDs, id)
	}
	s.invalidateAvailability(ctx, sessionIDs...)

	s.auditEvent(ctx, "order.cancelled", order.ID, order.ParentID, map[string]interface{}{
		"order_number": orderNumber,
		"reason":       reason,
		"actor":        actor,
		"status":       string(target),
	})
	return order, nil
}

// insertCapacityReleasedOutbox emits one event per session whose seats
// were freed, so waitlist promotion can be triggered downstream.
func (s *Service) insertCapacityReleasedOutbox(ctx context.Context, tx pgx.Tx, sessionSeats map[uuid.UUID]int) error {
	for sessionID, seats := range sessionSeats {
		payload, err := json.Marshal(map[string]interface{}{
			"session_id": sessionID,
			"seats":      seats,
		})
		if err != nil {
			return err
		}
		rec := crdb.OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "session",
			AggregateID:   sessionID,
			EventType:     "session.capacity_released",
			Payload:       payload,
			DedupeKey:     uuid.New().String(),
		}
		if err := s.store.InsertOutbox(ctx, tx, rec); err != nil {
			return err
		}
	}
	return nil
}

// ExpireOverdueOrders cancels every order past its payment deadline.
// Returns the count of orders expired; individual failures are logged
// and skipped so one bad order does not stall the sweep.
func (s *Service) ExpireOverdueOrders(ctx context.Context) (int, error) {
	overdue, err := s.store.GetExpiredOrders(ctx, s.now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, o := range overdue {
		if _, err := s.cancelOrder(ctx, o.OrderNumber, "payment deadline elapsed", domain.OrderCancelledTimeout, "system"); err != nil {
			s.logger.WithField("order_number", o.OrderNumber).Error("expiry cancellation failed: ", err)
			continue
		}
		observability.OrdersExpired.Inc()
		expired++
	}
	return expired, nil
}
