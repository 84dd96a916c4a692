package booking

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/activity-bookings/internal/adapters/crdb"
	"github.com/robertarktes/activity-bookings/internal/domain"
	"github.com/robertarktes/activity-bookings/internal/observability"
)

// ItemRequest is one cart line: a session for a child, optionally
// with a character role. The child is referenced by id, or named for
// creation on first use.
type ItemRequest struct {
	SessionID uuid.UUID
	ChildID   uuid.UUID
	ChildName string
	ChildAge  int
	RoleID    string
}

type OrderRequest struct {
	ParentID      uuid.UUID
	Items         []ItemRequest
	PaymentMethod string
	Notes         string
	GroupCode     string
}

const (
	minChildAge = 0
	maxChildAge = 18
)

// ComposeAndPersistOrder turns a validated cart into a durable order.
// Composition fails without side effects; the capacity decision is
// re-made atomically inside the persistence transaction, so the
// advisory check here only fails fast on obviously full sessions.
func (s *Service) ComposeAndPersistOrder(ctx context.Context, req OrderRequest) (*domain.Order, error) {
	order, sessionSeats, err := s.composeOrder(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.persistOrder(ctx, order, sessionSeats, nil); err != nil {
		return nil, err
	}

	s.auditEvent(ctx, "order.created", order.ID, order.ParentID, map[string]interface{}{
		"order_number": order.OrderNumber,
		"final_amount": order.FinalAmount,
		"items":        len(order.Items),
	})
	return order, nil
}

// composeOrder runs the composition pipeline and returns the order
// aggregate plus per-session seat counts. No writes
// besides child creation, which is idempotent against resubmission.
func (s *Service) composeOrder(ctx context.Context, req OrderRequest) (*domain.Order, map[uuid.UUID]int, error) {
	if len(req.Items) == 0 {
		return nil, nil, domain.NewValidation("order must contain at least one item")
	}
	if req.PaymentMethod == "" {
		return nil, nil, domain.NewValidation("payment method is required")
	}

	children := make([]domain.Child, len(req.Items))
	for i, item := range req.Items {
		child, err := s.resolveChild(ctx, req.ParentID, item)
		if err != nil {
			return nil, nil, err
		}
		children[i] = *child
	}

	sessions := make(map[uuid.UUID]*domain.Session)
	sessionSeats := make(map[uuid.UUID]int)
	for _, item := range req.Items {
		if _, ok := sessions[item.SessionID]; !ok {
			session, err := s.store.GetSession(ctx, item.SessionID)
			if err != nil {
				return nil, nil, err
			}
			if session.Status != domain.SessionActive {
				return nil, nil, domain.NewValidation("session %s is not open for booking", session.ID)
			}
			sessions[item.SessionID] = session
		}
		sessionSeats[item.SessionID]++
	}

	// Advisory capacity check, grouped per session so an order that
	// cannot be fully satisfied fails before any write attempt.
	for sessionID, seats := range sessionSeats {
		if remaining := sessions[sessionID].Available(); remaining < seats {
			observability.CapacityConflicts.Inc()
			return nil, nil, domain.NewCapacityExceeded(remaining, seats)
		}
	}

	// Role validation, tracking slots claimed by earlier items of this
	// same order so in-cart duplicates cannot oversubscribe a role.
	inFlight := make(map[uuid.UUID]map[string]int)
	for _, item := range req.Items {
		if item.RoleID == "" {
			continue
		}
		session := sessions[item.SessionID]
		if inFlight[item.SessionID] == nil {
			inFlight[item.SessionID] = make(map[string]int)
		}
		v, err := s.validateRole(ctx, session, item.RoleID, inFlight[item.SessionID][item.RoleID])
		if err != nil {
			return nil, nil, err
		}
		if !v.Valid {
			return nil, nil, v.Err
		}
		inFlight[item.SessionID][item.RoleID]++
	}

	prices := make([]int64, len(req.Items))
	items := make([]domain.OrderItem, len(req.Items))
	for i, item := range req.Items {
		price := sessions[item.SessionID].Price
		prices[i] = price
		items[i] = domain.OrderItem{
			SessionID: item.SessionID,
			ChildID:   children[i].ID,
			RoleID:    item.RoleID,
			Price:     price,
		}
	}

	pricing, err := domain.CalculatePricing(prices)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	order := domain.NewOrder(req.ParentID, items, pricing, req.PaymentMethod, req.Notes, req.GroupCode, now)
	order.PaymentDeadline = now.Add(s.paymentDeadline)
	return &order, sessionSeats, nil
}

// persistOrder commits the aggregate: capacity reservation, order and
// item rows, and the order.created outbox record share one
// transaction. extra, when set, runs additional writes in the same
// transaction (used by waitlist promotion).
func (s *Service) persistOrder(ctx context.Context, order *domain.Order, sessionSeats map[uuid.UUID]int, extra func(tx pgx.Tx) error) error {
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		for sessionID, seats := range sessionSeats {
			if err := s.store.ReserveCapacity(ctx, tx, sessionID, seats); err != nil {
				return err
			}
		}
		if err := s.store.PersistOrder(ctx, tx, *order); err != nil {
			return err
		}
		if extra != nil {
			if err := extra(tx); err != nil {
				return err
			}
		}
		return s.insertOrderOutbox(ctx, tx, order, "order.created")
	})
	if err != nil {
		if de, ok := domain.AsError(err); ok && de.Code == domain.CodeCapacityExceeded {
			observability.CapacityConflicts.Inc()
		}
		return err
	}

	sessionIDs := make([]uuid.UUID, 0, len(sessionSeats))
	for id := range sessionSeats {
		sessionIDs = append(sessionIDs, id)
	}
	s.invalidateAvailability(ctx, sessionIDs...)
	return nil
}

func (s *Service) insertOrderOutbox(ctx context.Context, tx pgx.Tx, order *domain.Order, eventType string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"parent_id":    order.ParentID,
		"status":       order.Status,
		"final_amount": order.FinalAmount,
	})
	if err != nil {
		return err
	}
	return s.store.InsertOutbox(ctx, tx, crdb.OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
		DedupeKey:     uuid.New().String(),
	})
}

// resolveChild finds the referenced child or creates one under the
// parent, enforcing the per-parent cap.
func (s *Service) resolveChild(ctx context.Context, parentID uuid.UUID, item ItemRequest) (*domain.Child, error) {
	if item.ChildID != (uuid.UUID{}) {
		child, err := s.store.GetChild(ctx, item.ChildID)
		if err != nil {
			return nil, err
		}
		if child.ParentID != parentID {
			return nil, domain.NewNotFound("child")
		}
		return child, nil
	}

	if item.ChildName == "" {
		return nil, domain.NewValidation("child name is required")
	}
	if item.ChildAge < minChildAge || item.ChildAge > maxChildAge {
		return nil, domain.NewValidation("child age must be between %d and %d", minChildAge, maxChildAge)
	}

	existing, err := s.store.FindChildByName(ctx, parentID, item.ChildName)
	if err == nil {
		return existing, nil
	}
	if domain.CodeOf(err) != domain.CodeNotFound {
		return nil, err
	}

	count, err := s.store.CountChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if count >= s.maxChildren {
		return nil, domain.NewValidation("parent already has the maximum of %d children", s.maxChildren)
	}

	child := domain.Child{
		ID:       uuid.New(),
		ParentID: parentID,
		Name:     item.ChildName,
		Age:      item.ChildAge,
	}
	if err := s.store.CreateChild(ctx, child); err != nil {
		return nil, errors.Wrap(err, "create child")
	}
	return &child, nil
}
