// Package booking implements the order transaction engine: cart
// composition, capacity-safe persistence, the payment lifecycle and
// the waitlist.
package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/activity-bookings/internal/adapters/crdb"
	"github.com/robertarktes/activity-bookings/internal/config"
	"github.com/robertarktes/activity-bookings/internal/domain"
	"github.com/robertarktes/activity-bookings/internal/observability"
)

// Store is the slice of the repository the engine depends on. All
// cross-request safety comes from the store's transactional
// guarantees; the engine holds no in-memory locks.
type Store interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error

	GetSession(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error)
	CountRoleAssignments(ctx context.Context, sessionID uuid.UUID, roleID string) (int, error)

	GetChild(ctx context.Context, childID uuid.UUID) (*domain.Child, error)
	FindChildByName(ctx context.Context, parentID uuid.UUID, name string) (*domain.Child, error)
	CountChildren(ctx context.Context, parentID uuid.UUID) (int, error)
	CreateChild(ctx context.Context, child domain.Child) error

	ReserveCapacity(ctx context.Context, tx pgx.Tx, sessionID uuid.UUID, seats int) error
	ReleaseCapacity(ctx context.Context, tx pgx.Tx, sessionID uuid.UUID, seats int) error
	PersistOrder(ctx context.Context, tx pgx.Tx, order domain.Order) error
	GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, from, to domain.OrderStatus) error
	SetPaymentProof(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, proofURL string) error
	GetExpiredOrders(ctx context.Context, now time.Time) ([]domain.Order, error)

	InsertWaitlistEntry(ctx context.Context, tx pgx.Tx, entry *domain.WaitlistEntry) error
	GetWaitlistEntry(ctx context.Context, entryID uuid.UUID) (*domain.WaitlistEntry, error)
	UpdateWaitlistStatus(ctx context.Context, tx pgx.Tx, entryID uuid.UUID, from, to domain.WaitlistStatus) error
	FirstWaiting(ctx context.Context, sessionID uuid.UUID) (*domain.WaitlistEntry, error)
	ExpireWaitlistEntries(ctx context.Context, now time.Time) (int64, error)

	InsertOutbox(ctx context.Context, tx pgx.Tx, record crdb.OutboxRecord) error
}

// Auditor records lifecycle events out of band. Failures are logged,
// never propagated: auditing must not roll back an order.
type Auditor interface {
	LogOrderEvent(ctx context.Context, action string, orderID uuid.UUID, parentID uuid.UUID, data map[string]interface{}) error
}

// ProofArchive keeps every payment-proof submission for admin
// reconciliation.
type ProofArchive interface {
	Record(ctx context.Context, orderNumber, proofURL string, submittedAt time.Time) error
	MarkReconciled(ctx context.Context, orderNumber string) error
}

// AvailabilityCache is a short-TTL read cache in front of session
// availability. It is advisory only; the capacity decision is always
// made by the conditional update in the store.
type AvailabilityCache interface {
	GetAvailability(ctx context.Context, sessionID uuid.UUID) (*Availability, error)
	SetAvailability(ctx context.Context, sessionID uuid.UUID, a Availability) error
	InvalidateAvailability(ctx context.Context, sessionID uuid.UUID) error
}

type Availability struct {
	Capacity       int  `json:"capacity"`
	Registered     int  `json:"registered"`
	Available      int  `json:"available"`
	IsWaitlistOnly bool `json:"is_waitlist_only"`
}

type Service struct {
	store  Store
	cache  AvailabilityCache
	audit  Auditor
	proofs ProofArchive
	logger observability.Logger

	maxChildren     int
	waitlistTTL     time.Duration
	paymentDeadline time.Duration

	now func() time.Time
}

func NewService(store Store, cache AvailabilityCache, audit Auditor, proofs ProofArchive, logger observability.Logger, cfg *config.Config) *Service {
	return &Service{
		store:           store,
		cache:           cache,
		audit:           audit,
		proofs:          proofs,
		logger:          logger,
		maxChildren:     cfg.MaxChildrenPerParent,
		waitlistTTL:     cfg.WaitlistTTL,
		paymentDeadline: cfg.PaymentDeadline,
		now:             time.Now,
	}
}

func (s *Service) auditEvent(ctx context.Context, action string, orderID, parentID uuid.UUID, data map[string]interface{}) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogOrderEvent(ctx, action, orderID, parentID, data); err != nil {
		s.logger.WithField("action", action).Error("audit log failed: ", err)
	}
}

func (s *Service) invalidateAvailability(ctx context.Context, sessionIDs ...uuid.UUID) {
	if s.cache == nil {
		return
	}
	for _, id := range sessionIDs {
		if err := s.cache.InvalidateAvailability(ctx, id); err != nil {
			s.logger.WithField("session_id", id).Warn("availability cache invalidation failed: ", err)
		}
	}
}

// GetOrder looks up an order by its order number.
func (s *Service) GetOrder(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return s.store.GetOrderByNumber(ctx, orderNumber)
}

// GetSessionAvailability reports remaining seats for a session. Served
// from cache when possible; the store remains authoritative.
func (s *Service) GetSessionAvailability(ctx context.Context, sessionID uuid.UUID) (*Availability, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetAvailability(ctx, sessionID); err == nil && cached != nil {
			return cached, nil
		}
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	a := Availability{
		Capacity:       session.Capacity,
		Registered:     session.CurrentRegistrations,
		Available:      session.Available(),
		IsWaitlistOnly: session.Available() <= 0,
	}
	if s.cache != nil {
		if err := s.cache.SetAvailability(ctx, sessionID, a); err != nil {
			s.logger.Warn("availability cache write failed: ", err)
		}
	}
	return &a, nil
}
