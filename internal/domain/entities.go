package domain

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// Session is a scheduled activity instance with a fixed seat capacity.
// CurrentRegistrations is the single source of truth for remaining
// seats and is only mutated through the conditional update in the
// persistence layer.
type Session struct {
	ID                   uuid.UUID
	Title                string
	Capacity             int
	CurrentRegistrations int
	Status               SessionStatus
	Price                int64
	Roles                []CharacterRole
}

func (s Session) Available() int {
	return s.Capacity - s.CurrentRegistrations
}

// HasRoles reports whether the session requires a character role to be
// picked per seat. Sessions without roles reject any role id.
func (s Session) HasRoles() bool {
	return len(s.Roles) > 0
}

func (s Session) RoleByID(roleID string) (CharacterRole, bool) {
	for _, r := range s.Roles {
		if r.ID == roleID {
			return r, true
		}
	}
	return CharacterRole{}, false
}

// CharacterRole is an optional character assignment within a session.
// Role occupancy is derived from live order items, not stored.
type CharacterRole struct {
	ID          string
	SessionID   uuid.UUID
	Name        string
	DisplayName string
	Capacity    int
}

type Child struct {
	ID       uuid.UUID
	ParentID uuid.UUID
	Name     string
	Age      int
}

type OrderStatus string

const (
	OrderPendingPayment   OrderStatus = "pending_payment"
	OrderPaymentSubmitted OrderStatus = "payment_submitted"
	OrderConfirmed        OrderStatus = "confirmed"
	OrderCancelledManual  OrderStatus = "cancelled_manual"
	OrderCancelledTimeout OrderStatus = "cancelled_timeout"
)

func (s OrderStatus) Cancelled() bool {
	return s == OrderCancelledManual || s == OrderCancelledTimeout
}

func (s OrderStatus) Terminal() bool {
	return s == OrderConfirmed || s.Cancelled()
}

type Order struct {
	ID              uuid.UUID
	OrderNumber     string
	ParentID        uuid.UUID
	Status          OrderStatus
	PaymentMethod   string
	TotalAmount     int64
	DiscountAmount  int64
	FinalAmount     int64
	GroupCode       string
	PaymentDeadline time.Time
	PaymentProofURL string
	Notes           string
	Items           []OrderItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem is the atomic unit of capacity consumption: one seat in
// one session, plus one role slot when RoleID is set.
type OrderItem struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	SessionID      uuid.UUID
	ChildID        uuid.UUID
	RoleID         string
	Price          int64
	DiscountAmount int64
}

type WaitlistStatus string

const (
	WaitlistWaiting   WaitlistStatus = "waiting"
	WaitlistPromoted  WaitlistStatus = "promoted"
	WaitlistCancelled WaitlistStatus = "cancelled"
	WaitlistExpired   WaitlistStatus = "expired"
)

// WaitlistEntry records overflow demand for a full session. Position
// is a historical join-order marker and is never renumbered.
type WaitlistEntry struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	ParentID  uuid.UUID
	ChildID   uuid.UUID
	Position  int
	Status    WaitlistStatus
	CreatedAt time.Time
	ExpiresAt time.Time
}
