package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/activity-bookings/internal/adapters/crdb"
	"github.com/robertarktes/activity-bookings/internal/config"
	"github.com/robertarktes/activity-bookings/internal/domain"
	"github.com/robertarktes/activity-bookings/internal/observability"
)

// fakeTx satisfies pgx.Tx for the in-memory store; none of its methods
// are ever called because the fake ignores the transaction handle.
type fakeTx struct{ pgx.Tx }

// fakeStore is an in-memory Store. WithTx serializes callers and
// restores a snapshot on error, mirroring the rollback semantics the
// real store provides.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.Session
	children map[uuid.UUID]domain.Child
	orders   map[uuid.UUID]*domain.Order
	waitlist map[uuid.UUID]*domain.WaitlistEntry
	outbox   []crdb.OutboxRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[uuid.UUID]*domain.Session),
		children: make(map[uuid.UUID]domain.Child),
		orders:   make(map[uuid.UUID]*domain.Order),
		waitlist: make(map[uuid.UUID]*domain.WaitlistEntry),
	}
}

func (f *fakeStore) snapshot() map[uuid.UUID]int {
	regs := make(map[uuid.UUID]int, len(f.sessions))
	for id, s := range f.sessions {
		regs[id] = s.CurrentRegistrations
	}
	return regs
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	regs := f.snapshot()
	existing := make(map[uuid.UUID]bool, len(f.orders))
	for id := range f.orders {
		existing[id] = true
	}
	outboxLen := len(f.outbox)

	if err := fn(fakeTx{}); err != nil {
		for id, n := range regs {
			f.sessions[id].CurrentRegistrations = n
		}
		for id := range f.orders {
			if !existing[id] {
				delete(f.orders, id)
			}
		}
		f.outbox = f.outbox[:outboxLen]
		return err
	}
	return nil
}

func (f *fakeStore) GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, domain.NewNotFound("session")
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) CountRoleAssignments(ctx context.Context, sessionID uuid.UUID, roleID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, o := range f.orders {
		if o.Status.Cancelled() {
			continue
		}
		for _, it := range o.Items {
			if it.SessionID == sessionID && it.RoleID == roleID {
				n++
			}
		}
	}
	return n, nil
}

func (f *fakeStore) GetChild(ctx context.Context, id uuid.UUID) (*domain.Child, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.children[id]
	if !ok {
		return nil, domain.NewNotFound("child")
	}
	return &c, nil
}

func (f *fakeStore) FindChildByName(ctx context.Context, parentID uuid.UUID, name string) (*domain.Child, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.children {
		if c.ParentID == parentID && c.Name == name {
			cp := c
			return &cp, nil
		}
	}
	return nil, domain.NewNotFound("child")
}

func (f *fakeStore) CountChildren(ctx context.Context, parentID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.children {
		if c.ParentID == parentID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CreateChild(ctx context.Context, child domain.Child) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.children[child.ID] = child
	return nil
}

func (f *fakeStore) ReserveCapacity(ctx context.Context, tx pgx.Tx, sessionID uuid.UUID, seats int) error {
	s, ok := f.sessions[sessionID]
	if !ok {
		return domain.NewNotFound("session")
	}
	if s.Status != domain.SessionActive || s.CurrentRegistrations+seats > s.Capacity {
		return domain.NewCapacityExceeded(s.Capacity-s.CurrentRegistrations, seats)
	}
	s.CurrentRegistrations += seats
	return nil
}

func (f *fakeStore) ReleaseCapacity(ctx context.Context, tx pgx.Tx, sessionID uuid.UUID, seats int) error {
	s, ok := f.sessions[sessionID]
	if !ok {
		return domain.NewNotFound("session")
	}
	s.CurrentRegistrations -= seats
	if s.CurrentRegistrations < 0 {
		s.CurrentRegistrations = 0
	}
	return nil
}

func (f *fakeStore) PersistOrder(ctx context.Context, tx pgx.Tx, order domain.Order) error {
	for _, o := range f.orders {
		if o.OrderNumber == order.OrderNumber {
			return domain.NewDuplicateOrderNumber(order.OrderNumber)
		}
	}
	f.orders[order.ID] = &order
	return nil
}

func (f *fakeStore) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.OrderNumber == orderNumber {
			cp := *o
			return &cp, nil
		}
	}
	return nil, domain.NewNotFound("order")
}

func (f *fakeStore) UpdateOrderStatus(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, from, to domain.OrderStatus) error {
	o, ok := f.orders[orderID]
	if !ok || o.Status != from {
		return domain.NewIllegalTransition(from, to)
	}
	o.Status = to
	return nil
}

func (f *fakeStore) SetPaymentProof(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, proofURL string) error {
	o, ok := f.orders[orderID]
	if !ok {
		return domain.NewNotFound("order")
	}
	o.PaymentProofURL = proofURL
	return nil
}

func (f *fakeStore) GetExpiredOrders(ctx context.Context, now time.Time) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Order
	for _, o := range f.orders {
		if (o.Status == domain.OrderPendingPayment || o.Status == domain.OrderPaymentSubmitted) && !o.PaymentDeadline.After(now) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertWaitlistEntry(ctx context.Context, tx pgx.Tx, entry *domain.WaitlistEntry) error {
	max := 0
	for _, e := range f.waitlist {
		if e.SessionID == entry.SessionID && e.Position > max {
			max = e.Position
		}
	}
	entry.Position = max + 1
	cp := *entry
	f.waitlist[entry.ID] = &cp
	return nil
}

func (f *fakeStore) GetWaitlistEntry(ctx context.Context, entryID uuid.UUID) (*domain.WaitlistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.waitlist[entryID]
	if !ok {
		return nil, domain.NewNotFound("waitlist entry")
	}
	cp := *e
	return &cp, nil
}

func (f *fakeStore) UpdateWaitlistStatus(ctx context.Context, tx pgx.Tx, entryID uuid.UUID, from, to domain.WaitlistStatus) error {
	e, ok := f.waitlist[entryID]
	if !ok || e.Status != from {
		return domain.NewNotFound("waitlist entry")
	}
	e.Status = to
	return nil
}

func (f *fakeStore) FirstWaiting(ctx context.Context, sessionID uuid.UUID) (*domain.WaitlistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *domain.WaitlistEntry
	for _, e := range f.waitlist {
		if e.SessionID == sessionID && e.Status == domain.WaitlistWaiting {
			if best == nil || e.Position < best.Position {
				best = e
			}
		}
	}
	if best == nil {
		return nil, domain.NewNotFound("waitlist entry")
	}
	cp := *best
	return &cp, nil
}

func (f *fakeStore) ExpireWaitlistEntries(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, e := range f.waitlist {
		if e.Status == domain.WaitlistWaiting && !e.ExpiresAt.After(now) {
			e.Status = domain.WaitlistExpired
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) InsertOutbox(ctx context.Context, tx pgx.Tx, record crdb.OutboxRecord) error {
	f.outbox = append(f.outbox, record)
	return nil
}

func (f *fakeStore) outboxEventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, len(f.outbox))
	for i, r := range f.outbox {
		types[i] = r.EventType
	}
	return types
}

func newTestService(store *fakeStore) *Service {
	cfg := &config.Config{
		PaymentDeadline:      120 * time.Hour,
		WaitlistTTL:          72 * time.Hour,
		MaxChildrenPerParent: 5,
	}
	return NewService(store, nil, nil, nil, observability.NewLogger(), cfg)
}

func addSession(store *fakeStore, capacity, registered int, price int64, roles ...domain.CharacterRole) uuid.UUID {
	id := uuid.New()
	for i := range roles {
		roles[i].SessionID = id
	}
	store.sessions[id] = &domain.Session{
		ID:                   id,
		Title:                "Test Session",
		Capacity:             capacity,
		CurrentRegistrations: registered,
		Status:               domain.SessionActive,
		Price:                price,
		Roles:                roles,
	}
	return id
}

func addChild(store *fakeStore, parentID uuid.UUID, name string) uuid.UUID {
	id := uuid.New()
	store.children[id] = domain.Child{ID: id, ParentID: parentID, Name: name, Age: 8}
	return id
}
