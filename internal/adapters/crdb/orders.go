package crdb

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/robertarktes/activity-bookings/internal/domain"
)

// ReserveCapacity is the capacity guard: a single conditional update
// that increments current_registrations only when the requested seats
// still fit. Must run inside the same transaction as the order-item
// inserts consuming the seats. On rejection it re-reads the counter so
// the caller can report exactly how many seats remain.
func (r *Repository) ReserveCapacity(ctx context.Context, tx pgx.Tx, sessionID uuid.UUID, seats int) error {
	result, err := tx.Exec(ctx, `
		UPDATE sessions
		SET current_registrations = current_registrations + $2
		WHERE id = $1 AND status = 'active'
		  AND current_registrations + $2 <= capacity
	`, sessionID, seats)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		var capacity, registered int
		err := tx.QueryRow(ctx, `
			SELECT capacity, current_registrations FROM sessions WHERE id = $1
		`, sessionID).Scan(&capacity, &registered)
		if err == pgx.ErrNoRows {
			return domain.NewNotFound("session")
		}
		if err != nil {
			return err
		}
		return domain.NewCapacityExceeded(capacity-registered, seats)
	}
	return nil
}

// ReleaseCapacity returns seats to a session after cancellation. The
// counter never goes below zero even if invoked redundantly.
func (r *Repository) ReleaseCapacity(ctx context.Context, tx pgx.Tx, sessionID uuid.UUID, seats int) error {
	_, err := tx.Exec(ctx, `
		UPDATE sessions
		SET current_registrations = GREATEST(current_registrations - $2, 0)
		WHERE id = $1
	`, sessionID, seats)
	return err
}

// PersistOrder writes the order row and its items as one durable unit.
// Capacity reservation is performed by the caller in the same
// transaction, once per distinct session.
func (r *Repository) PersistOrder(ctx context.Context, tx pgx.Tx, order domain.Order) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO orders (id, order_number, parent_id, status, payment_method,
			total_amount, discount_amount, final_amount, group_code,
			payment_deadline, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, order.ID, order.OrderNumber, order.ParentID, order.Status, order.PaymentMethod,
		order.TotalAmount, order.DiscountAmount, order.FinalAmount, order.GroupCode,
		order.PaymentDeadline, order.Notes, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == UniqueViolationCode &&
			strings.Contains(pgErr.ConstraintName, "order_number") {
			return domain.NewDuplicateOrderNumber(order.OrderNumber)
		}
		return err
	}

	// Item inserts go out as one batch on the transaction's connection;
	// a pgx.Tx drives a single conn and cannot run statements
	// concurrently.
	batch := &pgx.Batch{}
	for _, item := range order.Items {
		var roleID *string
		if item.RoleID != "" {
			roleID = &item.RoleID
		}
		batch.Queue(`
			INSERT INTO order_items (id, order_id, session_id, child_id, role_id, price, discount_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, item.ID, item.OrderID, item.SessionID, item.ChildID, roleID, item.Price, item.DiscountAmount)
	}
	br := tx.SendBatch(ctx, batch)
	for range order.Items {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	return br.Close()
}

func (r *Repository) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	var o domain.Order
	var groupCode, proofURL, notes *string
	err := r.pool.QueryRow(ctx, `
		SELECT id, order_number, parent_id, status, payment_method,
			total_amount, discount_amount, final_amount, group_code,
			payment_deadline, payment_proof_url, notes, created_at, updated_at
		FROM orders WHERE order_number = $1
	`, orderNumber).Scan(&o.ID, &o.OrderNumber, &o.ParentID, &o.Status, &o.PaymentMethod,
		&o.TotalAmount, &o.DiscountAmount, &o.FinalAmount, &groupCode,
		&o.PaymentDeadline, &proofURL, &notes, &o.CreatedAt, &o.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.NewNotFound("order")
	}
	if err != nil {
		return nil, err
	}
	if groupCode != nil {
		o.GroupCode = *groupCode
	}
	if proofURL != nil {
		o.PaymentProofURL = *proofURL
	}
	if notes != nil {
		o.Notes = *notes
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, session_id, child_id, COALESCE(role_id, ''), price, discount_amount
		FROM order_items WHERE order_id = $1
	`, o.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.SessionID, &item.ChildID, &item.RoleID, &item.Price, &item.DiscountAmount); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, item)
	}
	return &o, rows.Err()
}

// UpdateOrderStatus flips the status only when the row still holds the
// expected current status, so two concurrent transitions cannot both
// apply. Zero rows affected means the order moved underneath us.
func (r *Repository) UpdateOrderStatus(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, from, to domain.OrderStatus) error {
	result, err := tx.Exec(ctx, `
		UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, orderID, from, to)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.NewIllegalTransition(from, to)
	}
	return nil
}

func (r *Repository) SetPaymentProof(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, proofURL string) error {
	result, err := tx.Exec(ctx, `
		UPDATE orders SET payment_proof_url = $2, updated_at = now()
		WHERE id = $1
	`, orderID, proofURL)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFound("order")
	}
	return nil
}

// GetExpiredOrders lists orders still awaiting payment past their
// deadline. Used by the expiry worker to drive timeout cancellation.
func (r *Repository) GetExpiredOrders(ctx context.Context, now time.Time) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT order_number FROM orders
		WHERE status IN ('pending_payment', 'payment_submitted')
		  AND payment_deadline <= $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.OrderNumber); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
