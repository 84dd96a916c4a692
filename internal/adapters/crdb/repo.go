package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/activity-bookings/internal/domain"
	"github.com/robertarktes/activity-bookings/internal/observability"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}

	return tx.Commit(ctx)
}

// GetSession loads a session with its configured character roles.
func (r *Repository) GetSession(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	var s domain.Session
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, capacity, current_registrations, status, price
		FROM sessions WHERE id = $1
	`, sessionID).Scan(&s.ID, &s.Title, &s.Capacity, &s.CurrentRegistrations, &s.Status, &s.Price)
	if err == pgx.ErrNoRows {
		return nil, domain.NewNotFound("session")
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, name, display_name, capacity
		FROM character_roles WHERE session_id = $1 ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var role domain.CharacterRole
		if err := rows.Scan(&role.ID, &role.SessionID, &role.Name, &role.DisplayName, &role.Capacity); err != nil {
			return nil, err
		}
		s.Roles = append(s.Roles, role)
	}
	return &s, rows.Err()
}

// CountRoleAssignments derives role occupancy from live order items:
// items whose parent order is not cancelled. There is no stored role
// counter to desynchronize.
func (r *Repository) CountRoleAssignments(ctx context.Context, sessionID uuid.UUID, roleID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE oi.session_id = $1 AND oi.role_id = $2
		  AND o.status NOT IN ('cancelled_manual', 'cancelled_timeout')
	`, sessionID, roleID).Scan(&n)
	return n, err
}

func (r *Repository) GetChild(ctx context.Context, childID uuid.UUID) (*domain.Child, error) {
	var c domain.Child
	err := r.pool.QueryRow(ctx, `
		SELECT id, parent_id, name, age FROM children WHERE id = $1
	`, childID).Scan(&c.ID, &c.ParentID, &c.Name, &c.Age)
	if err == pgx.ErrNoRows {
		return nil, domain.NewNotFound("child")
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) CountChildren(ctx context.Context, parentID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM children WHERE parent_id = $1
	`, parentID).Scan(&n)
	return n, err
}

// FindChildByName reuses an existing child row when a parent resubmits
// the same name, keeping child resolution idempotent across retries.
func (r *Repository) FindChildByName(ctx context.Context, parentID uuid.UUID, name string) (*domain.Child, error) {
	var c domain.Child
	err := r.pool.QueryRow(ctx, `
		SELECT id, parent_id, name, age FROM children
		WHERE parent_id = $1 AND name = $2
	`, parentID, name).Scan(&c.ID, &c.ParentID, &c.Name, &c.Age)
	if err == pgx.ErrNoRows {
		return nil, domain.NewNotFound("child")
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) CreateChild(ctx context.Context, child domain.Child) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO children (id, parent_id, name, age)
		VALUES ($1, $2, $3, $4)
	`, child.ID, child.ParentID, child.Name, child.Age)
	return err
}
