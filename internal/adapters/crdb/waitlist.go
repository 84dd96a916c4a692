package crdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/activity-bookings/internal/domain"
)

// InsertWaitlistEntry assigns the next queue position for the session
// inside the transaction, so concurrent joins serialize on position.
func (r *Repository) InsertWaitlistEntry(ctx context.Context, tx pgx.Tx, entry *domain.WaitlistEntry) error {
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(position), 0) + 1 FROM waitlist WHERE session_id = $1
	`, entry.SessionID).Scan(&entry.Position)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO waitlist (id, session_id, parent_id, child_id, position, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.SessionID, entry.ParentID, entry.ChildID, entry.Position, entry.Status, entry.CreatedAt, entry.ExpiresAt)
	return err
}

func (r *Repository) GetWaitlistEntry(ctx context.Context, entryID uuid.UUID) (*domain.WaitlistEntry, error) {
	var e domain.WaitlistEntry
	err := r.pool.QueryRow(ctx, `
		SELECT id, session_id, parent_id, child_id, position, status, created_at, expires_at
		FROM waitlist WHERE id = $1
	`, entryID).Scan(&e.ID, &e.SessionID, &e.ParentID, &e.ChildID, &e.Position, &e.Status, &e.CreatedAt, &e.ExpiresAt)
	if err == pgx.ErrNoRows {
		return nil, domain.NewNotFound("waitlist entry")
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateWaitlistStatus flips the entry status only from the expected
// current status. Positions of other entries are untouched.
func (r *Repository) UpdateWaitlistStatus(ctx context.Context, tx pgx.Tx, entryID uuid.UUID, from, to domain.WaitlistStatus) error {
	result, err := tx.Exec(ctx, `
		UPDATE waitlist SET status = $3 WHERE id = $1 AND status = $2
	`, entryID, from, to)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFound("waitlist entry")
	}
	return nil
}

// FirstWaiting returns the lowest-position waiting entry for a
// session, if any.
func (r *Repository) FirstWaiting(ctx context.Context, sessionID uuid.UUID) (*domain.WaitlistEntry, error) {
	var e domain.WaitlistEntry
	err := r.pool.QueryRow(ctx, `
		SELECT id, session_id, parent_id, child_id, position, status, created_at, expires_at
		FROM waitlist
		WHERE session_id = $1 AND status = 'waiting'
		ORDER BY position ASC LIMIT 1
	`, sessionID).Scan(&e.ID, &e.SessionID, &e.ParentID, &e.ChildID, &e.Position, &e.Status, &e.CreatedAt, &e.ExpiresAt)
	if err == pgx.ErrNoRows {
		return nil, domain.NewNotFound("waitlist entry")
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ExpireWaitlistEntries marks waiting entries whose expiry has passed
// and returns how many were expired.
func (r *Repository) ExpireWaitlistEntries(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE waitlist SET status = 'expired'
		WHERE status = 'waiting' AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
