package booking

import (
	"context"

	"github.com/google/uuid"
	"github.com/robertarktes/activity-bookings/internal/domain"
)

// RoleValidation is the result of validating a candidate role against
// a session. Err carries the typed reason when Valid is false.
type RoleValidation struct {
	Valid bool
	Err   *domain.Error
}

// RoleExistsInSession checks only that the role id belongs to the
// session's configured role set. No capacity side effect; UI code
// checks existence separately from reserving.
func (s *Service) RoleExistsInSession(ctx context.Context, sessionID uuid.UUID, roleID string) (bool, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if !session.HasRoles() {
		return false, nil
	}
	_, ok := session.RoleByID(roleID)
	return ok, nil
}

// ValidateRoleAssignment confirms the role belongs to the session and
// has remaining capacity. "Invalid role" and "fully booked" stay
// distinct error kinds: the first is a permanent input error, the
// second clears when capacity frees up.
func (s *Service) ValidateRoleAssignment(ctx context.Context, sessionID uuid.UUID, roleID string) (RoleValidation, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return RoleValidation{}, err
	}
	return s.validateRole(ctx, session, roleID, 0)
}

// validateRole is the shared validator. extraAssigned accounts for
// role slots already claimed by earlier items of the same in-flight
// order, which the derived count cannot see yet.
func (s *Service) validateRole(ctx context.Context, session *domain.Session, roleID string, extraAssigned int) (RoleValidation, error) {
	if !session.HasRoles() {
		return RoleValidation{
			Valid: false,
			Err:   domain.NewInvalidRole("session does not require role selection"),
		}, nil
	}

	role, ok := session.RoleByID(roleID)
	if !ok {
		return RoleValidation{
			Valid: false,
			Err:   domain.NewInvalidRole("invalid role " + roleID + " for this session"),
		}, nil
	}

	assigned, err := s.store.CountRoleAssignments(ctx, session.ID, roleID)
	if err != nil {
		return RoleValidation{}, err
	}
	if assigned+extraAssigned >= role.Capacity {
		return RoleValidation{
			Valid: false,
			Err:   domain.NewRoleFull(roleID, role.Capacity),
		}, nil
	}

	return RoleValidation{Valid: true}, nil
}
