package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound  = errors.New("domain: not found")
	ErrConflict  = errors.New("domain: conflict")
	ErrForbidden = errors.New("domain: forbidden")
	ErrInvalid   = errors.New("domain: invalid input")

	// ErrNoTenantBound is returned when a principal carries no tenant database
	// identity. Login falls back to discovery on this condition.
	ErrNoTenantBound = errors.New("domain: no tenant bound to principal")

	// ErrUnknownPlan is a configuration error: the plan name resolves in
	// neither the override nor the default tier.
	ErrUnknownPlan = errors.New("domain: unknown plan")
)

// QuotaExceededError reports that creating one more metered entity would
// exceed the ceiling of the owner's plan.
type QuotaExceededError struct {
	Plan    string
	Role    Role // role being created; empty for non-user entities
	Entity  string
	Ceiling int
	Current int
}

func (e *QuotaExceededError) Error() string {
	if e.Role != "" && e.Entity != "" && e.Entity != "user" {
		return fmt.Sprintf("quota exceeded: plan %q %s allows %d user(s) in total, %d active; cannot add %s", e.Plan, e.Entity, e.Ceiling, e.Current, e.Role)
	}
	if e.Role != "" {
		return fmt.Sprintf("quota exceeded: plan %q allows %d %s user(s), %d active", e.Plan, e.Ceiling, e.Role, e.Current)
	}
	return fmt.Sprintf("quota exceeded: plan %q allows %d %s(s), %d present", e.Plan, e.Ceiling, e.Entity, e.Current)
}

// IsQuotaExceeded reports whether err carries a *QuotaExceededError.
func IsQuotaExceeded(err error) (*QuotaExceededError, bool) {
	var qe *QuotaExceededError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}
