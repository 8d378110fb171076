// Package quota gates creation of metered tenant entities against the
// ceilings of the owner's plan.
//
// Checks are check-then-act: the count and the insert that follows are not
// atomic, so two concurrent creations can both pass the same check.
package quota

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tillpoint/internal/domain"
	"github.com/gosuda/tillpoint/internal/metrics"
	"github.com/gosuda/tillpoint/internal/plan"
)

// Error labels carried in QuotaExceededError.Entity.
const (
	EntityProduct = "product"

	// EntityUser marks a per-role ceiling denial.
	EntityUser = "user"

	// EntityUserLimit marks a denial by the owner's total user ceiling.
	EntityUserLimit = plan.KeyUserLimit
)

// Limiter resolves plan ceilings.
type Limiter interface {
	PackageLimit(planName, key string) (int, error)
}

type Enforcer struct {
	limits  Limiter
	metrics *metrics.Metrics
}

func NewEnforcer(limits Limiter, m *metrics.Metrics) *Enforcer {
	return &Enforcer{limits: limits, metrics: m}
}

// CheckUser decides whether one more active user of role may be created.
// Admins and cashiers are counted within scope.StoreID, which must be set;
// owners and plain users are counted across the owner. The owner's total
// user ceiling applies as well. A denial is a *domain.QuotaExceededError.
func (e *Enforcer) CheckUser(ctx context.Context, planName string, role domain.Role, users domain.TenantUserRepository, scope domain.CountScope) error {
	if !role.Valid() {
		return fmt.Errorf("quota.CheckUser: role %q: %w", role, domain.ErrInvalid)
	}
	if role.StoreScoped() && scope.StoreID == uuid.Nil {
		return fmt.Errorf("quota.CheckUser: role %s requires a store: %w", role, domain.ErrInvalid)
	}
	if !role.StoreScoped() {
		scope.StoreID = uuid.Nil
	}

	ceiling, err := e.limits.PackageLimit(planName, plan.RoleKey(role))
	if err != nil {
		return fmt.Errorf("quota.CheckUser: %w", err)
	}
	if ceiling != plan.Unlimited {
		current, countErr := users.CountActiveByRole(ctx, role, scope)
		if countErr != nil {
			return fmt.Errorf("quota.CheckUser: %w", countErr)
		}
		if current >= ceiling {
			return e.deny(string(role), &domain.QuotaExceededError{
				Plan: planName, Role: role, Entity: EntityUser, Ceiling: ceiling, Current: current,
			})
		}
	}

	total, err := e.limits.PackageLimit(planName, plan.KeyUserLimit)
	if err != nil {
		return fmt.Errorf("quota.CheckUser: %w", err)
	}
	if total != plan.Unlimited {
		current, countErr := users.CountActive(ctx, scope.OwnerID)
		if countErr != nil {
			return fmt.Errorf("quota.CheckUser: %w", countErr)
		}
		if current >= total {
			return e.deny(EntityUserLimit, &domain.QuotaExceededError{
				Plan: planName, Role: role, Entity: EntityUserLimit, Ceiling: total, Current: current,
			})
		}
	}

	e.metrics.QuotaDecision(string(role), true)
	return nil
}

// CheckProduct decides whether the owner may create one more product.
func (e *Enforcer) CheckProduct(ctx context.Context, planName string, products domain.ProductRepository, ownerID uuid.UUID) error {
	ceiling, err := e.limits.PackageLimit(planName, plan.KeyProductLimit)
	if err != nil {
		return fmt.Errorf("quota.CheckProduct: %w", err)
	}
	if ceiling != plan.Unlimited {
		current, countErr := products.CountByOwner(ctx, ownerID)
		if countErr != nil {
			return fmt.Errorf("quota.CheckProduct: %w", countErr)
		}
		if current >= ceiling {
			return e.deny(EntityProduct, &domain.QuotaExceededError{
				Plan: planName, Entity: EntityProduct, Ceiling: ceiling, Current: current,
			})
		}
	}

	e.metrics.QuotaDecision(EntityProduct, true)
	return nil
}

func (e *Enforcer) deny(label string, qe *domain.QuotaExceededError) error {
	e.metrics.QuotaDecision(label, false)
	log.Info().
		Str("plan", qe.Plan).
		Str("role", label).
		Int("ceiling", qe.Ceiling).
		Int("current", qe.Current).
		Msg("quota exceeded")
	return qe
}
