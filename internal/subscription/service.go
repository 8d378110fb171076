// Package subscription resolves an owner's active plan and changes it.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tillpoint/internal/domain"
)

// Plans validates and canonicalizes plan names.
type Plans interface {
	Subscribable(planName string) bool
	Canonical(planName string) string
}

type Service struct {
	control domain.ControlPlane
	plans   Plans
	term    time.Duration
	now     func() time.Time
}

func NewService(control domain.ControlPlane, plans Plans, term time.Duration) *Service {
	return &Service{control: control, plans: plans, term: term, now: time.Now}
}

// Active returns the owner's active subscription with the latest end date.
// Rows that have already ended are ignored.
func (s *Service) Active(ctx context.Context, ownerID uuid.UUID) (*domain.Subscription, error) {
	subs, err := s.control.Subscriptions().ListActive(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("subscription.Active: %w", err)
	}

	now := s.now()
	var latest *domain.Subscription
	for _, sub := range subs {
		if !sub.Current(now) {
			continue
		}
		if latest == nil || sub.EndsAt.After(latest.EndsAt) {
			latest = sub
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("subscription.Active: owner %s: %w", ownerID, domain.ErrNotFound)
	}
	return latest, nil
}

// PlanFor returns the plan quotas are enforced against: the active
// subscription's plan, or the plan recorded at provisioning when no
// subscription is current.
func (s *Service) PlanFor(ctx context.Context, ownerID uuid.UUID) (string, error) {
	sub, err := s.Active(ctx, ownerID)
	if err == nil {
		return sub.Plan, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}

	record, err := s.control.TenantRecords().GetByOwner(ctx, ownerID)
	if err != nil {
		return "", fmt.Errorf("subscription.PlanFor: %w", err)
	}
	log.Debug().Str("owner_id", ownerID.String()).Str("plan", record.Plan).Msg("no current subscription, using recorded plan")
	return record.Plan, nil
}

// ChangePlan replaces the owner's active subscription with a new one on
// planName, starting now. The tenant record's plan follows.
func (s *Service) ChangePlan(ctx context.Context, ownerID uuid.UUID, planName string) (*domain.Subscription, error) {
	if !s.plans.Subscribable(planName) {
		return nil, fmt.Errorf("subscription.ChangePlan: plan %q: %w", planName, domain.ErrUnknownPlan)
	}
	planName = s.plans.Canonical(planName)

	now := s.now().UTC()
	sub := &domain.Subscription{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Plan:      planName,
		Status:    domain.SubscriptionActive,
		StartsAt:  now,
		EndsAt:    now.Add(s.term),
		CreatedAt: now,
	}

	err := s.control.WithinTx(ctx, func(tx domain.ControlPlane) error {
		if err := tx.TenantRecords().UpdatePlan(ctx, ownerID, planName); err != nil {
			return fmt.Errorf("update record: %w", err)
		}
		if err := tx.Subscriptions().DeactivateAll(ctx, ownerID); err != nil {
			return fmt.Errorf("deactivate: %w", err)
		}
		if err := tx.Subscriptions().Create(ctx, sub); err != nil {
			return fmt.Errorf("create: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("subscription.ChangePlan: %w", err)
	}

	log.Info().Str("owner_id", ownerID.String()).Str("plan", planName).Msg("subscription plan changed")
	return sub, nil
}
