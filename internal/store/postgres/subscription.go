package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gosuda/tillpoint/internal/domain"
)

type SubscriptionRepo struct {
	db DBTX
}

func NewSubscriptionRepo(db DBTX) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

func (r *SubscriptionRepo) Create(ctx context.Context, s *domain.Subscription) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions (id, owner_id, plan, status, starts_at, ends_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.OwnerID, s.Plan, s.Status, s.StartsAt, s.EndsAt, s.CreatedAt,
	)
	return MapError("subscriptionRepo.Create", err)
}

func (r *SubscriptionRepo) ListActive(ctx context.Context, ownerID uuid.UUID) ([]*domain.Subscription, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, owner_id, plan, status, starts_at, ends_at, created_at
		 FROM subscriptions
		 WHERE owner_id = $1 AND status = 'active'
		 ORDER BY ends_at DESC, created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("subscriptionRepo.ListActive: %w", err)
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		var s domain.Subscription

		err = rows.Scan(&s.ID, &s.OwnerID, &s.Plan, &s.Status, &s.StartsAt, &s.EndsAt, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("subscriptionRepo.ListActive: scan: %w", err)
		}

		subs = append(subs, &s)
	}
	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("subscriptionRepo.ListActive: rows: %w", err)
	}

	return subs, nil
}

func (r *SubscriptionRepo) DeactivateAll(ctx context.Context, ownerID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE subscriptions SET status = 'inactive' WHERE owner_id = $1 AND status = 'active'`,
		ownerID,
	)
	if err != nil {
		return fmt.Errorf("subscriptionRepo.DeactivateAll: %w", err)
	}
	return nil
}
