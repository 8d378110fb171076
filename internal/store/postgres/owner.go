package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/tillpoint/internal/domain"
)

type OwnerRepo struct {
	db DBTX
}

func NewOwnerRepo(db DBTX) *OwnerRepo {
	return &OwnerRepo{db: db}
}

func (r *OwnerRepo) Create(ctx context.Context, o *domain.Owner) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO owners (id, business_name, email, phone, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.BusinessName, o.Email, o.Phone, o.PasswordHash, o.CreatedAt,
	)
	return MapError("ownerRepo.Create", err)
}

func (r *OwnerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Owner, error) {
	return r.get(ctx, "ownerRepo.GetByID", `WHERE id = $1`, id)
}

func (r *OwnerRepo) GetByEmail(ctx context.Context, email string) (*domain.Owner, error) {
	return r.get(ctx, "ownerRepo.GetByEmail", `WHERE lower(email) = lower($1)`, email)
}

func (r *OwnerRepo) get(ctx context.Context, op, where string, arg any) (*domain.Owner, error) {
	var o domain.Owner

	err := r.db.QueryRow(ctx,
		`SELECT id, business_name, email, phone, password_hash, created_at
		 FROM owners `+where,
		arg,
	).Scan(&o.ID, &o.BusinessName, &o.Email, &o.Phone, &o.PasswordHash, &o.CreatedAt)
	if err != nil {
		return nil, MapError(op, err)
	}

	return &o, nil
}
