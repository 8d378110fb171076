package postgres

import (
	"context"

	"github.com/gosuda/tillpoint/internal/domain"
)

// ControlUserRepo stores the control-plane login mirror of each owner.
type ControlUserRepo struct {
	db DBTX
}

func NewControlUserRepo(db DBTX) *ControlUserRepo {
	return &ControlUserRepo{db: db}
}

func (r *ControlUserRepo) Create(ctx context.Context, u *domain.ControlUser) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO control_users (id, owner_id, email, name, password_hash, role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.OwnerID, u.Email, u.Name, u.PasswordHash, u.Role, u.CreatedAt,
	)
	return MapError("controlUserRepo.Create", err)
}

func (r *ControlUserRepo) GetByEmail(ctx context.Context, email string) (*domain.ControlUser, error) {
	var u domain.ControlUser

	err := r.db.QueryRow(ctx,
		`SELECT id, owner_id, email, name, password_hash, role, created_at
		 FROM control_users WHERE lower(email) = lower($1)`,
		email,
	).Scan(&u.ID, &u.OwnerID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, MapError("controlUserRepo.GetByEmail", err)
	}

	return &u, nil
}
