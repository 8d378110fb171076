package tenantdb

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gosuda/tillpoint/internal/domain"
	"github.com/gosuda/tillpoint/internal/store/postgres"
)

type UserRepo struct {
	db postgres.DBTX
}

func NewUserRepo(db postgres.DBTX) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, owner_id, store_id, name, username, password_hash, role, active, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.OwnerID, &u.StoreID, &u.Name, &u.Username, &u.PasswordHash,
		&u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.OwnerID, u.StoreID, u.Name, u.Username, u.PasswordHash,
		u.Role, u.Active, u.CreatedAt, u.UpdatedAt,
	)
	return postgres.MapError("userRepo.Create", err)
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, postgres.MapError("userRepo.GetByID", err)
	}
	return u, nil
}

func (r *UserRepo) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return nil, postgres.MapError("userRepo.FindByUsername", err)
	}
	return u, nil
}

func (r *UserRepo) CountActive(ctx context.Context, ownerID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM users WHERE owner_id = $1 AND active`, ownerID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("userRepo.CountActive: %w", err)
	}
	return n, nil
}

// CountActiveByRole counts active users of role. A non-nil scope.StoreID
// narrows the count to that store.
func (r *UserRepo) CountActiveByRole(ctx context.Context, role domain.Role, scope domain.CountScope) (int, error) {
	var n int
	var err error
	if scope.StoreID == uuid.Nil {
		err = r.db.QueryRow(ctx,
			`SELECT count(*) FROM users WHERE owner_id = $1 AND role = $2 AND active`,
			scope.OwnerID, role,
		).Scan(&n)
	} else {
		err = r.db.QueryRow(ctx,
			`SELECT count(*) FROM users WHERE owner_id = $1 AND role = $2 AND store_id = $3 AND active`,
			scope.OwnerID, role, scope.StoreID,
		).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("userRepo.CountActiveByRole: %w", err)
	}
	return n, nil
}
