package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Role is a tenant user role.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleCashier Role = "cashier"
	RoleUser    Role = "user"
)

// Roles lists every role in ceiling order.
var Roles = []Role{RoleOwner, RoleAdmin, RoleCashier, RoleUser} //nolint:gochecknoglobals // fixed enumeration

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleCashier, RoleUser:
		return true
	}
	return false
}

// StoreScoped reports whether users of this role belong to exactly one store
// and are metered per store.
func (r Role) StoreScoped() bool {
	return r == RoleAdmin || r == RoleCashier
}

// User is a tenant-scoped login. Owner rows have no StoreID; admin and
// cashier rows always have one.
type User struct {
	ID           uuid.UUID
	OwnerID      uuid.UUID
	StoreID      *uuid.UUID
	Name         string
	Username     string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store is a physical outlet inside a tenant database.
type Store struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Name      string
	Address   string
	Phone     string
	CreatedAt time.Time
}

type Product struct {
	ID         uuid.UUID
	OwnerID    uuid.UUID
	StoreID    *uuid.UUID
	SKU        string
	Name       string
	PriceCents int64
	Stock      int
	Active     bool
	CreatedAt  time.Time
}

// CountScope narrows a user count. StoreID is uuid.Nil for per-owner counts.
type CountScope struct {
	OwnerID uuid.UUID
	StoreID uuid.UUID
}

type TenantUserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	CountActive(ctx context.Context, ownerID uuid.UUID) (int, error)
	CountActiveByRole(ctx context.Context, role Role, scope CountScope) (int, error)
}

type StoreRepository interface {
	Create(ctx context.Context, s *Store) error
	GetByID(ctx context.Context, id uuid.UUID) (*Store, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]*Store, error)
}

type ProductRepository interface {
	Create(ctx context.Context, p *Product) error
	CountByOwner(ctx context.Context, ownerID uuid.UUID) (int, error)
}

// TenantHandle is a live connection scoped to exactly one tenant database.
// It is acquired per operation and must be closed on every exit path.
type TenantHandle interface {
	Database() string
	Users() TenantUserRepository
	Stores() StoreRepository
	Products() ProductRepository
	Close(ctx context.Context) error
}
