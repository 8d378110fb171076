package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Owner is a business principal registered in the control plane.
type Owner struct {
	ID           uuid.UUID
	BusinessName string
	Email        string
	Phone        string
	PasswordHash string // argon2id, never plaintext
	CreatedAt    time.Time
}

// ControlUser is the login-capable mirror of an owner in the control plane's
// own user table. It lets an owner authenticate by email before any tenant is
// known.
type ControlUser struct {
	ID           uuid.UUID
	OwnerID      uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// TenantRecord maps an owner to its isolated tenant database and the
// dedicated credential for it. DBPassword is vault-encrypted.
type TenantRecord struct {
	OwnerID    uuid.UUID
	Database   string
	DBUser     string
	DBPassword string
	Plan       string
	CreatedAt  time.Time
}

// TenantIdentity is what a principal carries to be routed to its tenant.
type TenantIdentity struct {
	OwnerID  uuid.UUID
	Database string
}

// SubscriptionStatus is the lifecycle state of a subscription row.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionInactive SubscriptionStatus = "inactive"
)

type Subscription struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Plan      string
	Status    SubscriptionStatus
	StartsAt  time.Time
	EndsAt    time.Time
	CreatedAt time.Time
}

// Current reports whether the subscription is active and has not ended at now.
func (s *Subscription) Current(now time.Time) bool {
	return s.Status == SubscriptionActive && now.Before(s.EndsAt)
}

type OwnerRepository interface {
	Create(ctx context.Context, o *Owner) error
	GetByID(ctx context.Context, id uuid.UUID) (*Owner, error)
	GetByEmail(ctx context.Context, email string) (*Owner, error)
}

type ControlUserRepository interface {
	Create(ctx context.Context, u *ControlUser) error
	GetByEmail(ctx context.Context, email string) (*ControlUser, error)
}

type TenantRecordRepository interface {
	Create(ctx context.Context, r *TenantRecord) error
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*TenantRecord, error)
	GetByDatabase(ctx context.Context, database string) (*TenantRecord, error)
	List(ctx context.Context) ([]*TenantRecord, error)
	UpdatePlan(ctx context.Context, ownerID uuid.UUID, plan string) error
}

type SubscriptionRepository interface {
	Create(ctx context.Context, s *Subscription) error
	// ListActive returns active rows for the owner, latest end date first.
	ListActive(ctx context.Context, ownerID uuid.UUID) ([]*Subscription, error)
	DeactivateAll(ctx context.Context, ownerID uuid.UUID) error
}

// ControlPlane groups the control-plane repositories. WithinTx runs fn
// against repositories bound to a single transaction; the accessors on the
// receiver itself use the shared pool.
type ControlPlane interface {
	Owners() OwnerRepository
	ControlUsers() ControlUserRepository
	TenantRecords() TenantRecordRepository
	Subscriptions() SubscriptionRepository
	WithinTx(ctx context.Context, fn func(tx ControlPlane) error) error
}
