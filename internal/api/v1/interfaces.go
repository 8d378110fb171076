package v1

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/tillpoint/internal/auth"
	"github.com/gosuda/tillpoint/internal/catalog"
	"github.com/gosuda/tillpoint/internal/domain"
	"github.com/gosuda/tillpoint/internal/plan"
	"github.com/gosuda/tillpoint/internal/staff"
	"github.com/gosuda/tillpoint/internal/tenant"
)

// AuthService abstracts authentication operations for handler testing.
// *auth.Service satisfies this interface.
type AuthService interface {
	Login(ctx context.Context, identifier, password string) (*auth.Tokens, error)
	RefreshToken(ctx context.Context, refreshToken string) (string, error)
}

// Provisioner abstracts tenant provisioning for handler testing.
// *tenant.Provisioner satisfies this interface.
type Provisioner interface {
	Provision(ctx context.Context, req tenant.Request) (tenant.Outcome, error)
}

// StaffService is satisfied by *staff.Service.
type StaffService interface {
	CreateUser(ctx context.Context, caller auth.Principal, req staff.NewUser) (*domain.User, error)
	CreateStore(ctx context.Context, caller auth.Principal, req staff.NewStore) (*domain.Store, error)
	ListStores(ctx context.Context, caller auth.Principal) ([]*domain.Store, error)
}

// CatalogService is satisfied by *catalog.Service.
type CatalogService interface {
	CreateProduct(ctx context.Context, caller auth.Principal, req catalog.NewProduct) (*domain.Product, error)
}

// SubscriptionService is satisfied by *subscription.Service.
type SubscriptionService interface {
	Active(ctx context.Context, ownerID uuid.UUID) (*domain.Subscription, error)
	PlanFor(ctx context.Context, ownerID uuid.UUID) (string, error)
	ChangePlan(ctx context.Context, ownerID uuid.UUID, planName string) (*domain.Subscription, error)
}

// PlanLimits is satisfied by *plan.Table.
type PlanLimits interface {
	Limits(planName string) (plan.Limits, error)
}

// TenantRunner is satisfied by *tenant.Resolver.
type TenantRunner interface {
	WithTenant(ctx context.Context, id domain.TenantIdentity, fn func(h domain.TenantHandle) error) error
}
