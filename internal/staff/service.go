// Package staff manages tenant users and stores. Every user creation is
// gated by the quota enforcer.
package staff

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tillpoint/internal/auth"
	"github.com/gosuda/tillpoint/internal/domain"
)

// Tenants runs work against a principal's tenant database.
type Tenants interface {
	WithTenant(ctx context.Context, id domain.TenantIdentity, fn func(h domain.TenantHandle) error) error
}

// PlanSource returns the plan an owner is metered against.
type PlanSource interface {
	PlanFor(ctx context.Context, ownerID uuid.UUID) (string, error)
}

// UserQuota gates user creation.
type UserQuota interface {
	CheckUser(ctx context.Context, planName string, role domain.Role, users domain.TenantUserRepository, scope domain.CountScope) error
}

// NewUser is a user creation request.
type NewUser struct {
	Name     string
	Username string
	Password string
	Role     domain.Role
	StoreID  uuid.UUID // required for admin and cashier
}

// NewStore is a store creation request.
type NewStore struct {
	Name    string
	Address string
	Phone   string
}

type Service struct {
	tenants      Tenants
	plans        PlanSource
	quota        UserQuota
	hashPassword func(string) (string, error)
	now          func() time.Time
}

func NewService(tenants Tenants, plans PlanSource, quota UserQuota) *Service {
	return &Service{
		tenants:      tenants,
		plans:        plans,
		quota:        quota,
		hashPassword: auth.HashPassword,
		now:          time.Now,
	}
}

// CanCreate reports whether caller may create a user of role in store.
// Owners create any non-owner role; admins create cashiers and plain users
// in their own store.
func CanCreate(caller auth.Principal, role domain.Role, store uuid.UUID) bool {
	switch caller.Role {
	case domain.RoleOwner:
		return role != domain.RoleOwner
	case domain.RoleAdmin:
		if role != domain.RoleCashier && role != domain.RoleUser {
			return false
		}
		return !role.StoreScoped() || store == caller.StoreID
	default:
		return false
	}
}

// CreateUser creates a tenant user after the quota check for its role.
func (s *Service) CreateUser(ctx context.Context, caller auth.Principal, req NewUser) (*domain.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" || req.Name == "" {
		return nil, fmt.Errorf("staff.CreateUser: name, username and password are required: %w", domain.ErrInvalid)
	}
	if !req.Role.Valid() {
		return nil, fmt.Errorf("staff.CreateUser: role %q: %w", req.Role, domain.ErrInvalid)
	}
	if !req.Role.StoreScoped() {
		req.StoreID = uuid.Nil
	} else if req.StoreID == uuid.Nil {
		return nil, fmt.Errorf("staff.CreateUser: role %s requires a store: %w", req.Role, domain.ErrInvalid)
	}
	if !CanCreate(caller, req.Role, req.StoreID) {
		return nil, fmt.Errorf("staff.CreateUser: %s may not create %s: %w", caller.Role, req.Role, domain.ErrForbidden)
	}

	planName, err := s.plans.PlanFor(ctx, caller.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("staff.CreateUser: %w", err)
	}

	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("staff.CreateUser: %w", err)
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		OwnerID:      caller.OwnerID,
		Name:         req.Name,
		Username:     req.Username,
		PasswordHash: hash,
		Role:         req.Role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.StoreID != uuid.Nil {
		store := req.StoreID
		user.StoreID = &store
	}

	err = s.tenants.WithTenant(ctx, caller.Identity(), func(h domain.TenantHandle) error {
		if req.StoreID != uuid.Nil {
			if _, err := h.Stores().GetByID(ctx, req.StoreID); err != nil {
				return fmt.Errorf("store %s: %w", req.StoreID, err)
			}
		}

		scope := domain.CountScope{OwnerID: caller.OwnerID, StoreID: req.StoreID}
		if err := s.quota.CheckUser(ctx, planName, req.Role, h.Users(), scope); err != nil {
			return err
		}

		return h.Users().Create(ctx, user)
	})
	if err != nil {
		return nil, fmt.Errorf("staff.CreateUser: %w", err)
	}

	log.Info().
		Str("owner_id", caller.OwnerID.String()).
		Str("tenant_db", caller.Database).
		Str("role", string(user.Role)).
		Str("login", user.Username).
		Msg("tenant user created")
	return user, nil
}

// CreateStore adds a store to the caller's tenant. Owner only.
func (s *Service) CreateStore(ctx context.Context, caller auth.Principal, req NewStore) (*domain.Store, error) {
	if caller.Role != domain.RoleOwner {
		return nil, fmt.Errorf("staff.CreateStore: %w", domain.ErrForbidden)
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("staff.CreateStore: name is required: %w", domain.ErrInvalid)
	}

	store := &domain.Store{
		ID:        uuid.New(),
		OwnerID:   caller.OwnerID,
		Name:      req.Name,
		Address:   req.Address,
		Phone:     req.Phone,
		CreatedAt: s.now().UTC(),
	}

	err := s.tenants.WithTenant(ctx, caller.Identity(), func(h domain.TenantHandle) error {
		return h.Stores().Create(ctx, store)
	})
	if err != nil {
		return nil, fmt.Errorf("staff.CreateStore: %w", err)
	}

	return store, nil
}

// ListStores returns the caller's stores. Store-scoped callers see only
// their own store.
func (s *Service) ListStores(ctx context.Context, caller auth.Principal) ([]*domain.Store, error) {
	var stores []*domain.Store
	err := s.tenants.WithTenant(ctx, caller.Identity(), func(h domain.TenantHandle) error {
		all, err := h.Stores().List(ctx, caller.OwnerID)
		if err != nil {
			return err
		}
		for _, st := range all {
			if caller.Role.StoreScoped() && st.ID != caller.StoreID {
				continue
			}
			stores = append(stores, st)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("staff.ListStores: %w", err)
	}

	return stores, nil
}
