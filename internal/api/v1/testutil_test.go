package v1_test

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/gosuda/tillpoint/internal/auth"
	"github.com/gosuda/tillpoint/internal/catalog"
	"github.com/gosuda/tillpoint/internal/domain"
	"github.com/gosuda/tillpoint/internal/server/middleware"
	"github.com/gosuda/tillpoint/internal/staff"
	"github.com/gosuda/tillpoint/internal/tenant"
)

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

const testTenantDB = "pos_tenant_00112233445566778899aabbccddeeff"

func principal(role domain.Role) auth.Principal {
	return auth.Principal{OwnerID: uuid.New(), Database: testTenantDB, UserID: uuid.New(), Role: role}
}

func principalCtx(p auth.Principal) context.Context {
	return middleware.WithPrincipal(context.Background(), p)
}

func ownerCtx() (context.Context, auth.Principal) {
	p := principal(domain.RoleOwner)
	return principalCtx(p), p
}

// ---------------------------------------------------------------------------
// Mock AuthService
// ---------------------------------------------------------------------------

type mockAuthService struct {
	loginFunc        func(ctx context.Context, identifier, password string) (*auth.Tokens, error)
	refreshTokenFunc func(ctx context.Context, refreshToken string) (string, error)
}

func (m *mockAuthService) Login(ctx context.Context, identifier, password string) (*auth.Tokens, error) {
	return m.loginFunc(ctx, identifier, password)
}

func (m *mockAuthService) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	return m.refreshTokenFunc(ctx, refreshToken)
}

// ---------------------------------------------------------------------------
// Mock Provisioner
// ---------------------------------------------------------------------------

type mockProvisioner struct {
	provisionFunc func(ctx context.Context, req tenant.Request) (tenant.Outcome, error)
}

func (m *mockProvisioner) Provision(ctx context.Context, req tenant.Request) (tenant.Outcome, error) {
	return m.provisionFunc(ctx, req)
}

// ---------------------------------------------------------------------------
// Mock StaffService / CatalogService
// ---------------------------------------------------------------------------

type mockStaffService struct {
	createUserFunc  func(ctx context.Context, caller auth.Principal, req staff.NewUser) (*domain.User, error)
	createStoreFunc func(ctx context.Context, caller auth.Principal, req staff.NewStore) (*domain.Store, error)
	listStoresFunc  func(ctx context.Context, caller auth.Principal) ([]*domain.Store, error)
}

func (m *mockStaffService) CreateUser(ctx context.Context, caller auth.Principal, req staff.NewUser) (*domain.User, error) {
	return m.createUserFunc(ctx, caller, req)
}

func (m *mockStaffService) CreateStore(ctx context.Context, caller auth.Principal, req staff.NewStore) (*domain.Store, error) {
	return m.createStoreFunc(ctx, caller, req)
}

func (m *mockStaffService) ListStores(ctx context.Context, caller auth.Principal) ([]*domain.Store, error) {
	return m.listStoresFunc(ctx, caller)
}

type mockCatalogService struct {
	createProductFunc func(ctx context.Context, caller auth.Principal, req catalog.NewProduct) (*domain.Product, error)
}

func (m *mockCatalogService) CreateProduct(ctx context.Context, caller auth.Principal, req catalog.NewProduct) (*domain.Product, error) {
	return m.createProductFunc(ctx, caller, req)
}

// ---------------------------------------------------------------------------
// In-memory subscriptions and tenant
// ---------------------------------------------------------------------------

// memSubscriptions holds one plan per owner. It satisfies both the
// SubscriptionService handlers use and the plan source of the services.
type memSubscriptions struct {
	mu    sync.Mutex
	plans map[uuid.UUID]string
}

func newMemSubscriptions() *memSubscriptions {
	return &memSubscriptions{plans: make(map[uuid.UUID]string)}
}

func (m *memSubscriptions) set(owner uuid.UUID, planName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[owner] = planName
}

func (m *memSubscriptions) Active(_ context.Context, ownerID uuid.UUID) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[ownerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.Subscription{OwnerID: ownerID, Plan: p, Status: domain.SubscriptionActive}, nil
}

func (m *memSubscriptions) PlanFor(ctx context.Context, ownerID uuid.UUID) (string, error) {
	s, err := m.Active(ctx, ownerID)
	if err != nil {
		return "", err
	}
	return s.Plan, nil
}

func (m *memSubscriptions) ChangePlan(_ context.Context, ownerID uuid.UUID, planName string) (*domain.Subscription, error) {
	switch planName {
	case "Standard", "Pro", "Enterprise":
	default:
		return nil, domain.ErrUnknownPlan
	}
	m.set(ownerID, planName)
	return &domain.Subscription{OwnerID: ownerID, Plan: planName, Status: domain.SubscriptionActive}, nil
}

type memTenant struct {
	mu       sync.Mutex
	users    []*domain.User
	stores   map[uuid.UUID]*domain.Store
	products []*domain.Product
}

func newMemTenant() *memTenant {
	return &memTenant{stores: make(map[uuid.UUID]*domain.Store)}
}

func (m *memTenant) WithTenant(_ context.Context, id domain.TenantIdentity, fn func(h domain.TenantHandle) error) error {
	if id.Database == "" {
		return domain.ErrNoTenantBound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(memHandle{m})
}

type memHandle struct{ m *memTenant }

func (h memHandle) Database() string                   { return testTenantDB }
func (h memHandle) Users() domain.TenantUserRepository { return memUsers{h.m} }
func (h memHandle) Stores() domain.StoreRepository     { return memStores{h.m} }
func (h memHandle) Products() domain.ProductRepository { return memProducts{h.m} }
func (h memHandle) Close(context.Context) error        { return nil }

type memUsers struct{ m *memTenant }

func (r memUsers) Create(_ context.Context, u *domain.User) error {
	for _, e := range r.m.users {
		if e.Username == u.Username {
			return domain.ErrConflict
		}
	}
	r.m.users = append(r.m.users, u)
	return nil
}

func (r memUsers) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	for _, u := range r.m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memUsers) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	for _, u := range r.m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memUsers) CountActive(_ context.Context, ownerID uuid.UUID) (int, error) {
	n := 0
	for _, u := range r.m.users {
		if u.Active && u.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (r memUsers) CountActiveByRole(_ context.Context, role domain.Role, scope domain.CountScope) (int, error) {
	n := 0
	for _, u := range r.m.users {
		if !u.Active || u.Role != role || u.OwnerID != scope.OwnerID {
			continue
		}
		if scope.StoreID != uuid.Nil && (u.StoreID == nil || *u.StoreID != scope.StoreID) {
			continue
		}
		n++
	}
	return n, nil
}

type memStores struct{ m *memTenant }

func (r memStores) Create(_ context.Context, s *domain.Store) error {
	r.m.stores[s.ID] = s
	return nil
}

func (r memStores) GetByID(_ context.Context, id uuid.UUID) (*domain.Store, error) {
	s, ok := r.m.stores[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (r memStores) List(_ context.Context, ownerID uuid.UUID) ([]*domain.Store, error) {
	var out []*domain.Store
	for _, s := range r.m.stores {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	return out, nil
}

type memProducts struct{ m *memTenant }

func (r memProducts) Create(_ context.Context, p *domain.Product) error {
	r.m.products = append(r.m.products, p)
	return nil
}

func (r memProducts) CountByOwner(_ context.Context, ownerID uuid.UUID) (int, error) {
	n := 0
	for _, p := range r.m.products {
		if p.Active && p.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}
