package staff_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/tillpoint/internal/auth"
	"github.com/gosuda/tillpoint/internal/domain"
	"github.com/gosuda/tillpoint/internal/plan"
	"github.com/gosuda/tillpoint/internal/quota"
	"github.com/gosuda/tillpoint/internal/staff"
)

// --- In-memory tenant ---

type memTenant struct {
	database string
	users    []*domain.User
	stores   map[uuid.UUID]*domain.Store
	opens    int
	releases int
}

func newMemTenant(database string) *memTenant {
	return &memTenant{database: database, stores: make(map[uuid.UUID]*domain.Store)}
}

func (m *memTenant) WithTenant(_ context.Context, id domain.TenantIdentity, fn func(h domain.TenantHandle) error) error {
	if id.Database == "" {
		return domain.ErrNoTenantBound
	}
	m.opens++
	defer func() { m.releases++ }()
	return fn(memHandle{m})
}

type memHandle struct{ m *memTenant }

func (h memHandle) Database() string                   { return h.m.database }
func (h memHandle) Users() domain.TenantUserRepository { return memUsers{h.m} }
func (h memHandle) Stores() domain.StoreRepository     { return memStores{h.m} }
func (h memHandle) Products() domain.ProductRepository { return nil }
func (h memHandle) Close(context.Context) error        { return nil }

type memUsers struct{ m *memTenant }

func (r memUsers) Create(_ context.Context, u *domain.User) error {
	for _, existing := range r.m.users {
		if existing.Username == u.Username {
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

type fixedPlan struct{ name string }

func (p *fixedPlan) PlanFor(context.Context, uuid.UUID) (string, error) { return p.name, nil }

// --- Fixture ---

type fixture struct {
	svc    *staff.Service
	tenant *memTenant
	plan   *fixedPlan
	owner  auth.Principal
	store  uuid.UUID
}

func newFixture(t *testing.T, planName string) *fixture {
	t.Helper()

	ownerID := uuid.New()
	tenant := newMemTenant("pos_tenant_" + uuid.New().String()[:8])
	pl := &fixedPlan{name: planName}
	owner := auth.Principal{OwnerID: ownerID, Database: tenant.database, UserID: uuid.New(), Role: domain.RoleOwner}

	f := &fixture{
		svc:    staff.NewService(tenant, pl, quota.NewEnforcer(plan.NewTable(nil), nil)),
		tenant: tenant,
		plan:   pl,
		owner:  owner,
	}

	// Bootstrap owner login, as provisioning leaves it.
	tenant.users = append(tenant.users, &domain.User{
		ID: owner.UserID, OwnerID: ownerID, Username: "owner@example.com", Role: domain.RoleOwner, Active: true,
	})

	st, err := f.svc.CreateStore(t.Context(), owner, staff.NewStore{Name: "Main"})
	require.NoError(t, err)
	f.store = st.ID
	return f
}

func newUser(username string, role domain.Role, store uuid.UUID) staff.NewUser {
	return staff.NewUser{Name: username, Username: username, Password: "pw-" + username, Role: role, StoreID: store}
}

// --- Tests ---

func TestCreateUser_StandardDeniesAdminUntilUpgrade(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Standard")

	_, err := f.svc.CreateUser(t.Context(), f.owner, newUser("amy", domain.RoleAdmin, f.store))
	qe, ok := domain.IsQuotaExceeded(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, domain.RoleAdmin, qe.Role)
	assert.Equal(t, 0, qe.Ceiling)
	assert.Equal(t, "Standard", qe.Plan)

	f.plan.name = "Pro"

	u, err := f.svc.CreateUser(t.Context(), f.owner, newUser("amy", domain.RoleAdmin, f.store))
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, u.Role)
	assert.Equal(t, f.store, *u.StoreID)
	assert.NotEqual(t, "pw-amy", u.PasswordHash)
	assert.True(t, auth.VerifyPassword("pw-amy", u.PasswordHash))

	_, err = f.svc.CreateUser(t.Context(), f.owner, newUser("ann", domain.RoleAdmin, f.store))
	_, ok = domain.IsQuotaExceeded(err)
	assert.True(t, ok, "Pro allows one admin per store")
	assert.Equal(t, f.tenant.opens, f.tenant.releases)
}

func TestCreateUser_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Pro")

	tests := []struct {
		name string
		req  staff.NewUser
	}{
		{name: "missing username", req: newUser("", domain.RoleCashier, f.store)},
		{name: "invalid role", req: newUser("x", domain.Role("boss"), f.store)},
		{name: "cashier without store", req: newUser("x", domain.RoleCashier, uuid.Nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateUser(t.Context(), f.owner, tt.req)
			require.ErrorIs(t, err, domain.ErrInvalid)
		})
	}

	t.Run("unknown store", func(t *testing.T) {
		_, err := f.svc.CreateUser(t.Context(), f.owner, newUser("cas", domain.RoleCashier, uuid.New()))
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("duplicate username", func(t *testing.T) {
		_, err := f.svc.CreateUser(t.Context(), f.owner, newUser("dup", domain.RoleUser, uuid.Nil))
		require.NoError(t, err)
		_, err = f.svc.CreateUser(t.Context(), f.owner, newUser("dup", domain.RoleUser, uuid.Nil))
		require.ErrorIs(t, err, domain.ErrConflict)
	})
}

func TestCanCreate(t *testing.T) {
	t.Parallel()

	store, other := uuid.New(), uuid.New()
	owner := auth.Principal{Role: domain.RoleOwner}
	admin := auth.Principal{Role: domain.RoleAdmin, StoreID: store}
	cashier := auth.Principal{Role: domain.RoleCashier, StoreID: store}

	tests := []struct {
		name   string
		caller auth.Principal
		role   domain.Role
		store  uuid.UUID
		want   bool
	}{
		{name: "owner creates admin", caller: owner, role: domain.RoleAdmin, store: other, want: true},
		{name: "owner cannot create owner", caller: owner, role: domain.RoleOwner},
		{name: "admin creates cashier in own store", caller: admin, role: domain.RoleCashier, store: store, want: true},
		{name: "admin cannot create cashier elsewhere", caller: admin, role: domain.RoleCashier, store: other},
		{name: "admin creates plain user", caller: admin, role: domain.RoleUser, want: true},
		{name: "admin cannot create admin", caller: admin, role: domain.RoleAdmin, store: store},
		{name: "cashier creates nothing", caller: cashier, role: domain.RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, staff.CanCreate(tt.caller, tt.role, tt.store))
		})
	}
}

func TestCreateUser_Forbidden(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Pro")
	cashier := f.owner
	cashier.Role, cashier.StoreID = domain.RoleCashier, f.store

	_, err := f.svc.CreateUser(t.Context(), cashier, newUser("c2", domain.RoleCashier, f.store))
	require.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, 1, f.tenant.opens, "only the fixture store creation opened the tenant")
}

func TestStores(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Pro")
	second, err := f.svc.CreateStore(t.Context(), f.owner, staff.NewStore{Name: "  Annex  "})
	require.NoError(t, err)
	assert.Equal(t, "Annex", second.Name)

	all, err := f.svc.ListStores(t.Context(), f.owner)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	admin := f.owner
	admin.Role, admin.StoreID = domain.RoleAdmin, second.ID
	mine, err := f.svc.ListStores(t.Context(), admin)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, second.ID, mine[0].ID)

	_, err = f.svc.CreateStore(t.Context(), admin, staff.NewStore{Name: "Rogue"})
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.CreateStore(t.Context(), f.owner, staff.NewStore{Name: " "})
	require.Error(t, err)
}

func TestCreateUser_NoTenantBound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Pro")
	unbound := f.owner
	unbound.Database = ""

	_, err := f.svc.CreateUser(t.Context(), unbound, newUser("x", domain.RoleUser, uuid.Nil))
	require.ErrorIs(t, err, domain.ErrNoTenantBound)
}
