package quota_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/tillpoint/internal/domain"
	"github.com/gosuda/tillpoint/internal/plan"
	"github.com/gosuda/tillpoint/internal/quota"
)

// --- Mocks ---

type countKey struct {
	role  domain.Role
	store uuid.UUID
}

type mockUsers struct {
	domain.TenantUserRepository
	counts    map[countKey]int
	countErr  error
	lastRole  domain.Role
	lastScope domain.CountScope
}

func newMockUsers() *mockUsers {
	return &mockUsers{counts: make(map[countKey]int)}
}

func (m *mockUsers) add(role domain.Role, store uuid.UUID) {
	m.counts[countKey{role, store}]++
}

func (m *mockUsers) CountActiveByRole(_ context.Context, role domain.Role, scope domain.CountScope) (int, error) {
	m.lastRole, m.lastScope = role, scope
	if m.countErr != nil {
		return 0, m.countErr
	}
	if scope.StoreID != uuid.Nil {
		return m.counts[countKey{role, scope.StoreID}], nil
	}
	n := 0
	for k, c := range m.counts {
		if k.role == role {
			n += c
		}
	}
	return n, nil
}

func (m *mockUsers) CountActive(context.Context, uuid.UUID) (int, error) {
	n := 0
	for _, c := range m.counts {
		n += c
	}
	return n, nil
}

type mockProducts struct {
	domain.ProductRepository
	count int
}

func (m *mockProducts) CountByOwner(context.Context, uuid.UUID) (int, error) {
	return m.count, nil
}

func overrides(t *testing.T, doc string) *plan.Table {
	t.Helper()

	ov, err := plan.Parse([]byte(doc))
	require.NoError(t, err)
	return plan.NewTable(ov)
}

// --- Tests ---

func TestCheckUser_Boundary(t *testing.T) {
	t.Parallel()

	table := overrides(t, "Pro:\n  max_admin: 2\n  user_limit: -1\n")
	e := quota.NewEnforcer(table, nil)
	users := newMockUsers()
	owner, store := uuid.New(), uuid.New()
	scope := domain.CountScope{OwnerID: owner, StoreID: store}

	users.add(domain.RoleAdmin, store)
	require.NoError(t, e.CheckUser(t.Context(), "Pro", domain.RoleAdmin, users, scope), "1 of 2 admins allows")

	users.add(domain.RoleAdmin, store)
	err := e.CheckUser(t.Context(), "Pro", domain.RoleAdmin, users, scope)

	qe, ok := domain.IsQuotaExceeded(err)
	require.True(t, ok, "2 of 2 admins denies, got %v", err)
	assert.Equal(t, domain.RoleAdmin, qe.Role)
	assert.Equal(t, 2, qe.Ceiling)
	assert.Equal(t, 2, qe.Current)
	assert.Equal(t, "Pro", qe.Plan)
}

func TestCheckUser_AdminCountedPerStore(t *testing.T) {
	t.Parallel()

	e := quota.NewEnforcer(plan.NewTable(nil), nil) // Pro: one admin per store
	users := newMockUsers()
	owner, storeA, storeB := uuid.New(), uuid.New(), uuid.New()
	users.add(domain.RoleAdmin, storeA)

	err := e.CheckUser(t.Context(), "Pro", domain.RoleAdmin, users, domain.CountScope{OwnerID: owner, StoreID: storeA})
	_, denied := domain.IsQuotaExceeded(err)
	assert.True(t, denied)

	err = e.CheckUser(t.Context(), "Pro", domain.RoleAdmin, users, domain.CountScope{OwnerID: owner, StoreID: storeB})
	require.NoError(t, err, "another store has its own admin allowance")
	assert.Equal(t, storeB, users.lastScope.StoreID)
}

func TestCheckUser_OwnerAndUserCountedPerOwner(t *testing.T) {
	t.Parallel()

	e := quota.NewEnforcer(plan.NewTable(nil), nil)
	users := newMockUsers()
	owner := uuid.New()

	for _, role := range []domain.Role{domain.RoleOwner, domain.RoleUser} {
		err := e.CheckUser(t.Context(), "Pro", role, users, domain.CountScope{OwnerID: owner, StoreID: uuid.New()})
		require.NoError(t, err)
		assert.Equal(t, uuid.Nil, users.lastScope.StoreID, "%s is counted across the owner", role)
	}
}

func TestCheckUser_StoreRequired(t *testing.T) {
	t.Parallel()

	e := quota.NewEnforcer(plan.NewTable(nil), nil)
	err := e.CheckUser(t.Context(), "Pro", domain.RoleCashier, newMockUsers(), domain.CountScope{OwnerID: uuid.New()})

	require.Error(t, err)
	_, denied := domain.IsQuotaExceeded(err)
	assert.False(t, denied)
}

func TestCheckUser_StandardDeniesAdmin(t *testing.T) {
	t.Parallel()

	e := quota.NewEnforcer(plan.NewTable(nil), nil)
	scope := domain.CountScope{OwnerID: uuid.New(), StoreID: uuid.New()}

	err := e.CheckUser(t.Context(), "Standard", domain.RoleAdmin, newMockUsers(), scope)

	qe, ok := domain.IsQuotaExceeded(err)
	require.True(t, ok)
	assert.Equal(t, domain.RoleAdmin, qe.Role)
	assert.Equal(t, 0, qe.Ceiling)
	assert.Equal(t, "Standard", qe.Plan)
}

func TestCheckUser_TotalUserLimit(t *testing.T) {
	t.Parallel()

	table := overrides(t, "Pro:\n  user_limit: 3\n")
	e := quota.NewEnforcer(table, nil)
	users := newMockUsers()
	owner, store := uuid.New(), uuid.New()
	users.add(domain.RoleOwner, uuid.Nil)
	users.add(domain.RoleCashier, store)
	users.add(domain.RoleUser, uuid.Nil)

	err := e.CheckUser(t.Context(), "Pro", domain.RoleCashier, users, domain.CountScope{OwnerID: owner, StoreID: store})

	qe, ok := domain.IsQuotaExceeded(err)
	require.True(t, ok)
	assert.Equal(t, domain.RoleCashier, qe.Role, "denial names the role being created")
	assert.Equal(t, quota.EntityUserLimit, qe.Entity, "total ceiling is told apart by entity")
	assert.Equal(t, 3, qe.Ceiling)
	assert.Equal(t, 3, qe.Current)
}

func TestCheckUser_Unlimited(t *testing.T) {
	t.Parallel()

	e := quota.NewEnforcer(plan.NewTable(nil), nil)
	users := newMockUsers()
	users.countErr = errors.New("must not count")

	err := e.CheckUser(t.Context(), "Enterprise", domain.RoleCashier, users,
		domain.CountScope{OwnerID: uuid.New(), StoreID: uuid.New()})
	require.NoError(t, err, "unlimited ceilings skip counting")
}

func TestCheckUser_Errors(t *testing.T) {
	t.Parallel()

	e := quota.NewEnforcer(plan.NewTable(nil), nil)
	scope := domain.CountScope{OwnerID: uuid.New(), StoreID: uuid.New()}

	t.Run("unknown plan is a configuration error", func(t *testing.T) {
		t.Parallel()

		err := e.CheckUser(t.Context(), "Gold", domain.RoleAdmin, newMockUsers(), scope)
		require.ErrorIs(t, err, domain.ErrUnknownPlan)
		_, denied := domain.IsQuotaExceeded(err)
		assert.False(t, denied)
	})

	t.Run("invalid role", func(t *testing.T) {
		t.Parallel()

		err := e.CheckUser(t.Context(), "Pro", domain.Role("manager"), newMockUsers(), scope)
		require.Error(t, err)
	})

	t.Run("count failure propagates", func(t *testing.T) {
		t.Parallel()

		users := newMockUsers()
		users.countErr = errors.New("connection lost")
		err := e.CheckUser(t.Context(), "Pro", domain.RoleAdmin, users, scope)
		require.ErrorIs(t, err, users.countErr)
	})
}

func TestCheckProduct(t *testing.T) {
	t.Parallel()

	table := overrides(t, "Pro:\n  product_limit: 50000\n")
	e := quota.NewEnforcer(table, nil)
	owner := uuid.New()

	require.NoError(t, e.CheckProduct(t.Context(), "Pro", &mockProducts{count: 1000}, owner),
		"override lifts the default ceiling")

	err := e.CheckProduct(t.Context(), "Pro", &mockProducts{count: 50000}, owner)
	qe, ok := domain.IsQuotaExceeded(err)
	require.True(t, ok)
	assert.Equal(t, quota.EntityProduct, qe.Entity)
	assert.Equal(t, 50000, qe.Ceiling)

	require.NoError(t, e.CheckProduct(t.Context(), "Enterprise", &mockProducts{count: 1 << 20}, owner))
}

type mockHandle struct {
	domain.TenantHandle
	users    *mockUsers
	products *mockProducts
}

func (h mockHandle) Users() domain.TenantUserRepository { return h.users }
func (h mockHandle) Products() domain.ProductRepository { return h.products }

func TestMeasure(t *testing.T) {
	t.Parallel()

	users := newMockUsers()
	storeA, storeB := uuid.New(), uuid.New()
	users.add(domain.RoleOwner, uuid.Nil)
	users.add(domain.RoleAdmin, storeA)
	users.add(domain.RoleCashier, storeA)
	users.add(domain.RoleCashier, storeB)

	u, err := quota.Measure(t.Context(), mockHandle{users: users, products: &mockProducts{count: 7}}, uuid.New())
	require.NoError(t, err)

	assert.Equal(t, 7, u.Products)
	assert.Equal(t, 4, u.Users)
	assert.Equal(t, 2, u.Roles[domain.RoleCashier], "cashiers summed across stores")
	assert.Equal(t, 1, u.Roles[domain.RoleOwner])
	assert.Equal(t, 0, u.Roles[domain.RoleUser])
}
