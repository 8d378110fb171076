package tenant_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/gosuda/tillpoint/internal/domain"
	"github.com/gosuda/tillpoint/internal/notify"
	"github.com/gosuda/tillpoint/internal/store/tenantdb"
)

// --- Control plane ---

type fakeControl struct {
	mu            sync.Mutex
	owners        map[uuid.UUID]*domain.Owner
	controlUsers  map[string]*domain.ControlUser
	records       map[uuid.UUID]*domain.TenantRecord
	subscriptions []*domain.Subscription

	recordCreateErr error
	subCreateErr    error
}

func newFakeControl() *fakeControl {
	return &fakeControl{
		owners:       make(map[uuid.UUID]*domain.Owner),
		controlUsers: make(map[string]*domain.ControlUser),
		records:      make(map[uuid.UUID]*domain.TenantRecord),
	}
}

func (f *fakeControl) Owners() domain.OwnerRepository               { return fakeOwners{f} }
func (f *fakeControl) ControlUsers() domain.ControlUserRepository   { return fakeControlUsers{f} }
func (f *fakeControl) TenantRecords() domain.TenantRecordRepository { return fakeRecords{f} }
func (f *fakeControl) Subscriptions() domain.SubscriptionRepository { return fakeSubs{f} }

func (f *fakeControl) WithinTx(_ context.Context, fn func(tx domain.ControlPlane) error) error {
	return fn(f)
}

func (f *fakeControl) recordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func (f *fakeControl) subscriptionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscriptions)
}

type fakeOwners struct{ f *fakeControl }

func (r fakeOwners) Create(_ context.Context, o *domain.Owner) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, existing := range r.f.owners {
		if existing.Email == o.Email {
			return domain.ErrConflict
		}
	}
	cp := *o
	r.f.owners[o.ID] = &cp
	return nil
}

func (r fakeOwners) GetByID(_ context.Context, id uuid.UUID) (*domain.Owner, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	o, ok := r.f.owners[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r fakeOwners) GetByEmail(_ context.Context, email string) (*domain.Owner, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, o := range r.f.owners {
		if o.Email == email {
			cp := *o
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

type fakeControlUsers struct{ f *fakeControl }

func (r fakeControlUsers) Create(_ context.Context, u *domain.ControlUser) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.controlUsers[u.Email]; ok {
		return domain.ErrConflict
	}
	cp := *u
	r.f.controlUsers[u.Email] = &cp
	return nil
}

func (r fakeControlUsers) GetByEmail(_ context.Context, email string) (*domain.ControlUser, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	u, ok := r.f.controlUsers[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

type fakeRecords struct{ f *fakeControl }

func (r fakeRecords) Create(_ context.Context, t *domain.TenantRecord) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if r.f.recordCreateErr != nil {
		return r.f.recordCreateErr
	}
	if _, ok := r.f.records[t.OwnerID]; ok {
		return domain.ErrConflict
	}
	cp := *t
	r.f.records[t.OwnerID] = &cp
	return nil
}

func (r fakeRecords) GetByOwner(_ context.Context, ownerID uuid.UUID) (*domain.TenantRecord, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	t, ok := r.f.records[ownerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r fakeRecords) GetByDatabase(_ context.Context, database string) (*domain.TenantRecord, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, t := range r.f.records {
		if t.Database == database {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r fakeRecords) List(_ context.Context) ([]*domain.TenantRecord, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	out := make([]*domain.TenantRecord, 0, len(r.f.records))
	for _, t := range r.f.records {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (r fakeRecords) UpdatePlan(_ context.Context, ownerID uuid.UUID, plan string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	t, ok := r.f.records[ownerID]
	if !ok {
		return domain.ErrNotFound
	}
	t.Plan = plan
	return nil
}

type fakeSubs struct{ f *fakeControl }

func (r fakeSubs) Create(_ context.Context, s *domain.Subscription) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if r.f.subCreateErr != nil {
		return r.f.subCreateErr
	}
	cp := *s
	r.f.subscriptions = append(r.f.subscriptions, &cp)
	return nil
}

func (r fakeSubs) ListActive(_ context.Context, ownerID uuid.UUID) ([]*domain.Subscription, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*domain.Subscription
	for _, s := range r.f.subscriptions {
		if s.OwnerID == ownerID && s.Status == domain.SubscriptionActive {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r fakeSubs) DeactivateAll(_ context.Context, ownerID uuid.UUID) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, s := range r.f.subscriptions {
		if s.OwnerID == ownerID {
			s.Status = domain.SubscriptionInactive
		}
	}
	return nil
}

// --- Cluster ---

type fakeCluster struct {
	mu        sync.Mutex
	calls     []string
	databases map[string]bool
	logins    map[string]string

	createErr    error
	schemaErr    error
	mirrorFull   error
	mirrorReduce error
	bootstrapErr error
	loginErr     error
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{databases: make(map[string]bool), logins: make(map[string]string)}
}

func (c *fakeCluster) record(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *fakeCluster) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeCluster) DatabaseExists(_ context.Context, database string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.databases[database], nil
}

func (c *fakeCluster) CreateDatabase(_ context.Context, database string) error {
	c.record("create_database")
	if c.createErr != nil {
		return c.createErr
	}
	c.mu.Lock()
	c.databases[database] = true
	c.mu.Unlock()
	return nil
}

func (c *fakeCluster) ApplySchema(context.Context, string) error {
	c.record("apply_schema")
	return c.schemaErr
}

func (c *fakeCluster) InsertOwnerMirror(_ context.Context, _ string, _ *domain.Owner, v tenantdb.MirrorVariant) error {
	c.record("mirror_" + v.String())
	if v == tenantdb.MirrorReduced {
		return c.mirrorReduce
	}
	return c.mirrorFull
}

func (c *fakeCluster) BootstrapOwner(context.Context, string, *domain.User) error {
	c.record("bootstrap_owner")
	return c.bootstrapErr
}

func (c *fakeCluster) EnsureLogin(_ context.Context, _ string, role, password string) error {
	c.record("ensure_login")
	if c.loginErr != nil {
		return c.loginErr
	}
	c.mu.Lock()
	c.logins[role] = password
	c.mu.Unlock()
	return nil
}

// --- Vault ---

type fakeVault struct{}

func (fakeVault) Encrypt(plaintext string) (string, error) { return "sealed:" + plaintext, nil }

func (fakeVault) Decrypt(ciphertext string) (string, error) {
	pt, ok := strings.CutPrefix(ciphertext, "sealed:")
	if !ok {
		return "", errors.New("not sealed")
	}
	return pt, nil
}

func fakeHash(pw string) (string, error) { return "hash:" + pw, nil }

// --- Alerts ---

type fakeAlerts struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (a *fakeAlerts) Alert(_ context.Context, al notify.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, al)
	return nil
}

func (a *fakeAlerts) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts)
}

// --- Tenant handles ---

type fakeUsers struct {
	domain.TenantUserRepository // unused methods panic
	byUsername                  map[string]*domain.User
	findErr                     error
}

func (u *fakeUsers) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	if u.findErr != nil {
		return nil, u.findErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	found, ok := u.byUsername[username]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *found
	return &cp, nil
}

type fakeHandle struct {
	database string
	users    *fakeUsers
	closed   atomic.Int32
}

func (h *fakeHandle) Database() string                   { return h.database }
func (h *fakeHandle) Users() domain.TenantUserRepository { return h.users }
func (h *fakeHandle) Stores() domain.StoreRepository     { return nil }
func (h *fakeHandle) Products() domain.ProductRepository { return nil }

func (h *fakeHandle) Close(context.Context) error {
	h.closed.Add(1)
	return nil
}

// fakeTenant is one tenant database behind fakeOpener.
type fakeTenant struct {
	users   map[string]*domain.User
	openErr error
	hang    bool // block until the dial context ends
}

type fakeOpener struct {
	mu      sync.Mutex
	tenants map[string]*fakeTenant
	handles []*fakeHandle
	opens   map[string]int
	creds   map[string][2]string
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{
		tenants: make(map[string]*fakeTenant),
		opens:   make(map[string]int),
		creds:   make(map[string][2]string),
	}
}

func (o *fakeOpener) Open(ctx context.Context, database, user, password string) (domain.TenantHandle, error) {
	o.mu.Lock()
	o.opens[database]++
	o.creds[database] = [2]string{user, password}
	t, ok := o.tenants[database]
	o.mu.Unlock()

	if !ok {
		return nil, errors.New("database does not exist")
	}
	if t.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if t.openErr != nil {
		return nil, t.openErr
	}

	h := &fakeHandle{database: database, users: &fakeUsers{byUsername: t.users}}
	o.mu.Lock()
	o.handles = append(o.handles, h)
	o.mu.Unlock()
	return h, nil
}

func (o *fakeOpener) totalOpens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.opens {
		n += c
	}
	return n
}

func (o *fakeOpener) openHandles() []*fakeHandle {
	o.mu.Lock()
	defer o.mu.Unlock()
	var open []*fakeHandle
	for _, h := range o.handles {
		if h.closed.Load() == 0 {
			open = append(open, h)
		}
	}
	return open
}

// --- Hints ---

type fakeHints struct {
	mu    sync.Mutex
	hints map[string]string
}

func newFakeHints() *fakeHints { return &fakeHints{hints: make(map[string]string)} }

func (h *fakeHints) Get(_ context.Context, login string) (string, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	db, ok := h.hints[login]
	return db, ok, nil
}

func (h *fakeHints) Set(_ context.Context, login, database string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hints[login] = database
	return nil
}

func (h *fakeHints) Delete(_ context.Context, login string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.hints, login)
	return nil
}
