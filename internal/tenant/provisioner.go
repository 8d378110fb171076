// Package tenant provisions isolated tenant databases and routes principals
// to them.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tillpoint/internal/auth"
	"github.com/gosuda/tillpoint/internal/domain"
	"github.com/gosuda/tillpoint/internal/metrics"
	"github.com/gosuda/tillpoint/internal/notify"
	"github.com/gosuda/tillpoint/internal/plan"
	"github.com/gosuda/tillpoint/internal/secrets"
	"github.com/gosuda/tillpoint/internal/store/tenantdb"
)

var (
	// ErrSchemaLoad means the tenant database could not be prepared. Nothing
	// was registered in the control plane.
	ErrSchemaLoad = errors.New("tenant: schema load failed")

	// ErrPartialProvisioning means the tenant database exists but its login,
	// record or subscription could not be completed. The database is not
	// rolled back; re-running provisioning for the same owner repairs it.
	ErrPartialProvisioning = errors.New("tenant: partial provisioning")
)

// tenantPasswordLen is the byte length of generated tenant login secrets.
const tenantPasswordLen = 24

// Cluster is the privileged side of the tenant cluster.
type Cluster interface {
	CreateDatabase(ctx context.Context, database string) error
	ApplySchema(ctx context.Context, database string) error
	InsertOwnerMirror(ctx context.Context, database string, o *domain.Owner, variant tenantdb.MirrorVariant) error
	BootstrapOwner(ctx context.Context, database string, u *domain.User) error
	EnsureLogin(ctx context.Context, database, role, password string) error
}

// Sealer encrypts tenant credentials at rest.
type Sealer interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Alerter reports incidents to operators.
type Alerter interface {
	Alert(ctx context.Context, a notify.Alert) error
}

// Request describes one owner to provision.
type Request struct {
	OwnerID      uuid.UUID
	BusinessName string
	Email        string
	Phone        string
	Plan         string // empty selects the default plan
	Password     string // plaintext, hashed before anything is stored
}

// Outcome is the result of a successful provisioning run.
type Outcome struct {
	Identity domain.TenantIdentity
	// Existing is set when the owner already had a tenant and nothing was
	// created.
	Existing bool
}

type ProvisionerDeps struct {
	Control     domain.ControlPlane
	Cluster     Cluster
	Naming      tenantdb.Naming
	Plans       *plan.Table
	Vault       Sealer
	Alerts      Alerter          // optional
	Metrics     *metrics.Metrics // optional
	DefaultPlan string
	Term        time.Duration

	// HashPassword defaults to auth.HashPassword.
	HashPassword func(string) (string, error)
	// GeneratePassword defaults to secrets.GeneratePassword.
	GeneratePassword func(n int) (string, error)
}

// Provisioner creates an owner's isolated tenant and registers it. Every
// step is idempotent, so a failed run can be repeated as is.
type Provisioner struct {
	deps ProvisionerDeps
	now  func() time.Time
}

func NewProvisioner(deps ProvisionerDeps) *Provisioner {
	if deps.HashPassword == nil {
		deps.HashPassword = auth.HashPassword
	}
	if deps.GeneratePassword == nil {
		deps.GeneratePassword = secrets.GeneratePassword
	}
	return &Provisioner{deps: deps, now: time.Now}
}

// Provision runs the provisioning steps for req in order:
// owner and control-plane login, database, schema, owner mirror, tenant
// login, then record and subscription. An owner that already has a tenant
// record is returned as Existing without touching the cluster. When no
// owner has req.OwnerID but one is stored under req.Email, that owner's id
// is used instead, so a batch entry without a stable id can be re-run.
func (p *Provisioner) Provision(ctx context.Context, req Request) (Outcome, error) {
	if req.OwnerID == uuid.Nil {
		return Outcome{}, fmt.Errorf("tenant.Provision: owner id is required: %w", domain.ErrInvalid)
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.BusinessName == "" || req.Password == "" {
		return Outcome{}, fmt.Errorf("tenant.Provision: business name, email and password are required: %w", domain.ErrInvalid)
	}
	if req.Plan == "" {
		req.Plan = p.deps.DefaultPlan
	}
	if !p.deps.Plans.Subscribable(req.Plan) {
		return Outcome{}, fmt.Errorf("tenant.Provision: plan %q: %w", req.Plan, domain.ErrUnknownPlan)
	}
	planName := p.deps.Plans.Canonical(req.Plan)

	ownerID, err := p.ownerID(ctx, req)
	if err != nil {
		p.deps.Metrics.Provision(metrics.OutcomeFailed)
		return Outcome{}, fmt.Errorf("tenant.Provision: %w", err)
	}
	req.OwnerID = ownerID

	logger := log.With().Str("owner_id", req.OwnerID.String()).Str("plan", planName).Logger()

	record, err := p.deps.Control.TenantRecords().GetByOwner(ctx, req.OwnerID)
	switch {
	case err == nil:
		if err = p.ensureSubscription(ctx, req.OwnerID, record.Plan); err != nil {
			p.deps.Metrics.Provision(metrics.OutcomeFailed)
			return Outcome{}, fmt.Errorf("tenant.Provision: %w", err)
		}
		logger.Info().Str("tenant_db", record.Database).Msg("owner already provisioned")
		p.deps.Metrics.Provision(metrics.OutcomeExisting)
		return Outcome{
			Identity: domain.TenantIdentity{OwnerID: record.OwnerID, Database: record.Database},
			Existing: true,
		}, nil
	case !errors.Is(err, domain.ErrNotFound):
		p.deps.Metrics.Provision(metrics.OutcomeFailed)
		return Outcome{}, fmt.Errorf("tenant.Provision: lookup record: %w", err)
	}

	// Steps 1-2: owner and its control-plane login.
	owner, passwordHash, err := p.upsertOwner(ctx, req)
	if err != nil {
		p.deps.Metrics.Provision(metrics.OutcomeFailed)
		return Outcome{}, fmt.Errorf("tenant.Provision: %w", err)
	}

	database := p.deps.Naming.DatabaseName(owner.ID)
	logger = logger.With().Str("tenant_db", database).Logger()

	// Steps 3-4: database and schema. Nothing is registered on failure.
	err = p.deps.Cluster.CreateDatabase(ctx, database)
	if err == nil {
		err = p.deps.Cluster.ApplySchema(ctx, database)
	}
	if err != nil {
		logger.Error().Err(err).Str("step", "schema").Msg("tenant schema load failed")
		p.deps.Metrics.Provision(metrics.OutcomeFailed)
		return Outcome{}, fmt.Errorf("tenant.Provision: %w: %w", ErrSchemaLoad, err)
	}

	// Step 5: owner mirror and bootstrap login inside the tenant. Non-fatal.
	p.mirrorOwner(ctx, database, owner)
	p.bootstrapOwner(ctx, database, owner, passwordHash)

	// Steps 6-8: tenant login, record and subscription.
	role := p.deps.Naming.RoleName(owner.ID)
	err = p.register(ctx, owner.ID, database, role, planName, true)
	if err != nil {
		p.partial(ctx, owner.ID, database, err)
		return Outcome{}, fmt.Errorf("tenant.Provision: %w: %w", ErrPartialProvisioning, err)
	}

	logger.Info().Msg("tenant provisioned")
	p.deps.Metrics.Provision(metrics.OutcomeCreated)

	return Outcome{Identity: domain.TenantIdentity{OwnerID: owner.ID, Database: database}}, nil
}

// ownerID returns req.OwnerID unless no owner carries it and another owner
// is stored under req.Email, in which case that owner's id is returned.
func (p *Provisioner) ownerID(ctx context.Context, req Request) (uuid.UUID, error) {
	owners := p.deps.Control.Owners()

	_, err := owners.GetByID(ctx, req.OwnerID)
	switch {
	case err == nil:
		return req.OwnerID, nil
	case !errors.Is(err, domain.ErrNotFound):
		return uuid.Nil, fmt.Errorf("get owner: %w", err)
	}

	existing, err := owners.GetByEmail(ctx, req.Email)
	switch {
	case err == nil:
		log.Info().
			Str("owner_id", existing.ID.String()).
			Str("requested_owner_id", req.OwnerID.String()).
			Msg("owner already stored under this email, reusing its id")
		return existing.ID, nil
	case errors.Is(err, domain.ErrNotFound):
		return req.OwnerID, nil
	default:
		return uuid.Nil, fmt.Errorf("get owner by email: %w", err)
	}
}

// upsertOwner creates the owner and its control-plane login unless they
// exist. It returns the stored owner and the password hash to reuse for the
// tenant-side login.
func (p *Provisioner) upsertOwner(ctx context.Context, req Request) (*domain.Owner, string, error) {
	var owner *domain.Owner
	var passwordHash string

	hash := func() (string, error) {
		if passwordHash != "" {
			return passwordHash, nil
		}
		h, err := p.deps.HashPassword(req.Password)
		if err != nil {
			return "", fmt.Errorf("hash password: %w", err)
		}
		passwordHash = h
		return h, nil
	}

	err := p.deps.Control.WithinTx(ctx, func(tx domain.ControlPlane) error {
		existing, err := tx.Owners().GetByID(ctx, req.OwnerID)
		switch {
		case err == nil:
			owner = existing
			passwordHash = existing.PasswordHash
		case errors.Is(err, domain.ErrNotFound):
			h, hashErr := hash()
			if hashErr != nil {
				return hashErr
			}
			owner = &domain.Owner{
				ID:           req.OwnerID,
				BusinessName: req.BusinessName,
				Email:        req.Email,
				Phone:        req.Phone,
				PasswordHash: h,
				CreatedAt:    p.now().UTC(),
			}
			if err = tx.Owners().Create(ctx, owner); err != nil {
				return fmt.Errorf("create owner: %w", err)
			}
		default:
			return fmt.Errorf("get owner: %w", err)
		}

		cu, err := tx.ControlUsers().GetByEmail(ctx, owner.Email)
		switch {
		case err == nil:
			if cu.OwnerID != owner.ID {
				return fmt.Errorf("control user %s belongs to another owner: %w", owner.Email, domain.ErrConflict)
			}
			return nil
		case errors.Is(err, domain.ErrNotFound):
			h, hashErr := hash()
			if hashErr != nil {
				return hashErr
			}
			err = tx.ControlUsers().Create(ctx, &domain.ControlUser{
				ID:           uuid.New(),
				OwnerID:      owner.ID,
				Email:        owner.Email,
				Name:         owner.BusinessName,
				PasswordHash: h,
				Role:         domain.RoleOwner,
				CreatedAt:    p.now().UTC(),
			})
			if err != nil {
				return fmt.Errorf("create control user: %w", err)
			}
			return nil
		default:
			return fmt.Errorf("get control user: %w", err)
		}
	})
	if err != nil {
		return nil, "", err
	}

	return owner, passwordHash, nil
}

// mirrorOwner writes the owner row into the tenant database, retrying with
// the reduced column set when the tenant's owners table lacks a column.
func (p *Provisioner) mirrorOwner(ctx context.Context, database string, owner *domain.Owner) {
	logger := log.With().Str("owner_id", owner.ID.String()).Str("tenant_db", database).Str("step", "owner_mirror").Logger()

	err := p.deps.Cluster.InsertOwnerMirror(ctx, database, owner, tenantdb.MirrorFull)
	if err == nil {
		return
	}
	if !errors.Is(err, tenantdb.ErrUndefinedColumn) {
		logger.Error().Err(err).Msg("owner mirror insert failed, continuing")
		return
	}

	logger.Debug().Err(err).Msg("owner mirror column set rejected, retrying reduced")
	err = p.deps.Cluster.InsertOwnerMirror(ctx, database, owner, tenantdb.MirrorReduced)
	if err != nil {
		logger.Error().Err(err).Msg("owner mirror insert failed with both column sets, continuing")
	}
}

// bootstrapOwner creates the owner's login inside the tenant, with the
// owner's email as username.
func (p *Provisioner) bootstrapOwner(ctx context.Context, database string, owner *domain.Owner, passwordHash string) {
	now := p.now().UTC()
	err := p.deps.Cluster.BootstrapOwner(ctx, database, &domain.User{
		ID:           uuid.New(),
		OwnerID:      owner.ID,
		Name:         owner.BusinessName,
		Username:     owner.Email,
		PasswordHash: passwordHash,
		Role:         domain.RoleOwner,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		log.Error().Err(err).
			Str("owner_id", owner.ID.String()).
			Str("tenant_db", database).
			Str("step", "owner_bootstrap").
			Msg("owner tenant login not created, continuing")
	}
}

// Reregister records a tenant database that exists without a tenant record.
// The tenant login gets a fresh password. The plan comes from the owner's
// active subscription, or the default plan when there is none, in which
// case a subscription is created as well.
func (p *Provisioner) Reregister(ctx context.Context, ownerID uuid.UUID, database string) error {
	subs, err := p.deps.Control.Subscriptions().ListActive(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("tenant.Reregister: list subscriptions: %w", err)
	}
	planName := p.deps.DefaultPlan
	if len(subs) > 0 {
		planName = subs[0].Plan
	}
	planName = p.deps.Plans.Canonical(planName)

	role := p.deps.Naming.RoleName(ownerID)
	err = p.register(ctx, ownerID, database, role, planName, len(subs) == 0)
	if err != nil {
		p.deps.Metrics.Provision(metrics.OutcomeFailed)
		return fmt.Errorf("tenant.Reregister: %w", err)
	}

	log.Warn().
		Str("owner_id", ownerID.String()).
		Str("tenant_db", database).
		Str("plan", planName).
		Msg("tenant database registered again")
	p.deps.Metrics.Provision(metrics.OutcomeCreated)
	return nil
}

// register creates the tenant login, then persists the record and, when
// subscribe is set, the first subscription together.
func (p *Provisioner) register(ctx context.Context, ownerID uuid.UUID, database, role, planName string, subscribe bool) error {
	password, err := p.deps.GeneratePassword(tenantPasswordLen)
	if err != nil {
		return fmt.Errorf("generate password: %w", err)
	}

	err = p.deps.Cluster.EnsureLogin(ctx, database, role, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	sealed, err := p.deps.Vault.Encrypt(password)
	if err != nil {
		return fmt.Errorf("seal password: %w", err)
	}

	now := p.now().UTC()
	return p.deps.Control.WithinTx(ctx, func(tx domain.ControlPlane) error {
		err := tx.TenantRecords().Create(ctx, &domain.TenantRecord{
			OwnerID:    ownerID,
			Database:   database,
			DBUser:     role,
			DBPassword: sealed,
			Plan:       planName,
			CreatedAt:  now,
		})
		if err != nil {
			return fmt.Errorf("record: %w", err)
		}
		if !subscribe {
			return nil
		}

		err = tx.Subscriptions().Create(ctx, p.newSubscription(ownerID, planName, now))
		if err != nil {
			return fmt.Errorf("subscription: %w", err)
		}
		return nil
	})
}

// ensureSubscription gives an already registered owner an active
// subscription if it has none.
func (p *Provisioner) ensureSubscription(ctx context.Context, ownerID uuid.UUID, planName string) error {
	subs, err := p.deps.Control.Subscriptions().ListActive(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) > 0 {
		return nil
	}

	log.Warn().Str("owner_id", ownerID.String()).Str("plan", planName).Msg("registered owner has no subscription, creating one")
	err = p.deps.Control.Subscriptions().Create(ctx, p.newSubscription(ownerID, planName, p.now().UTC()))
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

func (p *Provisioner) newSubscription(ownerID uuid.UUID, planName string, now time.Time) *domain.Subscription {
	return &domain.Subscription{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Plan:      planName,
		Status:    domain.SubscriptionActive,
		StartsAt:  now,
		EndsAt:    now.Add(p.deps.Term),
		CreatedAt: now,
	}
}

func (p *Provisioner) partial(ctx context.Context, ownerID uuid.UUID, database string, cause error) {
	log.Error().Err(cause).
		Str("owner_id", ownerID.String()).
		Str("tenant_db", database).
		Str("step", "register").
		Msg("tenant database created but registration failed")
	p.deps.Metrics.Provision(metrics.OutcomePartial)

	if p.deps.Alerts == nil {
		return
	}
	err := p.deps.Alerts.Alert(context.WithoutCancel(ctx), notify.Alert{
		Summary: "Tenant database created but not registered; re-run provisioning for this owner",
		Fields: []notify.Field{
			{Label: "owner_id", Value: ownerID.String()},
			{Label: "tenant_db", Value: database},
			{Label: "error", Value: cause.Error()},
		},
	})
	if err != nil {
		log.Warn().Err(err).Str("owner_id", ownerID.String()).Msg("partial provisioning alert not delivered")
	}
}
