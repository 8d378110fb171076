package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/gosuda/tillpoint/internal/domain"
	"github.com/gosuda/tillpoint/internal/metrics"
	"github.com/gosuda/tillpoint/internal/store/tenantdb"
)

// Opener opens a connection scoped to one tenant database.
type Opener interface {
	Open(ctx context.Context, database, user, password string) (domain.TenantHandle, error)
}

// DatabaseChecker reports whether a tenant database physically exists.
type DatabaseChecker interface {
	DatabaseExists(ctx context.Context, database string) (bool, error)
}

// Registrar registers a tenant database that exists on the cluster but has
// no tenant record, issuing it a fresh login.
type Registrar interface {
	Reregister(ctx context.Context, ownerID uuid.UUID, database string) error
}

// HintStore remembers the tenant a login was last discovered in.
type HintStore interface {
	Get(ctx context.Context, login string) (database string, ok bool, err error)
	Set(ctx context.Context, login, database string) error
	Delete(ctx context.Context, login string) error
}

type ResolverDeps struct {
	Records      domain.TenantRecordRepository
	Opener       Opener
	Databases    DatabaseChecker // optional; disables the derived-name fallback when nil
	Registrar    Registrar       // optional; without it an unregistered database is not found
	Vault        Sealer
	Naming       tenantdb.Naming
	Hints        HintStore        // optional
	Metrics      *metrics.Metrics // optional
	ProbeTimeout time.Duration
	Concurrency  int
}

// Resolver routes principals to their tenant database. Handles are opened
// per call and never pooled.
type Resolver struct {
	deps     ResolverDeps
	register singleflight.Group
}

func NewResolver(deps ResolverDeps) *Resolver {
	if deps.Concurrency < 1 {
		deps.Concurrency = 1
	}
	return &Resolver{deps: deps}
}

// Resolve opens the tenant database carried by id. An identity without a
// database yields domain.ErrNoTenantBound.
func (r *Resolver) Resolve(ctx context.Context, id domain.TenantIdentity) (domain.TenantHandle, error) {
	if id.Database == "" {
		return nil, fmt.Errorf("tenant.Resolve: %w", domain.ErrNoTenantBound)
	}

	record, err := r.deps.Records.GetByDatabase(ctx, id.Database)
	if err != nil {
		return nil, fmt.Errorf("tenant.Resolve: %w", err)
	}
	if id.OwnerID != uuid.Nil && record.OwnerID != id.OwnerID {
		return nil, fmt.Errorf("tenant.Resolve: %s is not owned by %s: %w", id.Database, id.OwnerID, domain.ErrForbidden)
	}

	h, err := r.open(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("tenant.Resolve: %w", err)
	}
	return h, nil
}

// WithTenant resolves id, runs fn with the handle and releases the handle
// on every exit path.
func (r *Resolver) WithTenant(ctx context.Context, id domain.TenantIdentity, fn func(h domain.TenantHandle) error) error {
	h, err := r.Resolve(ctx, id)
	if err != nil {
		return err
	}
	defer release(ctx, h)

	return fn(h)
}

// Discover finds the tenant holding a user with login. Tenants are probed
// concurrently; the first match wins and every other handle is released.
// Unreachable tenants are skipped. No match anywhere yields
// domain.ErrNotFound. The caller owns the returned handle.
func (r *Resolver) Discover(ctx context.Context, login string) (domain.TenantHandle, *domain.User, error) {
	start := time.Now()
	defer func() { r.deps.Metrics.ObserveDiscovery(time.Since(start)) }()

	records, err := r.deps.Records.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("tenant.Discover: list tenants: %w", err)
	}

	records, h, u := r.tryHint(ctx, login, records)
	if h != nil {
		return h, u, nil
	}

	h, u = r.scan(ctx, login, records)
	if h == nil {
		return nil, nil, fmt.Errorf("tenant.Discover: %w", domain.ErrNotFound)
	}

	if r.deps.Hints != nil {
		if err = r.deps.Hints.Set(ctx, login, h.Database()); err != nil {
			log.Warn().Err(err).Str("login", login).Msg("discovery hint not stored")
		}
	}

	return h, u, nil
}

// tryHint probes the hinted tenant first. On a miss the stale hint is
// dropped and the tenant is removed from the remaining scan.
func (r *Resolver) tryHint(ctx context.Context, login string, records []*domain.TenantRecord) ([]*domain.TenantRecord, domain.TenantHandle, *domain.User) {
	if r.deps.Hints == nil {
		return records, nil, nil
	}

	database, ok, err := r.deps.Hints.Get(ctx, login)
	if err != nil {
		log.Warn().Err(err).Str("login", login).Msg("discovery hint lookup failed")
		return records, nil, nil
	}
	if !ok {
		return records, nil, nil
	}

	rest := make([]*domain.TenantRecord, 0, len(records))
	var hinted *domain.TenantRecord
	for _, rec := range records {
		if rec.Database == database {
			hinted = rec
			continue
		}
		rest = append(rest, rec)
	}

	if hinted != nil {
		h, u, probeErr := r.probe(ctx, hinted, login)
		if probeErr == nil {
			r.deps.Metrics.DiscoveryProbe(metrics.ProbeMatch)
			return rest, h, u
		}
		r.recordProbeFailure(hinted.Database, login, probeErr)
		if !errors.Is(probeErr, domain.ErrNotFound) {
			// Unreachable, not wrong: keep the hint for next time.
			return rest, nil, nil
		}
	}

	if err = r.deps.Hints.Delete(ctx, login); err != nil {
		log.Warn().Err(err).Str("login", login).Msg("stale discovery hint not removed")
	}
	return rest, nil, nil
}

// scan probes records with bounded concurrency. Exactly one match is acted
// upon: the first probe to claim the win keeps its handle, later matches are
// closed, and no new probe starts after the win.
func (r *Resolver) scan(ctx context.Context, login string, records []*domain.TenantRecord) (domain.TenantHandle, *domain.User) {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		won     atomic.Bool
		handle  domain.TenantHandle
		matched *domain.User
	)

	g := new(errgroup.Group)
	g.SetLimit(r.deps.Concurrency)

	for _, rec := range records {
		if won.Load() || scanCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if won.Load() || scanCtx.Err() != nil {
				r.deps.Metrics.DiscoveryProbe(metrics.ProbeSkipped)
				return nil
			}

			h, u, err := r.probe(scanCtx, rec, login)
			if err != nil {
				if won.Load() {
					r.deps.Metrics.DiscoveryProbe(metrics.ProbeSkipped)
					return nil
				}
				r.recordProbeFailure(rec.Database, login, err)
				return nil
			}

			if !won.CompareAndSwap(false, true) {
				release(ctx, h)
				r.deps.Metrics.DiscoveryProbe(metrics.ProbeSkipped)
				return nil
			}
			r.deps.Metrics.DiscoveryProbe(metrics.ProbeMatch)
			handle, matched = h, u
			cancel()
			return nil
		})
	}
	_ = g.Wait()

	return handle, matched
}

// probe opens rec and looks login up, bounded by the probe timeout. The
// handle is returned only on a match.
func (r *Resolver) probe(ctx context.Context, rec *domain.TenantRecord, login string) (domain.TenantHandle, *domain.User, error) {
	if r.deps.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.deps.ProbeTimeout)
		defer cancel()
	}

	h, err := r.open(ctx, rec)
	if err != nil {
		return nil, nil, err
	}

	u, err := h.Users().FindByUsername(ctx, login)
	if err != nil {
		release(ctx, h)
		return nil, nil, err
	}

	return h, u, nil
}

func (r *Resolver) recordProbeFailure(database, login string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		r.deps.Metrics.DiscoveryProbe(metrics.ProbeMiss)
		return
	}
	r.deps.Metrics.DiscoveryProbe(metrics.ProbeError)
	log.Warn().Err(err).Str("tenant_db", database).Str("login", login).Msg("tenant probe failed, skipping")
}

// LocateOwner returns the tenant identity of ownerID. Without a tenant
// record it falls back to the derived database name: when that database
// exists it is registered again through the Registrar, so the returned
// identity can be resolved.
func (r *Resolver) LocateOwner(ctx context.Context, ownerID uuid.UUID) (domain.TenantIdentity, error) {
	record, err := r.deps.Records.GetByOwner(ctx, ownerID)
	if err == nil {
		return domain.TenantIdentity{OwnerID: ownerID, Database: record.Database}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) || r.deps.Databases == nil {
		return domain.TenantIdentity{}, fmt.Errorf("tenant.LocateOwner: %w", err)
	}

	database := r.deps.Naming.DatabaseName(ownerID)
	exists, err := r.deps.Databases.DatabaseExists(ctx, database)
	if err != nil {
		return domain.TenantIdentity{}, fmt.Errorf("tenant.LocateOwner: %w", err)
	}
	if !exists {
		return domain.TenantIdentity{}, fmt.Errorf("tenant.LocateOwner: %w", domain.ErrNotFound)
	}

	logger := log.With().Str("owner_id", ownerID.String()).Str("tenant_db", database).Logger()
	if r.deps.Registrar == nil {
		logger.Warn().Msg("tenant database exists without a record; re-run provisioning")
		return domain.TenantIdentity{}, fmt.Errorf("tenant.LocateOwner: %s is unregistered: %w", database, domain.ErrNotFound)
	}

	// Concurrent logins share one registration; a second one would rotate
	// the login password under the first record.
	_, err, _ = r.register.Do(ownerID.String(), func() (any, error) {
		return nil, r.deps.Registrar.Reregister(ctx, ownerID, database)
	})
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		logger.Error().Err(err).Msg("tenant database exists without a record; registration failed")
		return domain.TenantIdentity{}, fmt.Errorf("tenant.LocateOwner: %w", err)
	}

	record, err = r.deps.Records.GetByOwner(ctx, ownerID)
	if err != nil {
		return domain.TenantIdentity{}, fmt.Errorf("tenant.LocateOwner: %w", err)
	}
	return domain.TenantIdentity{OwnerID: ownerID, Database: record.Database}, nil
}

func (r *Resolver) open(ctx context.Context, rec *domain.TenantRecord) (domain.TenantHandle, error) {
	password, err := r.deps.Vault.Decrypt(rec.DBPassword)
	if err != nil {
		return nil, fmt.Errorf("unseal credential for %s: %w", rec.Database, err)
	}
	return r.deps.Opener.Open(ctx, rec.Database, rec.DBUser, password)
}

func release(ctx context.Context, h domain.TenantHandle) {
	if err := h.Close(context.WithoutCancel(ctx)); err != nil {
		log.Warn().Err(err).Str("tenant_db", h.Database()).Msg("releasing tenant handle")
	}
}
