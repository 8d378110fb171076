// Package app assembles the control plane, tenant cluster and services from
// configuration. Both binaries build on it.
package app

import (
	"context"
	"fmt"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tillpoint/internal/auth"
	"github.com/gosuda/tillpoint/internal/catalog"
	"github.com/gosuda/tillpoint/internal/config"
	"github.com/gosuda/tillpoint/internal/metrics"
	"github.com/gosuda/tillpoint/internal/notify"
	"github.com/gosuda/tillpoint/internal/plan"
	"github.com/gosuda/tillpoint/internal/quota"
	"github.com/gosuda/tillpoint/internal/secrets"
	"github.com/gosuda/tillpoint/internal/server"
	"github.com/gosuda/tillpoint/internal/staff"
	"github.com/gosuda/tillpoint/internal/store/postgres"
	redisstore "github.com/gosuda/tillpoint/internal/store/redis"
	"github.com/gosuda/tillpoint/internal/store/tenantdb"
	"github.com/gosuda/tillpoint/internal/subscription"
	"github.com/gosuda/tillpoint/internal/tenant"
)

type App struct {
	Control       *postgres.Store
	Cluster       *tenantdb.ClusterAdmin
	Hints         *redisstore.HintCache // nil without Redis
	Plans         *plan.Table
	Metrics       *metrics.Metrics
	Resolver      *tenant.Resolver
	Provisioner   *tenant.Provisioner
	Subscriptions *subscription.Service
	Auth          *auth.Service
	Quota         *quota.Enforcer
	Staff         *staff.Service
	Catalog       *catalog.Service
}

// New connects to the control plane and the tenant cluster and builds every
// service. reg may be nil, which disables metrics. Close releases the
// connections.
func New(ctx context.Context, cfg *config.Config, reg *prometheus.Registry) (*App, error) {
	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return nil, fmt.Errorf("app.New: database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	limits, err := plan.Load(cfg.Plans.OverridesPath)
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	if !limits.Subscribable(cfg.Plans.DefaultPlan) {
		return nil, fmt.Errorf("app.New: default plan %q is not in the plan table", cfg.Plans.DefaultPlan)
	}

	vault, err := secrets.NewVaultFromHex(cfg.Secrets.Key)
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}

	a := &App{Plans: limits}
	if reg != nil {
		a.Metrics = metrics.New(reg)
	}

	a.Control, err = postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}

	a.Cluster, err = tenantdb.NewClusterAdmin(ctx, cfg.Tenant)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app.New: %w", err)
	}

	naming := tenantdb.Naming{DBPrefix: cfg.Tenant.DBPrefix, RolePrefix: cfg.Tenant.RolePrefix}

	resolverDeps := tenant.ResolverDeps{
		Records:      a.Control.TenantRecords(),
		Opener:       tenantdb.NewDialer(cfg.Tenant),
		Databases:    a.Cluster,
		Vault:        vault,
		Naming:       naming,
		Metrics:      a.Metrics,
		ProbeTimeout: cfg.Discovery.ProbeTimeout,
		Concurrency:  cfg.Discovery.Concurrency,
	}
	if cfg.Redis.Addr != "" {
		a.Hints, err = redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Discovery.HintTTL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		resolverDeps.Hints = a.Hints
	} else {
		log.Info().Msg("redis not configured, discovery hints disabled")
	}

	sinks := notify.NewRegistry()
	if cfg.Alerts.SlackWebhookURL != "" {
		sinks.Register(notify.NewSlackWebhook(cfg.Alerts.SlackWebhookURL))
	}

	a.Provisioner = tenant.NewProvisioner(tenant.ProvisionerDeps{
		Control:     a.Control,
		Cluster:     a.Cluster,
		Naming:      naming,
		Plans:       limits,
		Vault:       vault,
		Alerts:      notify.New(sinks),
		Metrics:     a.Metrics,
		DefaultPlan: cfg.Plans.DefaultPlan,
		Term:        cfg.Plans.SubscriptionTerm,
	})
	resolverDeps.Registrar = a.Provisioner
	a.Resolver = tenant.NewResolver(resolverDeps)

	a.Subscriptions = subscription.NewService(a.Control, limits, cfg.Plans.SubscriptionTerm)
	a.Auth = auth.NewService(a.Control.ControlUsers(), a.Resolver, cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	a.Quota = quota.NewEnforcer(limits, a.Metrics)
	a.Staff = staff.NewService(a.Resolver, a.Subscriptions, a.Quota)
	a.Catalog = catalog.NewService(a.Resolver, a.Subscriptions, a.Quota)

	return a, nil
}

// Services exposes the application services to the HTTP server.
func (a *App) Services() server.Services {
	return server.Services{
		Provisioner:   a.Provisioner,
		Auth:          a.Auth,
		Staff:         a.Staff,
		Catalog:       a.Catalog,
		Subscriptions: a.Subscriptions,
		Limits:        a.Plans,
		Tenants:       a.Resolver,
		Metrics:       a.Metrics,
	}
}

func (a *App) Close() {
	if a.Hints != nil {
		if err := a.Hints.Close(); err != nil {
			log.Warn().Err(err).Msg("close redis")
		}
	}
	if a.Cluster != nil {
		a.Cluster.Close()
	}
	if a.Control != nil {
		a.Control.Close()
	}
}
