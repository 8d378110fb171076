package tenantdb

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gosuda/tillpoint/internal/config"
	"github.com/gosuda/tillpoint/internal/domain"
)

// Dialer opens ad hoc connections to tenant databases. Nothing is pooled
// across calls: tenant identity changes per request.
type Dialer struct {
	cfg     config.TenantConfig
	timeout time.Duration
}

func NewDialer(cfg config.TenantConfig) *Dialer {
	return &Dialer{cfg: cfg, timeout: cfg.ConnectTimeout}
}

// Connect opens a single connection to database as user. The handshake is
// bounded by the configured connect timeout regardless of ctx.
func (d *Dialer) Connect(ctx context.Context, database, user, password string) (*pgx.Conn, error) {
	return d.connect(ctx, d.cfg.DSN(database, user, password))
}

func (d *Dialer) connect(ctx context.Context, dsn string) (*pgx.Conn, error) {
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("tenantdb.Connect: parse config: %w", err)
	}
	if d.timeout > 0 {
		connCfg.ConnectTimeout = d.timeout
	}

	dialCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	conn, err := pgx.ConnectConfig(dialCtx, connCfg)
	if err != nil {
		return nil, fmt.Errorf("tenantdb.Connect %s: %w", connCfg.Database, err)
	}

	return conn, nil
}

// Open connects to database and returns a handle exposing the tenant
// repositories over that single connection.
func (d *Dialer) Open(ctx context.Context, database, user, password string) (domain.TenantHandle, error) {
	conn, err := d.Connect(ctx, database, user, password)
	if err != nil {
		return nil, err
	}
	return NewSession(database, conn), nil
}
