package tenantdb

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tillpoint/internal/config"
	"github.com/gosuda/tillpoint/internal/domain"
	"github.com/gosuda/tillpoint/internal/store/postgres"
)

//go:embed schema/tenant.sql
var tenantSchema string

// ErrUndefinedColumn marks an insert rejected because the target table lacks
// one of the named columns.
var ErrUndefinedColumn = errors.New("tenantdb: undefined column")

// MirrorVariant selects the column set used for the owner mirror row.
type MirrorVariant int

const (
	// MirrorFull writes id, business_name, email, phone and created_at.
	MirrorFull MirrorVariant = iota
	// MirrorReduced writes id, business_name and email only, for tenant
	// schemas whose owners table predates the contact columns.
	MirrorReduced
)

func (v MirrorVariant) String() string {
	if v == MirrorReduced {
		return "reduced"
	}
	return "full"
}

// ClusterAdmin performs the privileged provisioning statements on the tenant
// cluster using the admin credential. Cluster-wide statements go through a
// small pool on the maintenance database; per-tenant statements open an ad
// hoc admin connection to that tenant.
type ClusterAdmin struct {
	pool   *pgxpool.Pool
	cfg    config.TenantConfig
	dialer *Dialer
}

func NewClusterAdmin(ctx context.Context, cfg config.TenantConfig) (*ClusterAdmin, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.AdminDSN(""))
	if err != nil {
		return nil, fmt.Errorf("tenantdb.NewClusterAdmin: parse config: %w", err)
	}
	poolCfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("tenantdb.NewClusterAdmin: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("tenantdb.NewClusterAdmin: ping: %w", err)
	}

	return &ClusterAdmin{pool: pool, cfg: cfg, dialer: NewDialer(cfg)}, nil
}

func (a *ClusterAdmin) Close() {
	a.pool.Close()
}

func (a *ClusterAdmin) DatabaseExists(ctx context.Context, database string) (bool, error) {
	var exists bool
	err := a.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, database,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("clusterAdmin.DatabaseExists: %w", err)
	}
	return exists, nil
}

// CreateDatabase creates database unless it already exists, and revokes the
// default CONNECT grant from PUBLIC so only the tenant login can reach it.
func (a *ClusterAdmin) CreateDatabase(ctx context.Context, database string) error {
	exists, err := a.DatabaseExists(ctx, database)
	if err != nil {
		return err
	}

	ident := pgx.Identifier{database}.Sanitize()
	if !exists {
		_, err = a.pool.Exec(ctx, "CREATE DATABASE "+ident)
		if err != nil && !postgres.HasCode(err, postgres.CodeDuplicateDB) {
			return fmt.Errorf("clusterAdmin.CreateDatabase: %w", err)
		}
		log.Info().Str("tenant_db", database).Msg("tenant database created")
	}

	_, err = a.pool.Exec(ctx, "REVOKE CONNECT, TEMPORARY ON DATABASE "+ident+" FROM PUBLIC")
	if err != nil {
		return fmt.Errorf("clusterAdmin.CreateDatabase: revoke: %w", err)
	}

	return nil
}

// ApplySchema loads the tenant schema. Every statement is create-if-absent,
// so loading into an existing tenant is a no-op.
func (a *ClusterAdmin) ApplySchema(ctx context.Context, database string) error {
	return a.withTenant(ctx, database, "clusterAdmin.ApplySchema", func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, tenantSchema)
		return err
	})
}

// InsertOwnerMirror writes the owner row inside the tenant database with the
// columns of variant. An existing row is left untouched. A schema lacking
// one of the columns yields ErrUndefinedColumn.
func (a *ClusterAdmin) InsertOwnerMirror(ctx context.Context, database string, o *domain.Owner, variant MirrorVariant) error {
	var (
		sql  string
		args []any
	)
	switch variant {
	case MirrorReduced:
		sql = `INSERT INTO owners (id, business_name, email) VALUES ($1, $2, $3)
		       ON CONFLICT (id) DO NOTHING`
		args = []any{o.ID, o.BusinessName, o.Email}
	default:
		sql = `INSERT INTO owners (id, business_name, email, phone, created_at) VALUES ($1, $2, $3, $4, $5)
		       ON CONFLICT (id) DO NOTHING`
		args = []any{o.ID, o.BusinessName, o.Email, o.Phone, o.CreatedAt}
	}

	err := a.withTenant(ctx, database, "clusterAdmin.InsertOwnerMirror", func(conn *pgx.Conn) error {
		_, execErr := conn.Exec(ctx, sql, args...)
		if postgres.HasCode(execErr, postgres.CodeUndefinedColumn) {
			return fmt.Errorf("%w: %w", ErrUndefinedColumn, execErr)
		}
		return execErr
	})
	return err
}

// BootstrapOwner inserts the owner's tenant login row unless a user with the
// same username already exists.
func (a *ClusterAdmin) BootstrapOwner(ctx context.Context, database string, u *domain.User) error {
	return a.withTenant(ctx, database, "clusterAdmin.BootstrapOwner", func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO users (`+userColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (username) DO NOTHING`,
			u.ID, u.OwnerID, u.StoreID, u.Name, u.Username, u.PasswordHash,
			u.Role, u.Active, u.CreatedAt, u.UpdatedAt,
		)
		return err
	})
}

// EnsureLogin creates role as a login restricted to database, or resets its
// password if it already exists, and grants it full privileges on that
// database and its public schema only.
func (a *ClusterAdmin) EnsureLogin(ctx context.Context, database, role, password string) error {
	roleIdent := pgx.Identifier{role}.Sanitize()
	dbIdent := pgx.Identifier{database}.Sanitize()

	var exists bool
	err := a.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)`, role).Scan(&exists)
	if err != nil {
		return fmt.Errorf("clusterAdmin.EnsureLogin: %w", err)
	}

	const attrs = " LOGIN NOSUPERUSER NOCREATEDB NOCREATEROLE NOINHERIT NOREPLICATION PASSWORD "
	if !exists {
		_, err = a.pool.Exec(ctx, "CREATE ROLE "+roleIdent+attrs+quoteLiteral(password))
		if postgres.HasCode(err, postgres.CodeDuplicateObject) {
			exists = true
		} else if err != nil {
			return fmt.Errorf("clusterAdmin.EnsureLogin: create role: %w", err)
		}
	}
	if exists {
		_, err = a.pool.Exec(ctx, "ALTER ROLE "+roleIdent+attrs+quoteLiteral(password))
		if err != nil {
			return fmt.Errorf("clusterAdmin.EnsureLogin: alter role: %w", err)
		}
	}

	_, err = a.pool.Exec(ctx, "GRANT ALL PRIVILEGES ON DATABASE "+dbIdent+" TO "+roleIdent)
	if err != nil {
		return fmt.Errorf("clusterAdmin.EnsureLogin: grant database: %w", err)
	}

	return a.withTenant(ctx, database, "clusterAdmin.EnsureLogin", func(conn *pgx.Conn) error {
		_, execErr := conn.Exec(ctx, strings.Join([]string{
			"GRANT ALL ON SCHEMA public TO " + roleIdent,
			"GRANT ALL ON ALL TABLES IN SCHEMA public TO " + roleIdent,
			"GRANT ALL ON ALL SEQUENCES IN SCHEMA public TO " + roleIdent,
			"ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON TABLES TO " + roleIdent,
			"ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON SEQUENCES TO " + roleIdent,
		}, "; "))
		return execErr
	})
}

func (a *ClusterAdmin) withTenant(ctx context.Context, database, op string, fn func(conn *pgx.Conn) error) error {
	conn, err := a.dialer.connect(ctx, a.cfg.AdminDSN(database))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		closeErr := conn.Close(context.WithoutCancel(ctx))
		if closeErr != nil {
			log.Warn().Err(closeErr).Str("tenant_db", database).Msg("closing admin connection")
		}
	}()

	err = fn(conn)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, database, err)
	}
	return nil
}

// quoteLiteral renders s as a SQL string literal. Role passwords cannot be
// bound as parameters in CREATE/ALTER ROLE.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
