package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies every embedded migration in file name order. Each file is
// written to be re-runnable.
func (s *Store) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("postgres.Migrate: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		body, readErr := migrations.ReadFile(name)
		if readErr != nil {
			return fmt.Errorf("postgres.Migrate: read %s: %w", name, readErr)
		}

		_, err = s.pool.Exec(ctx, string(body))
		if err != nil {
			return fmt.Errorf("postgres.Migrate: apply %s: %w", name, err)
		}
		log.Debug().Str("migration", name).Msg("migration applied")
	}

	return nil
}

// LockDown revokes CONNECT on the control-plane database from PUBLIC, so
// tenant logins cannot reach it, and keeps it for the current role.
func (s *Store) LockDown(ctx context.Context) error {
	var dbname, role string
	err := s.pool.QueryRow(ctx, `SELECT current_database(), current_user`).Scan(&dbname, &role)
	if err != nil {
		return fmt.Errorf("postgres.LockDown: %w", err)
	}

	db := pgx.Identifier{dbname}.Sanitize()
	_, err = s.pool.Exec(ctx, fmt.Sprintf(
		"REVOKE CONNECT ON DATABASE %s FROM PUBLIC; GRANT CONNECT ON DATABASE %s TO %s",
		db, db, pgx.Identifier{role}.Sanitize(),
	))
	if err != nil {
		return fmt.Errorf("postgres.LockDown: %w", err)
	}

	log.Info().Str("database", dbname).Msg("control plane connect revoked from PUBLIC")
	return nil
}
