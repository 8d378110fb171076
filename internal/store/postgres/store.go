package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/tillpoint/internal/domain"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx. Repositories are built
// over it so the same code runs standalone or inside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the control-plane database. Its accessors use the shared pool;
// WithinTx hands out repositories bound to one transaction.
type Store struct {
	pool *pgxpool.Pool
	repos
}

type repos struct {
	owners        *OwnerRepo
	controlUsers  *ControlUserRepo
	tenantRecords *TenantRecordRepo
	subscriptions *SubscriptionRepo
}

func newRepos(db DBTX) repos {
	return repos{
		owners:        NewOwnerRepo(db),
		controlUsers:  NewControlUserRepo(db),
		tenantRecords: NewTenantRecordRepo(db),
		subscriptions: NewSubscriptionRepo(db),
	}
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{pool: pool, repos: newRepos(pool)}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithinTx runs fn in a transaction. fn's error, or a panic, rolls back.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.ControlPlane) error) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&txStore{repos: newRepos(tx)})
	})
	if err != nil {
		return fmt.Errorf("postgres.WithinTx: %w", err)
	}
	return nil
}

func (r *repos) Owners() domain.OwnerRepository               { return r.owners }
func (r *repos) ControlUsers() domain.ControlUserRepository   { return r.controlUsers }
func (r *repos) TenantRecords() domain.TenantRecordRepository { return r.tenantRecords }
func (r *repos) Subscriptions() domain.SubscriptionRepository { return r.subscriptions }

// txStore is the transaction-bound view handed to WithinTx callbacks.
type txStore struct {
	repos
}

// WithinTx on an already transactional view reuses the transaction.
func (t *txStore) WithinTx(_ context.Context, fn func(tx domain.ControlPlane) error) error {
	return fn(t)
}

var (
	_ domain.ControlPlane = (*Store)(nil)
	_ domain.ControlPlane = (*txStore)(nil)
)
