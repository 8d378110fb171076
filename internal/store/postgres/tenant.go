package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gosuda/tillpoint/internal/domain"
)

type TenantRecordRepo struct {
	db DBTX
}

func NewTenantRecordRepo(db DBTX) *TenantRecordRepo {
	return &TenantRecordRepo{db: db}
}

const tenantRecordColumns = `owner_id, database, db_user, db_password, plan, created_at`

func scanTenantRecord(row pgx.Row) (*domain.TenantRecord, error) {
	var t domain.TenantRecord
	err := row.Scan(&t.OwnerID, &t.Database, &t.DBUser, &t.DBPassword, &t.Plan, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TenantRecordRepo) Create(ctx context.Context, t *domain.TenantRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO tenant_records (`+tenantRecordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.OwnerID, t.Database, t.DBUser, t.DBPassword, t.Plan, t.CreatedAt,
	)
	return MapError("tenantRecordRepo.Create", err)
}

func (r *TenantRecordRepo) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.TenantRecord, error) {
	t, err := scanTenantRecord(r.db.QueryRow(ctx,
		`SELECT `+tenantRecordColumns+` FROM tenant_records WHERE owner_id = $1`,
		ownerID,
	))
	if err != nil {
		return nil, MapError("tenantRecordRepo.GetByOwner", err)
	}
	return t, nil
}

func (r *TenantRecordRepo) GetByDatabase(ctx context.Context, database string) (*domain.TenantRecord, error) {
	t, err := scanTenantRecord(r.db.QueryRow(ctx,
		`SELECT `+tenantRecordColumns+` FROM tenant_records WHERE database = $1`,
		database,
	))
	if err != nil {
		return nil, MapError("tenantRecordRepo.GetByDatabase", err)
	}
	return t, nil
}

// List returns every registered tenant, oldest first. Discovery scans the
// full set, so there is no page limit.
func (r *TenantRecordRepo) List(ctx context.Context) ([]*domain.TenantRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+tenantRecordColumns+` FROM tenant_records ORDER BY created_at, owner_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("tenantRecordRepo.List: %w", err)
	}
	defer rows.Close()

	var records []*domain.TenantRecord
	for rows.Next() {
		t, scanErr := scanTenantRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("tenantRecordRepo.List: scan: %w", scanErr)
		}
		records = append(records, t)
	}
	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("tenantRecordRepo.List: rows: %w", err)
	}

	return records, nil
}

func (r *TenantRecordRepo) UpdatePlan(ctx context.Context, ownerID uuid.UUID, plan string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tenant_records SET plan = $1 WHERE owner_id = $2`,
		plan, ownerID,
	)
	if err != nil {
		return fmt.Errorf("tenantRecordRepo.UpdatePlan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tenantRecordRepo.UpdatePlan: %w", domain.ErrNotFound)
	}

	return nil
}
