package tenantdb

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gosuda/tillpoint/internal/domain"
	"github.com/gosuda/tillpoint/internal/store/postgres"
)

type StoreRepo struct {
	db postgres.DBTX
}

func NewStoreRepo(db postgres.DBTX) *StoreRepo {
	return &StoreRepo{db: db}
}

func (r *StoreRepo) Create(ctx context.Context, s *domain.Store) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO stores (id, owner_id, name, address, phone, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.OwnerID, s.Name, s.Address, s.Phone, s.CreatedAt,
	)
	return postgres.MapError("storeRepo.Create", err)
}

func (r *StoreRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Store, error) {
	var s domain.Store

	err := r.db.QueryRow(ctx,
		`SELECT id, owner_id, name, address, phone, created_at FROM stores WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.OwnerID, &s.Name, &s.Address, &s.Phone, &s.CreatedAt)
	if err != nil {
		return nil, postgres.MapError("storeRepo.GetByID", err)
	}

	return &s, nil
}

func (r *StoreRepo) List(ctx context.Context, ownerID uuid.UUID) ([]*domain.Store, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, owner_id, name, address, phone, created_at
		 FROM stores WHERE owner_id = $1 ORDER BY created_at, id
		 LIMIT 500`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("storeRepo.List: %w", err)
	}
	defer rows.Close()

	var stores []*domain.Store
	for rows.Next() {
		var s domain.Store

		err = rows.Scan(&s.ID, &s.OwnerID, &s.Name, &s.Address, &s.Phone, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("storeRepo.List: scan: %w", err)
		}

		stores = append(stores, &s)
	}
	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("storeRepo.List: rows: %w", err)
	}

	return stores, nil
}
