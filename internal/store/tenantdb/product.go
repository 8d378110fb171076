package tenantdb

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gosuda/tillpoint/internal/domain"
	"github.com/gosuda/tillpoint/internal/store/postgres"
)

type ProductRepo struct {
	db postgres.DBTX
}

func NewProductRepo(db postgres.DBTX) *ProductRepo {
	return &ProductRepo{db: db}
}

func (r *ProductRepo) Create(ctx context.Context, p *domain.Product) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO products (id, owner_id, store_id, sku, name, price_cents, stock, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.OwnerID, p.StoreID, p.SKU, p.Name, p.PriceCents, p.Stock, p.Active, p.CreatedAt,
	)
	return postgres.MapError("productRepo.Create", err)
}

func (r *ProductRepo) CountByOwner(ctx context.Context, ownerID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM products WHERE owner_id = $1 AND active`, ownerID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("productRepo.CountByOwner: %w", err)
	}
	return n, nil
}
