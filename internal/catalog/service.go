// Package catalog manages tenant products under the plan's product ceiling.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/tillpoint/internal/auth"
	"github.com/gosuda/tillpoint/internal/domain"
)

type Tenants interface {
	WithTenant(ctx context.Context, id domain.TenantIdentity, fn func(h domain.TenantHandle) error) error
}

type PlanSource interface {
	PlanFor(ctx context.Context, ownerID uuid.UUID) (string, error)
}

// ProductQuota gates product creation.
type ProductQuota interface {
	CheckProduct(ctx context.Context, planName string, products domain.ProductRepository, ownerID uuid.UUID) error
}

type NewProduct struct {
	SKU        string
	Name       string
	PriceCents int64
	Stock      int
	StoreID    uuid.UUID // uuid.Nil for products shared by every store
}

type Service struct {
	tenants Tenants
	plans   PlanSource
	quota   ProductQuota
	now     func() time.Time
}

func NewService(tenants Tenants, plans PlanSource, quota ProductQuota) *Service {
	return &Service{tenants: tenants, plans: plans, quota: quota, now: time.Now}
}

// CreateProduct adds a product after the product ceiling check. Owners may
// create shared or per-store products; admins only for their own store.
func (s *Service) CreateProduct(ctx context.Context, caller auth.Principal, req NewProduct) (*domain.Product, error) {
	switch caller.Role {
	case domain.RoleOwner:
	case domain.RoleAdmin:
		if req.StoreID == uuid.Nil {
			req.StoreID = caller.StoreID
		}
		if req.StoreID != caller.StoreID {
			return nil, fmt.Errorf("catalog.CreateProduct: store %s: %w", req.StoreID, domain.ErrForbidden)
		}
	default:
		return nil, fmt.Errorf("catalog.CreateProduct: %w", domain.ErrForbidden)
	}

	req.SKU = strings.TrimSpace(req.SKU)
	req.Name = strings.TrimSpace(req.Name)
	if req.SKU == "" || req.Name == "" {
		return nil, fmt.Errorf("catalog.CreateProduct: sku and name are required: %w", domain.ErrInvalid)
	}
	if req.PriceCents < 0 || req.Stock < 0 {
		return nil, fmt.Errorf("catalog.CreateProduct: price and stock must not be negative: %w", domain.ErrInvalid)
	}

	planName, err := s.plans.PlanFor(ctx, caller.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("catalog.CreateProduct: %w", err)
	}

	product := &domain.Product{
		ID:         uuid.New(),
		OwnerID:    caller.OwnerID,
		SKU:        req.SKU,
		Name:       req.Name,
		PriceCents: req.PriceCents,
		Stock:      req.Stock,
		Active:     true,
		CreatedAt:  s.now().UTC(),
	}
	if req.StoreID != uuid.Nil {
		store := req.StoreID
		product.StoreID = &store
	}

	err = s.tenants.WithTenant(ctx, caller.Identity(), func(h domain.TenantHandle) error {
		if product.StoreID != nil {
			if _, err := h.Stores().GetByID(ctx, *product.StoreID); err != nil {
				return fmt.Errorf("store %s: %w", *product.StoreID, err)
			}
		}
		if err := s.quota.CheckProduct(ctx, planName, h.Products(), caller.OwnerID); err != nil {
			return err
		}
		return h.Products().Create(ctx, product)
	})
	if err != nil {
		return nil, fmt.Errorf("catalog.CreateProduct: %w", err)
	}

	return product, nil
}
