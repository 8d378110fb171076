package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/tillpoint/internal/catalog"
)

type ProductBody struct {
	ID         uuid.UUID  `json:"id"`
	StoreID    *uuid.UUID `json:"store_id,omitempty"`
	SKU        string     `json:"sku"`
	Name       string     `json:"name"`
	PriceCents int64      `json:"price_cents"`
	Stock      int        `json:"stock"`
	CreatedAt  time.Time  `json:"created_at"`
}

type CreateProductInput struct {
	Body struct {
		SKU        string    `json:"sku" minLength:"1" maxLength:"64" doc:"Stock keeping unit"`
		Name       string    `json:"name" minLength:"1" maxLength:"255" doc:"Product name"`
		PriceCents int64     `json:"price_cents" minimum:"0" doc:"Unit price in cents"`
		Stock      int       `json:"stock,omitempty" minimum:"0" doc:"Units on hand"`
		StoreID    uuid.UUID `json:"store_id,omitempty" doc:"Store, empty for every store"`
	}
}

type CreateProductOutput struct {
	Body *ProductBody
}

func RegisterCatalogRoutes(api huma.API, svc CatalogService) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-product",
		Method:        http.MethodPost,
		Path:          "/products",
		Summary:       "Create a product (quota-gated)",
		Tags:          []string{"Products"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateProductInput) (*CreateProductOutput, error) {
		caller, err := tenantPrincipal(ctx)
		if err != nil {
			return nil, err
		}

		p, err := svc.CreateProduct(ctx, caller, catalog.NewProduct{
			SKU:        input.Body.SKU,
			Name:       input.Body.Name,
			PriceCents: input.Body.PriceCents,
			Stock:      input.Body.Stock,
			StoreID:    input.Body.StoreID,
		})
		if err != nil {
			return nil, problem(err, "failed to create product")
		}

		return &CreateProductOutput{Body: &ProductBody{
			ID:         p.ID,
			StoreID:    p.StoreID,
			SKU:        p.SKU,
			Name:       p.Name,
			PriceCents: p.PriceCents,
			Stock:      p.Stock,
			CreatedAt:  p.CreatedAt,
		}}, nil
	})
}
