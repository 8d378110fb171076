package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/tillpoint/internal/domain"
	"github.com/gosuda/tillpoint/internal/staff"
)

// UserBody is the public view of a tenant user.
type UserBody struct {
	ID        uuid.UUID  `json:"id"`
	StoreID   *uuid.UUID `json:"store_id,omitempty"`
	Name      string     `json:"name"`
	Username  string     `json:"username"`
	Role      string     `json:"role"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
}

func userBody(u *domain.User) *UserBody {
	return &UserBody{
		ID:        u.ID,
		StoreID:   u.StoreID,
		Name:      u.Name,
		Username:  u.Username,
		Role:      string(u.Role),
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

type StoreBody struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func storeBody(s *domain.Store) *StoreBody {
	return &StoreBody{ID: s.ID, Name: s.Name, Address: s.Address, Phone: s.Phone, CreatedAt: s.CreatedAt}
}

type CreateUserInput struct {
	Body struct {
		Name     string    `json:"name" minLength:"1" maxLength:"255" doc:"Display name"`
		Username string    `json:"username" minLength:"1" maxLength:"64" doc:"Login identifier"`
		Password string    `json:"password" minLength:"8" maxLength:"128" doc:"Password"` //nolint:gosec // G117: credential DTO
		Role     string    `json:"role" enum:"admin,cashier,user" doc:"Role"`
		StoreID  uuid.UUID `json:"store_id,omitempty" doc:"Store, required for admin and cashier"`
	}
}

type CreateUserOutput struct {
	Body *UserBody
}

type CreateStoreInput struct {
	Body struct {
		Name    string `json:"name" minLength:"1" maxLength:"255" doc:"Store name"`
		Address string `json:"address,omitempty" maxLength:"512" doc:"Street address"`
		Phone   string `json:"phone,omitempty" maxLength:"32" doc:"Phone"`
	}
}

type CreateStoreOutput struct {
	Body *StoreBody
}

type ListStoresInput struct{}

type ListStoresOutput struct {
	Body []*StoreBody
}

func RegisterStaffRoutes(api huma.API, svc StaffService) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create a tenant user (quota-gated)",
		Tags:          []string{"Users"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateUserInput) (*CreateUserOutput, error) {
		caller, err := tenantPrincipal(ctx)
		if err != nil {
			return nil, err
		}

		u, err := svc.CreateUser(ctx, caller, staff.NewUser{
			Name:     input.Body.Name,
			Username: input.Body.Username,
			Password: input.Body.Password,
			Role:     domain.Role(input.Body.Role),
			StoreID:  input.Body.StoreID,
		})
		if err != nil {
			return nil, problem(err, "failed to create user")
		}

		return &CreateUserOutput{Body: userBody(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-store",
		Method:        http.MethodPost,
		Path:          "/stores",
		Summary:       "Create a store",
		Tags:          []string{"Stores"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateStoreInput) (*CreateStoreOutput, error) {
		caller, err := tenantPrincipal(ctx)
		if err != nil {
			return nil, err
		}

		s, err := svc.CreateStore(ctx, caller, staff.NewStore{
			Name:    input.Body.Name,
			Address: input.Body.Address,
			Phone:   input.Body.Phone,
		})
		if err != nil {
			return nil, problem(err, "failed to create store")
		}

		return &CreateStoreOutput{Body: storeBody(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-stores",
		Method:      http.MethodGet,
		Path:        "/stores",
		Summary:     "List stores",
		Tags:        []string{"Stores"},
	}, func(ctx context.Context, _ *ListStoresInput) (*ListStoresOutput, error) {
		caller, err := tenantPrincipal(ctx)
		if err != nil {
			return nil, err
		}

		stores, err := svc.ListStores(ctx, caller)
		if err != nil {
			return nil, problem(err, "failed to list stores")
		}

		out := &ListStoresOutput{Body: make([]*StoreBody, 0, len(stores))}
		for _, s := range stores {
			out.Body = append(out.Body, storeBody(s))
		}
		return out, nil
	})
}
