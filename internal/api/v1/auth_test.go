package v1_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/tillpoint/internal/api/v1"
	"github.com/gosuda/tillpoint/internal/auth"
	"github.com/gosuda/tillpoint/internal/domain"
	"github.com/gosuda/tillpoint/internal/tenant"
)

// ---------------------------------------------------------------------------
// POST /auth/register
// ---------------------------------------------------------------------------

func registerBody() map[string]any {
	return map[string]any{
		"business_name": "Acme Bakery",
		"email":         "alice@acme.io",
		"phone":         "+1-555-0100",
		"password":      "secretpw1",
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		var ownerID uuid.UUID
		_, api := humatest.New(t)
		prov := &mockProvisioner{
			provisionFunc: func(_ context.Context, req tenant.Request) (tenant.Outcome, error) {
				assert.NotEqual(t, uuid.Nil, req.OwnerID)
				assert.Equal(t, "Acme Bakery", req.BusinessName)
				assert.Equal(t, "alice@acme.io", req.Email)
				assert.Equal(t, "secretpw1", req.Password)
				assert.Empty(t, req.Plan, "signup uses the default plan")
				ownerID = req.OwnerID
				return tenant.Outcome{Identity: domain.TenantIdentity{OwnerID: req.OwnerID, Database: testTenantDB}}, nil
			},
		}
		authSvc := &mockAuthService{
			loginFunc: func(_ context.Context, identifier, password string) (*auth.Tokens, error) {
				assert.Equal(t, "alice@acme.io", identifier)
				assert.Equal(t, "secretpw1", password)
				return &auth.Tokens{AccessToken: "access-tok", RefreshToken: "refresh-tok"}, nil
			},
		}

		v1.RegisterAuthRoutes(api, prov, authSvc)

		resp := api.Post("/auth/register", registerBody())
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

		var body struct {
			OwnerID      uuid.UUID `json:"owner_id"`
			TenantDB     string    `json:"tenant_db"`
			AccessToken  string    `json:"access_token"`
			RefreshToken string    `json:"refresh_token"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, ownerID, body.OwnerID)
		assert.Equal(t, testTenantDB, body.TenantDB)
		assert.Equal(t, "access-tok", body.AccessToken)
		assert.Equal(t, "refresh-tok", body.RefreshToken)
	})

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "email_taken", err: fmt.Errorf("tenant.Provision: %w", domain.ErrConflict), want: http.StatusConflict},
		{name: "schema_load_failure", err: fmt.Errorf("tenant.Provision: %w", tenant.ErrSchemaLoad), want: http.StatusInternalServerError},
		{name: "partial_provisioning", err: fmt.Errorf("tenant.Provision: %w", tenant.ErrPartialProvisioning), want: http.StatusInternalServerError},
		{name: "invalid_input", err: fmt.Errorf("tenant.Provision: %w", domain.ErrInvalid), want: http.StatusBadRequest},
		{name: "default_plan_misconfigured", err: fmt.Errorf("tenant.Provision: %w", domain.ErrUnknownPlan), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, api := humatest.New(t)
			prov := &mockProvisioner{
				provisionFunc: func(context.Context, tenant.Request) (tenant.Outcome, error) {
					return tenant.Outcome{}, tt.err
				},
			}
			authSvc := &mockAuthService{}

			v1.RegisterAuthRoutes(api, prov, authSvc)

			resp := api.Post("/auth/register", registerBody())
			assert.Equal(t, tt.want, resp.Code)

			var errBody map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
			assert.EqualValues(t, tt.want, errBody["status"])
		})
	}

	t.Run("login_after_register_fails", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		prov := &mockProvisioner{
			provisionFunc: func(_ context.Context, req tenant.Request) (tenant.Outcome, error) {
				return tenant.Outcome{Identity: domain.TenantIdentity{OwnerID: req.OwnerID, Database: testTenantDB}}, nil
			},
		}
		authSvc := &mockAuthService{
			loginFunc: func(context.Context, string, string) (*auth.Tokens, error) {
				return nil, errors.New("auth.Login: token issuance failed")
			},
		}

		v1.RegisterAuthRoutes(api, prov, authSvc)

		resp := api.Post("/auth/register", registerBody())
		assert.Equal(t, http.StatusInternalServerError, resp.Code)
	})

	t.Run("short_password_rejected_before_provisioning", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		prov := &mockProvisioner{
			provisionFunc: func(context.Context, tenant.Request) (tenant.Outcome, error) {
				t.Fatal("provisioner must not be called")
				return tenant.Outcome{}, nil
			},
		}

		v1.RegisterAuthRoutes(api, prov, &mockAuthService{})

		body := registerBody()
		body["password"] = "short"
		resp := api.Post("/auth/register", body)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})
}

// ---------------------------------------------------------------------------
// POST /auth/login
// ---------------------------------------------------------------------------

func TestLogin(t *testing.T) {
	t.Parallel()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		p := principal(domain.RoleCashier)
		_, api := humatest.New(t)
		authSvc := &mockAuthService{
			loginFunc: func(_ context.Context, identifier, password string) (*auth.Tokens, error) {
				assert.Equal(t, "cashier01", identifier)
				assert.Equal(t, "pw", password)
				return &auth.Tokens{AccessToken: "a", RefreshToken: "r", Principal: p}, nil
			},
		}

		v1.RegisterAuthRoutes(api, &mockProvisioner{}, authSvc)

		resp := api.Post("/auth/login", map[string]any{"identifier": "cashier01", "password": "pw"})
		require.Equal(t, http.StatusOK, resp.Code)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "a", body["access_token"])
		assert.Equal(t, "r", body["refresh_token"])
		assert.Equal(t, "cashier", body["role"])
		assert.Equal(t, testTenantDB, body["tenant_db"])
		assert.Equal(t, p.UserID.String(), body["user_id"])
	})

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid_credentials", err: fmt.Errorf("auth.Login: %w", auth.ErrInvalidCredentials), want: http.StatusUnauthorized},
		{name: "owner_without_tenant", err: fmt.Errorf("auth.Login: %w", domain.ErrNotFound), want: http.StatusNotFound},
		{name: "internal", err: errors.New("pool closed"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, api := humatest.New(t)
			authSvc := &mockAuthService{
				loginFunc: func(context.Context, string, string) (*auth.Tokens, error) {
					return nil, tt.err
				},
			}

			v1.RegisterAuthRoutes(api, &mockProvisioner{}, authSvc)

			resp := api.Post("/auth/login", map[string]any{"identifier": "alice@acme.io", "password": "pw"})
			assert.Equal(t, tt.want, resp.Code)
		})
	}
}

// ---------------------------------------------------------------------------
// POST /auth/refresh
// ---------------------------------------------------------------------------

func TestRefreshToken(t *testing.T) {
	t.Parallel()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		authSvc := &mockAuthService{
			refreshTokenFunc: func(_ context.Context, tok string) (string, error) {
				assert.Equal(t, "refresh-tok", tok)
				return "new-access", nil
			},
		}

		v1.RegisterAuthRoutes(api, &mockProvisioner{}, authSvc)

		resp := api.Post("/auth/refresh", map[string]any{"refresh_token": "refresh-tok"})
		require.Equal(t, http.StatusOK, resp.Code)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "new-access", body["access_token"])
	})

	t.Run("invalid_token", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		authSvc := &mockAuthService{
			refreshTokenFunc: func(context.Context, string) (string, error) {
				return "", auth.ErrInvalidToken
			},
		}

		v1.RegisterAuthRoutes(api, &mockProvisioner{}, authSvc)

		resp := api.Post("/auth/refresh", map[string]any{"refresh_token": "bad"})
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	})
}
