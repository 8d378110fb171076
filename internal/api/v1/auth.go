package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/tillpoint/internal/auth"
	"github.com/gosuda/tillpoint/internal/domain"
	"github.com/gosuda/tillpoint/internal/tenant"
)

type RegisterInput struct {
	Body struct {
		BusinessName string `json:"business_name" minLength:"1" maxLength:"255" doc:"Business name"`
		Email        string `json:"email" minLength:"3" maxLength:"255" format:"email" doc:"Owner email"`
		Phone        string `json:"phone,omitempty" maxLength:"32" doc:"Owner phone"`
		Password     string `json:"password" minLength:"8" maxLength:"128" doc:"Password"` //nolint:gosec // G117: login credential DTO
	}
}

type RegisterOutput struct {
	Body struct {
		OwnerID      uuid.UUID `json:"owner_id"`
		TenantDB     string    `json:"tenant_db"`
		AccessToken  string    `json:"access_token"`  //nolint:gosec // G117: auth response DTO
		RefreshToken string    `json:"refresh_token"` //nolint:gosec // G117: auth response DTO
	}
}

type LoginInput struct {
	Body struct {
		Identifier string `json:"identifier" minLength:"1" maxLength:"255" doc:"Owner email or tenant username"`
		Password   string `json:"password" minLength:"1" maxLength:"128" doc:"Password"` //nolint:gosec // G117: login credential DTO
	}
}

type LoginOutput struct {
	Body struct {
		AccessToken  string    `json:"access_token"`  //nolint:gosec // G117: auth response DTO
		RefreshToken string    `json:"refresh_token"` //nolint:gosec // G117: auth response DTO
		OwnerID      uuid.UUID `json:"owner_id"`
		UserID       uuid.UUID `json:"user_id"`
		Role         string    `json:"role"`
		TenantDB     string    `json:"tenant_db"`
	}
}

type RefreshInput struct {
	Body struct {
		RefreshToken string `json:"refresh_token" minLength:"1" doc:"Refresh token"` //nolint:gosec // G117: token refresh DTO
	}
}

type RefreshOutput struct {
	Body struct {
		AccessToken string `json:"access_token"` //nolint:gosec // G117: auth response DTO
	}
}

func RegisterAuthRoutes(api huma.API, prov Provisioner, authSvc AuthService) {
	huma.Register(api, huma.Operation{
		OperationID: "register",
		Method:      http.MethodPost,
		Path:        "/auth/register",
		Summary:     "Sign up a business owner and provision its tenant",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *RegisterInput) (*RegisterOutput, error) {
		outcome, err := prov.Provision(ctx, tenant.Request{
			OwnerID:      uuid.New(),
			BusinessName: input.Body.BusinessName,
			Email:        input.Body.Email,
			Phone:        input.Body.Phone,
			Password:     input.Body.Password,
		})
		if err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return nil, huma.Error409Conflict("email already registered")
			}
			if errors.Is(err, tenant.ErrSchemaLoad) || errors.Is(err, tenant.ErrPartialProvisioning) {
				return nil, huma.Error500InternalServerError("tenant provisioning failed", err)
			}
			return nil, problem(err, "failed to register owner")
		}

		tokens, err := authSvc.Login(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, huma.Error500InternalServerError("registered but failed to issue tokens", err)
		}

		out := &RegisterOutput{}
		out.Body.OwnerID = outcome.Identity.OwnerID
		out.Body.TenantDB = outcome.Identity.Database
		out.Body.AccessToken = tokens.AccessToken
		out.Body.RefreshToken = tokens.RefreshToken
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Login with owner email or tenant username",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *LoginInput) (*LoginOutput, error) {
		tokens, err := authSvc.Login(ctx, input.Body.Identifier, input.Body.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				return nil, huma.Error401Unauthorized("invalid identifier or password")
			}
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("no tenant found for this owner")
			}
			return nil, huma.Error500InternalServerError("login failed", err)
		}

		out := &LoginOutput{}
		out.Body.AccessToken = tokens.AccessToken
		out.Body.RefreshToken = tokens.RefreshToken
		out.Body.OwnerID = tokens.Principal.OwnerID
		out.Body.UserID = tokens.Principal.UserID
		out.Body.Role = string(tokens.Principal.Role)
		out.Body.TenantDB = tokens.Principal.Database
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "refresh-token",
		Method:      http.MethodPost,
		Path:        "/auth/refresh",
		Summary:     "Refresh access token",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *RefreshInput) (*RefreshOutput, error) {
		accessToken, err := authSvc.RefreshToken(ctx, input.Body.RefreshToken)
		if err != nil {
			return nil, huma.Error401Unauthorized("invalid or expired refresh token")
		}

		out := &RefreshOutput{}
		out.Body.AccessToken = accessToken
		return out, nil
	})
}
