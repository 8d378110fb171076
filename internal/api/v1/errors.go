package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tillpoint/internal/auth"
	"github.com/gosuda/tillpoint/internal/domain"
	"github.com/gosuda/tillpoint/internal/server/middleware"
)

// CodeQuotaExceeded identifies quota denials in problem responses.
const CodeQuotaExceeded = "quota_exceeded"

// QuotaProblem is the 403 body of a quota denial.
type QuotaProblem struct {
	Status  int    `json:"status"`
	Title   string `json:"title"`
	Detail  string `json:"detail"`
	Code    string `json:"code"`
	Plan    string `json:"plan"`
	Role    string `json:"role,omitempty"`
	Entity  string `json:"entity"`
	Ceiling int    `json:"ceiling"`
	Current int    `json:"current"`
}

func (p *QuotaProblem) Error() string  { return p.Detail }
func (p *QuotaProblem) GetStatus() int { return p.Status }

// ContentType marks the body as a problem document.
func (p *QuotaProblem) ContentType(ct string) string {
	if ct == "application/json" {
		return "application/problem+json"
	}
	return ct
}

func quotaProblem(qe *domain.QuotaExceededError) *QuotaProblem {
	return &QuotaProblem{
		Status:  http.StatusForbidden,
		Title:   http.StatusText(http.StatusForbidden),
		Detail:  qe.Error(),
		Code:    CodeQuotaExceeded,
		Plan:    qe.Plan,
		Role:    string(qe.Role),
		Entity:  qe.Entity,
		Ceiling: qe.Ceiling,
		Current: qe.Current,
	}
}

// problem maps a service error to an HTTP problem response.
func problem(err error, msg string) error {
	if qe, ok := domain.IsQuotaExceeded(err); ok {
		return quotaProblem(qe)
	}

	switch {
	case errors.Is(err, domain.ErrInvalid):
		return huma.Error400BadRequest(msg, err)
	case errors.Is(err, domain.ErrNoTenantBound):
		return huma.Error403Forbidden("no tenant bound to principal")
	case errors.Is(err, domain.ErrForbidden):
		return huma.Error403Forbidden("insufficient permissions")
	case errors.Is(err, domain.ErrNotFound):
		return huma.Error404NotFound(msg, err)
	case errors.Is(err, domain.ErrConflict):
		return huma.Error409Conflict(msg, err)
	case errors.Is(err, domain.ErrUnknownPlan):
		log.Error().Err(err).Msg("plan configuration error")
		return huma.Error500InternalServerError("plan configuration error")
	default:
		return huma.Error500InternalServerError(msg, err)
	}
}

// tenantPrincipal returns the caller, which must be routed to a tenant.
func tenantPrincipal(ctx context.Context) (auth.Principal, error) {
	p, ok := middleware.PrincipalFromContext(ctx)
	if !ok {
		return auth.Principal{}, huma.Error401Unauthorized("authentication required")
	}
	if p.Database == "" {
		return auth.Principal{}, huma.Error403Forbidden("no tenant bound to principal")
	}
	return p, nil
}
