package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/tillpoint/internal/domain"
	"github.com/gosuda/tillpoint/internal/quota"
)

// Quotas lists ceilings or current usage. In ceilings -1 is unlimited.
type Quotas struct {
	Products int            `json:"products"`
	Users    int            `json:"users"`
	Roles    map[string]int `json:"roles"`
}

type SubscriptionBody struct {
	Plan     string    `json:"plan"`
	Status   string    `json:"status"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

func subscriptionBody(s *domain.Subscription) *SubscriptionBody {
	return &SubscriptionBody{Plan: s.Plan, Status: string(s.Status), StartsAt: s.StartsAt, EndsAt: s.EndsAt}
}

type GetPlanInput struct{}

type GetPlanOutput struct {
	Body struct {
		Plan         string            `json:"plan"`
		Limits       Quotas            `json:"limits"`
		Usage        Quotas            `json:"usage"`
		Subscription *SubscriptionBody `json:"subscription,omitempty"`
	}
}

type ChangeSubscriptionInput struct {
	Body struct {
		Plan string `json:"plan" minLength:"1" maxLength:"64" doc:"Plan to switch to"`
	}
}

type ChangeSubscriptionOutput struct {
	Body *SubscriptionBody
}

func RegisterPlanRoutes(api huma.API, subs SubscriptionService, limits PlanLimits, tenants TenantRunner) {
	huma.Register(api, huma.Operation{
		OperationID: "get-plan",
		Method:      http.MethodGet,
		Path:        "/plan",
		Summary:     "Current plan with limits and usage",
		Tags:        []string{"Subscription"},
	}, func(ctx context.Context, _ *GetPlanInput) (*GetPlanOutput, error) {
		caller, err := tenantPrincipal(ctx)
		if err != nil {
			return nil, err
		}

		out := &GetPlanOutput{}

		sub, err := subs.Active(ctx, caller.OwnerID)
		switch {
		case err == nil:
			out.Body.Subscription = subscriptionBody(sub)
		case !errors.Is(err, domain.ErrNotFound):
			return nil, problem(err, "failed to load subscription")
		}

		planName, err := subs.PlanFor(ctx, caller.OwnerID)
		if err != nil {
			return nil, problem(err, "failed to resolve plan")
		}

		l, err := limits.Limits(planName)
		if err != nil {
			return nil, problem(err, "failed to resolve plan limits")
		}

		var usage quota.Usage
		err = tenants.WithTenant(ctx, caller.Identity(), func(h domain.TenantHandle) error {
			var measureErr error
			usage, measureErr = quota.Measure(ctx, h, caller.OwnerID)
			return measureErr
		})
		if err != nil {
			return nil, problem(err, "failed to measure usage")
		}

		out.Body.Plan = l.Plan
		out.Body.Limits = Quotas{Products: l.Products, Users: l.Users, Roles: roleMap(l.Roles)}
		out.Body.Usage = Quotas{Products: usage.Products, Users: usage.Users, Roles: roleMap(usage.Roles)}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-subscription",
		Method:      http.MethodPut,
		Path:        "/subscription",
		Summary:     "Change the subscription plan (owner only)",
		Tags:        []string{"Subscription"},
	}, func(ctx context.Context, input *ChangeSubscriptionInput) (*ChangeSubscriptionOutput, error) {
		caller, err := tenantPrincipal(ctx)
		if err != nil {
			return nil, err
		}
		if caller.Role != domain.RoleOwner {
			return nil, huma.Error403Forbidden("only the owner can change the subscription")
		}

		sub, err := subs.ChangePlan(ctx, caller.OwnerID, input.Body.Plan)
		if err != nil {
			if errors.Is(err, domain.ErrUnknownPlan) {
				return nil, huma.Error400BadRequest("unknown plan", err)
			}
			return nil, problem(err, "failed to change subscription")
		}

		return &ChangeSubscriptionOutput{Body: subscriptionBody(sub)}, nil
	})
}

func roleMap(in map[domain.Role]int) map[string]int {
	out := make(map[string]int, len(in))
	for r, v := range in {
		out[string(r)] = v
	}
	return out
}
