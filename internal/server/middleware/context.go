package middleware

import (
	"context"

	"github.com/gosuda/tillpoint/internal/auth"
	"github.com/gosuda/tillpoint/internal/domain"
)

type contextKey string

const ContextKeyPrincipal contextKey = "principal"

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, p)
}

func PrincipalFromContext(ctx context.Context) (auth.Principal, bool) {
	v, ok := ctx.Value(ContextKeyPrincipal).(auth.Principal)
	return v, ok
}

func RoleFromContext(ctx context.Context) (domain.Role, bool) {
	p, ok := PrincipalFromContext(ctx)
	return p.Role, ok
}
