package middleware

import "net/http"

// RequireTenant rejects principals that carry no tenant database.
func RequireTenant() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok || p.Database == "" {
				http.Error(w, `{"title":"Forbidden","status":403,"detail":"no tenant bound to principal"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
