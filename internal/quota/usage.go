package quota

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gosuda/tillpoint/internal/domain"
)

// Usage is an owner's current consumption of metered entities. Role counts
// span every store.
type Usage struct {
	Products int
	Users    int
	Roles    map[domain.Role]int
}

// Measure counts the metered entities of ownerID in h.
func Measure(ctx context.Context, h domain.TenantHandle, ownerID uuid.UUID) (Usage, error) {
	products, err := h.Products().CountByOwner(ctx, ownerID)
	if err != nil {
		return Usage{}, fmt.Errorf("quota.Measure: %w", err)
	}
	users, err := h.Users().CountActive(ctx, ownerID)
	if err != nil {
		return Usage{}, fmt.Errorf("quota.Measure: %w", err)
	}

	u := Usage{Products: products, Users: users, Roles: make(map[domain.Role]int, len(domain.Roles))}
	for _, r := range domain.Roles {
		n, err := h.Users().CountActiveByRole(ctx, r, domain.CountScope{OwnerID: ownerID})
		if err != nil {
			return Usage{}, fmt.Errorf("quota.Measure: %w", err)
		}
		u.Roles[r] = n
	}

	return u, nil
}
