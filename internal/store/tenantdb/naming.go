// Package tenantdb talks to the cluster hosting the per-owner tenant
// databases: it creates databases and logins, loads the tenant schema, and
// opens short-lived connections scoped to one tenant.
package tenantdb

import (
	"strings"

	"github.com/google/uuid"
)

// Naming derives the deterministic database and login names of a tenant
// from its owner id. The same owner always maps to the same names, which
// is what makes provisioning re-runnable.
type Naming struct {
	DBPrefix   string
	RolePrefix string
}

func (n Naming) DatabaseName(ownerID uuid.UUID) string {
	return n.DBPrefix + compact(ownerID)
}

func (n Naming) RoleName(ownerID uuid.UUID) string {
	return n.RolePrefix + compact(ownerID)
}

// OwnerFromDatabase reverses DatabaseName. ok is false for names that were
// not produced by this Naming.
func (n Naming) OwnerFromDatabase(database string) (uuid.UUID, bool) {
	rest, found := strings.CutPrefix(database, n.DBPrefix)
	if !found {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func compact(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}
