// Package plan holds the two-tier Plan Limit Table: an override document
// consulted first, falling back to the built-in defaults.
package plan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/gosuda/tillpoint/internal/domain"
)

// Limit keys understood by the table and the override document.
const (
	KeyProductLimit = "product_limit"
	KeyUserLimit    = "user_limit"
)

// Unlimited disables a ceiling. Zero is a real ceiling that denies everything.
const Unlimited = -1

// RoleKey returns the limit key holding the per-role user ceiling.
func RoleKey(r domain.Role) string {
	return "max_" + string(r)
}

func knownKey(key string) bool {
	if key == KeyProductLimit || key == KeyUserLimit {
		return true
	}
	return slices.ContainsFunc(domain.Roles, func(r domain.Role) bool { return RoleKey(r) == key })
}

// Limits is the fully resolved quota profile of one plan.
type Limits struct {
	Plan     string
	Products int
	Users    int
	Roles    map[domain.Role]int
}

// Role returns the ceiling for r.
func (l Limits) Role(r domain.Role) int {
	return l.Roles[r]
}

type tier struct {
	name   string
	values map[string]int
}

// builtin is the immutable default tier.
var builtin = map[string]map[string]int{ //nolint:gochecknoglobals // immutable defaults, copied on construction
	"Standard": {
		KeyProductLimit:             100,
		KeyUserLimit:                1,
		RoleKey(domain.RoleOwner):   1,
		RoleKey(domain.RoleAdmin):   0,
		RoleKey(domain.RoleCashier): 0,
		RoleKey(domain.RoleUser):    0,
	},
	"Pro": {
		KeyProductLimit:             1000,
		KeyUserLimit:                10,
		RoleKey(domain.RoleOwner):   1,
		RoleKey(domain.RoleAdmin):   1,
		RoleKey(domain.RoleCashier): 5,
		RoleKey(domain.RoleUser):    3,
	},
	"Enterprise": {
		KeyProductLimit:             Unlimited,
		KeyUserLimit:                Unlimited,
		RoleKey(domain.RoleOwner):   1,
		RoleKey(domain.RoleAdmin):   10,
		RoleKey(domain.RoleCashier): Unlimited,
		RoleKey(domain.RoleUser):    Unlimited,
	},
}

// Table resolves plan limits. It is built once at process start and is
// read-only afterwards, so it is safe for concurrent use.
type Table struct {
	defaults  map[string]tier
	overrides map[string]tier
}

// NewTable creates a Table from the built-in defaults and the given
// overrides (plan name -> key -> value). overrides may be nil.
func NewTable(overrides map[string]map[string]int) *Table {
	return &Table{
		defaults:  index(builtin),
		overrides: index(overrides),
	}
}

func index(src map[string]map[string]int) map[string]tier {
	out := make(map[string]tier, len(src))
	for name, values := range src {
		cp := make(map[string]int, len(values))
		for k, v := range values {
			cp[k] = v
		}
		out[strings.ToLower(name)] = tier{name: name, values: cp}
	}
	return out
}

// Load reads the override document at path and builds a Table. An empty
// path or a missing file yields the defaults alone.
func Load(path string) (*Table, error) {
	if path == "" {
		return NewTable(nil), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info().Str("path", path).Msg("plan: override document not found, using built-in defaults")
		return NewTable(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("plan.Load: %w", err)
	}

	overrides, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("plan.Load: %s: %w", path, err)
	}

	log.Info().Str("path", path).Int("plans", len(overrides)).Msg("plan: loaded override document")
	return NewTable(overrides), nil
}

// Parse decodes an override document. YAML and JSON are both accepted.
// Unknown keys are dropped with a warning; values below Unlimited are rejected.
func Parse(data []byte) (map[string]map[string]int, error) {
	var doc map[string]map[string]int
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode override document: %w", err)
	}

	for name, values := range doc {
		for key, v := range values {
			if !knownKey(key) {
				log.Warn().Str("plan", name).Str("key", key).Msg("plan: ignoring unknown override key")
				delete(values, key)
				continue
			}
			if v < Unlimited {
				return nil, fmt.Errorf("plan %q: %s must be >= %d, got %d", name, key, Unlimited, v)
			}
		}
	}

	return doc, nil
}

// PackageLimit returns the effective value of key for plan: the override
// tier wins, the default tier is the fallback. A plan absent from both tiers
// yields domain.ErrUnknownPlan.
func (t *Table) PackageLimit(planName, key string) (int, error) {
	if !knownKey(key) {
		return 0, fmt.Errorf("plan.PackageLimit: unknown key %q", key)
	}

	id := strings.ToLower(planName)
	ov, hasOverride := t.overrides[id]
	def, hasDefault := t.defaults[id]
	if !hasOverride && !hasDefault {
		return 0, fmt.Errorf("plan.PackageLimit: %q: %w", planName, domain.ErrUnknownPlan)
	}

	if v, ok := ov.values[key]; ok {
		return v, nil
	}
	return def.values[key], nil
}

// Limits resolves every key of plan.
func (t *Table) Limits(planName string) (Limits, error) {
	products, err := t.PackageLimit(planName, KeyProductLimit)
	if err != nil {
		return Limits{}, err
	}
	users, err := t.PackageLimit(planName, KeyUserLimit)
	if err != nil {
		return Limits{}, err
	}

	l := Limits{
		Plan:     t.Canonical(planName),
		Products: products,
		Users:    users,
		Roles:    make(map[domain.Role]int, len(domain.Roles)),
	}
	for _, r := range domain.Roles {
		v, err := t.PackageLimit(planName, RoleKey(r))
		if err != nil {
			return Limits{}, err
		}
		l.Roles[r] = v
	}

	return l, nil
}

// Subscribable reports whether plan resolves in the default tier, which every
// subscription must.
func (t *Table) Subscribable(planName string) bool {
	_, ok := t.defaults[strings.ToLower(planName)]
	return ok
}

// Canonical returns the declared spelling of planName ("pro" -> "Pro"), or
// planName itself when it is unknown.
func (t *Table) Canonical(planName string) string {
	id := strings.ToLower(planName)
	if d, ok := t.defaults[id]; ok {
		return d.name
	}
	if o, ok := t.overrides[id]; ok {
		return o.name
	}
	return planName
}

// Names returns every resolvable plan name, sorted.
func (t *Table) Names() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, m := range []map[string]tier{t.defaults, t.overrides} {
		for id, tr := range m {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			names = append(names, tr.name)
		}
	}
	slices.Sort(names)
	return names
}
