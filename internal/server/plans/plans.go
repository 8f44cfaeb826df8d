// Package plans is the static plan catalog: caps, allowed viewer roles and
// feature flags per subscription tier, plus normalization of the loosely
// typed plan strings the platform sends.
package plans

import (
	"strings"
)

// Plan is one of the closed set of subscription tiers.
type Plan string

const (
	Free       Plan = "free"
	Plus       Plan = "plus"
	Premium    Plan = "premium"
	Pro        Plan = "pro"
	Enterprise Plan = "enterprise"
)

// Role is a per-board viewer role as seen by API callers.
type Role string

const (
	RoleRestricted Role = "restricted"
	RoleViewer     Role = "viewer"
	RoleEditor     Role = "editor"
)

const (
	megabyte int64 = 1 << 20
	gigabyte int64 = 1 << 30
)

// Caps holds the numeric limits of a plan. A nil field is unlimited.
type Caps struct {
	MaxBoards       *int64 `json:"maxBoards"`
	MaxStorageBytes *int64 `json:"maxStorageBytes"`
	MaxViewers      *int64 `json:"maxViewers"`
}

// Features lists plan-gated features.
type Features struct {
	FileRecovery  bool `json:"fileRecovery"`
	NoteSnapshots bool `json:"noteSnapshots"`
}

type entry struct {
	caps     Caps
	roles    []Role
	features Features
}

func limit(n int64) *int64 { return &n }

var (
	baseRoles  = []Role{RoleViewer, RoleRestricted}
	fullRoles  = []Role{RoleViewer, RoleRestricted, RoleEditor}
	catalogued = map[Plan]entry{
		Free: {
			caps:  Caps{MaxBoards: limit(3), MaxStorageBytes: limit(10 * megabyte), MaxViewers: limit(0)},
			roles: baseRoles,
		},
		Plus: {
			caps:  Caps{MaxBoards: limit(10), MaxStorageBytes: limit(gigabyte), MaxViewers: limit(5)},
			roles: baseRoles,
		},
		Premium: {
			caps:     Caps{MaxBoards: limit(50), MaxStorageBytes: limit(10 * gigabyte), MaxViewers: limit(25)},
			roles:    fullRoles,
			features: Features{NoteSnapshots: true},
		},
		Pro: {
			caps:     Caps{MaxBoards: limit(200), MaxStorageBytes: limit(50 * gigabyte), MaxViewers: limit(100)},
			roles:    fullRoles,
			features: Features{FileRecovery: true, NoteSnapshots: true},
		},
		Enterprise: {
			roles:    fullRoles,
			features: Features{FileRecovery: true, NoteSnapshots: true},
		},
	}
)

// aliases maps legacy and marketing names onto catalog plans.
var aliases = map[string]Plan{
	"ultra":    Pro,
	"basic":    Plus,
	"standard": Premium,
}

var periodSuffixes = []string{
	"_monthly", "-monthly", "_month", "-month",
	"_yearly", "-yearly", "_annual", "-annual", "_year", "-year",
}

// Normalize maps an external plan string onto the catalog. Unknown and
// empty values become Free.
func Normalize(raw string) Plan {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, suffix := range periodSuffixes {
		if trimmed, ok := strings.CutSuffix(s, suffix); ok {
			s = trimmed
			break
		}
	}
	if p, ok := aliases[s]; ok {
		return p
	}
	if _, ok := catalogued[Plan(s)]; ok {
		return Plan(s)
	}
	return Free
}

// Valid reports whether p is one of the catalog plans.
func (p Plan) Valid() bool {
	_, ok := catalogued[p]
	return ok
}

func lookup(p Plan) entry {
	if e, ok := catalogued[p]; ok {
		return e
	}
	return catalogued[Free]
}

// CapsForPlan returns a copy of the plan caps, so callers may not mutate
// the catalog through the returned pointers.
func CapsForPlan(p Plan) Caps {
	c := lookup(p).caps
	return Caps{
		MaxBoards:       clone(c.MaxBoards),
		MaxStorageBytes: clone(c.MaxStorageBytes),
		MaxViewers:      clone(c.MaxViewers),
	}
}

func clone(v *int64) *int64 {
	if v == nil {
		return nil
	}
	return limit(*v)
}

// AllowedRolesForPlan returns the roles which may be assigned on p.
func AllowedRolesForPlan(p Plan) []Role {
	roles := lookup(p).roles
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

// RoleAllowed reports whether role may be assigned on p.
func RoleAllowed(p Plan, role Role) bool {
	for _, r := range lookup(p).roles {
		if r == role {
			return true
		}
	}
	return false
}

// FeaturesForPlan returns the feature flags of p.
func FeaturesForPlan(p Plan) Features {
	return lookup(p).features
}

// ParseRole validates an API-supplied role.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleRestricted, RoleViewer, RoleEditor:
		return r, true
	default:
		return "", false
	}
}

// Within reports whether used+delta stays inside c. A nil c is unlimited.
func Within(c *int64, used, delta int64) bool {
	return c == nil || used+delta <= *c
}
