package access

import (
	"maps"
	"slices"

	"github.com/dmitrymomot/authzkit/pkg/authz"
)

// Deterministic iteration order for reporting queries.

func rolesSorted(d *authz.Domain) []*authz.Role {
	out := make([]*authz.Role, 0, len(d.Roles))
	for _, name := range slices.Sorted(maps.Keys(d.Roles)) {
		out = append(out, d.Roles[name])
	}
	return out
}

func groupsSorted(d *authz.Domain) []*authz.Group {
	out := make([]*authz.Group, 0, len(d.Groups))
	for _, name := range slices.Sorted(maps.Keys(d.Groups)) {
		out = append(out, d.Groups[name])
	}
	return out
}

func policiesSorted(d *authz.Domain) []*authz.Policy {
	out := make([]*authz.Policy, 0, len(d.Policies))
	for _, name := range slices.Sorted(maps.Keys(d.Policies)) {
		out = append(out, d.Policies[name])
	}
	return out
}
