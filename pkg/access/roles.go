package access

import (
	"context"
	"time"

	"github.com/dmitrymomot/authzkit/pkg/authz"
)

// resolution caches domain snapshots loaded during one evaluation so that
// group and trust lookups hit the store at most once per domain.
type resolution struct {
	e       *Evaluator
	ctx     context.Context
	now     time.Time
	domains map[string]*authz.Domain
}

func (e *Evaluator) newResolution(ctx context.Context) *resolution {
	return &resolution{
		e:       e,
		ctx:     ctx,
		now:     e.now(),
		domains: make(map[string]*authz.Domain),
	}
}

// domain returns the cached snapshot, loading it on first use. A missing
// domain is cached as nil; absence is a normal outcome here, not an error.
func (r *resolution) domain(name string) *authz.Domain {
	if d, ok := r.domains[name]; ok {
		return d
	}
	d, err := r.e.store.LoadDomain(r.ctx, name)
	if err != nil {
		d = nil
	}
	r.domains[name] = d
	return d
}

// effectiveRoles collects every role name in d the principal holds right
// now: direct ACTIVE non-expired membership, membership through one level
// of group nesting, and roles reached through cross-domain trust.
func (r *resolution) effectiveRoles(d *authz.Domain, principal string) map[string]struct{} {
	roles := make(map[string]struct{})

	for name, role := range d.Roles {
		if role.Trust != "" {
			if r.delegatedMember(role, principal) {
				roles[name] = struct{}{}
			}
			continue
		}
		if r.roleMember(role, principal) {
			roles[name] = struct{}{}
		}
	}

	// Typed trust relations synthesize provider-side delegated roles for
	// active members of the tenant role. No relation is the normal path.
	for _, tr := range d.TrustRelations() {
		if r.tenantMember(tr.TenantDomain, tr.TenantRole, principal) {
			roles[tr.DelegatedRole()] = struct{}{}
		}
	}

	return roles
}

// roleMember checks direct membership plus one level of group nesting.
func (r *resolution) roleMember(role *authz.Role, principal string) bool {
	for _, m := range role.Members {
		if !m.ActiveAt(r.now) {
			continue
		}
		if m.Principal == principal {
			return true
		}
		if gd, gname, ok := authz.SplitGroupRef(m.Principal); ok {
			if r.groupMember(gd, gname, principal) {
				return true
			}
		}
	}
	return false
}

// groupMember checks direct membership in a group; groups never nest, so
// group references inside a group member set are not followed.
func (r *resolution) groupMember(domainName, groupName, principal string) bool {
	d := r.domain(domainName)
	if d == nil {
		return false
	}
	g, ok := d.Groups[groupName]
	if !ok {
		return false
	}
	i := g.MemberIndex(principal)
	return i >= 0 && g.Members[i].ActiveAt(r.now)
}

// delegatedMember resolves a trust-delegated role: the principal must hold
// the same-named role in the trusted domain. Delegation is bounded to one
// hop, so a trusted domain's own delegated roles are not followed.
func (r *resolution) delegatedMember(role *authz.Role, principal string) bool {
	return r.tenantMember(role.Trust, role.Name, principal)
}

// tenantMember checks plain membership (direct or group-nested) of a role
// in a tenant domain without following further delegation.
func (r *resolution) tenantMember(domainName, roleName, principal string) bool {
	d := r.domain(domainName)
	if d == nil {
		return false
	}
	role, ok := d.Roles[roleName]
	if !ok || role.Trust != "" {
		return false
	}
	return r.roleMember(role, principal)
}
