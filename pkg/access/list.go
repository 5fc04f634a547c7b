package access

import (
	"context"

	"github.com/dmitrymomot/authzkit/pkg/authz"
	"github.com/dmitrymomot/authzkit/pkg/match"
	"github.com/dmitrymomot/authzkit/pkg/store"
)

// Membership is one role membership of a principal, as stored (including
// pending and expired entries, which callers filter by state as needed).
type Membership struct {
	Domain string
	Role   string
	Member authz.Member
}

// GroupMembership is one group membership of a principal.
type GroupMembership struct {
	Domain string
	Group  string
	Member authz.Member
}

// ResourceAccess lists the assertions granting a principal an action,
// grouped by the domain that owns them.
type ResourceAccess struct {
	Principal  string
	Assertions map[string][]authz.Assertion
}

// PrincipalRoles lists the principal's role memberships, optionally scoped
// to one domain. Unlike Check this is a reporting query and returns store
// errors.
func (e *Evaluator) PrincipalRoles(ctx context.Context, principal, domain string) ([]Membership, error) {
	names, err := e.memberDomains(ctx, principal, domain)
	if err != nil {
		return nil, err
	}

	var out []Membership
	for _, name := range names {
		d, err := e.store.LoadDomain(ctx, name)
		if err != nil {
			return nil, err
		}
		for _, role := range rolesSorted(d) {
			if i := role.MemberIndex(principal); i >= 0 {
				out = append(out, Membership{Domain: name, Role: role.Name, Member: role.Members[i]})
			}
		}
	}
	return out, nil
}

// PrincipalGroups lists the principal's group memberships, optionally
// scoped to one domain.
func (e *Evaluator) PrincipalGroups(ctx context.Context, principal, domain string) ([]GroupMembership, error) {
	names, err := e.memberDomains(ctx, principal, domain)
	if err != nil {
		return nil, err
	}

	var out []GroupMembership
	for _, name := range names {
		d, err := e.store.LoadDomain(ctx, name)
		if err != nil {
			return nil, err
		}
		for _, g := range groupsSorted(d) {
			if i := g.MemberIndex(principal); i >= 0 {
				out = append(out, GroupMembership{Domain: name, Group: g.Name, Member: g.Members[i]})
			}
		}
	}
	return out, nil
}

// ResourceAccessList collects, across all domains, the assertions that
// would grant the principal the given action through its effective roles.
func (e *Evaluator) ResourceAccessList(ctx context.Context, principal, action string) (ResourceAccess, error) {
	names, err := e.store.ListDomains(ctx, store.Filter{})
	if err != nil {
		return ResourceAccess{}, err
	}

	res := e.newResolution(ctx)
	out := ResourceAccess{Principal: principal, Assertions: make(map[string][]authz.Assertion)}

	for _, name := range names {
		d := res.domain(name)
		if d == nil {
			continue
		}
		roles := res.effectiveRoles(d, principal)
		if len(roles) == 0 {
			continue
		}
		for _, p := range policiesSorted(d) {
			for _, a := range p.Assertions {
				refDomain, refRole, ok := authz.SplitRoleRef(a.Role)
				if !ok || refDomain != d.Name {
					continue
				}
				if _, held := roles[refRole]; !held {
					continue
				}
				if action != "" && !match.Match(a.Action, action) {
					continue
				}
				out.Assertions[name] = append(out.Assertions[name], a.Clone())
			}
		}
	}
	return out, nil
}

// memberDomains narrows the scan to domains that can hold memberships of
// the principal.
func (e *Evaluator) memberDomains(ctx context.Context, principal, domain string) ([]string, error) {
	if domain != "" {
		if _, err := e.store.LoadDomain(ctx, domain); err != nil {
			return nil, err
		}
		return []string{domain}, nil
	}
	return e.store.ListDomains(ctx, store.Filter{})
}
