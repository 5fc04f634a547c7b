package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/authzkit/pkg/authz"
	"github.com/dmitrymomot/authzkit/pkg/store"
)

// DeleteDomainRoleMember removes a principal from every role in one domain
// in a single commit. Group memberships are left alone.
func (s *Service) DeleteDomainRoleMember(ctx context.Context, caller, domain, principal, auditRef string) error {
	return s.run(ctx, mutation{
		caller:    caller,
		domain:    domain,
		operation: "deleteDomainRoleMember",
		entity:    "member." + principal,
		action:    "update",
		resource:  domain + ":role.*",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			removed := false
			for _, role := range d.Roles {
				if i := role.MemberIndex(principal); i >= 0 {
					role.Members = append(role.Members[:i], role.Members[i+1:]...)
					role.Modified = s.now()
					removed = true
				}
			}
			if !removed {
				return fmt.Errorf("%w: principal %q holds no role in domain %q", authz.ErrNotFound, principal, domain)
			}
			return nil
		},
	})
}

// PurgePrincipal removes a principal from every role and group across all
// domains. Each domain commits independently, so a failure part-way leaves
// earlier domains purged; the operation is idempotent and can be replayed.
func (s *Service) PurgePrincipal(ctx context.Context, caller, principal, auditRef string) error {
	if err := s.requireSystemAdmin(ctx, caller, "delete", "principal."+principal); err != nil {
		return err
	}
	names, err := s.store.ListDomains(ctx, store.Filter{})
	if err != nil {
		return err
	}
	for _, name := range names {
		d, err := s.store.LoadDomain(ctx, name)
		if err != nil {
			continue
		}
		if !holdsMembership(d, principal) {
			continue
		}
		err = s.run(ctx, mutation{
			caller:     caller,
			domain:     name,
			operation:  "purgePrincipal",
			entity:     "member." + principal,
			action:     "delete",
			auditRef:   auditRef,
			authorized: true,
			apply: func(d *authz.Domain) error {
				for _, role := range d.Roles {
					if i := role.MemberIndex(principal); i >= 0 {
						role.Members = append(role.Members[:i], role.Members[i+1:]...)
						role.Modified = s.now()
					}
				}
				for _, group := range d.Groups {
					if i := group.MemberIndex(principal); i >= 0 {
						group.Members = append(group.Members[:i], group.Members[i+1:]...)
						group.Modified = s.now()
					}
				}
				return nil
			},
		})
		if err != nil {
			return fmt.Errorf("purge %s from %s: %w", principal, name, err)
		}
	}
	return nil
}

func holdsMembership(d *authz.Domain, principal string) bool {
	for _, r := range d.Roles {
		if r.MemberIndex(principal) >= 0 {
			return true
		}
	}
	for _, g := range d.Groups {
		if g.MemberIndex(principal) >= 0 {
			return true
		}
	}
	return false
}

// Membership is one role or group membership of a principal, as reported by
// the review queries.
type Membership struct {
	Domain    string
	Role      string // empty for group memberships
	Group     string // empty for role memberships
	Member    authz.Member
	ReviewDue time.Time
}

// OverdueReview lists the memberships in a domain whose review date has
// passed. Reporting only: nothing expires or changes state here.
func (s *Service) OverdueReview(ctx context.Context, domain string) ([]Membership, error) {
	d, err := s.store.LoadDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var out []Membership
	for _, name := range sortedKeys(d.Roles) {
		for _, m := range d.Roles[name].Members {
			if m.OverdueAt(now) {
				out = append(out, Membership{Domain: domain, Role: name, Member: m, ReviewDue: m.ReviewDue})
			}
		}
	}
	for _, name := range sortedKeys(d.Groups) {
		for _, m := range d.Groups[name].Members {
			if m.OverdueAt(now) {
				out = append(out, Membership{Domain: domain, Group: name, Member: m, ReviewDue: m.ReviewDue})
			}
		}
	}
	return out, nil
}

// PendingMembers lists the pending role and group membership requests in a
// domain, the approver's work queue.
func (s *Service) PendingMembers(ctx context.Context, domain string) ([]Membership, error) {
	d, err := s.store.LoadDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	var out []Membership
	for _, name := range sortedKeys(d.Roles) {
		for _, m := range d.Roles[name].Members {
			if m.State == authz.MemberPending {
				out = append(out, Membership{Domain: domain, Role: name, Member: m})
			}
		}
	}
	for _, name := range sortedKeys(d.Groups) {
		for _, m := range d.Groups[name].Members {
			if m.State == authz.MemberPending {
				out = append(out, Membership{Domain: domain, Group: name, Member: m})
			}
		}
	}
	return out, nil
}

// PendingRequestsBy lists the pending requests a principal has open across
// all domains, in domain name order.
func (s *Service) PendingRequestsBy(ctx context.Context, principal string) ([]Membership, error) {
	names, err := s.store.ListDomains(ctx, store.Filter{})
	if err != nil {
		return nil, err
	}
	var out []Membership
	for _, name := range names {
		d, err := s.store.LoadDomain(ctx, name)
		if err != nil || !holdsMembership(d, principal) {
			continue
		}
		for _, rname := range sortedKeys(d.Roles) {
			r := d.Roles[rname]
			if i := r.MemberIndex(principal); i >= 0 && r.Members[i].State == authz.MemberPending {
				out = append(out, Membership{Domain: name, Role: rname, Member: r.Members[i]})
			}
		}
		for _, gname := range sortedKeys(d.Groups) {
			g := d.Groups[gname]
			if i := g.MemberIndex(principal); i >= 0 && g.Members[i].State == authz.MemberPending {
				out = append(out, Membership{Domain: name, Group: gname, Member: g.Members[i]})
			}
		}
	}
	return out, nil
}

// DomainRoleMembers reports every principal in the domain with the roles it
// holds, keyed by principal.
func (s *Service) DomainRoleMembers(ctx context.Context, domain string) (map[string][]string, error) {
	d, err := s.store.LoadDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, name := range sortedKeys(d.Roles) {
		for _, m := range d.Roles[name].Members {
			out[m.Principal] = append(out[m.Principal], name)
		}
	}
	return out, nil
}
