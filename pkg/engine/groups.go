package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/authzkit/pkg/authz"
	"github.com/dmitrymomot/authzkit/pkg/quota"
	"github.com/dmitrymomot/authzkit/pkg/store"
)

// PutGroup creates or replaces a group. Group members must be plain
// principals: groups do not nest.
func (s *Service) PutGroup(ctx context.Context, caller, domain string, group authz.Group, auditRef string) error {
	if !authz.ValidCompoundName(group.Name) {
		return fmt.Errorf("%w: malformed group name %q", authz.ErrInvalidRequest, group.Name)
	}
	for _, m := range group.Members {
		if _, _, ok := authz.SplitGroupRef(m.Principal); ok {
			return fmt.Errorf("%w: group %q cannot contain group %q", authz.ErrInvalidRequest, group.Name, m.Principal)
		}
	}

	return s.run(ctx, mutation{
		caller:    caller,
		domain:    domain,
		operation: "putGroup",
		entity:    "group." + group.Name,
		action:    "update",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			if _, exists := d.Groups[group.Name]; !exists {
				if err := s.quota.Check(d, quota.KindGroup, len(d.Groups)+1); err != nil {
					return err
				}
			}
			if err := s.quota.Check(d, quota.KindGroupMember, len(group.Members)); err != nil {
				return err
			}
			now := s.now()
			g := group.Clone()
			for i := range g.Members {
				if g.Members[i].State == "" {
					g.Members[i].State = authz.MemberActive
				}
				applyReviewDefaults(&g.Members[i], g.Meta, now)
			}
			g.Modified = now
			d.Groups[g.Name] = g
			return nil
		},
	})
}

// GetGroup returns a group from the committed snapshot.
func (s *Service) GetGroup(ctx context.Context, domain, name string) (*authz.Group, error) {
	d, err := s.store.LoadDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	g, ok := d.Groups[name]
	if !ok {
		return nil, fmt.Errorf("%w: group %q in domain %q", authz.ErrNotFound, name, domain)
	}
	return g, nil
}

// DeleteGroup removes a group. Roles referencing it keep the reference,
// which simply stops resolving.
func (s *Service) DeleteGroup(ctx context.Context, caller, domain, name, auditRef string) error {
	return s.run(ctx, mutation{
		caller:    caller,
		domain:    domain,
		operation: "deleteGroup",
		entity:    "group." + name,
		action:    "delete",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			if _, ok := d.Groups[name]; !ok {
				return fmt.Errorf("%w: group %q in domain %q", authz.ErrNotFound, name, domain)
			}
			delete(d.Groups, name)
			return nil
		},
	})
}

// ListGroups returns group names sorted, with optional paging.
func (s *Service) ListGroups(ctx context.Context, domain string, limit int, skip string) ([]string, error) {
	d, err := s.store.LoadDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	return store.Filter{Limit: limit, Skip: skip}.Page(sortedKeys(d.Groups)), nil
}

// SetGroupMeta updates the review policy of a group.
func (s *Service) SetGroupMeta(ctx context.Context, caller, domain, name string, meta authz.ReviewPolicy, auditRef string) error {
	return s.run(ctx, mutation{
		caller:    caller,
		domain:    domain,
		operation: "putGroupMeta",
		entity:    "group." + name,
		action:    "update",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			g, ok := d.Groups[name]
			if !ok {
				return fmt.Errorf("%w: group %q in domain %q", authz.ErrNotFound, name, domain)
			}
			g.Meta = meta
			g.Modified = s.now()
			return nil
		},
	})
}

// AddGroupMember adds or requests a group membership under the same rules
// as AddRoleMember.
func (s *Service) AddGroupMember(ctx context.Context, caller, domain, group string, member authz.Member, auditRef string) error {
	if member.Principal == "" {
		return fmt.Errorf("%w: member principal required", authz.ErrInvalidRequest)
	}
	if _, _, ok := authz.SplitGroupRef(member.Principal); ok {
		return fmt.Errorf("%w: group %q cannot contain group %q", authz.ErrInvalidRequest, group, member.Principal)
	}

	byAdmin := s.authr.Allowed(ctx, caller, "update", domain+":group."+group)
	if !byAdmin && caller != member.Principal {
		return fmt.Errorf("%w: %s may not add %s to %s", authz.ErrForbidden, caller, member.Principal, group)
	}

	return s.memberMutation(ctx, caller, domain, "putGroupMembership", "group."+group, auditRef, !byAdmin,
		func(d *authz.Domain, now time.Time) error {
			g, ok := d.Groups[group]
			if !ok {
				return fmt.Errorf("%w: group %q in domain %q", authz.ErrNotFound, group, domain)
			}
			if g.MemberIndex(member.Principal) < 0 {
				if err := s.quota.Check(d, quota.KindGroupMember, len(g.Members)+1); err != nil {
					return err
				}
			}

			entry := member
			entry.State = memberStateFor(g.Meta, byAdmin)
			if entry.State == authz.MemberPending {
				entry.RequestedBy = caller
			} else {
				applyReviewDefaults(&entry, g.Meta, now)
			}
			g.Members = upsertMember(g.Members, entry)
			g.Modified = now
			return nil
		})
}

// DecideGroupMembership applies a reviewer decision to a pending entry.
func (s *Service) DecideGroupMembership(ctx context.Context, caller, domain, group, principal string, approve bool, expiration time.Time, auditRef string) error {
	return s.run(ctx, mutation{
		caller:    caller,
		domain:    domain,
		operation: "putGroupMembershipDecision",
		entity:    "group." + group,
		action:    "update",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			g, ok := d.Groups[group]
			if !ok {
				return fmt.Errorf("%w: group %q in domain %q", authz.ErrNotFound, group, domain)
			}
			members, err := decideMember(g.Members, principal, approve, expiration, g.Meta, s.now())
			if err != nil {
				return err
			}
			g.Members = members
			g.Modified = s.now()
			return nil
		},
	})
}

// DeleteGroupMember removes a membership in any state, by an admin or the
// member themselves.
func (s *Service) DeleteGroupMember(ctx context.Context, caller, domain, group, principal, auditRef string) error {
	byAdmin := s.authr.Allowed(ctx, caller, "update", domain+":group."+group)
	if !byAdmin && caller != principal {
		return fmt.Errorf("%w: %s may not remove %s from %s", authz.ErrForbidden, caller, principal, group)
	}
	return s.memberMutation(ctx, caller, domain, "deleteGroupMembership", "group."+group, auditRef, !byAdmin,
		func(d *authz.Domain, now time.Time) error {
			g, ok := d.Groups[group]
			if !ok {
				return fmt.Errorf("%w: group %q in domain %q", authz.ErrNotFound, group, domain)
			}
			members, err := removeMember(g.Members, principal)
			if err != nil {
				return err
			}
			g.Members = members
			g.Modified = now
			return nil
		})
}

// DeletePendingGroupMember discards a pending request without a decision.
func (s *Service) DeletePendingGroupMember(ctx context.Context, caller, domain, group, principal, auditRef string) error {
	return s.run(ctx, mutation{
		caller:    caller,
		domain:    domain,
		operation: "deletePendingGroupMembership",
		entity:    "group." + group,
		action:    "update",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			g, ok := d.Groups[group]
			if !ok {
				return fmt.Errorf("%w: group %q in domain %q", authz.ErrNotFound, group, domain)
			}
			members, err := removePendingMember(g.Members, principal)
			if err != nil {
				return err
			}
			g.Members = members
			g.Modified = s.now()
			return nil
		},
	})
}

// GetGroupMembership returns the stored entry for a principal in a group.
func (s *Service) GetGroupMembership(ctx context.Context, domain, group, principal string) (authz.Member, error) {
	g, err := s.GetGroup(ctx, domain, group)
	if err != nil {
		return authz.Member{}, err
	}
	i := g.MemberIndex(principal)
	if i < 0 {
		return authz.Member{}, fmt.Errorf("%w: member %q in group %q", authz.ErrNotFound, principal, group)
	}
	return g.Members[i], nil
}
