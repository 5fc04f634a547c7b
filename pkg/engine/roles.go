package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/authzkit/pkg/authz"
	"github.com/dmitrymomot/authzkit/pkg/quota"
	"github.com/dmitrymomot/authzkit/pkg/store"
)

// PutRole creates or replaces a role. A delegated role (Trust set) may not
// carry members of its own.
func (s *Service) PutRole(ctx context.Context, caller, domain string, role authz.Role, auditRef string) error {
	if !authz.ValidCompoundName(role.Name) {
		return fmt.Errorf("%w: malformed role name %q", authz.ErrInvalidRequest, role.Name)
	}
	if role.Trust != "" && len(role.Members) > 0 {
		return fmt.Errorf("%w: delegated role %q cannot have members", authz.ErrInvalidRequest, role.Name)
	}
	if role.Trust == domain {
		return fmt.Errorf("%w: role %q cannot trust its own domain", authz.ErrInvalidRequest, role.Name)
	}

	return s.run(ctx, mutation{
		caller:    caller,
		domain:    domain,
		operation: "putRole",
		entity:    "role." + role.Name,
		action:    "update",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			if _, exists := d.Roles[role.Name]; !exists {
				if err := s.quota.Check(d, quota.KindRole, len(d.Roles)+1); err != nil {
					return err
				}
			}
			if err := s.quota.Check(d, quota.KindRoleMember, len(role.Members)); err != nil {
				return err
			}
			now := s.now()
			r := role.Clone()
			for i := range r.Members {
				if r.Members[i].State == "" {
					r.Members[i].State = authz.MemberActive
				}
				applyReviewDefaults(&r.Members[i], r.Meta, now)
			}
			r.Modified = now
			d.Roles[r.Name] = r
			return nil
		},
	})
}

// GetRole returns a role from the committed snapshot.
func (s *Service) GetRole(ctx context.Context, domain, name string) (*authz.Role, error) {
	d, err := s.store.LoadDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	r, ok := d.Roles[name]
	if !ok {
		return nil, fmt.Errorf("%w: role %q in domain %q", authz.ErrNotFound, name, domain)
	}
	return r, nil
}

// DeleteRole removes a role. Assertions referencing it keep their text but
// stop matching; the admin role itself cannot be deleted.
func (s *Service) DeleteRole(ctx context.Context, caller, domain, name, auditRef string) error {
	if name == adminRole {
		return fmt.Errorf("%w: the admin role cannot be deleted", authz.ErrInvalidRequest)
	}
	return s.run(ctx, mutation{
		caller:    caller,
		domain:    domain,
		operation: "deleteRole",
		entity:    "role." + name,
		action:    "delete",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			if _, ok := d.Roles[name]; !ok {
				return fmt.Errorf("%w: role %q in domain %q", authz.ErrNotFound, name, domain)
			}
			delete(d.Roles, name)
			return nil
		},
	})
}

// ListRoles returns role names sorted, with optional paging.
func (s *Service) ListRoles(ctx context.Context, domain string, limit int, skip string) ([]string, error) {
	d, err := s.store.LoadDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	names := sortedKeys(d.Roles)
	return store.Filter{Limit: limit, Skip: skip}.Page(names), nil
}

// SetRoleMeta updates the review policy of a role.
func (s *Service) SetRoleMeta(ctx context.Context, caller, domain, name string, meta authz.ReviewPolicy, auditRef string) error {
	return s.run(ctx, mutation{
		caller:    caller,
		domain:    domain,
		operation: "putRoleMeta",
		entity:    "role." + name,
		action:    "update",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			r, ok := d.Roles[name]
			if !ok {
				return fmt.Errorf("%w: role %q in domain %q", authz.ErrNotFound, name, domain)
			}
			r.Meta = meta
			r.Modified = s.now()
			return nil
		},
	})
}

// AddRoleMember adds or requests a membership. Administrators add members
// directly (ACTIVE unless the role is reviewed); any principal may file
// for themselves, landing PENDING unless self-service is enabled. Filing
// for somebody else without admin rights is Forbidden.
func (s *Service) AddRoleMember(ctx context.Context, caller, domain, role string, member authz.Member, auditRef string) error {
	if member.Principal == "" {
		return fmt.Errorf("%w: member principal required", authz.ErrInvalidRequest)
	}

	byAdmin := s.authr.Allowed(ctx, caller, "update", domain+":role."+role)
	if !byAdmin && caller != member.Principal {
		return fmt.Errorf("%w: %s may not add %s to %s", authz.ErrForbidden, caller, member.Principal, role)
	}

	return s.memberMutation(ctx, caller, domain, "putMembership", "role."+role, auditRef, !byAdmin,
		func(d *authz.Domain, now time.Time) error {
			r, ok := d.Roles[role]
			if !ok {
				return fmt.Errorf("%w: role %q in domain %q", authz.ErrNotFound, role, domain)
			}
			if r.Trust != "" {
				return fmt.Errorf("%w: delegated role %q has no local members", authz.ErrInvalidRequest, role)
			}
			if r.MemberIndex(member.Principal) < 0 {
				if err := s.quota.Check(d, quota.KindRoleMember, len(r.Members)+1); err != nil {
					return err
				}
			}

			entry := member
			entry.State = memberStateFor(r.Meta, byAdmin)
			if entry.State == authz.MemberPending {
				entry.RequestedBy = caller
			} else {
				applyReviewDefaults(&entry, r.Meta, now)
			}
			r.Members = upsertMember(r.Members, entry)
			r.Modified = now
			return nil
		})
}

// DecideRoleMembership applies a reviewer decision to a pending entry.
func (s *Service) DecideRoleMembership(ctx context.Context, caller, domain, role, principal string, approve bool, expiration time.Time, auditRef string) error {
	return s.run(ctx, mutation{
		caller:    caller,
		domain:    domain,
		operation: "putMembershipDecision",
		entity:    "role." + role,
		action:    "update",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			r, ok := d.Roles[role]
			if !ok {
				return fmt.Errorf("%w: role %q in domain %q", authz.ErrNotFound, role, domain)
			}
			members, err := decideMember(r.Members, principal, approve, expiration, r.Meta, s.now())
			if err != nil {
				return err
			}
			r.Members = members
			r.Modified = s.now()
			return nil
		},
	})
}

// DeleteRoleMember removes a membership in any state. Members may remove
// themselves; anything else needs admin rights.
func (s *Service) DeleteRoleMember(ctx context.Context, caller, domain, role, principal, auditRef string) error {
	byAdmin := s.authr.Allowed(ctx, caller, "update", domain+":role."+role)
	if !byAdmin && caller != principal {
		return fmt.Errorf("%w: %s may not remove %s from %s", authz.ErrForbidden, caller, principal, role)
	}
	return s.memberMutation(ctx, caller, domain, "deleteMembership", "role."+role, auditRef, !byAdmin,
		func(d *authz.Domain, now time.Time) error {
			r, ok := d.Roles[role]
			if !ok {
				return fmt.Errorf("%w: role %q in domain %q", authz.ErrNotFound, role, domain)
			}
			members, err := removeMember(r.Members, principal)
			if err != nil {
				return err
			}
			r.Members = members
			r.Modified = now
			return nil
		})
}

// DeletePendingRoleMember discards a pending request without a decision.
func (s *Service) DeletePendingRoleMember(ctx context.Context, caller, domain, role, principal, auditRef string) error {
	return s.run(ctx, mutation{
		caller:    caller,
		domain:    domain,
		operation: "deletePendingMembership",
		entity:    "role." + role,
		action:    "update",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			r, ok := d.Roles[role]
			if !ok {
				return fmt.Errorf("%w: role %q in domain %q", authz.ErrNotFound, role, domain)
			}
			members, err := removePendingMember(r.Members, principal)
			if err != nil {
				return err
			}
			r.Members = members
			r.Modified = s.now()
			return nil
		},
	})
}

// GetRoleMembership returns the stored entry for a principal in a role.
func (s *Service) GetRoleMembership(ctx context.Context, domain, role, principal string) (authz.Member, error) {
	r, err := s.GetRole(ctx, domain, role)
	if err != nil {
		return authz.Member{}, err
	}
	i := r.MemberIndex(principal)
	if i < 0 {
		return authz.Member{}, fmt.Errorf("%w: member %q in role %q", authz.ErrNotFound, principal, role)
	}
	return r.Members[i], nil
}

// memberMutation runs the mutation path for membership operations whose
// authorization was already decided (self-service additions and removals
// bypass the admin check).
func (s *Service) memberMutation(ctx context.Context, caller, domain, operation, entity, auditRef string, selfService bool, apply func(d *authz.Domain, now time.Time) error) error {
	if !selfService {
		return s.run(ctx, mutation{
			caller:    caller,
			domain:    domain,
			operation: operation,
			entity:    entity,
			action:    "update",
			auditRef:  auditRef,
			apply:     func(d *authz.Domain) error { return apply(d, s.now()) },
		})
	}

	unlock := s.lockDomain(domain)
	defer unlock()

	current, err := s.store.LoadDomain(ctx, domain)
	if err != nil {
		return err
	}
	if err := requireAuditRef(current, auditRef); err != nil {
		return err
	}

	next := current.Clone()
	if err := apply(next, s.now()); err != nil {
		return err
	}
	next.Tag = current.Tag + 1
	next.Modified = s.now()

	if err := s.store.CommitDomain(ctx, next, current.Tag); err != nil {
		return err
	}

	s.audit.Record(ctx, auditEvent(caller, operation, domain, entity, auditRef))
	s.notify(domain)
	return nil
}
