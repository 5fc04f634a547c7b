package engine

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/authzkit/pkg/authz"
)

// GetQuota returns the domain's quota override, or the system defaults
// expressed as a quota when no override is set.
func (s *Service) GetQuota(ctx context.Context, domain string) (authz.Quota, error) {
	d, err := s.store.LoadDomain(ctx, domain)
	if err != nil {
		return authz.Quota{}, err
	}
	if d.Quota != nil {
		return *d.Quota, nil
	}
	return s.quota.DefaultQuota(), nil
}

// PutQuota sets a per-domain quota override. Only the system administrators
// may move ceilings, so the check targets the admin bootstrap domain rather
// than the domain being resized.
func (s *Service) PutQuota(ctx context.Context, caller, domain string, q authz.Quota, auditRef string) error {
	if err := s.requireSystemAdmin(ctx, caller, "update", "quota."+domain); err != nil {
		return err
	}
	return s.run(ctx, mutation{
		caller:     caller,
		domain:     domain,
		operation:  "putQuota",
		entity:     "quota",
		action:     "update",
		auditRef:   auditRef,
		authorized: true,
		apply: func(d *authz.Domain) error {
			q.Modified = s.now()
			d.Quota = &q
			return nil
		},
	})
}

// DeleteQuota removes the override, reverting the domain to system defaults.
func (s *Service) DeleteQuota(ctx context.Context, caller, domain, auditRef string) error {
	if err := s.requireSystemAdmin(ctx, caller, "delete", "quota."+domain); err != nil {
		return err
	}
	return s.run(ctx, mutation{
		caller:     caller,
		domain:     domain,
		operation:  "deleteQuota",
		entity:     "quota",
		action:     "delete",
		auditRef:   auditRef,
		authorized: true,
		apply: func(d *authz.Domain) error {
			if d.Quota == nil {
				return fmt.Errorf("%w: no quota override on domain %q", authz.ErrNotFound, domain)
			}
			d.Quota = nil
			return nil
		},
	})
}

func (s *Service) requireSystemAdmin(ctx context.Context, caller, action, entity string) error {
	if !s.authr.Allowed(ctx, caller, action, AdminDomain+":"+entity) {
		return fmt.Errorf("%w: %s is not a system administrator", authz.ErrForbidden, caller)
	}
	return nil
}
