package engine

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/authzkit/pkg/authz"
	"github.com/dmitrymomot/authzkit/pkg/quota"
	"github.com/dmitrymomot/authzkit/pkg/store"
)

// PutTenancy registers a trust relation in the provider domain and seeds the
// policy granting the relation's actions to the delegated role. The tenant
// domain is never written: the evaluator synthesizes the delegated role's
// membership from the tenant role at decision time, so one provider-side
// commit keeps the whole grant atomic.
func (s *Service) PutTenancy(ctx context.Context, caller, provider string, rel authz.TrustRelation, auditRef string) error {
	switch {
	case rel.TenantDomain == "":
		return fmt.Errorf("%w: tenant domain required", authz.ErrInvalidRequest)
	case rel.TenantDomain == provider:
		return fmt.Errorf("%w: domain %q cannot be its own tenant", authz.ErrInvalidRequest, provider)
	case !authz.ValidSimpleName(rel.Service):
		return fmt.Errorf("%w: malformed service name %q", authz.ErrInvalidRequest, rel.Service)
	case !authz.ValidSimpleName(rel.ResourceGroup):
		return fmt.Errorf("%w: malformed resource group %q", authz.ErrInvalidRequest, rel.ResourceGroup)
	case !authz.ValidCompoundName(rel.TenantRole):
		return fmt.Errorf("%w: malformed tenant role %q", authz.ErrInvalidRequest, rel.TenantRole)
	}
	if _, err := s.store.LoadDomain(ctx, rel.TenantDomain); err != nil {
		return fmt.Errorf("tenancy %s: %w", rel.Key(), err)
	}

	return s.run(ctx, mutation{
		caller:    caller,
		domain:    provider,
		operation: "putTenancy",
		entity:    "tenancy." + rel.TenantDomain + "." + rel.Service + "." + rel.ResourceGroup,
		action:    "update",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			delegated := rel.DelegatedRole()
			if _, exists := d.Policies[delegated]; !exists {
				if err := s.quota.Check(d, quota.KindPolicy, len(d.Policies)+1); err != nil {
					return err
				}
			}
			if err := s.quota.Check(d, quota.KindAssertion, len(rel.Actions)); err != nil {
				return err
			}
			now := s.now()
			rel.Modified = now
			d.Trust[rel.Key()] = rel.Clone()

			p := &authz.Policy{Name: delegated, Modified: now}
			for _, action := range rel.Actions {
				p.Assertions = append(p.Assertions, authz.Assertion{
					ID:       d.NextAssertionID,
					Effect:   authz.EffectAllow,
					Action:   action,
					Resource: d.Name + ":service." + rel.Service + "." + rel.ResourceGroup + ".*",
					Role:     authz.RoleRef(d.Name, delegated),
				})
				d.NextAssertionID++
			}
			d.Policies[delegated] = p
			return nil
		},
	})
}

// DeleteTenancy removes a trust relation and the policy seeded for it.
// Delegated role names carry the tenant domain, so the policy belongs to
// this relation alone.
func (s *Service) DeleteTenancy(ctx context.Context, caller, provider, tenant, service, resourceGroup, auditRef string) error {
	key := authz.TrustRelation{TenantDomain: tenant, Service: service, ResourceGroup: resourceGroup}
	return s.run(ctx, mutation{
		caller:    caller,
		domain:    provider,
		operation: "deleteTenancy",
		entity:    "tenancy." + tenant + "." + service + "." + resourceGroup,
		action:    "delete",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			rel, ok := d.Trust[key.Key()]
			if !ok {
				return fmt.Errorf("%w: tenancy %s in domain %q", authz.ErrNotFound, key.Key(), provider)
			}
			delete(d.Trust, key.Key())
			delete(d.Policies, rel.DelegatedRole())
			return nil
		},
	})
}

// GetTenancy returns one trust relation of a provider domain.
func (s *Service) GetTenancy(ctx context.Context, provider, tenant, service, resourceGroup string) (authz.TrustRelation, error) {
	d, err := s.store.LoadDomain(ctx, provider)
	if err != nil {
		return authz.TrustRelation{}, err
	}
	key := authz.TrustRelation{TenantDomain: tenant, Service: service, ResourceGroup: resourceGroup}
	rel, ok := d.Trust[key.Key()]
	if !ok {
		return authz.TrustRelation{}, fmt.Errorf("%w: tenancy %s in domain %q", authz.ErrNotFound, key.Key(), provider)
	}
	return rel, nil
}

// ProviderTenancies lists the trust relations a provider domain has granted,
// sorted by key.
func (s *Service) ProviderTenancies(ctx context.Context, provider string) ([]authz.TrustRelation, error) {
	d, err := s.store.LoadDomain(ctx, provider)
	if err != nil {
		return nil, err
	}
	return d.TrustRelations(), nil
}

// TenantTenancies lists the trust relations granted to a tenant domain
// across all provider domains. The scan walks every committed domain, which
// keeps providers the single source of truth at the cost of a full listing.
func (s *Service) TenantTenancies(ctx context.Context, tenant string) (map[string][]authz.TrustRelation, error) {
	if _, err := s.store.LoadDomain(ctx, tenant); err != nil {
		return nil, err
	}
	names, err := s.store.ListDomains(ctx, store.Filter{})
	if err != nil {
		return nil, err
	}
	out := make(map[string][]authz.TrustRelation)
	for _, name := range names {
		if name == tenant {
			continue
		}
		d, err := s.store.LoadDomain(ctx, name)
		if err != nil {
			continue
		}
		for _, rel := range d.TrustRelations() {
			if rel.TenantDomain == tenant {
				out[name] = append(out[name], rel)
			}
		}
	}
	return out, nil
}
