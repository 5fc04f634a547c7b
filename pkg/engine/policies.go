package engine

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/authzkit/pkg/authz"
	"github.com/dmitrymomot/authzkit/pkg/quota"
	"github.com/dmitrymomot/authzkit/pkg/store"
)

func validateAssertion(domain string, a authz.Assertion) error {
	if a.Action == "" || a.Resource == "" || a.Role == "" {
		return fmt.Errorf("%w: assertion needs action, resource and role", authz.ErrInvalidRequest)
	}
	if a.Effect != authz.EffectAllow && a.Effect != authz.EffectDeny {
		return fmt.Errorf("%w: unknown effect %q", authz.ErrInvalidRequest, a.Effect)
	}
	roleDomain, _, ok := authz.SplitRoleRef(a.Role)
	if !ok {
		return fmt.Errorf("%w: malformed role reference %q", authz.ErrInvalidRequest, a.Role)
	}
	if roleDomain != domain {
		return fmt.Errorf("%w: assertion role %q must belong to domain %q", authz.ErrInvalidRequest, a.Role, domain)
	}
	resDomain, _, ok := authz.SplitResource(a.Resource)
	if !ok || resDomain == "" {
		return fmt.Errorf("%w: assertion resource %q must be domain-qualified", authz.ErrInvalidRequest, a.Resource)
	}
	return nil
}

// roleResolves reports whether a role name resolves inside the domain,
// either as a defined role or as the delegated role of a trust relation.
func roleResolves(d *authz.Domain, name string) bool {
	if _, ok := d.Roles[name]; ok {
		return true
	}
	for _, tr := range d.Trust {
		if tr.DelegatedRole() == name {
			return true
		}
	}
	return false
}

// PutPolicy creates or replaces a policy. Assertions without an id are
// allocated one from the domain counter; ids survive replacement only for
// assertions that carry them in.
func (s *Service) PutPolicy(ctx context.Context, caller, domain string, policy authz.Policy, auditRef string) error {
	if !authz.ValidCompoundName(policy.Name) {
		return fmt.Errorf("%w: malformed policy name %q", authz.ErrInvalidRequest, policy.Name)
	}
	for _, a := range policy.Assertions {
		if err := validateAssertion(domain, a); err != nil {
			return err
		}
	}

	return s.run(ctx, mutation{
		caller:    caller,
		domain:    domain,
		operation: "putPolicy",
		entity:    "policy." + policy.Name,
		action:    "update",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			for _, a := range policy.Assertions {
				_, refRole, _ := authz.SplitRoleRef(a.Role)
				if !roleResolves(d, refRole) {
					return fmt.Errorf("%w: assertion role %q does not resolve in domain %q", authz.ErrInvalidRequest, a.Role, domain)
				}
			}
			if _, exists := d.Policies[policy.Name]; !exists {
				if err := s.quota.Check(d, quota.KindPolicy, len(d.Policies)+1); err != nil {
					return err
				}
			}
			if err := s.quota.Check(d, quota.KindAssertion, len(policy.Assertions)); err != nil {
				return err
			}
			p := policy.Clone()
			for i := range p.Assertions {
				if p.Assertions[i].ID == 0 {
					p.Assertions[i].ID = d.NextAssertionID
					d.NextAssertionID++
				}
			}
			p.Modified = s.now()
			d.Policies[p.Name] = p
			return nil
		},
	})
}

// GetPolicy returns a policy from the committed snapshot.
func (s *Service) GetPolicy(ctx context.Context, domain, name string) (*authz.Policy, error) {
	d, err := s.store.LoadDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	p, ok := d.Policies[name]
	if !ok {
		return nil, fmt.Errorf("%w: policy %q in domain %q", authz.ErrNotFound, name, domain)
	}
	return p, nil
}

// DeletePolicy removes a policy. The seeded admin policy is protected.
func (s *Service) DeletePolicy(ctx context.Context, caller, domain, name, auditRef string) error {
	if name == adminPolicy {
		return fmt.Errorf("%w: policy %q may not be deleted", authz.ErrInvalidRequest, name)
	}
	return s.run(ctx, mutation{
		caller:    caller,
		domain:    domain,
		operation: "deletePolicy",
		entity:    "policy." + name,
		action:    "delete",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			if _, ok := d.Policies[name]; !ok {
				return fmt.Errorf("%w: policy %q in domain %q", authz.ErrNotFound, name, domain)
			}
			delete(d.Policies, name)
			return nil
		},
	})
}

// ListPolicies returns policy names sorted, with optional paging.
func (s *Service) ListPolicies(ctx context.Context, domain string, limit int, skip string) ([]string, error) {
	d, err := s.store.LoadDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	return store.Filter{Limit: limit, Skip: skip}.Page(sortedKeys(d.Policies)), nil
}

// PutAssertion appends a single assertion to an existing policy and returns
// it with its allocated id.
func (s *Service) PutAssertion(ctx context.Context, caller, domain, policy string, assertion authz.Assertion, auditRef string) (authz.Assertion, error) {
	if err := validateAssertion(domain, assertion); err != nil {
		return authz.Assertion{}, err
	}
	var out authz.Assertion
	err := s.run(ctx, mutation{
		caller:    caller,
		domain:    domain,
		operation: "putAssertion",
		entity:    "policy." + policy,
		action:    "update",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			p, ok := d.Policies[policy]
			if !ok {
				return fmt.Errorf("%w: policy %q in domain %q", authz.ErrNotFound, policy, domain)
			}
			_, refRole, _ := authz.SplitRoleRef(assertion.Role)
			if !roleResolves(d, refRole) {
				return fmt.Errorf("%w: assertion role %q does not resolve in domain %q", authz.ErrInvalidRequest, assertion.Role, domain)
			}
			if err := s.quota.Check(d, quota.KindAssertion, len(p.Assertions)+1); err != nil {
				return err
			}
			assertion.ID = d.NextAssertionID
			d.NextAssertionID++
			p.Assertions = append(p.Assertions, assertion)
			p.Modified = s.now()
			out = assertion
			return nil
		},
	})
	return out, err
}

// GetAssertion returns a single assertion by id.
func (s *Service) GetAssertion(ctx context.Context, domain, policy string, id int64) (authz.Assertion, error) {
	p, err := s.GetPolicy(ctx, domain, policy)
	if err != nil {
		return authz.Assertion{}, err
	}
	i := p.AssertionIndex(id)
	if i < 0 {
		return authz.Assertion{}, fmt.Errorf("%w: assertion %d in policy %q", authz.ErrNotFound, id, policy)
	}
	return p.Assertions[i], nil
}

// DeleteAssertion removes a single assertion by id.
func (s *Service) DeleteAssertion(ctx context.Context, caller, domain, policy string, id int64, auditRef string) error {
	return s.run(ctx, mutation{
		caller:    caller,
		domain:    domain,
		operation: "deleteAssertion",
		entity:    "policy." + policy,
		action:    "update",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			p, ok := d.Policies[policy]
			if !ok {
				return fmt.Errorf("%w: policy %q in domain %q", authz.ErrNotFound, policy, domain)
			}
			i := p.AssertionIndex(id)
			if i < 0 {
				return fmt.Errorf("%w: assertion %d in policy %q", authz.ErrNotFound, id, policy)
			}
			p.Assertions = append(p.Assertions[:i], p.Assertions[i+1:]...)
			p.Modified = s.now()
			return nil
		},
	})
}

// SetAssertionConditions replaces the condition set of an assertion.
// An empty set clears the conditions, making the assertion unconditional.
func (s *Service) SetAssertionConditions(ctx context.Context, caller, domain, policy string, id int64, conditions []authz.Condition, auditRef string) error {
	for _, c := range conditions {
		if c.Key == "" {
			return fmt.Errorf("%w: condition key required", authz.ErrInvalidRequest)
		}
	}
	return s.run(ctx, mutation{
		caller:    caller,
		domain:    domain,
		operation: "putAssertionConditions",
		entity:    "policy." + policy,
		action:    "update",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			p, ok := d.Policies[policy]
			if !ok {
				return fmt.Errorf("%w: policy %q in domain %q", authz.ErrNotFound, policy, domain)
			}
			i := p.AssertionIndex(id)
			if i < 0 {
				return fmt.Errorf("%w: assertion %d in policy %q", authz.ErrNotFound, id, policy)
			}
			p.Assertions[i].Conditions = append([]authz.Condition(nil), conditions...)
			p.Modified = s.now()
			return nil
		},
	})
}
