package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/authzkit/pkg/audit"
	"github.com/dmitrymomot/authzkit/pkg/authz"
	"github.com/dmitrymomot/authzkit/pkg/quota"
	"github.com/dmitrymomot/authzkit/pkg/store"
)

// CreateDomain creates a domain, seeding its admin role and policy with
// the given administrators. Top-level creation is authorized against the
// sys.auth domain; subdomain creation against the parent, whose subdomain
// quota also applies.
func (s *Service) CreateDomain(ctx context.Context, caller, name string, meta authz.DomainMeta, admins []string, auditRef string) (*authz.Domain, error) {
	if !authz.ValidCompoundName(name) {
		return nil, fmt.Errorf("%w: malformed domain name %q", authz.ErrInvalidRequest, name)
	}
	if len(admins) == 0 {
		return nil, fmt.Errorf("%w: domain %q requires at least one administrator", authz.ErrInvalidRequest, name)
	}
	if meta.AuditEnabled && auditRef == "" {
		return nil, fmt.Errorf("%w: audit reference required for domain %q", authz.ErrInvalidRequest, name)
	}

	parent := authz.ParentDomain(name)
	authResource := AdminDomain + ":domain"
	if parent != "" {
		authResource = parent + ":domain"
	}
	if !s.authr.Allowed(ctx, caller, "create", authResource) {
		return nil, fmt.Errorf("%w: %s may not create %s", authz.ErrForbidden, caller, name)
	}

	// The subdomain quota belongs to the parent, so the parent lock
	// guards the count check against concurrent sibling creation.
	if parent != "" {
		unlockParent := s.lockDomain(parent)
		defer unlockParent()

		parentDomain, err := s.store.LoadDomain(ctx, parent)
		if err != nil {
			if errors.Is(err, authz.ErrNotFound) {
				return nil, fmt.Errorf("%w: parent domain %q does not exist", authz.ErrInvalidRequest, parent)
			}
			return nil, err
		}
		if err := requireAuditRef(parentDomain, auditRef); err != nil {
			return nil, err
		}

		children, err := s.store.ListDomains(ctx, store.Filter{
			Prefix: parent + ".",
			Depth:  authz.DomainDepth(parent) + 1,
		})
		if err != nil {
			return nil, err
		}
		if err := s.quota.Check(parentDomain, quota.KindSubdomain, len(children)+1); err != nil {
			return nil, err
		}
	}

	unlock := s.lockDomain(name)
	defer unlock()

	now := s.now()
	d := authz.NewDomain(name, meta)
	seedAdmin(d, admins, now)
	d.Tag = 1
	d.Modified = now

	if err := s.store.CommitDomain(ctx, d, 0); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Event{
		Principal: caller,
		Operation: "postDomain",
		Domain:    name,
		AuditRef:  auditRef,
	})
	s.notify(name)
	return d, nil
}

// DeleteDomain removes a domain and everything it owns. Domains with
// children cannot be deleted; remove the subtree bottom-up.
func (s *Service) DeleteDomain(ctx context.Context, caller, name, auditRef string) error {
	unlock := s.lockDomain(name)
	defer unlock()

	d, err := s.store.LoadDomain(ctx, name)
	if err != nil {
		return err
	}
	if !s.authr.Allowed(ctx, caller, "delete", name+":domain") {
		return fmt.Errorf("%w: %s may not delete %s", authz.ErrForbidden, caller, name)
	}
	if err := requireAuditRef(d, auditRef); err != nil {
		return err
	}

	children, err := s.store.ListDomains(ctx, store.Filter{Prefix: name + "."})
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return fmt.Errorf("%w: domain %q has %d subdomains", authz.ErrConflict, name, len(children))
	}

	if err := s.store.DeleteDomain(ctx, name, d.Tag); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Event{
		Principal: caller,
		Operation: "deleteDomain",
		Domain:    name,
		AuditRef:  auditRef,
	})
	s.notify(name)
	return nil
}

// GetDomain returns the committed snapshot of a domain.
func (s *Service) GetDomain(ctx context.Context, name string) (*authz.Domain, error) {
	return s.store.LoadDomain(ctx, name)
}

// ListDomains returns domain names matching the filter.
func (s *Service) ListDomains(ctx context.Context, f store.Filter) ([]string, error) {
	return s.store.ListDomains(ctx, f)
}

// SetDomainMeta replaces the administrative metadata of a domain.
func (s *Service) SetDomainMeta(ctx context.Context, caller, name string, meta authz.DomainMeta, auditRef string) error {
	return s.run(ctx, mutation{
		caller:    caller,
		domain:    name,
		operation: "putDomainMeta",
		entity:    "meta",
		action:    "update",
		resource:  name + ":domain",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			d.Meta = meta.Clone()
			return nil
		},
	})
}
