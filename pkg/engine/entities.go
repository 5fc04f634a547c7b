package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrymomot/authzkit/pkg/authz"
	"github.com/dmitrymomot/authzkit/pkg/quota"
	"github.com/dmitrymomot/authzkit/pkg/store"
)

// PutEntity creates or replaces a named JSON value owned by the domain.
func (s *Service) PutEntity(ctx context.Context, caller, domain string, entity authz.Entity, auditRef string) error {
	if !authz.ValidCompoundName(entity.Name) {
		return fmt.Errorf("%w: malformed entity name %q", authz.ErrInvalidRequest, entity.Name)
	}
	if len(entity.Value) == 0 || !json.Valid(entity.Value) {
		return fmt.Errorf("%w: entity %q value must be valid JSON", authz.ErrInvalidRequest, entity.Name)
	}
	return s.run(ctx, mutation{
		caller:    caller,
		domain:    domain,
		operation: "putEntity",
		entity:    "entity." + entity.Name,
		action:    "update",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			if _, exists := d.Entities[entity.Name]; !exists {
				if err := s.quota.Check(d, quota.KindEntity, len(d.Entities)+1); err != nil {
					return err
				}
			}
			d.Entities[entity.Name] = entity.Clone()
			return nil
		},
	})
}

// GetEntity returns an entity from the committed snapshot.
func (s *Service) GetEntity(ctx context.Context, domain, name string) (*authz.Entity, error) {
	d, err := s.store.LoadDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	e, ok := d.Entities[name]
	if !ok {
		return nil, fmt.Errorf("%w: entity %q in domain %q", authz.ErrNotFound, name, domain)
	}
	return e, nil
}

// DeleteEntity removes an entity.
func (s *Service) DeleteEntity(ctx context.Context, caller, domain, name, auditRef string) error {
	return s.run(ctx, mutation{
		caller:    caller,
		domain:    domain,
		operation: "deleteEntity",
		entity:    "entity." + name,
		action:    "delete",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			if _, ok := d.Entities[name]; !ok {
				return fmt.Errorf("%w: entity %q in domain %q", authz.ErrNotFound, name, domain)
			}
			delete(d.Entities, name)
			return nil
		},
	})
}

// ListEntities returns entity names sorted, with optional paging.
func (s *Service) ListEntities(ctx context.Context, domain string, limit int, skip string) ([]string, error) {
	d, err := s.store.LoadDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	return store.Filter{Limit: limit, Skip: skip}.Page(sortedKeys(d.Entities)), nil
}
