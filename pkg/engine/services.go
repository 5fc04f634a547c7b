package engine

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/authzkit/pkg/authz"
	"github.com/dmitrymomot/authzkit/pkg/quota"
	"github.com/dmitrymomot/authzkit/pkg/store"
)

// PutServiceIdentity creates or replaces a service identity.
func (s *Service) PutServiceIdentity(ctx context.Context, caller, domain string, svc authz.ServiceIdentity, auditRef string) error {
	if !authz.ValidSimpleName(svc.Name) {
		return fmt.Errorf("%w: malformed service name %q", authz.ErrInvalidRequest, svc.Name)
	}
	for _, k := range svc.PublicKeys {
		if k.ID == "" || k.Key == "" {
			return fmt.Errorf("%w: public key entry needs id and key", authz.ErrInvalidRequest)
		}
	}

	return s.run(ctx, mutation{
		caller:    caller,
		domain:    domain,
		operation: "putServiceIdentity",
		entity:    "service." + svc.Name,
		action:    "update",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			if _, exists := d.Services[svc.Name]; !exists {
				if err := s.quota.Check(d, quota.KindService, len(d.Services)+1); err != nil {
					return err
				}
			}
			if err := s.quota.Check(d, quota.KindServiceKey, len(svc.PublicKeys)); err != nil {
				return err
			}
			cp := svc.Clone()
			cp.Modified = s.now()
			d.Services[cp.Name] = cp
			return nil
		},
	})
}

// GetServiceIdentity returns a service identity from the committed snapshot.
func (s *Service) GetServiceIdentity(ctx context.Context, domain, name string) (*authz.ServiceIdentity, error) {
	d, err := s.store.LoadDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	svc, ok := d.Services[name]
	if !ok {
		return nil, fmt.Errorf("%w: service %q in domain %q", authz.ErrNotFound, name, domain)
	}
	return svc, nil
}

// DeleteServiceIdentity removes a service identity.
func (s *Service) DeleteServiceIdentity(ctx context.Context, caller, domain, name, auditRef string) error {
	return s.run(ctx, mutation{
		caller:    caller,
		domain:    domain,
		operation: "deleteServiceIdentity",
		entity:    "service." + name,
		action:    "delete",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			if _, ok := d.Services[name]; !ok {
				return fmt.Errorf("%w: service %q in domain %q", authz.ErrNotFound, name, domain)
			}
			delete(d.Services, name)
			return nil
		},
	})
}

// ListServiceIdentities returns service names sorted, with optional paging.
func (s *Service) ListServiceIdentities(ctx context.Context, domain string, limit int, skip string) ([]string, error) {
	d, err := s.store.LoadDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	return store.Filter{Limit: limit, Skip: skip}.Page(sortedKeys(d.Services)), nil
}

// PutPublicKeyEntry adds or replaces a single key on a service.
func (s *Service) PutPublicKeyEntry(ctx context.Context, caller, domain, service string, entry authz.PublicKeyEntry, auditRef string) error {
	if entry.ID == "" || entry.Key == "" {
		return fmt.Errorf("%w: public key entry needs id and key", authz.ErrInvalidRequest)
	}
	return s.run(ctx, mutation{
		caller:    caller,
		domain:    domain,
		operation: "putPublicKeyEntry",
		entity:    "service." + service,
		action:    "update",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			svc, ok := d.Services[service]
			if !ok {
				return fmt.Errorf("%w: service %q in domain %q", authz.ErrNotFound, service, domain)
			}
			if i := svc.KeyIndex(entry.ID); i >= 0 {
				svc.PublicKeys[i] = entry
			} else {
				if err := s.quota.Check(d, quota.KindServiceKey, len(svc.PublicKeys)+1); err != nil {
					return err
				}
				svc.PublicKeys = append(svc.PublicKeys, entry)
			}
			svc.Modified = s.now()
			return nil
		},
	})
}

// GetPublicKeyEntry returns a single key of a service by id.
func (s *Service) GetPublicKeyEntry(ctx context.Context, domain, service, keyID string) (authz.PublicKeyEntry, error) {
	svc, err := s.GetServiceIdentity(ctx, domain, service)
	if err != nil {
		return authz.PublicKeyEntry{}, err
	}
	i := svc.KeyIndex(keyID)
	if i < 0 {
		return authz.PublicKeyEntry{}, fmt.Errorf("%w: key %q on service %q", authz.ErrNotFound, keyID, service)
	}
	return svc.PublicKeys[i], nil
}

// DeletePublicKeyEntry removes a single key from a service.
func (s *Service) DeletePublicKeyEntry(ctx context.Context, caller, domain, service, keyID, auditRef string) error {
	return s.run(ctx, mutation{
		caller:    caller,
		domain:    domain,
		operation: "deletePublicKeyEntry",
		entity:    "service." + service,
		action:    "update",
		auditRef:  auditRef,
		apply: func(d *authz.Domain) error {
			svc, ok := d.Services[service]
			if !ok {
				return fmt.Errorf("%w: service %q in domain %q", authz.ErrNotFound, service, domain)
			}
			i := svc.KeyIndex(keyID)
			if i < 0 {
				return fmt.Errorf("%w: key %q on service %q", authz.ErrNotFound, keyID, service)
			}
			svc.PublicKeys = append(svc.PublicKeys[:i], svc.PublicKeys[i+1:]...)
			svc.Modified = s.now()
			return nil
		},
	})
}
