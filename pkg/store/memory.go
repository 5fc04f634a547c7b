package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/dmitrymomot/authzkit/pkg/authz"
)

// memoryStore keeps committed domain snapshots in a map. Snapshots are
// stored as-is and never mutated, so readers share them safely.
type memoryStore struct {
	mu      sync.RWMutex
	domains map[string]*authz.Domain
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return &memoryStore{domains: make(map[string]*authz.Domain)}
}

func (s *memoryStore) LoadDomain(ctx context.Context, name string) (*authz.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.domains[name]
	if !ok {
		return nil, fmt.Errorf("%w: domain %q", authz.ErrNotFound, name)
	}
	return d, nil
}

func (s *memoryStore) CommitDomain(ctx context.Context, d *authz.Domain, expectedTag uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.domains[d.Name]
	if expectedTag == 0 {
		if exists {
			return fmt.Errorf("%w: domain %q already exists", authz.ErrConflict, d.Name)
		}
	} else {
		if !exists {
			return fmt.Errorf("%w: domain %q", authz.ErrNotFound, d.Name)
		}
		if current.Tag != expectedTag {
			return fmt.Errorf("%w: domain %q tag %d, expected %d", authz.ErrConflict, d.Name, current.Tag, expectedTag)
		}
	}

	s.domains[d.Name] = d
	return nil
}

func (s *memoryStore) DeleteDomain(ctx context.Context, name string, expectedTag uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.domains[name]
	if !exists {
		return fmt.Errorf("%w: domain %q", authz.ErrNotFound, name)
	}
	if expectedTag != 0 && current.Tag != expectedTag {
		return fmt.Errorf("%w: domain %q tag %d, expected %d", authz.ErrConflict, name, current.Tag, expectedTag)
	}

	delete(s.domains, name)
	return nil
}

func (s *memoryStore) ListDomains(ctx context.Context, f Filter) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.domains))
	for _, name := range slices.Sorted(maps.Keys(s.domains)) {
		if f.Matches(s.domains[name]) {
			names = append(names, name)
		}
	}
	return f.Page(names), nil
}
