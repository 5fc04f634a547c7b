package store

import (
	"context"
	"slices"
	"time"

	"github.com/dmitrymomot/authzkit/pkg/authz"
	"github.com/dmitrymomot/authzkit/pkg/match"
)

// Store is the persistence collaborator. Implementations must make
// LoadDomain return snapshots that are never mutated afterwards, and must
// apply CommitDomain atomically under a compare-and-swap on the domain's
// modification tag.
type Store interface {
	// LoadDomain returns the current snapshot of the named domain.
	// Returns authz.ErrNotFound when the domain does not exist.
	LoadDomain(ctx context.Context, name string) (*authz.Domain, error)

	// CommitDomain stores the snapshot. expectedTag is the tag the writer
	// loaded; a mismatch with the currently stored tag fails with
	// authz.ErrConflict. expectedTag zero creates the domain and fails
	// with authz.ErrConflict when it already exists. The caller hands
	// over ownership of d and must not touch it after the call.
	CommitDomain(ctx context.Context, d *authz.Domain, expectedTag uint64) error

	// DeleteDomain removes the domain under the same tag check.
	DeleteDomain(ctx context.Context, name string, expectedTag uint64) error

	// ListDomains returns the names of domains matching the filter,
	// sorted ascending.
	ListDomains(ctx context.Context, f Filter) ([]string, error)
}

// Filter selects domains in ListDomains. Zero-valued fields are ignored.
type Filter struct {
	// Prefix keeps domains whose name starts with the prefix.
	Prefix string

	// Depth keeps domains with at most this many name segments.
	Depth int

	// Account, ProductID and BusinessService match domain metadata.
	Account         string
	ProductID       int32
	BusinessService string

	// TagKey keeps domains carrying the metadata tag key; TagValue
	// additionally requires the value to be present under that key.
	TagKey   string
	TagValue string

	// RoleMember keeps domains where the principal appears in any role;
	// RoleName restricts the search to one role.
	RoleMember string
	RoleName   string

	// ModifiedSince keeps domains modified at or after the instant.
	ModifiedSince time.Time

	// Skip resumes listing after the given domain name; Limit caps the
	// page size (zero means no cap).
	Skip  string
	Limit int
}

// Matches reports whether the domain satisfies every set predicate. Paging
// fields are not part of the predicate; apply them with Page.
func (f Filter) Matches(d *authz.Domain) bool {
	if f.Prefix != "" && !match.Match(f.Prefix+"*", d.Name) {
		return false
	}
	if f.Depth > 0 && authz.DomainDepth(d.Name) > f.Depth {
		return false
	}
	if f.Account != "" && d.Meta.Account != f.Account {
		return false
	}
	if f.ProductID != 0 && d.Meta.ProductID != f.ProductID {
		return false
	}
	if f.BusinessService != "" && d.Meta.BusinessService != f.BusinessService {
		return false
	}
	if f.TagKey != "" {
		values, ok := d.Meta.Tags[f.TagKey]
		if !ok {
			return false
		}
		if f.TagValue != "" && !slices.Contains(values, f.TagValue) {
			return false
		}
	}
	if !f.ModifiedSince.IsZero() && d.Modified.Before(f.ModifiedSince) {
		return false
	}
	if f.RoleMember != "" && !f.memberMatches(d) {
		return false
	}
	return true
}

func (f Filter) memberMatches(d *authz.Domain) bool {
	check := func(r *authz.Role) bool {
		return r.MemberIndex(f.RoleMember) >= 0
	}
	if f.RoleName != "" {
		r, ok := d.Roles[f.RoleName]
		return ok && check(r)
	}
	for _, r := range d.Roles {
		if check(r) {
			return true
		}
	}
	return false
}

// Page applies the filter's Skip and Limit to a sorted name list.
func (f Filter) Page(names []string) []string {
	if f.Skip != "" {
		i, found := slices.BinarySearch(names, f.Skip)
		if found {
			i++
		}
		names = names[i:]
	}
	if f.Limit > 0 && len(names) > f.Limit {
		names = names[:f.Limit]
	}
	return names
}
