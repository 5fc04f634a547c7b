package quota

import (
	"fmt"

	"github.com/dmitrymomot/authzkit/pkg/authz"
)

// Kind names a countable entity type inside a domain.
type Kind string

const (
	KindSubdomain   Kind = "subdomain"
	KindRole        Kind = "role"
	KindRoleMember  Kind = "role_member"
	KindGroup       Kind = "group"
	KindGroupMember Kind = "group_member"
	KindPolicy      Kind = "policy"
	KindAssertion   Kind = "assertion"
	KindService     Kind = "service"
	KindServiceKey  Kind = "service_key"
	KindEntity      Kind = "entity"
)

// Defaults holds the system-wide fallback ceilings applied when a domain
// has no quota record or leaves a field at zero.
type Defaults struct {
	Subdomains   int `env:"QUOTA_SUBDOMAINS" envDefault:"100"`
	Roles        int `env:"QUOTA_ROLES" envDefault:"1000"`
	RoleMembers  int `env:"QUOTA_ROLE_MEMBERS" envDefault:"1000"`
	Groups       int `env:"QUOTA_GROUPS" envDefault:"100"`
	GroupMembers int `env:"QUOTA_GROUP_MEMBERS" envDefault:"1000"`
	Policies     int `env:"QUOTA_POLICIES" envDefault:"1000"`
	Assertions   int `env:"QUOTA_ASSERTIONS" envDefault:"100"`
	Services     int `env:"QUOTA_SERVICES" envDefault:"250"`
	ServiceKeys  int `env:"QUOTA_SERVICE_KEYS" envDefault:"100"`
	Entities     int `env:"QUOTA_ENTITIES" envDefault:"100"`
}

// Enforcer resolves ceilings and rejects creating mutations that would
// exceed them.
type Enforcer struct {
	defaults Defaults
}

// New returns an enforcer with the given system defaults. Zero-valued
// fields are treated as unlimited.
func New(defaults Defaults) *Enforcer {
	return &Enforcer{defaults: defaults}
}

// Check verifies that the projected post-mutation count of the kind stays
// within the ceiling for the domain. It returns authz.ErrQuotaExceeded
// wrapped with the offending kind and ceiling when it does not.
func (e *Enforcer) Check(d *authz.Domain, kind Kind, projected int) error {
	limit := e.Limit(d, kind)
	if limit == authz.Unlimited || projected <= limit {
		return nil
	}
	return fmt.Errorf("%w: %s count %d exceeds ceiling %d in domain %q",
		authz.ErrQuotaExceeded, kind, projected, limit, d.Name)
}

// Limit returns the effective ceiling for the kind in the domain: the
// domain override when set, otherwise the system default, otherwise
// unlimited.
func (e *Enforcer) Limit(d *authz.Domain, kind Kind) int {
	if v := pick(d.Quota, kind); v != 0 {
		return v
	}
	if v := pick(&authz.Quota{
		Subdomains:   e.defaults.Subdomains,
		Roles:        e.defaults.Roles,
		RoleMembers:  e.defaults.RoleMembers,
		Groups:       e.defaults.Groups,
		GroupMembers: e.defaults.GroupMembers,
		Policies:     e.defaults.Policies,
		Assertions:   e.defaults.Assertions,
		Services:     e.defaults.Services,
		ServiceKeys:  e.defaults.ServiceKeys,
		Entities:     e.defaults.Entities,
	}, kind); v != 0 {
		return v
	}
	return authz.Unlimited
}

// DefaultQuota expresses the system defaults as a quota record, for
// reporting on domains without an override.
func (e *Enforcer) DefaultQuota() authz.Quota {
	return authz.Quota{
		Subdomains:   e.defaults.Subdomains,
		Roles:        e.defaults.Roles,
		RoleMembers:  e.defaults.RoleMembers,
		Groups:       e.defaults.Groups,
		GroupMembers: e.defaults.GroupMembers,
		Policies:     e.defaults.Policies,
		Assertions:   e.defaults.Assertions,
		Services:     e.defaults.Services,
		ServiceKeys:  e.defaults.ServiceKeys,
		Entities:     e.defaults.Entities,
	}
}

func pick(q *authz.Quota, kind Kind) int {
	if q == nil {
		return 0
	}
	switch kind {
	case KindSubdomain:
		return q.Subdomains
	case KindRole:
		return q.Roles
	case KindRoleMember:
		return q.RoleMembers
	case KindGroup:
		return q.Groups
	case KindGroupMember:
		return q.GroupMembers
	case KindPolicy:
		return q.Policies
	case KindAssertion:
		return q.Assertions
	case KindService:
		return q.Services
	case KindServiceKey:
		return q.ServiceKeys
	case KindEntity:
		return q.Entities
	default:
		return 0
	}
}
