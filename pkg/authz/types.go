package authz

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// Effect is the outcome an assertion contributes to a decision.
type Effect string

const (
	EffectAllow Effect = "ALLOW"
	EffectDeny  Effect = "DENY"
)

// MemberState tracks where a membership entry is in the approval workflow.
// Expiration is not a state: an ACTIVE entry past its expiration is simply
// ignored at evaluation time until purged or re-reviewed.
type MemberState string

const (
	MemberActive  MemberState = "ACTIVE"
	MemberPending MemberState = "PENDING"
)

// Member is a single principal entry in a role or group member set.
type Member struct {
	// Principal is the member identity. Roles may also reference a group
	// as a member using the qualified form "domain:group.name".
	Principal string `json:"principal"`

	State MemberState `json:"state"`

	// Expiration is the instant the membership stops participating in
	// access evaluation. Zero means the membership never expires.
	Expiration time.Time `json:"expiration,omitzero"`

	// ReviewDue is when the membership must be re-confirmed by a reviewer.
	// Entries past due are reported as overdue but still evaluate.
	ReviewDue time.Time `json:"review_due,omitzero"`

	// RequestedBy records who filed the entry when it started pending.
	RequestedBy string `json:"requested_by,omitempty"`
}

// ActiveAt reports whether the member participates in access evaluation at
// the given instant: approved and not expired.
func (m Member) ActiveAt(now time.Time) bool {
	return m.State == MemberActive && !m.ExpiredAt(now)
}

// ExpiredAt reports whether the membership has lapsed. A membership with
// expiration T is present for now < T and absent for now >= T.
func (m Member) ExpiredAt(now time.Time) bool {
	return !m.Expiration.IsZero() && !now.Before(m.Expiration)
}

// OverdueAt reports whether the membership is past its re-review deadline.
func (m Member) OverdueAt(now time.Time) bool {
	return !m.ReviewDue.IsZero() && !now.Before(m.ReviewDue)
}

// ReviewPolicy governs how principals join and stay in a role or group.
type ReviewPolicy struct {
	// SelfServe lets principals add themselves as immediately ACTIVE
	// members. When false, additions by non-admins start PENDING.
	SelfServe bool `json:"self_serve,omitempty"`

	// ReviewEnabled forces every addition to start PENDING regardless of
	// who files it.
	ReviewEnabled bool `json:"review_enabled,omitempty"`

	// MemberExpiryDays, when non-zero, caps every membership with a
	// default expiration counted from approval.
	MemberExpiryDays int `json:"member_expiry_days,omitempty"`

	// MemberReviewDays, when non-zero, schedules periodic re-review.
	MemberReviewDays int `json:"member_review_days,omitempty"`
}

// Role is a named principal set inside a domain, or a delegated role whose
// membership lives in a trusted domain.
type Role struct {
	Name string `json:"name"`

	// Trust names the domain membership is delegated to. A delegated role
	// carries no members of its own.
	Trust string `json:"trust,omitempty"`

	Members  []Member     `json:"members,omitempty"`
	Meta     ReviewPolicy `json:"meta,omitzero"`
	Modified time.Time    `json:"modified"`
}

// MemberIndex returns the position of the principal in the member set, or -1.
func (r *Role) MemberIndex(principal string) int {
	return slices.IndexFunc(r.Members, func(m Member) bool { return m.Principal == principal })
}

// Clone returns a deep copy of the role.
func (r *Role) Clone() *Role {
	c := *r
	c.Members = slices.Clone(r.Members)
	return &c
}

// Group is a principal set that roles reference as a single nested member.
// Groups never contain other groups.
type Group struct {
	Name     string       `json:"name"`
	Members  []Member     `json:"members,omitempty"`
	Meta     ReviewPolicy `json:"meta,omitzero"`
	Modified time.Time    `json:"modified"`
}

// MemberIndex returns the position of the principal in the member set, or -1.
func (g *Group) MemberIndex(principal string) int {
	return slices.IndexFunc(g.Members, func(m Member) bool { return m.Principal == principal })
}

// Clone returns a deep copy of the group.
func (g *Group) Clone() *Group {
	c := *g
	c.Members = slices.Clone(g.Members)
	return &c
}

// Condition is an attribute predicate evaluated against caller-supplied
// context at decision time. Value uses the same closed pattern grammar as
// action and resource matching.
type Condition struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Assertion binds an effect to (action pattern, resource pattern, role).
// The role reference is domain-qualified ("domain:role.name") and must
// resolve to an existing role at write time.
type Assertion struct {
	ID         int64       `json:"id"`
	Effect     Effect      `json:"effect"`
	Action     string      `json:"action"`
	Resource   string      `json:"resource"`
	Role       string      `json:"role"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// Clone returns a deep copy of the assertion.
func (a Assertion) Clone() Assertion {
	a.Conditions = slices.Clone(a.Conditions)
	return a
}

// Policy is an ordered set of assertions owned by a domain.
type Policy struct {
	Name       string      `json:"name"`
	Assertions []Assertion `json:"assertions,omitempty"`
	Modified   time.Time   `json:"modified"`
}

// AssertionIndex returns the position of the assertion with the given id, or -1.
func (p *Policy) AssertionIndex(id int64) int {
	return slices.IndexFunc(p.Assertions, func(a Assertion) bool { return a.ID == id })
}

// Clone returns a deep copy of the policy.
func (p *Policy) Clone() *Policy {
	c := *p
	c.Assertions = make([]Assertion, len(p.Assertions))
	for i, a := range p.Assertions {
		c.Assertions[i] = a.Clone()
	}
	return &c
}

// PublicKeyEntry is one registered key of a service identity. Key holds the
// key material in whatever encoding the deployment uses; the engine treats
// it as opaque.
type PublicKeyEntry struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// ServiceIdentity is a non-human principal registered in a domain.
type ServiceIdentity struct {
	Name       string           `json:"name"`
	PublicKeys []PublicKeyEntry `json:"public_keys,omitempty"`
	Hosts      []string         `json:"hosts,omitempty"`
	Executable string           `json:"executable,omitempty"`
	User       string           `json:"user,omitempty"`
	Group      string           `json:"group,omitempty"`
	Modified   time.Time        `json:"modified"`
}

// KeyIndex returns the position of the public key with the given id, or -1.
func (s *ServiceIdentity) KeyIndex(id string) int {
	return slices.IndexFunc(s.PublicKeys, func(k PublicKeyEntry) bool { return k.ID == id })
}

// Clone returns a deep copy of the service identity.
func (s *ServiceIdentity) Clone() *ServiceIdentity {
	c := *s
	c.PublicKeys = slices.Clone(s.PublicKeys)
	c.Hosts = slices.Clone(s.Hosts)
	return &c
}

// Entity is a named opaque JSON value owned by a domain.
type Entity struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	c := *e
	c.Value = slices.Clone(e.Value)
	return &c
}

// TrustRelation grants a tenant domain's role access to a provider service's
// / resource group. It is the explicit form of cross-domain delegation: the
// trust resolver reads it at evaluation time instead of the engine
// materializing synthetic role and policy rows in both domains.
type TrustRelation struct {
	// TenantDomain is the domain receiving the access.
	TenantDomain string `json:"tenant_domain"`

	// Service is the provider-side service the access is scoped to.
	Service string `json:"service"`

	// ResourceGroup partitions the provider's resources per tenant grant.
	ResourceGroup string `json:"resource_group"`

	// TenantRole names the role inside the tenant domain whose ACTIVE
	// members receive the delegated access.
	TenantRole string `json:"tenant_role"`

	// Actions the delegated role is granted on the resource group.
	Actions []string `json:"actions,omitempty"`

	Modified time.Time `json:"modified"`
}

// Key identifies the relation inside its provider domain.
func (t TrustRelation) Key() string {
	return t.TenantDomain + ":" + t.Service + ":" + t.ResourceGroup
}

// DelegatedRole is the provider-side role name the relation stands in for.
// Provider policies reference this name; the resolver synthesizes its
// membership from the tenant role. The tenant domain is part of the name,
// so relations for the same service and resource group never share a role
// or the policy seeded for it.
func (t TrustRelation) DelegatedRole() string {
	return "tenancy." + t.TenantDomain + "." + t.Service + "." + t.ResourceGroup
}

// Clone returns a deep copy of the relation.
func (t TrustRelation) Clone() TrustRelation {
	t.Actions = slices.Clone(t.Actions)
	return t
}

// Quota holds per-domain entity ceilings. Zero means "use the system
// default"; Unlimited disables the check for that kind.
type Quota struct {
	Subdomains   int       `json:"subdomains,omitempty"`
	Roles        int       `json:"roles,omitempty"`
	RoleMembers  int       `json:"role_members,omitempty"`
	Groups       int       `json:"groups,omitempty"`
	GroupMembers int       `json:"group_members,omitempty"`
	Policies     int       `json:"policies,omitempty"`
	Assertions   int       `json:"assertions,omitempty"`
	Services     int       `json:"services,omitempty"`
	ServiceKeys  int       `json:"service_keys,omitempty"`
	Entities     int       `json:"entities,omitempty"`
	Modified     time.Time `json:"modified,omitzero"`
}

// Unlimited disables a quota ceiling.
const Unlimited = -1

// DomainMeta carries the administrative metadata of a domain.
type DomainMeta struct {
	Description     string              `json:"description,omitempty"`
	Account         string              `json:"account,omitempty"`
	ProductID       int32               `json:"product_id,omitempty"`
	BusinessService string              `json:"business_service,omitempty"`
	AuditEnabled    bool                `json:"audit_enabled,omitempty"`
	Tags            map[string][]string `json:"tags,omitempty"`
}

// Clone returns a deep copy of the metadata.
func (m DomainMeta) Clone() DomainMeta {
	if m.Tags != nil {
		tags := make(map[string][]string, len(m.Tags))
		for k, v := range m.Tags {
			tags[k] = slices.Clone(v)
		}
		m.Tags = tags
	}
	return m
}

// Domain is a hierarchical namespace and the unit of both write
// serialization and signed distribution. A committed *Domain is an immutable
// snapshot: mutate only clones.
type Domain struct {
	Name string     `json:"name"`
	Meta DomainMeta `json:"meta,omitzero"`

	// Tag is the modification tag: bumped on every committed mutation and
	// used for optimistic concurrency and snapshot cache validation.
	Tag      uint64    `json:"tag"`
	Modified time.Time `json:"modified"`

	Roles    map[string]*Role            `json:"roles,omitempty"`
	Groups   map[string]*Group           `json:"groups,omitempty"`
	Policies map[string]*Policy          `json:"policies,omitempty"`
	Services map[string]*ServiceIdentity `json:"services,omitempty"`
	Entities map[string]*Entity          `json:"entities,omitempty"`

	// Trust holds the delegation relations this domain provides to its
	// tenants, keyed by TrustRelation.Key().
	Trust map[string]TrustRelation `json:"trust,omitempty"`

	// Quota overrides the system default ceilings when non-nil.
	Quota *Quota `json:"quota,omitempty"`

	// NextAssertionID is the allocator for assertion ids within the domain.
	NextAssertionID int64 `json:"next_assertion_id,omitempty"`
}

// NewDomain returns an empty domain with initialized collections.
func NewDomain(name string, meta DomainMeta) *Domain {
	return &Domain{
		Name:            name,
		Meta:            meta.Clone(),
		Roles:           make(map[string]*Role),
		Groups:          make(map[string]*Group),
		Policies:        make(map[string]*Policy),
		Services:        make(map[string]*ServiceIdentity),
		Entities:        make(map[string]*Entity),
		Trust:           make(map[string]TrustRelation),
		NextAssertionID: 1,
	}
}

// Parent returns the name of the parent domain, or "" for a top-level domain.
func (d *Domain) Parent() string {
	return ParentDomain(d.Name)
}

// Clone returns a deep copy of the domain snapshot.
func (d *Domain) Clone() *Domain {
	c := *d
	c.Meta = d.Meta.Clone()
	c.Roles = make(map[string]*Role, len(d.Roles))
	for k, v := range d.Roles {
		c.Roles[k] = v.Clone()
	}
	c.Groups = make(map[string]*Group, len(d.Groups))
	for k, v := range d.Groups {
		c.Groups[k] = v.Clone()
	}
	c.Policies = make(map[string]*Policy, len(d.Policies))
	for k, v := range d.Policies {
		c.Policies[k] = v.Clone()
	}
	c.Services = make(map[string]*ServiceIdentity, len(d.Services))
	for k, v := range d.Services {
		c.Services[k] = v.Clone()
	}
	c.Entities = make(map[string]*Entity, len(d.Entities))
	for k, v := range d.Entities {
		c.Entities[k] = v.Clone()
	}
	c.Trust = make(map[string]TrustRelation, len(d.Trust))
	for k, v := range d.Trust {
		c.Trust[k] = v.Clone()
	}
	if d.Quota != nil {
		q := *d.Quota
		c.Quota = &q
	}
	return &c
}

// TrustRelations returns the relations sorted by key for deterministic
// iteration.
func (d *Domain) TrustRelations() []TrustRelation {
	out := make([]TrustRelation, 0, len(d.Trust))
	for _, k := range slices.Sorted(maps.Keys(d.Trust)) {
		out = append(out, d.Trust[k])
	}
	return out
}
