package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/authzkit/pkg/access"
	"github.com/dmitrymomot/authzkit/pkg/audit"
	"github.com/dmitrymomot/authzkit/pkg/authz"
	"github.com/dmitrymomot/authzkit/pkg/quota"
	"github.com/dmitrymomot/authzkit/pkg/store"
)

// AdminDomain is the bootstrap domain whose admin role governs top-level
// domain creation.
const AdminDomain = "sys.auth"

// adminRole and adminPolicy are seeded into every new domain so that
// administrative rights are themselves expressed as regular policy.
const (
	adminRole   = "admin"
	adminPolicy = "admin"
)

// Authorizer answers whether a principal may perform an administrative
// action. The default implementation is the access evaluator, making the
// Forbidden check a degenerate policy decision.
type Authorizer interface {
	Allowed(ctx context.Context, principal, action, resource string) bool
}

// Service is the administrative engine. All exported methods are safe for
// concurrent use.
type Service struct {
	store    store.Store
	quota    *quota.Enforcer
	audit    *audit.Recorder
	authr    Authorizer
	log      *slog.Logger
	now      func() time.Time
	onChange []func(domain string)

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures the Service.
type Option func(*Service)

// WithAuthorizer replaces the default evaluator-backed admin check.
func WithAuthorizer(a Authorizer) Option {
	return func(s *Service) { s.authr = a }
}

// WithClock overrides the mutation clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger used for non-fatal engine events.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithChangeListener registers a callback invoked with the domain name
// after every committed mutation. The signed-snapshot refresher hooks in
// here.
func WithChangeListener(fn func(domain string)) Option {
	return func(s *Service) { s.onChange = append(s.onChange, fn) }
}

// New creates the engine. The store, quota enforcer and audit recorder are
// required collaborators.
func New(st store.Store, q *quota.Enforcer, rec *audit.Recorder, opts ...Option) *Service {
	if st == nil {
		panic("engine: store cannot be nil")
	}
	if q == nil {
		panic("engine: quota enforcer cannot be nil")
	}
	if rec == nil {
		panic("engine: audit recorder cannot be nil")
	}

	s := &Service{
		store: st,
		quota: q,
		audit: rec,
		log:   slog.Default(),
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.authr == nil {
		s.authr = evaluatorAuthorizer{eval: access.New(st)}
	}
	return s
}

// evaluatorAuthorizer implements the default Forbidden check on top of the
// access evaluator.
type evaluatorAuthorizer struct {
	eval *access.Evaluator
}

func (a evaluatorAuthorizer) Allowed(ctx context.Context, principal, action, resource string) bool {
	return a.eval.Check(ctx, access.Request{
		Principal: principal,
		Action:    action,
		Resource:  resource,
	}).Allowed
}

// Bootstrap creates the sys.auth domain with the given administrators when
// it does not exist yet. It bypasses the admin check: before sys.auth
// exists there is nobody to authorize against.
func (s *Service) Bootstrap(ctx context.Context, admins ...string) error {
	if len(admins) == 0 {
		return fmt.Errorf("%w: bootstrap requires at least one administrator", authz.ErrInvalidRequest)
	}

	unlock := s.lockDomain(AdminDomain)
	defer unlock()

	if _, err := s.store.LoadDomain(ctx, AdminDomain); err == nil {
		return nil
	} else if !errors.Is(err, authz.ErrNotFound) {
		return err
	}

	d := authz.NewDomain(AdminDomain, authz.DomainMeta{Description: "authorization system domain"})
	seedAdmin(d, admins, s.now())
	d.Tag = 1
	d.Modified = s.now()
	if err := s.store.CommitDomain(ctx, d, 0); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Event{
		Principal: admins[0],
		Operation: "bootstrap",
		Domain:    AdminDomain,
	})
	s.notify(AdminDomain)
	return nil
}

// seedAdmin installs the admin role and the all-access admin policy into a
// freshly created domain.
func seedAdmin(d *authz.Domain, admins []string, now time.Time) {
	members := make([]authz.Member, 0, len(admins))
	for _, a := range admins {
		members = append(members, authz.Member{Principal: a, State: authz.MemberActive})
	}
	d.Roles[adminRole] = &authz.Role{Name: adminRole, Members: members, Modified: now}
	d.Policies[adminPolicy] = &authz.Policy{
		Name: adminPolicy,
		Assertions: []authz.Assertion{{
			ID:       d.NextAssertionID,
			Effect:   authz.EffectAllow,
			Action:   "*",
			Resource: d.Name + ":*",
			Role:     authz.RoleRef(d.Name, adminRole),
		}},
		Modified: now,
	}
	d.NextAssertionID++
}

// lockDomain serializes writers of one domain. Distinct domains lock
// independently.
func (s *Service) lockDomain(name string) func() {
	s.mu.Lock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// mutation describes one administrative write against an existing domain.
type mutation struct {
	caller    string
	domain    string
	operation string // audit operation name
	entity    string // audited entity identity
	action    string // authorization verb
	resource  string // authorization resource; defaults to "<domain>:"+entity
	auditRef  string

	// authorized marks mutations whose access check already happened
	// against a different resource, such as system-admin quota changes.
	authorized bool

	apply func(d *authz.Domain) error
}

// run executes the standard mutation path described in the package doc.
func (s *Service) run(ctx context.Context, m mutation) error {
	unlock := s.lockDomain(m.domain)
	defer unlock()

	current, err := s.store.LoadDomain(ctx, m.domain)
	if err != nil {
		return err
	}

	if !m.authorized {
		resource := m.resource
		if resource == "" {
			resource = m.domain + ":" + m.entity
		}
		if !s.authr.Allowed(ctx, m.caller, m.action, resource) {
			return fmt.Errorf("%w: %s may not %s %s", authz.ErrForbidden, m.caller, m.action, resource)
		}
	}

	if err := requireAuditRef(current, m.auditRef); err != nil {
		return err
	}

	next := current.Clone()
	if err := m.apply(next); err != nil {
		return err
	}
	next.Tag = current.Tag + 1
	next.Modified = s.now()

	if err := s.store.CommitDomain(ctx, next, current.Tag); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Event{
		Principal: m.caller,
		Operation: m.operation,
		Domain:    m.domain,
		Entity:    m.entity,
		AuditRef:  m.auditRef,
	})
	s.notify(m.domain)
	return nil
}

// requireAuditRef enforces the justification reference on audit-enabled
// domains.
func requireAuditRef(d *authz.Domain, auditRef string) error {
	if d.Meta.AuditEnabled && auditRef == "" {
		return fmt.Errorf("%w: audit reference required for domain %q", authz.ErrInvalidRequest, d.Name)
	}
	return nil
}

func (s *Service) notify(domain string) {
	for _, fn := range s.onChange {
		fn(domain)
	}
}
