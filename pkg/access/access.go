package access

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/dmitrymomot/authzkit/pkg/authz"
	"github.com/dmitrymomot/authzkit/pkg/match"
	"github.com/dmitrymomot/authzkit/pkg/store"
)

// Evaluator computes allow/deny decisions over committed domain snapshots.
type Evaluator struct {
	store store.Store
	now   func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the evaluation clock. Tests use it to pin expiration
// boundaries.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// New creates an evaluator reading from the given store.
func New(s store.Store, opts ...Option) *Evaluator {
	e := &Evaluator{store: s, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request is one access question.
type Request struct {
	// Principal is the already-authenticated identity the question is
	// about.
	Principal string

	// Action and Resource are matched against assertion patterns.
	// Resource is normally domain-qualified ("media.storage:file.2024");
	// a bare resource needs the Domain hint.
	Action   string
	Resource string

	// Domain overrides resource-prefix parsing when set.
	Domain string

	// Attributes is the caller-supplied context assertion conditions are
	// evaluated against.
	Attributes map[string]string
}

// Decision is the evaluator's answer.
type Decision struct {
	Allowed bool

	// Matched is the assertion that decided the outcome: the deny winner,
	// or the first matching allow. Nil on default-deny.
	Matched *authz.Assertion
}

var deny = Decision{}

// Check evaluates the request with deny-overrides-allow semantics. It never
// returns an error; any malformed or unresolvable input yields deny.
func (e *Evaluator) Check(ctx context.Context, req Request) Decision {
	return e.check(ctx, req, false)
}

// CheckExt is the extended-matching variant: the supplied resource is also
// matched as-is against assertion patterns, accommodating callers that keep
// the domain and a bare resource string separate.
func (e *Evaluator) CheckExt(ctx context.Context, req Request) Decision {
	return e.check(ctx, req, true)
}

func (e *Evaluator) check(ctx context.Context, req Request, ext bool) Decision {
	if req.Principal == "" || req.Action == "" || req.Resource == "" {
		return deny
	}

	domainName, qualified := resolveResource(req)
	if domainName == "" {
		return deny
	}

	res := e.newResolution(ctx)
	d := res.domain(domainName)
	if d == nil {
		return deny
	}

	roles := res.effectiveRoles(d, req.Principal)
	if len(roles) == 0 {
		return deny
	}

	candidates := e.candidates(d, roles, req, qualified, ext)
	return decide(candidates)
}

// resolveResource determines the owning domain and the fully qualified
// resource string.
func resolveResource(req Request) (domain, qualified string) {
	if rd, _, ok := authz.SplitResource(req.Resource); ok {
		if req.Domain != "" && req.Domain != rd {
			// A contradictory hint is unresolvable input.
			return "", ""
		}
		return rd, req.Resource
	}
	if req.Domain == "" {
		return "", ""
	}
	return req.Domain, req.Domain + ":" + req.Resource
}

// candidates collects the assertions that match the request for any of the
// principal's effective roles, in deterministic policy order.
func (e *Evaluator) candidates(d *authz.Domain, roles map[string]struct{}, req Request, qualified string, ext bool) []authz.Assertion {
	var out []authz.Assertion
	for _, pname := range slices.Sorted(maps.Keys(d.Policies)) {
		for _, a := range d.Policies[pname].Assertions {
			refDomain, refRole, ok := authz.SplitRoleRef(a.Role)
			if !ok || refDomain != d.Name {
				continue
			}
			if _, held := roles[refRole]; !held {
				continue
			}
			if !match.Match(a.Action, req.Action) {
				continue
			}
			if !resourceMatches(a.Resource, qualified, req.Resource, ext) {
				continue
			}
			if !conditionsHold(a.Conditions, req.Attributes) {
				continue
			}
			out = append(out, a)
		}
	}
	return out
}

func resourceMatches(pattern, qualified, raw string, ext bool) bool {
	if match.Match(pattern, qualified) {
		return true
	}
	// Extended matching also accepts the resource exactly as supplied,
	// for legacy callers whose assertions carry unqualified patterns.
	return ext && raw != qualified && match.Match(pattern, raw)
}

func conditionsHold(conds []authz.Condition, attrs map[string]string) bool {
	for _, c := range conds {
		v, ok := attrs[c.Key]
		if !ok || !match.Match(c.Value, v) {
			return false
		}
	}
	return true
}

// decide applies deny-overrides-allow over the candidate set.
func decide(candidates []authz.Assertion) Decision {
	var allowed *authz.Assertion
	for i := range candidates {
		switch candidates[i].Effect {
		case authz.EffectDeny:
			a := candidates[i].Clone()
			return Decision{Allowed: false, Matched: &a}
		case authz.EffectAllow:
			if allowed == nil {
				allowed = &candidates[i]
			}
		}
	}
	if allowed == nil {
		return deny
	}
	a := allowed.Clone()
	return Decision{Allowed: true, Matched: &a}
}
