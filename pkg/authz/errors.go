package authz

import "errors"

// Error taxonomy for administrative operations. The access evaluator never
// returns these: a malformed or unresolvable decision input yields deny.
var (
	// ErrNotFound is returned when a referenced domain, role, group,
	// policy, service, entity or member does not exist.
	ErrNotFound = errors.New("authz.not_found")

	// ErrConflict is returned on a state transition from the wrong state
	// (e.g. deciding a membership that is no longer pending) or when a
	// commit loses the optimistic-concurrency race on the modification tag.
	ErrConflict = errors.New("authz.conflict")

	// ErrInvalidRequest is returned for malformed names, unresolvable role
	// references, illegal domain hierarchy and missing audit justification.
	ErrInvalidRequest = errors.New("authz.invalid_request")

	// ErrQuotaExceeded is returned when a creating mutation would push an
	// entity count past the domain's ceiling. The mutation is not applied.
	ErrQuotaExceeded = errors.New("authz.quota_exceeded")

	// ErrForbidden is returned when the calling principal lacks
	// administrative rights over the target domain.
	ErrForbidden = errors.New("authz.forbidden")
)
