package engine

import (
	"fmt"
	"slices"
	"time"

	"github.com/dmitrymomot/authzkit/pkg/authz"
)

// The membership workflow is identical for roles and groups, so both run
// through these helpers operating on a bare member slice plus its review
// policy.

// memberStateFor determines the initial state of an added entry: reviewed
// collections always start PENDING; self-service additions by the member
// themselves go straight to ACTIVE; anything else a non-admin files starts
// PENDING.
func memberStateFor(meta authz.ReviewPolicy, byAdmin bool) authz.MemberState {
	if meta.ReviewEnabled {
		return authz.MemberPending
	}
	if byAdmin {
		return authz.MemberActive
	}
	if meta.SelfServe {
		return authz.MemberActive
	}
	return authz.MemberPending
}

// applyReviewDefaults caps the entry with the collection's default
// expiration and re-review schedule. An explicit earlier expiration wins.
func applyReviewDefaults(m *authz.Member, meta authz.ReviewPolicy, now time.Time) {
	if meta.MemberExpiryDays > 0 {
		latest := now.AddDate(0, 0, meta.MemberExpiryDays)
		if m.Expiration.IsZero() || m.Expiration.After(latest) {
			m.Expiration = latest
		}
	}
	if meta.MemberReviewDays > 0 && m.ReviewDue.IsZero() {
		m.ReviewDue = now.AddDate(0, 0, meta.MemberReviewDays)
	}
}

// upsertMember adds the entry or, when the principal is already present,
// refreshes its expiration without touching the approval state.
func upsertMember(members []authz.Member, entry authz.Member) []authz.Member {
	i := slices.IndexFunc(members, func(m authz.Member) bool { return m.Principal == entry.Principal })
	if i < 0 {
		return append(members, entry)
	}
	members[i].Expiration = entry.Expiration
	members[i].ReviewDue = entry.ReviewDue
	return members
}

// decideMember applies a reviewer decision to a PENDING entry. Deciding an
// absent entry is NotFound; deciding a non-pending entry is Conflict, so a
// rejected-then-approved race resolves deterministically.
func decideMember(members []authz.Member, principal string, approve bool, expiration time.Time, meta authz.ReviewPolicy, now time.Time) ([]authz.Member, error) {
	i := slices.IndexFunc(members, func(m authz.Member) bool { return m.Principal == principal })
	if i < 0 {
		return nil, fmt.Errorf("%w: member %q", authz.ErrNotFound, principal)
	}
	if members[i].State != authz.MemberPending {
		return nil, fmt.Errorf("%w: member %q is %s, not pending", authz.ErrConflict, principal, members[i].State)
	}

	if !approve {
		return slices.Delete(members, i, i+1), nil
	}

	members[i].State = authz.MemberActive
	if !expiration.IsZero() {
		members[i].Expiration = expiration
	}
	applyReviewDefaults(&members[i], meta, now)
	return members, nil
}

// removeMember deletes the entry in any state.
func removeMember(members []authz.Member, principal string) ([]authz.Member, error) {
	i := slices.IndexFunc(members, func(m authz.Member) bool { return m.Principal == principal })
	if i < 0 {
		return nil, fmt.Errorf("%w: member %q", authz.ErrNotFound, principal)
	}
	return slices.Delete(members, i, i+1), nil
}

// removePendingMember deletes the entry only while it is still pending.
func removePendingMember(members []authz.Member, principal string) ([]authz.Member, error) {
	i := slices.IndexFunc(members, func(m authz.Member) bool { return m.Principal == principal })
	if i < 0 {
		return nil, fmt.Errorf("%w: member %q", authz.ErrNotFound, principal)
	}
	if members[i].State != authz.MemberPending {
		return nil, fmt.Errorf("%w: member %q is %s, not pending", authz.ErrConflict, principal, members[i].State)
	}
	return slices.Delete(members, i, i+1), nil
}
