// Package engine implements the administrative write surface of the
// authorization core: domain, role, group, policy, service identity and
// entity lifecycle, the membership approval workflow, tenancy trust
// relations and per-domain quotas.
//
// Every mutation follows one path: acquire the domain's write lock, load
// the committed snapshot, authorize the caller against the admin policy
// (a degenerate access-evaluator check), validate the request including
// the audit justification, run the quota check, apply the change to a
// clone, bump the modification tag and commit under compare-and-swap.
// Only after a successful commit is the audit event emitted and change
// listeners notified; audit failures never roll the mutation back.
//
// Mutations on one domain are linearized by the per-domain lock while
// distinct domains proceed in parallel. Reads go straight to the store
// and never block behind writers.
package engine
