// Package store defines the persistence boundary of the authorization core.
//
// A Store keeps one record per domain: the full entity set serialized in a
// *authz.Domain snapshot plus its modification tag. Commits are atomic per
// domain and guarded by a compare-and-swap on the tag, so a writer that lost
// a race fails with authz.ErrConflict instead of clobbering the other
// write. Listing supports the filter predicates the domain-list queries
// need (prefix, depth, account, product id, tags, role member, modified
// since) with name-based paging.
//
// The in-memory implementation in this package is the reference store used
// in tests and single-process deployments. Package postgres provides the
// durable implementation on pgx.
package store
