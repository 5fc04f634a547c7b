// Package postgres persists domain snapshots in PostgreSQL. Each domain is
// one row holding the full snapshot as jsonb next to the modification tag
// and the metadata columns the domain listing filters on. Commits apply the
// compare-and-swap contract of store.Store: an UPDATE guarded by the
// expected tag, an INSERT for tag zero.
//
// Connection pooling goes through pgx; schema migrations are embedded and
// applied with goose.
package postgres
