// Package quota bounds the cardinality of entities a domain may hold.
//
// The enforcer is a stateless check run by the engine immediately before a
// creating mutation commits, under the same per-domain write lock as the
// mutation itself, so a check-then-act race can never admit an over-quota
// write. Ceilings come from the domain's stored quota record and fall back
// to system defaults; existing data is never retroactively enforced.
package quota
