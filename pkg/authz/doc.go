// Package authz defines the data model shared by the authorization engine:
// hierarchical domains and the roles, groups, policies, service identities,
// entities and trust relations they own.
//
// The model is deliberately plain. Every type is a value that can be deep
// copied with Clone, and a committed *Domain is treated as an immutable
// snapshot: mutations clone the domain, change the clone, bump the
// modification tag and hand the clone back to the store. This keeps
// concurrent readers safe without locks on the read path.
//
// Key concepts:
//
//   - Domain: a dot-separated namespace ("media.storage") owning everything
//     else. The parent of a nested domain must already exist, so the set of
//     domains forms a forest.
//   - Role: a named member set, or a delegated role trusting another domain.
//   - Group: a member set roles can reference as a single principal
//     ("media.storage:group.editors"). Groups never contain groups.
//   - Policy: an ordered list of assertions, each binding an effect to
//     (action pattern, resource pattern, role) with optional conditions.
//   - Modification tag: a monotonically increasing version used both for
//     optimistic concurrency on commit and as the cache-validation key of
//     signed snapshots.
//
// Errors returned by the engine packages are classified by the sentinel
// errors in this package (ErrNotFound, ErrConflict, ErrInvalidRequest,
// ErrQuotaExceeded, ErrForbidden) and can be matched with errors.Is.
package authz
