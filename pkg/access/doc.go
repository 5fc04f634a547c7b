// Package access implements the authorization decision function.
//
// Check answers whether a principal may perform an action on a resource.
// It is a pure read over committed domain snapshots: no mutation, no audit,
// safe for unlimited concurrent use. The decision combines:
//
//  1. resolving the resource to its owning domain,
//  2. collecting the principal's effective roles there (direct membership,
//     one level of group nesting, and cross-domain trust delegation),
//  3. matching policy assertions by action and resource pattern,
//  4. filtering on assertion conditions against caller attributes,
//  5. deny-overrides-allow, defaulting to deny when nothing matches.
//
// Check never returns an error: malformed or unresolvable input simply
// yields deny. The Ext variant relaxes resource qualification for callers
// that pass the domain separately from a bare resource string; the decision
// rule itself is identical.
package access
