package authz

import (
	"regexp"
	"strings"
)

// Name syntax follows the dotted-namespace convention: each segment starts
// with an alphanumeric or underscore and may continue with hyphens. Domain,
// role, group, policy and service names are all compound (dotted) names;
// principals are "<domain>.<simple-name>".
var (
	simpleNameRe   = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_-]*$`)
	compoundNameRe = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_-]*(\.[a-zA-Z0-9_][a-zA-Z0-9_-]*)*$`)
)

const (
	rolePrefix  = ":role."
	groupPrefix = ":group."
)

// ValidSimpleName reports whether s is a single legal name segment.
func ValidSimpleName(s string) bool {
	return simpleNameRe.MatchString(s)
}

// ValidCompoundName reports whether s is a legal dotted name.
func ValidCompoundName(s string) bool {
	return compoundNameRe.MatchString(s)
}

// ParentDomain returns the parent of a dotted domain name, or "" when the
// domain is top-level.
func ParentDomain(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[:i]
}

// DomainDepth returns the number of segments in a domain name.
func DomainDepth(name string) int {
	if name == "" {
		return 0
	}
	return strings.Count(name, ".") + 1
}

// RoleRef builds the domain-qualified reference assertions use for a role.
func RoleRef(domain, role string) string {
	return domain + rolePrefix + role
}

// SplitRoleRef parses a qualified role reference ("domain:role.name") into
// its domain and role name. ok is false when ref is not a role reference.
func SplitRoleRef(ref string) (domain, role string, ok bool) {
	i := strings.Index(ref, rolePrefix)
	if i <= 0 || i+len(rolePrefix) >= len(ref) {
		return "", "", false
	}
	return ref[:i], ref[i+len(rolePrefix):], true
}

// GroupRef builds the qualified form under which a group appears as a role
// member ("domain:group.name").
func GroupRef(domain, group string) string {
	return domain + groupPrefix + group
}

// SplitGroupRef parses a qualified group reference. ok is false when ref is
// a plain principal rather than a group reference.
func SplitGroupRef(ref string) (domain, group string, ok bool) {
	i := strings.Index(ref, groupPrefix)
	if i <= 0 || i+len(groupPrefix) >= len(ref) {
		return "", "", false
	}
	return ref[:i], ref[i+len(groupPrefix):], true
}

// SplitResource parses a qualified resource ("domain:rest") into the owning
// domain and the domain-local resource part.
func SplitResource(resource string) (domain, rest string, ok bool) {
	i := strings.IndexByte(resource, ':')
	if i <= 0 || i+1 >= len(resource) {
		return "", "", false
	}
	return resource[:i], resource[i+1:], true
}
