package match

import "strings"

// Match reports whether value matches pattern under the closed grammar:
// exact comparison, "*" wildcard, trailing-'*' prefix match or leading-'*'
// suffix match.
func Match(pattern, value string) bool {
	switch {
	case pattern == "*":
		return true
	case pattern == "":
		return value == ""
	case len(pattern) > 1 && strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(value, pattern[:len(pattern)-1])
	case len(pattern) > 1 && strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(value, pattern[1:])
	default:
		return pattern == value
	}
}
