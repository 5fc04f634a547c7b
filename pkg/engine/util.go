package engine

import (
	"maps"
	"slices"

	"github.com/dmitrymomot/authzkit/pkg/audit"
)

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

func auditEvent(principal, operation, domain, entity, auditRef string) audit.Event {
	return audit.Event{
		Principal: principal,
		Operation: operation,
		Domain:    domain,
		Entity:    entity,
		AuditRef:  auditRef,
	}
}
