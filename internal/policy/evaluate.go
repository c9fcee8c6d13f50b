package policy

import (
	"fmt"

	"github.com/lattice-ai/authcore/internal/ownership"
	"github.com/lattice-ai/authcore/internal/registry"
)

// Evaluate combines the identity's roles, the requested action and the
// resolved ownership into an allow/deny decision. It is pure and
// deterministic: identical inputs always produce the same outcome, which the
// decision cache and the audit trail both rely on.
//
// The decision ID is assigned by the caller; Evaluate leaves it empty.
func Evaluate(snap *registry.Snapshot, identity Identity, action string, resourceType string, record ownership.Record) (Decision, error) {
	action = registry.CanonicalName(action)
	resourceType = registry.CanonicalName(resourceType)

	matches := make([]registry.Permission, 0, 4)
	for _, roleName := range identity.Roles {
		perms, err := snap.EffectivePermissions(roleName)
		if err != nil {
			return Decision{}, fmt.Errorf("evaluate identity roles: %w", err)
		}
		for _, perm := range perms {
			if perm.Action == action && perm.ResourceType == resourceType {
				matches = append(matches, perm)
			}
		}
	}

	if len(matches) == 0 {
		return Decision{Allowed: false, Reason: ReasonNoMatchingPermission}, nil
	}

	granted := widest(matches)

	if scopeAllows(granted, identity, record) {
		return Decision{
			Allowed:    true,
			Reason:     ReasonAllowed,
			Permission: granted.String(),
			Scope:      granted.Scope,
		}, nil
	}
	return Decision{Allowed: false, Reason: ReasonScopeViolation}, nil
}

// widest selects the broadest matching grant; among equal scopes the
// lexicographically smallest rendering wins so the recorded justification is
// stable across runs.
func widest(matches []registry.Permission) registry.Permission {
	granted := matches[0]
	for _, perm := range matches[1:] {
		switch {
		case perm.Scope.Wider(granted.Scope):
			granted = perm
		case perm.Scope == granted.Scope && perm.String() < granted.String():
			granted = perm
		}
	}
	return granted
}

func scopeAllows(perm registry.Permission, identity Identity, record ownership.Record) bool {
	// Service accounts skip the ownership comparison, but only for grants
	// explicitly flagged exempt.
	if identity.ServiceAccount && perm.TenantExempt {
		return true
	}
	switch perm.Scope {
	case registry.ScopeGlobal:
		return true
	case registry.ScopeTenant:
		return identity.TenantID == record.TenantID
	case registry.ScopeOwn:
		return identity.TenantID == record.TenantID && identity.SubjectID == record.OwnerID
	default:
		return false
	}
}
