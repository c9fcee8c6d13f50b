package registry

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Scope bounds how far a permission reaches.
type Scope int

const (
	// ScopeOwn limits a permission to resources owned by the subject.
	ScopeOwn Scope = iota
	// ScopeTenant covers any resource inside the identity's tenant.
	ScopeTenant
	// ScopeGlobal crosses tenant boundaries, reserved for platform operators.
	ScopeGlobal
)

var scopeNames = map[Scope]string{
	ScopeOwn:    "own",
	ScopeTenant: "tenant",
	ScopeGlobal: "global",
}

// String returns the wire name of the scope.
func (s Scope) String() string {
	if name, ok := scopeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

// Wider reports whether s grants strictly broader access than other.
func (s Scope) Wider(other Scope) bool {
	return s > other
}

// ParseScope maps a wire name to a Scope.
func ParseScope(raw string) (Scope, error) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "own":
		return ScopeOwn, nil
	case "tenant":
		return ScopeTenant, nil
	case "global":
		return ScopeGlobal, nil
	default:
		return ScopeOwn, fmt.Errorf("registry: unknown scope %q", raw)
	}
}

// Permission grants one action on one resource type at a given scope.
type Permission struct {
	Action       string
	ResourceType string
	Scope        Scope
	// TenantExempt marks actions that service accounts may perform without
	// an ownership comparison.
	TenantExempt bool
}

// Key identifies the (action, resource-type) pair independent of scope.
func (p Permission) Key() string {
	return p.Action + ":" + p.ResourceType
}

// String renders the permission as action:resource:scope.
func (p Permission) String() string {
	return p.Action + ":" + p.ResourceType + ":" + p.Scope.String()
}

// Role groups permissions and may inherit from parent roles.
type Role struct {
	Name        string
	Description string
	Parents     []string
	Permissions []Permission
}

// Document is the versioned registry definition loaded at startup.
type Document struct {
	Version int64
	Roles   []Role
}

var identFolder = cases.Lower(language.Und)

// CanonicalName folds role and action identifiers to their canonical form so
// lookups are case-insensitive.
func CanonicalName(raw string) string {
	return identFolder.String(strings.TrimSpace(raw))
}
