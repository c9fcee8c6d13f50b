package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownRole indicates a role name absent from the registry.
var ErrUnknownRole = errors.New("registry: unknown role")

// CycleError reports a cycle in the role parent graph.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return "registry: cyclic role definition: " + strings.Join(e.Cycle, " -> ")
}

// Snapshot is an immutable view of the registry with the transitive closure
// of every role's permissions computed up front. Safe for concurrent reads.
type Snapshot struct {
	version   int64
	roles     map[string]Role
	effective map[string][]Permission
}

// NewSnapshot validates the document, detects inheritance cycles and
// precomputes effective permission sets. Construction fails rather than
// producing a partially usable registry.
func NewSnapshot(doc Document) (*Snapshot, error) {
	roles := make(map[string]Role, len(doc.Roles))
	for _, r := range doc.Roles {
		name := CanonicalName(r.Name)
		if name == "" {
			return nil, errors.New("registry: role with empty name")
		}
		if _, dup := roles[name]; dup {
			return nil, fmt.Errorf("registry: duplicate role %q", name)
		}
		normalized := Role{
			Name:        name,
			Description: r.Description,
			Parents:     make([]string, 0, len(r.Parents)),
			Permissions: make([]Permission, 0, len(r.Permissions)),
		}
		for _, p := range r.Parents {
			normalized.Parents = append(normalized.Parents, CanonicalName(p))
		}
		for _, perm := range r.Permissions {
			perm.Action = CanonicalName(perm.Action)
			perm.ResourceType = CanonicalName(perm.ResourceType)
			if perm.Action == "" || perm.ResourceType == "" {
				return nil, fmt.Errorf("registry: role %q has a permission without action or resource type", name)
			}
			normalized.Permissions = append(normalized.Permissions, perm)
		}
		roles[name] = normalized
	}

	for name, role := range roles {
		for _, parent := range role.Parents {
			if _, ok := roles[parent]; !ok {
				return nil, fmt.Errorf("%w: role %q references parent %q", ErrUnknownRole, name, parent)
			}
		}
	}

	snap := &Snapshot{
		version:   doc.Version,
		roles:     roles,
		effective: make(map[string][]Permission, len(roles)),
	}

	// Deterministic order so any cycle error names the same cycle every run.
	names := make([]string, 0, len(roles))
	for name := range roles {
		names = append(names, name)
	}
	sort.Strings(names)

	state := make(map[string]int, len(roles)) // 0 unvisited, 1 visiting, 2 done
	for _, name := range names {
		if err := snap.closeOver(name, state, nil); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// closeOver computes the effective permission set for one role via
// depth-first traversal of its ancestors, failing on the first cycle.
func (s *Snapshot) closeOver(name string, state map[string]int, path []string) error {
	switch state[name] {
	case 2:
		return nil
	case 1:
		cycle := append(path[cycleStart(path, name):], name)
		return &CycleError{Cycle: cycle}
	}
	state[name] = 1
	path = append(path, name)

	role := s.roles[name]
	merged := make(map[string]Permission)
	for _, parent := range role.Parents {
		if err := s.closeOver(parent, state, path); err != nil {
			return err
		}
		for _, perm := range s.effective[parent] {
			mergeWidest(merged, perm)
		}
	}
	for _, perm := range role.Permissions {
		mergeWidest(merged, perm)
	}

	flat := make([]Permission, 0, len(merged))
	for _, perm := range merged {
		flat = append(flat, perm)
	}
	sort.Slice(flat, func(i, j int) bool { return flat[i].Key() < flat[j].Key() })
	s.effective[name] = flat
	state[name] = 2
	return nil
}

// mergeWidest deduplicates on (action, resource-type); when two ancestors
// grant the same pair at different scopes the widest scope wins.
func mergeWidest(merged map[string]Permission, perm Permission) {
	key := perm.Key()
	existing, ok := merged[key]
	if !ok || perm.Scope.Wider(existing.Scope) {
		merged[key] = perm
		return
	}
	// Equal scope: an exemption flag from any grantor sticks.
	if perm.Scope == existing.Scope && perm.TenantExempt && !existing.TenantExempt {
		existing.TenantExempt = true
		merged[key] = existing
	}
}

func cycleStart(path []string, name string) int {
	for i, n := range path {
		if n == name {
			return i
		}
	}
	return 0
}

// Version returns the document version this snapshot was built from.
func (s *Snapshot) Version() int64 {
	return s.version
}

// Roles lists all roles ordered by name.
func (s *Snapshot) Roles() []Role {
	out := make([]Role, 0, len(s.roles))
	for _, role := range s.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// EffectivePermissions returns the precomputed closure for a role. The
// returned slice must not be mutated by callers.
func (s *Snapshot) EffectivePermissions(roleName string) ([]Permission, error) {
	perms, ok := s.effective[CanonicalName(roleName)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, roleName)
	}
	return perms, nil
}
