package ownership

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Resolver answers ownership lookups for a single resource type.
type Resolver interface {
	Resolve(ctx context.Context, id string) (Record, error)
}

// maxParentDepth bounds the nested-resource walk so a bad parent link in an
// owning service cannot loop the resolver.
const maxParentDepth = 8

// Registry dispatches resolution by resource type and walks parent chains
// for nested resources. Resolvers are registered at startup and the set is
// immutable afterwards.
type Registry struct {
	resolvers map[string]Resolver
}

// NewRegistry builds the dispatch table.
func NewRegistry() *Registry {
	return &Registry{resolvers: make(map[string]Resolver)}
}

// Register installs the resolver for a resource type. Must happen before the
// registry serves lookups; last registration for a type wins.
func (r *Registry) Register(resourceType string, resolver Resolver) {
	r.resolvers[normalizeType(resourceType)] = resolver
}

// Resolve determines the authoritative tenant and owner for ref. For nested
// resources the parent chain is walked until a record carries its own tenant
// id; a resource's own tenant always wins over an inherited one so a stale
// parent link can never widen access.
func (r *Registry) Resolve(ctx context.Context, ref Ref) (Record, error) {
	if !ref.Valid() {
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownResourceType, ref.Type)
	}

	record, err := r.resolveOne(ctx, ref)
	if err != nil {
		return Record{}, err
	}

	current := record
	depth := 0
	for (current.TenantID == "" || current.OwnerID == "") && current.Parent != nil {
		depth++
		if depth > maxParentDepth {
			return Record{}, fmt.Errorf("ownership: parent chain for %s exceeds depth %d", ref, maxParentDepth)
		}
		parent, err := r.resolveOne(ctx, *current.Parent)
		if err != nil {
			return Record{}, err
		}
		if record.TenantID == "" {
			record.TenantID = parent.TenantID
		}
		if record.OwnerID == "" {
			record.OwnerID = parent.OwnerID
		}
		current = parent
	}

	if record.TenantID == "" {
		return Record{}, fmt.Errorf("%w: %s has no authoritative tenant", ErrResourceNotFound, ref)
	}
	return record, nil
}

func (r *Registry) resolveOne(ctx context.Context, ref Ref) (Record, error) {
	resolver, ok := r.resolvers[normalizeType(ref.Type)]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownResourceType, ref.Type)
	}
	record, err := resolver.Resolve(ctx, ref.ID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Record{}, fmt.Errorf("%w: %s", ErrResolutionTimeout, ref)
		}
		return Record{}, err
	}
	return record, nil
}

func normalizeType(t string) string {
	return strings.TrimSpace(strings.ToLower(t))
}
