package ownership

import (
	"errors"
	"strings"
)

// Sentinel errors surfaced by resolvers.
var (
	// ErrResourceNotFound indicates the referenced resource does not exist.
	ErrResourceNotFound = errors.New("ownership: resource not found")
	// ErrResolutionTimeout indicates the owning service missed its deadline.
	ErrResolutionTimeout = errors.New("ownership: resolution timeout")
	// ErrUnknownResourceType indicates no resolver is registered for the type.
	ErrUnknownResourceType = errors.New("ownership: unknown resource type")
)

// Ref points at one resource instance.
type Ref struct {
	Type string
	ID   string
}

// Valid reports whether the reference carries both parts.
func (r Ref) Valid() bool {
	return strings.TrimSpace(r.Type) != "" && strings.TrimSpace(r.ID) != ""
}

func (r Ref) String() string {
	return r.Type + "/" + r.ID
}

// Record is the resolved ownership metadata for a resource instance.
// Version is a monotonically increasing stamp bumped by the owning service
// whenever ownership changes; zero when the owning service does not track one.
type Record struct {
	TenantID string
	OwnerID  string
	Parent   *Ref
	Version  int64
}
