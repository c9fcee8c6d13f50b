package policy

import (
	"strings"

	"github.com/lattice-ai/authcore/internal/registry"
)

// Identity is the calling subject as asserted by the gateway. RoleVersion is
// a monotonically increasing stamp bumped whenever the subject's role set
// changes; it feeds the decision cache fingerprint.
type Identity struct {
	SubjectID      string
	TenantID       string
	Roles          []string
	ServiceAccount bool
	RoleVersion    int64
}

// Valid reports whether the identity carries the minimum required claims.
func (i Identity) Valid() bool {
	return strings.TrimSpace(i.SubjectID) != "" &&
		strings.TrimSpace(i.TenantID) != "" &&
		len(i.Roles) > 0
}

// Reason explains a deny or an infrastructure outcome on a decision.
type Reason string

const (
	// ReasonAllowed marks a granted decision.
	ReasonAllowed Reason = "Allowed"
	// ReasonNoMatchingPermission means no role grants the action on the type.
	ReasonNoMatchingPermission Reason = "NoMatchingPermission"
	// ReasonScopeViolation means a permission matched but its scope excludes
	// the resource's tenant or owner.
	ReasonScopeViolation Reason = "ScopeViolation"
)

// Decision is the immutable outcome of one evaluation. Permission is the
// grant that justified an allow, in action:resource:scope form; empty on
// deny. ID correlates the decision with its audit event.
type Decision struct {
	ID         string
	Allowed    bool
	Reason     Reason
	Permission string
	Scope      registry.Scope
}
