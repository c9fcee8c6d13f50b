package decision

import (
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/lattice-ai/authcore/internal/ownership"
	"github.com/lattice-ai/authcore/internal/policy"
	"github.com/lattice-ai/authcore/internal/registry"
)

// Fingerprint derives the cache key for one authorization request. It covers
// the subject, tenant, sorted role set, role-set version, registry version,
// action, resource reference and the ownership version hint, so bumping any
// version yields a fresh key and a stale entry can never be read back.
func Fingerprint(registryVersion int64, identity policy.Identity, action string, ref ownership.Ref, ownershipVersion int64) string {
	roles := make([]string, len(identity.Roles))
	for i, r := range identity.Roles {
		roles[i] = registry.CanonicalName(r)
	}
	sort.Strings(roles)

	var b strings.Builder
	b.WriteString(strconv.FormatInt(registryVersion, 10))
	b.WriteByte('|')
	b.WriteString(identity.SubjectID)
	b.WriteByte('|')
	b.WriteString(identity.TenantID)
	b.WriteByte('|')
	b.WriteString(strings.Join(roles, ","))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(identity.RoleVersion, 10))
	b.WriteByte('|')
	if identity.ServiceAccount {
		b.WriteByte('s')
	}
	b.WriteByte('|')
	b.WriteString(registry.CanonicalName(action))
	b.WriteByte('|')
	b.WriteString(ref.Type)
	b.WriteByte('/')
	b.WriteString(ref.ID)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(ownershipVersion, 10))

	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
