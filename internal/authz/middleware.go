package authz

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// Gateway-asserted identity headers for the admin surface. The gateway
// authenticates callers; this core only authorizes them.
const (
	HeaderSubject     = "X-Authcore-Subject"
	HeaderTenant      = "X-Authcore-Tenant"
	HeaderRoles       = "X-Authcore-Roles"
	HeaderRoleVersion = "X-Authcore-Role-Version"
)

// Middleware guards the admin endpoints with the core's own decision path.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Require authorizes the request identity for action on the given platform
// resource before passing through.
func (m Middleware) Require(action, resourceType, resourceID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req, ok := requestFromHeaders(r, action, resourceType, resourceID)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			dec, err := m.Service.Authorize(r.Context(), req)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("admin authorize", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			if !dec.Allowed {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestFromHeaders(r *http.Request, action, resourceType, resourceID string) (Request, bool) {
	subject := strings.TrimSpace(r.Header.Get(HeaderSubject))
	tenant := strings.TrimSpace(r.Header.Get(HeaderTenant))
	rolesRaw := strings.TrimSpace(r.Header.Get(HeaderRoles))
	if subject == "" || tenant == "" || rolesRaw == "" {
		return Request{}, false
	}
	var roles []string
	for _, role := range strings.Split(rolesRaw, ",") {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		return Request{}, false
	}
	version, _ := strconv.ParseInt(strings.TrimSpace(r.Header.Get(HeaderRoleVersion)), 10, 64)
	return Request{
		SubjectID:    subject,
		TenantID:     tenant,
		Roles:        roles,
		RoleVersion:  version,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}, true
}
