package registry

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lattice-ai/authcore/internal/platform/httpx"
)

// Handler exposes the registry read and reload API.
type Handler struct {
	store  *Store
	logger *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// MountRoutes registers registry routes. Authorization is applied by the
// caller when mounting.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/roles", h.listRoles)
	r.Get("/roles/{name}/permissions", h.rolePermissions)
	r.Post("/reload", h.reload)
}

type roleView struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Parents     []string `json:"parents,omitempty"`
}

type permissionView struct {
	Action       string `json:"action"`
	ResourceType string `json:"resource_type"`
	Scope        string `json:"scope"`
	TenantExempt bool   `json:"tenant_exempt,omitempty"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	roles := snap.Roles()
	views := make([]roleView, 0, len(roles))
	for _, role := range roles {
		views = append(views, roleView{Name: role.Name, Description: role.Description, Parents: role.Parents})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"version": snap.Version(),
		"roles":   views,
	})
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	perms, err := h.store.Snapshot().EffectivePermissions(name)
	if err != nil {
		if errors.Is(err, ErrUnknownRole) {
			httpx.Problem(w, http.StatusNotFound, "Unknown Role", err.Error())
			return
		}
		h.logger.Error("role permissions", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	views := make([]permissionView, 0, len(perms))
	for _, perm := range perms {
		views = append(views, permissionView{
			Action:       perm.Action,
			ResourceType: perm.ResourceType,
			Scope:        perm.Scope.String(),
			TenantExempt: perm.TenantExempt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role":        CanonicalName(name),
		"permissions": views,
	})
}

// reload swaps in a freshly loaded snapshot; on failure the previous
// snapshot keeps serving and the error is surfaced to the operator.
func (h *Handler) reload(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Reload(r.Context()); err != nil {
		h.logger.Error("registry reload", slog.Any("error", err))
		httpx.Problem(w, http.StatusUnprocessableEntity, "Reload Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"version": h.store.Snapshot().Version()})
}
