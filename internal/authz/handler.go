package authz

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lattice-ai/authcore/internal/ownership"
	"github.com/lattice-ai/authcore/internal/platform/httpx"
	"github.com/lattice-ai/authcore/internal/policy"
)

// Handler exposes the decision API.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// MountRoutes registers the decision endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/authorize", h.authorize)
	r.Post("/authorize/batch", h.authorizeBatch)
}

type decisionResponse struct {
	DecisionID string `json:"decision_id"`
	Allowed    bool   `json:"allowed"`
	Reason     string `json:"reason"`
	Permission string `json:"permission,omitempty"`
	Scope      string `json:"scope,omitempty"`
}

func toResponse(dec policy.Decision) decisionResponse {
	resp := decisionResponse{
		DecisionID: dec.ID,
		Allowed:    dec.Allowed,
		Reason:     string(dec.Reason),
		Permission: dec.Permission,
	}
	if dec.Allowed {
		resp.Scope = dec.Scope.String()
	}
	return resp
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "request body must be valid JSON")
		return
	}
	dec, err := h.service.Authorize(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(dec))
}

type batchRequest struct {
	Checks []Request `json:"checks"`
}

type batchItemResponse struct {
	Decision *decisionResponse `json:"decision,omitempty"`
	Error    string            `json:"error,omitempty"`
}

const maxBatchSize = 100

func (h *Handler) authorizeBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "request body must be valid JSON")
		return
	}
	if len(req.Checks) == 0 || len(req.Checks) > maxBatchSize {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "batch must contain between 1 and 100 checks")
		return
	}
	items := h.service.AuthorizeBatch(r.Context(), req.Checks)
	resp := make([]batchItemResponse, len(items))
	for i, item := range items {
		if item.Err != nil {
			resp[i] = batchItemResponse{Error: item.Err.Error()}
			continue
		}
		d := toResponse(item.Decision)
		resp[i] = batchItemResponse{Decision: &d}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"results": resp})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ownership.ErrUnknownResourceType):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	case errors.Is(err, ownership.ErrResourceNotFound):
		httpx.Problem(w, http.StatusNotFound, "Resource Not Found", err.Error())
	case errors.Is(err, ownership.ErrResolutionTimeout):
		httpx.Problem(w, http.StatusGatewayTimeout, "Ownership Resolution Timeout", err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; chi's middleware will not write anyway.
		httpx.Problem(w, http.StatusServiceUnavailable, "Request Cancelled", "")
	default:
		h.logger.Error("authorize", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
