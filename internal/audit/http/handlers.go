package audithttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lattice-ai/authcore/internal/audit"
	"github.com/lattice-ai/authcore/internal/platform/httpx"
)

const (
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.TimelineResult, error)
}

// Handler serves the audit read API.
type Handler struct {
	service TimelineService
	logger  *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(service TimelineService, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// MountRoutes registers audit routes. Authorization is applied by the caller
// when mounting.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.timeline)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, problem := parseFilters(r)
	if problem != "" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filters", problem)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"rows": result.Rows,
		"paging": map[string]any{
			"page":      result.Paging.Page,
			"page_size": result.Paging.PageSize,
			"has_next":  result.Paging.HasNext,
		},
	})
}

func parseFilters(r *http.Request) (audit.TimelineFilters, string) {
	q := r.URL.Query()
	filters := audit.TimelineFilters{
		Subject: strings.TrimSpace(q.Get("subject")),
		Tenant:  strings.TrimSpace(q.Get("tenant")),
		Action:  strings.TrimSpace(q.Get("action")),
	}
	now := time.Now().UTC()
	filters.From = now.Add(-defaultDateRange)
	filters.To = now

	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, "from must be RFC3339"
		}
		filters.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, "to must be RFC3339"
		}
		filters.To = t
	}
	if filters.To.Before(filters.From) {
		return filters, "to must not precede from"
	}
	if filters.To.Sub(filters.From) > maxDateRange {
		return filters, "date range must not exceed 90 days"
	}
	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return filters, "page must be a positive integer"
		}
		filters.Page = page
	}
	if raw := q.Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			return filters, "page_size must be a positive integer"
		}
		filters.PageSize = size
	}
	return filters, ""
}
