package audit

import (
	"context"
	"errors"
	"time"
)

// TimelineFilters narrow the audit read API.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Subject  string
	Tenant   string
	Action   string
	Page     int
	PageSize int
}

// Paging describes the window returned by Timeline.
type Paging struct {
	Page     int
	PageSize int
	HasNext  bool
}

// TimelineResult bundles one page of events.
type TimelineResult struct {
	Rows   []Event
	Paging Paging
}

// TimelineQuery is the repository-level request: limit is over-fetched by one
// row so the service can detect a next page without a count query.
type TimelineQuery struct {
	Filters TimelineFilters
	Limit   int
	Offset  int
}

// TimelineRepo reads persisted audit events.
type TimelineRepo interface {
	TimelineWindow(ctx context.Context, q TimelineQuery) ([]Event, error)
}

// Service exposes the audit read API.
type Service struct {
	repo TimelineRepo
}

// NewService constructs the service.
func NewService(repo TimelineRepo) *Service {
	return &Service{repo: repo}
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Timeline returns one page of audit events, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (TimelineResult, error) {
	if s == nil || s.repo == nil {
		return TimelineResult{}, errors.New("audit: service not configured")
	}
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = defaultPageSize
	}
	if filters.PageSize > maxPageSize {
		filters.PageSize = maxPageSize
	}

	rows, err := s.repo.TimelineWindow(ctx, TimelineQuery{
		Filters: filters,
		Limit:   filters.PageSize + 1,
		Offset:  (filters.Page - 1) * filters.PageSize,
	})
	if err != nil {
		return TimelineResult{}, err
	}

	result := TimelineResult{
		Paging: Paging{Page: filters.Page, PageSize: filters.PageSize},
	}
	if len(rows) > filters.PageSize {
		result.Paging.HasNext = true
		rows = rows[:filters.PageSize]
	}
	result.Rows = rows
	return result, nil
}
