package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGTimelineRepo reads the audit_events table.
type PGTimelineRepo struct {
	pool *pgxpool.Pool
}

// NewPGTimelineRepo constructs the repository.
func NewPGTimelineRepo(pool *pgxpool.Pool) *PGTimelineRepo {
	return &PGTimelineRepo{pool: pool}
}

// TimelineWindow fetches one window of events, newest first.
func (r *PGTimelineRepo) TimelineWindow(ctx context.Context, q TimelineQuery) ([]Event, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !q.Filters.From.IsZero() {
		add("occurred_at >= $%d", q.Filters.From)
	}
	if !q.Filters.To.IsZero() {
		add("occurred_at <= $%d", q.Filters.To)
	}
	if q.Filters.Subject != "" {
		add("subject_id = $%d", q.Filters.Subject)
	}
	if q.Filters.Tenant != "" {
		add("tenant_id = $%d", q.Filters.Tenant)
	}
	if q.Filters.Action != "" {
		add("action = $%d", q.Filters.Action)
	}

	query := `SELECT id, occurred_at, subject_id, tenant_id, action, resource_type, resource_id, decision_id, allowed, reason, scope, cache_hit FROM audit_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, q.Limit)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d", len(args))
	args = append(args, q.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline query: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event Event
			at    pgtype.Timestamptz
			scope pgtype.Text
		)
		if err := rows.Scan(&event.ID, &at, &event.SubjectID, &event.TenantID,
			&event.Action, &event.ResourceType, &event.ResourceID,
			&event.DecisionID, &event.Allowed, &event.Reason, &scope, &event.CacheHit); err != nil {
			return nil, err
		}
		if at.Valid {
			event.At = at.Time
		}
		if scope.Valid {
			event.Scope = scope.String
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
