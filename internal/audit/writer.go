package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Writer drains decision tasks into the audit_events table.
type Writer struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewWriter constructs the writer.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{pool: pool, logger: logger}
}

// HandleDecisionTask processes one audit:decision task. Malformed payloads
// are dropped rather than retried; a duplicate event id means the queue
// redelivered an already written task and counts as success.
func (w *Writer) HandleDecisionTask(ctx context.Context, t *asynq.Task) error {
	var event Event
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		if w.logger != nil {
			w.logger.Error("audit task payload malformed", slog.Any("error", err))
		}
		return asynq.SkipRetry
	}
	_, err := w.pool.Exec(ctx, `
		INSERT INTO audit_events (id, occurred_at, subject_id, tenant_id, action, resource_type, resource_id, decision_id, allowed, reason, scope, cache_hit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		event.ID, event.At, event.SubjectID, event.TenantID, event.Action,
		event.ResourceType, event.ResourceID, event.DecisionID, event.Allowed,
		event.Reason, event.Scope, event.CacheHit)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil
		}
		return err
	}
	return nil
}
