package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// QueueDefault is the queue for housekeeping jobs.
	QueueDefault = "default"
	// TaskTypeAuditPurge trims audit events past the retention horizon.
	TaskTypeAuditPurge = "audit:purge"
)

// AuditPurgePayload bounds one retention sweep.
type AuditPurgePayload struct {
	OlderThanDays int `json:"older_than_days"`
}

// NewAuditPurgeTask constructs an Asynq task.
func NewAuditPurgeTask(payload AuditPurgePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditPurge, data, asynq.Queue(QueueDefault)), nil
}

// NewAuditPurgeHandler returns the handler deleting expired audit rows.
func NewAuditPurgeHandler(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload AuditPurgePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.OlderThanDays < 1 {
			return fmt.Errorf("retention horizon must be at least one day: %w", asynq.SkipRetry)
		}
		cutoff := time.Now().UTC().AddDate(0, 0, -payload.OlderThanDays)
		tag, err := pool.Exec(ctx, `DELETE FROM audit_events WHERE occurred_at < $1`, cutoff)
		if err != nil {
			return fmt.Errorf("jobs: audit purge: %w", err)
		}
		if logger != nil {
			logger.Info("audit retention sweep",
				slog.Time("cutoff", cutoff),
				slog.Int64("deleted", tag.RowsAffected()))
		}
		return nil
	}
}
