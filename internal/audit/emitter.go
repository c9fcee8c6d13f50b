package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Emitter hands events to the audit pipeline. Implementations guarantee
// at-least-attempted delivery, never durability; authorization correctness is
// never coupled to the sink being up.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// AsynqEmitter enqueues events onto the audit queue for the worker to drain.
type AsynqEmitter struct {
	client  *asynq.Client
	timeout time.Duration
}

// NewAsynqEmitter constructs the emitter.
func NewAsynqEmitter(client *asynq.Client) *AsynqEmitter {
	return &AsynqEmitter{client: client, timeout: 5 * time.Second}
}

// Emit enqueues the event. The enqueue runs on a context detached from the
// caller's cancellation scope so a cancelled request still gets its trail
// attempted.
func (e *AsynqEmitter) Emit(ctx context.Context, event Event) error {
	if e == nil || e.client == nil {
		return errors.New("audit: emitter not configured")
	}
	task, err := NewDecisionTask(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()
	_, err = e.client.EnqueueContext(ctx, task)
	return err
}

// LogEmitter writes events to the structured log only. Used when no queue is
// configured, and in tests.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit logs the event.
func (e LogEmitter) Emit(ctx context.Context, event Event) error {
	if e.Logger == nil {
		return nil
	}
	e.Logger.Info("audit event",
		slog.String("decision_id", event.DecisionID),
		slog.String("subject", event.SubjectID),
		slog.String("tenant", event.TenantID),
		slog.String("action", event.Action),
		slog.String("resource", event.ResourceType+"/"+event.ResourceID),
		slog.Bool("allowed", event.Allowed),
		slog.String("reason", event.Reason))
	return nil
}
