package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/lattice-ai/authcore/internal/audit"
	jobmetrics "github.com/lattice-ai/authcore/internal/jobs"
)

// Worker wraps the Asynq server draining the audit queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *slog.Logger
	Writer    *audit.Writer
	Metrics   *jobmetrics.Metrics
	Handlers  []TaskHandler
}

// NewWorker constructs a Worker instance. The audit queue gets strict
// priority so decision trails drain before anything else.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Writer == nil {
		return nil, errors.New("jobs: audit writer required")
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			audit.QueueAudit: 3,
			"default":        1,
		},
	})
	mux := asynq.NewServeMux()

	writeDecision := cfg.Writer.HandleDecisionTask
	if cfg.Metrics != nil {
		metrics := cfg.Metrics
		mux.HandleFunc(audit.TaskTypeDecision, func(ctx context.Context, t *asynq.Task) error {
			tracker := metrics.Track("audit_decision_write")
			return tracker.End(writeDecision(ctx, t))
		})
	} else {
		mux.HandleFunc(audit.TaskTypeDecision, writeDecision)
	}

	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	return &Worker{server: srv, mux: mux, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("jobs: worker not configured")
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
