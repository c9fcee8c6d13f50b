package audit

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueAudit is the queue dedicated to audit delivery.
	QueueAudit = "audit"
	// TaskTypeDecision is the task type carrying one decision audit event.
	TaskTypeDecision = "audit:decision"
)

// NewDecisionTask wraps an event into an Asynq task for the audit queue.
func NewDecisionTask(event Event) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDecision, data, asynq.Queue(QueueAudit)), nil
}
