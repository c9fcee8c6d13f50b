package audit

import "time"

// Event records one completed authorization decision. Events are append-only:
// this core creates and hands them off, never mutates or deletes them.
type Event struct {
	ID           string    `json:"id"`
	At           time.Time `json:"at"`
	SubjectID    string    `json:"subject_id"`
	TenantID     string    `json:"tenant_id"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	DecisionID   string    `json:"decision_id"`
	Allowed      bool      `json:"allowed"`
	Reason       string    `json:"reason"`
	Scope        string    `json:"scope,omitempty"`
	CacheHit     bool      `json:"cache_hit"`
}
