package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPermissionCacheWarmup rebuilds the shared permission snapshot.
	TaskPermissionCacheWarmup = "rbac:cache_warmup"
	// TaskSessionSweep removes expired login session records.
	TaskSessionSweep = "auth:session_sweep"
)

// SessionSweepPayload narrows the sweep to sessions expired before a cutoff.
// A zero cutoff means "now".
type SessionSweepPayload struct {
	Before string `json:"before,omitempty"`
}

// NewPermissionCacheWarmupTask constructs a warmup task.
func NewPermissionCacheWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskPermissionCacheWarmup, nil)
}

// NewSessionSweepTask constructs a session sweep task.
func NewSessionSweepTask(payload SessionSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionSweep, data), nil
}
