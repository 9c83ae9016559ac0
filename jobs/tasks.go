package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionSweep reaps sessions idle for longer than the session timeout.
	TaskSessionSweep = "sessions:sweep"
)

// SessionSweepPayload carries an optional timeout override.
type SessionSweepPayload struct {
	Timeout     time.Duration `json:"timeout,omitempty"`
	RequestedBy string        `json:"requested_by,omitempty"`
}

// NewSessionSweepTask constructs an Asynq task for a session sweep.
func NewSessionSweepTask(payload SessionSweepPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionSweep, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}
