package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskSagaRunCleanup = "saga.runs.cleanup"

// RunCleanupPayload carries the retention cutoff: finished runs older than
// Cutoff are deleted.
type RunCleanupPayload struct {
	Cutoff time.Time `json:"cutoff"`
}

func NewRunCleanupTask(payload RunCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSagaRunCleanup, data), nil
}

func ParseRunCleanupPayload(task *asynq.Task) (RunCleanupPayload, error) {
	var payload RunCleanupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RunCleanupPayload{}, err
	}
	return payload, nil
}
