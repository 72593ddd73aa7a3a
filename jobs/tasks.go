package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/dealdesk/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskFXRefresh pulls the latest exchange rates from the feed.
	TaskFXRefresh = "fx:refresh"
	// TaskLogisticsBackfill provisions stages for deals that have none.
	TaskLogisticsBackfill = "logistics:backfill"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// LogisticsBackfillPayload bounds one backfill run.
type LogisticsBackfillPayload struct {
	Batch int `json:"batch"`
}

// NewFXRefreshTask builds the rate refresh task.
func NewFXRefreshTask() *asynq.Task {
	return asynq.NewTask(TaskFXRefresh, nil, asynq.Queue(QueueDefault))
}

// NewLogisticsBackfillTask builds a backfill task. A non-positive batch uses
// the job default.
func NewLogisticsBackfillTask(batch int) (*asynq.Task, error) {
	body, err := json.Marshal(LogisticsBackfillPayload{Batch: batch})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLogisticsBackfill, body, asynq.Queue(QueueDefault)), nil
}

// TaskByName builds a task with its default payload, for manual triggering.
func TaskByName(name string) (*asynq.Task, bool) {
	switch name {
	case TaskFXRefresh:
		return NewFXRefreshTask(), true
	case TaskLogisticsBackfill:
		task, err := NewLogisticsBackfillTask(0)
		return task, err == nil
	}
	return nil, false
}
