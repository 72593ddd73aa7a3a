package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/dealdesk/internal/jobs"
	"github.com/odyssey-erp/dealdesk/internal/logistics"
)

const defaultBackfillBatch = 500

// StageBackfiller provisions missing logistics stages.
type StageBackfiller interface {
	Backfill(ctx context.Context, batch int) (logistics.BackfillResult, error)
}

// LogisticsBackfillJob repairs deals signed while stage provisioning failed.
type LogisticsBackfillJob struct {
	Backfiller StageBackfiller
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewLogisticsBackfillJob constructs the job handler.
func NewLogisticsBackfillJob(backfiller StageBackfiller, logger *slog.Logger, metrics *jobmetrics.Metrics) *LogisticsBackfillJob {
	return &LogisticsBackfillJob{Backfiller: backfiller, Logger: logger, Metrics: metrics}
}

// Handle executes one backfill pass.
func (j *LogisticsBackfillJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Backfiller == nil {
		return errors.New("logistics backfill: dependencies not configured")
	}
	var payload LogisticsBackfillPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("logistics backfill payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.Batch <= 0 {
		payload.Batch = defaultBackfillBatch
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskLogisticsBackfill)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	result, err := j.Backfiller.Backfill(ctx, payload.Batch)
	metricsOrDefault(j.Metrics).AddProcessed(TaskLogisticsBackfill, result.Stages)
	if err != nil {
		logFor(j.Logger, TaskLogisticsBackfill).Error("backfill stages", slog.Int("deals", result.Deals), slog.Any("error", err))
		return err
	}
	logFor(j.Logger, TaskLogisticsBackfill).Info("stages backfilled", slog.Int("deals", result.Deals), slog.Int("stages", result.Stages))
	return nil
}
