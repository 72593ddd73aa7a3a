package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/dealdesk/internal/jobs"
)

// RateRefresher appends the feed's latest rates.
type RateRefresher interface {
	Refresh(ctx context.Context) (int, error)
}

// FXRefreshJob runs the periodic rate refresh.
type FXRefreshJob struct {
	Refresher RateRefresher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewFXRefreshJob constructs the job handler.
func NewFXRefreshJob(refresher RateRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *FXRefreshJob {
	return &FXRefreshJob{Refresher: refresher, Logger: logger, Metrics: metrics}
}

// Handle executes one refresh. Feed failures are retried by asynq.
func (j *FXRefreshJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Refresher == nil {
		return errors.New("fx refresh: dependencies not configured")
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskFXRefresh)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	inserted, err := j.Refresher.Refresh(ctx)
	if err != nil {
		logFor(j.Logger, TaskFXRefresh).Error("refresh rates", slog.Any("error", err))
		return err
	}
	metricsOrDefault(j.Metrics).AddProcessed(TaskFXRefresh, inserted)
	logFor(j.Logger, TaskFXRefresh).Info("rates refreshed", slog.Int("inserted", inserted), slog.Duration("duration", time.Since(start)))
	return nil
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func logFor(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
