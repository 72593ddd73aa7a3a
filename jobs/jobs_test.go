package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/dealdesk/internal/jobs"
	"github.com/odyssey-erp/dealdesk/internal/logistics"
)

type stubRefresher struct {
	inserted int
	err      error
	calls    int
}

func (s *stubRefresher) Refresh(context.Context) (int, error) {
	s.calls++
	return s.inserted, s.err
}

type stubBackfiller struct {
	batch  int
	result logistics.BackfillResult
	err    error
}

func (s *stubBackfiller) Backfill(_ context.Context, batch int) (logistics.BackfillResult, error) {
	s.batch = batch
	return s.result, s.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFXRefreshJobTracksRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	refresher := &stubRefresher{inserted: 4}
	job := NewFXRefreshJob(refresher, quietLogger(), metrics)

	require.NoError(t, job.Handle(context.Background(), NewFXRefreshTask()))
	assert.Equal(t, 1, refresher.calls)

	count, err := testutil.GatherAndCount(reg, "dealdesk_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	refresher.err = errors.New("feed unavailable")
	err = job.Handle(context.Background(), NewFXRefreshTask())
	require.Error(t, err)

	failures, err := testutil.GatherAndCount(reg, "dealdesk_jobs_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, failures)
}

func TestFXRefreshJobRequiresDependencies(t *testing.T) {
	var job *FXRefreshJob
	require.Error(t, job.Handle(context.Background(), NewFXRefreshTask()))
}

func TestLogisticsBackfillJobUsesPayloadBatch(t *testing.T) {
	backfiller := &stubBackfiller{result: logistics.BackfillResult{Deals: 2, Stages: 10}}
	job := NewLogisticsBackfillJob(backfiller, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewLogisticsBackfillTask(25)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 25, backfiller.batch)

	task, err = NewLogisticsBackfillTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, defaultBackfillBatch, backfiller.batch)
}

func TestLogisticsBackfillJobRejectsMalformedPayload(t *testing.T) {
	job := NewLogisticsBackfillJob(&stubBackfiller{}, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), asynq.NewTask(TaskLogisticsBackfill, []byte("{")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestLogisticsBackfillJobReportsPartialFailure(t *testing.T) {
	backfiller := &stubBackfiller{result: logistics.BackfillResult{Deals: 1, Stages: 5}, err: errors.New("backfill stages: 1 deals failed")}
	job := NewLogisticsBackfillJob(backfiller, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewLogisticsBackfillTask(10)
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))
}

func TestTaskByName(t *testing.T) {
	task, ok := TaskByName(TaskLogisticsBackfill)
	require.True(t, ok)
	var payload LogisticsBackfillPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, 0, payload.Batch)

	task, ok = TaskByName(TaskFXRefresh)
	require.True(t, ok)
	assert.Equal(t, TaskFXRefresh, task.Type())

	_, ok = TaskByName("email:send")
	assert.False(t, ok)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, quietLogger()).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, QueueDefault, body.Queue)
}

func TestClientEnqueueRequiresClient(t *testing.T) {
	var c *Client
	_, err := c.Enqueue(context.Background(), NewFXRefreshTask())
	require.Error(t, err)
}
