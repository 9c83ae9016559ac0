package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/msbot/internal/jobs"
	"github.com/odyssey-erp/msbot/internal/sessions"
)

type gauge struct {
	mu sync.Mutex
	n  int
}

func (g *gauge) SetActiveSessions(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = n
}

func newSweepJob(t *testing.T, table *sessions.Table, now time.Time) (*SessionSweepJob, *gauge) {
	t.Helper()
	job := NewSessionSweepJob(table, sessions.DefaultTimeout, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = func() time.Time { return now }
	g := &gauge{n: -1}
	job.Gauge = g
	return job, g
}

func TestSessionSweepHandle(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	table := sessions.NewTable()
	table.Touch("stale", now.Add(-48*time.Hour))
	table.Touch("fresh", now.Add(-time.Minute))
	job, g := newSweepJob(t, table, now)

	task, err := NewSessionSweepTask(SessionSweepPayload{})
	require.NoError(t, err)
	require.Equal(t, TaskSessionSweep, task.Type())
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, table.Count())
	require.Equal(t, 1, g.n)

	task, err = NewSessionSweepTask(SessionSweepPayload{Timeout: time.Nanosecond})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Zero(t, table.Count())
}

func TestSessionSweepRejectsBadPayload(t *testing.T) {
	job, _ := newSweepJob(t, sessions.NewTable(), time.Now())
	err := job.Handle(context.Background(), asynq.NewTask(TaskSessionSweep, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	var unconfigured *SessionSweepJob
	require.Error(t, unconfigured.Handle(context.Background(), asynq.NewTask(TaskSessionSweep, nil)))
}

func TestSessionSweepCancelledContext(t *testing.T) {
	table := sessions.NewTable()
	table.Touch("u1", time.Now().Add(-72*time.Hour))
	job, _ := newSweepJob(t, table, time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := job.Sweep(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, table.Count())
}

func TestRunTickerStopsOnCancel(t *testing.T) {
	table := sessions.NewTable()
	table.Touch("u1", time.Now().Add(-72*time.Hour))
	job := NewSessionSweepJob(table, time.Hour, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.RunTicker(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return table.Count() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ticker did not stop")
	}
	require.Error(t, job.RunTicker(context.Background(), 0))
}

func TestSweepCron(t *testing.T) {
	require.Equal(t, "@every 1h0m0s", SweepCron(time.Hour))
	require.Equal(t, "@every 1h0m0s", SweepCron(0))
	require.Equal(t, "@every 15m0s", SweepCron(15*time.Minute))
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "in-process", body["mode"])
}
