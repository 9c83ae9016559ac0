package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/msbot/internal/jobs"
)

// SessionTable is the session store a sweep operates on.
type SessionTable interface {
	Sweep(timeout time.Duration, now time.Time) int
	Count() int
}

// GaugeSetter receives the live session count after a sweep.
type GaugeSetter interface {
	SetActiveSessions(n int)
}

// SessionSweepJob removes idle sessions.
type SessionSweepJob struct {
	Sessions SessionTable
	Timeout  time.Duration
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	Gauge    GaugeSetter
	clock    func() time.Time
}

// NewSessionSweepJob initialises the session sweep handler.
func NewSessionSweepJob(table SessionTable, timeout time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionSweepJob {
	return &SessionSweepJob{
		Sessions: table,
		Timeout:  timeout,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes a sweep triggered through Asynq.
func (j *SessionSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sessions == nil {
		return errors.New("session sweep: handler not configured")
	}
	var payload SessionSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	timeout := j.Timeout
	if payload.Timeout > 0 {
		timeout = payload.Timeout
	}
	_, err := j.Sweep(ctx, timeout)
	return err
}

// Sweep removes sessions idle for at least timeout and returns how many were removed.
func (j *SessionSweepJob) Sweep(ctx context.Context, timeout time.Duration) (int, error) {
	tracker := j.Metrics.Track(TaskSessionSweep)
	if err := ctx.Err(); err != nil {
		return 0, tracker.End(err)
	}
	start := j.now()
	removed := j.Sessions.Sweep(timeout, start)
	remaining := j.Sessions.Count()
	j.Metrics.AddSwept(removed)
	if j.Gauge != nil {
		j.Gauge.SetActiveSessions(remaining)
	}
	j.logger().Info("session sweep completed",
		slog.Int("removed", removed),
		slog.Int("remaining", remaining),
		slog.Duration("timeout", timeout),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return removed, tracker.End(nil)
}

// RunTicker sweeps every interval until ctx is done. It is the in-process
// alternative to scheduling TaskSessionSweep through Asynq.
func (j *SessionSweepJob) RunTicker(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("session sweep: interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := j.Sweep(ctx, j.Timeout); err != nil && !errors.Is(err, context.Canceled) {
				j.logger().Warn("session sweep failed", slog.Any("error", err))
			}
		}
	}
}

func (j *SessionSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *SessionSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
