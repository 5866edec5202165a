package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/eatthat/eatthat/internal/auth"
	jobmetrics "github.com/eatthat/eatthat/internal/jobs"
)

// SessionSweepJob deletes login session records past their expiry.
type SessionSweepJob struct {
	Auth    *auth.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSessionSweepJob wires dependencies for the sweep handler.
func NewSessionSweepJob(authSvc *auth.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionSweepJob {
	return &SessionSweepJob{
		Auth:    authSvc,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes session sweep tasks.
func (j *SessionSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Auth == nil {
		return errors.New("session sweep: handler not configured")
	}
	var payload SessionSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	cutoff := j.now()
	if payload.Before != "" {
		parsed, err := time.Parse(time.RFC3339, payload.Before)
		if err != nil {
			return asynq.SkipRetry
		}
		cutoff = parsed
	}

	logger := j.logger()
	tracker := j.metrics().Track(TaskSessionSweep)
	removed, err := j.Auth.PurgeExpiredSessions(ctx, cutoff)
	if err != nil {
		logger.Error("purge expired sessions", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("expired sessions swept",
		slog.Int64("removed", removed),
		slog.Time("cutoff", cutoff))
	return tracker.End(nil)
}

func (j *SessionSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SessionSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *SessionSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSessionSweep))
	}
	return slog.Default().With(slog.String("job", TaskSessionSweep))
}
