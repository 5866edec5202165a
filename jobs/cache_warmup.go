package jobs

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/eatthat/eatthat/internal/jobs"
	"github.com/eatthat/eatthat/internal/rbac"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// PermissionCacheWarmupJob pre-populates the shared permission snapshot so the
// first request after a deploy or cache flush does not pay the rebuild cost.
type PermissionCacheWarmupJob struct {
	Registry *rbac.Registry
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewPermissionCacheWarmupJob wires dependencies for the warmup handler.
func NewPermissionCacheWarmupJob(registry *rbac.Registry, logger *slog.Logger, metrics *jobmetrics.Metrics) *PermissionCacheWarmupJob {
	return &PermissionCacheWarmupJob{Registry: registry, Logger: logger, Metrics: metrics}
}

// Handle processes permission cache warmup tasks.
func (j *PermissionCacheWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Registry == nil {
		return errors.New("permission cache warmup: handler not configured")
	}
	logger := j.logger()
	tracker := j.metrics().Track(TaskPermissionCacheWarmup)
	start := time.Now()

	perms, err := j.Registry.GetPermissions(ctx, nil, false)
	if err != nil {
		logger.Error("warm permission cache", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("permission cache warmed",
		slog.Int("permissions", len(perms)),
		slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *PermissionCacheWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPermissionCacheWarmup))
	}
	return slog.Default().With(slog.String("job", TaskPermissionCacheWarmup))
}

func (j *PermissionCacheWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
