package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/clearpath/clearpath/internal/observability"
	"github.com/clearpath/clearpath/internal/shared"
)

// IdempotencyCleanupJob prunes idempotency keys past the retention window.
type IdempotencyCleanupJob struct {
	store     *shared.IdempotencyStore
	retention time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewIdempotencyCleanupJob constructs the job. Retention defaults to 24h
// when non-positive.
func NewIdempotencyCleanupJob(store *shared.IdempotencyStore, retention time.Duration, logger *slog.Logger, metrics *observability.Metrics) *IdempotencyCleanupJob {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &IdempotencyCleanupJob{store: store, retention: retention, logger: logger, metrics: metrics}
}

// HandleTask processes TaskIdempotencyCleanup.
func (j *IdempotencyCleanupJob) HandleTask(ctx context.Context, t *asynq.Task) error {
	removed, err := j.store.Cleanup(ctx, j.retention)
	if err != nil {
		j.metrics.RecordJob(TaskIdempotencyCleanup, false)
		return err
	}
	j.logger.Info("idempotency keys pruned", slog.Int64("removed", removed))
	j.metrics.RecordJob(TaskIdempotencyCleanup, true)
	return nil
}
