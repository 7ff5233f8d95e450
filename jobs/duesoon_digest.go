package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/clearpath/clearpath/internal/debt"
	"github.com/clearpath/clearpath/internal/notify"
	"github.com/clearpath/clearpath/internal/observability"
)

// DueSoonDigestJob emails the daily payment reminder. Session dismissals
// never reach the server, so the digest always covers the full unpaid set.
type DueSoonDigestJob struct {
	service   *debt.Service
	mailer    *notify.Mailer
	recipient string
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewDueSoonDigestJob constructs the job.
func NewDueSoonDigestJob(service *debt.Service, mailer *notify.Mailer, recipient string, logger *slog.Logger, metrics *observability.Metrics) *DueSoonDigestJob {
	return &DueSoonDigestJob{service: service, mailer: mailer, recipient: recipient, logger: logger, metrics: metrics}
}

// HandleTask processes TaskDueSoonDigest.
func (j *DueSoonDigestJob) HandleTask(ctx context.Context, t *asynq.Task) error {
	if j.recipient == "" {
		j.logger.Info("due-soon digest skipped, no recipient configured")
		return nil
	}
	accounts, err := j.service.ListAccounts(ctx, debt.ListAccountsRequest{})
	if err != nil {
		j.metrics.RecordJob(TaskDueSoonDigest, false)
		return err
	}

	now := time.Now()
	dueSoon := debt.DueSoonAccounts(accounts, now, nil)
	if len(dueSoon) == 0 {
		j.logger.Info("due-soon digest skipped, nothing due")
		j.metrics.RecordJob(TaskDueSoonDigest, true)
		return nil
	}

	body := notify.DueSoonDigest(dueSoon, now)
	if err := j.mailer.Send(ctx, j.recipient, "ClearPath: payments due soon", body); err != nil {
		j.metrics.RecordJob(TaskDueSoonDigest, false)
		return err
	}
	j.logger.Info("due-soon digest sent", slog.Int("accounts", len(dueSoon)))
	j.metrics.RecordJob(TaskDueSoonDigest, true)
	return nil
}
