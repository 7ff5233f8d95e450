package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/clearpath/clearpath/internal/debt"
	"github.com/clearpath/clearpath/internal/observability"
)

// BankSyncRefreshJob refreshes balances for bank-linked accounts.
type BankSyncRefreshJob struct {
	service *debt.Service
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewBankSyncRefreshJob constructs the job.
func NewBankSyncRefreshJob(service *debt.Service, logger *slog.Logger, metrics *observability.Metrics) *BankSyncRefreshJob {
	return &BankSyncRefreshJob{service: service, logger: logger, metrics: metrics}
}

// HandleTask processes TaskBankSyncRefresh. Per-account failures are logged
// and do not fail the task: a single dead bank connection must not starve
// the rest of the nightly refresh.
func (j *BankSyncRefreshJob) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload BankSyncPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	if payload.AccountID != 0 {
		if _, err := j.service.SyncAccount(ctx, payload.AccountID); err != nil {
			j.logger.Error("bank sync failed", slog.Int64("account_id", payload.AccountID), slog.Any("error", err))
			j.metrics.RecordJob(TaskBankSyncRefresh, false)
			return err
		}
		j.metrics.RecordJob(TaskBankSyncRefresh, true)
		return nil
	}

	synced, errs := j.service.SyncLinkedAccounts(ctx)
	for _, err := range errs {
		j.logger.Warn("bank sync skipped account", slog.Any("error", err))
	}
	j.logger.Info("bank sync finished", slog.Int("synced", synced), slog.Int("failed", len(errs)))
	j.metrics.RecordJob(TaskBankSyncRefresh, len(errs) == 0)
	return nil
}
