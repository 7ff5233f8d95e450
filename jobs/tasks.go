// Package jobs defines the background tasks run by the worker binary.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBankSyncRefresh re-pulls balances for bank-linked accounts.
	TaskBankSyncRefresh = "banksync:refresh"
	// TaskDueSoonDigest emails a reminder for payments due within the window.
	TaskDueSoonDigest = "duesoon:digest"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// BankSyncPayload selects which accounts to refresh. A zero AccountID means
// every linked account.
type BankSyncPayload struct {
	AccountID int64 `json:"account_id"`
}

// NewBankSyncTask constructs an Asynq task for a balance refresh.
func NewBankSyncTask(payload BankSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBankSyncRefresh, data), nil
}

// NewDueSoonDigestTask constructs the reminder digest task.
func NewDueSoonDigestTask() *asynq.Task {
	return asynq.NewTask(TaskDueSoonDigest, nil)
}

// NewIdempotencyCleanupTask constructs the key-pruning task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
