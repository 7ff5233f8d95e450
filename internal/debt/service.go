package debt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/clearpath/clearpath/internal/platform/httpx"
)

// Sentinel errors for the debt domain.
var (
	ErrAccountNotFound = errors.New("debt account not found")
	ErrNotLinked       = errors.New("account is not connected to a bank")
)

// RepositoryPort defines data access methods for the debt tracker.
type RepositoryPort interface {
	ListAccounts(ctx context.Context, req ListAccountsRequest) ([]Account, error)
	GetAccount(ctx context.Context, id int64) (*Account, error)
	CreateAccount(ctx context.Context, input CreateAccountInput) (*Account, error)
	UpdateAccount(ctx context.Context, id int64, input UpdateAccountInput) (*Account, error)
	DeleteAccount(ctx context.Context, id int64) error
	RecordPayment(ctx context.Context, accountID int64, input PaymentInput) (*Payment, *Account, error)
	ListPayments(ctx context.Context, accountID int64) ([]Payment, error)
	ListLinkedAccounts(ctx context.Context) ([]Account, error)
	CreateBankConnection(ctx context.Context, input BankConnectionInput) (*BankConnection, error)
	GetBankConnection(ctx context.Context, id int64) (*BankConnection, error)
	SetSuggestedMinimum(ctx context.Context, id int64, amount float64, fillMinimum bool) error
}

// BankConnectionInput for persisting an exchanged bank link.
type BankConnectionInput struct {
	InstitutionID   string
	InstitutionName string
	AccessToken     string
	ItemID          string
	Status          string
}

// BankPort is the external bank-sync provider boundary.
type BankPort interface {
	CreateLinkToken(ctx context.Context, userID string) (*LinkToken, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (accessToken, itemID string, err error)
	GetAccounts(ctx context.Context, accessToken string) ([]ProviderAccount, error)
}

// LinkToken is a short-lived token for the provider's link flow.
type LinkToken struct {
	Token      string    `json:"link_token"`
	Expiration time.Time `json:"expiration"`
}

// ProviderAccount is one account as reported by the bank-sync provider.
type ProviderAccount struct {
	AccountID      string
	Name           string
	Type           string
	CurrentBalance float64
}

// AdvisorPort is the opaque AI-suggestion boundary.
type AdvisorPort interface {
	EstimateMinimumPayment(ctx context.Context, a Account) (float64, error)
	SuggestStrategy(ctx context.Context, total float64, byOwner map[string]float64, accounts []Account) (*StrategySuggestion, error)
}

// PaidOffHook fires when a payment drives an account's balance to zero.
type PaidOffHook func(ctx context.Context, accountName string)

// Service handles debt-tracker business logic.
type Service struct {
	repo      RepositoryPort
	cache     *Cache
	bank      BankPort
	advisor   AdvisorPort
	onPaidOff PaidOffHook
	group     singleflight.Group
	now       func() time.Time
}

// NewService builds a Service. Bank and advisor ports may be nil when the
// respective integrations are not configured.
func NewService(repo RepositoryPort, cache *Cache, bank BankPort, advisor AdvisorPort) *Service {
	return &Service{
		repo:    repo,
		cache:   cache,
		bank:    bank,
		advisor: advisor,
		now:     time.Now,
	}
}

// OnAccountPaidOff registers the celebration hook.
func (s *Service) OnAccountPaidOff(fn PaidOffHook) {
	s.onPaidOff = fn
}

// ListAccounts returns accounts matching the request filters. An
// account_type value naming a category expands to that category's
// type/name predicates in the repository.
func (s *Service) ListAccounts(ctx context.Context, req ListAccountsRequest) ([]Account, error) {
	return s.repo.ListAccounts(ctx, req)
}

// GetAccount fetches one account.
func (s *Service) GetAccount(ctx context.Context, id int64) (*Account, error) {
	account, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

// CreateAccount validates and stores a manually entered account.
func (s *Service) CreateAccount(ctx context.Context, input CreateAccountInput) (*Account, error) {
	if input.Owner == "" {
		return nil, fmt.Errorf("%w: owner is required", httpx.ErrValidation)
	}
	if input.Name == "" {
		return nil, fmt.Errorf("%w: name is required", httpx.ErrValidation)
	}
	if input.OriginalBalance < 0 || input.CurrentBalance < 0 {
		return nil, fmt.Errorf("%w: balances must not be negative", httpx.ErrValidation)
	}
	account, err := s.repo.CreateAccount(ctx, input)
	if err != nil {
		return nil, err
	}
	s.bumpCache(ctx)
	return account, nil
}

// UpdateAccount applies a partial update. No cross-field invariant is
// enforced: a manual edit may leave the original balance below the current
// balance, exactly as the source system allows.
func (s *Service) UpdateAccount(ctx context.Context, id int64, input UpdateAccountInput) (*Account, error) {
	account, err := s.repo.UpdateAccount(ctx, id, input)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	s.bumpCache(ctx)
	return account, nil
}

// DeleteAccount removes an account and its payment history.
func (s *Service) DeleteAccount(ctx context.Context, id int64) error {
	if err := s.repo.DeleteAccount(ctx, id); err != nil {
		return err
	}
	s.bumpCache(ctx)
	return nil
}

// RecordPayment stores a payment and lets the store apply it to the balance;
// the caller should refetch rather than trust any local arithmetic. When the
// payment clears the account the paid-off hook fires.
func (s *Service) RecordPayment(ctx context.Context, accountID int64, input PaymentInput) (*Payment, error) {
	if input.Amount <= 0 {
		return nil, fmt.Errorf("%w: payment amount must be positive", httpx.ErrValidation)
	}
	if input.PaymentType == "" {
		input.PaymentType = PaymentManual
	}
	if input.PaymentDate.IsZero() {
		input.PaymentDate = s.now()
	}

	before, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	payment, after, err := s.repo.RecordPayment(ctx, accountID, input)
	if err != nil {
		return nil, err
	}
	s.bumpCache(ctx)

	if after != nil && after.IsPaidOff && !before.IsPaidOff && s.onPaidOff != nil {
		s.onPaidOff(ctx, after.Name)
	}
	return payment, nil
}

// ListPayments returns the payment history for an account.
func (s *Service) ListPayments(ctx context.Context, accountID int64) ([]Payment, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, accountID)
}

const summaryCacheKey = "debt:summary"

// GetSummary aggregates the unpaid portfolio, through the Redis cache when
// one is configured. Concurrent dashboard loads collapse into one store read.
func (s *Service) GetSummary(ctx context.Context) (*Summary, error) {
	v, err, _ := s.group.Do(summaryCacheKey, func() (interface{}, error) {
		var summary Summary
		if s.cache == nil {
			computed, err := s.computeSummary(ctx)
			if err != nil {
				return nil, err
			}
			return computed, nil
		}
		key, err := s.cache.BuildKey(ctx, summaryCacheKey)
		if err != nil {
			return s.computeSummary(ctx)
		}
		err = s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (interface{}, error) {
			return s.computeSummary(ctx)
		})
		if err != nil {
			return nil, err
		}
		return &summary, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Summary), nil
}

func (s *Service) computeSummary(ctx context.Context) (*Summary, error) {
	accounts, err := s.repo.ListAccounts(ctx, ListAccountsRequest{})
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		DebtByOwner:     make(map[string]float64),
		AccountsByOwner: make(map[string]int),
		ByInstitution:   make(map[string]float64),
		Accounts:        make([]SummaryAccount, 0, len(accounts)),
		AccountCount:    len(accounts),
	}
	for _, a := range accounts {
		summary.TotalDebt += a.CurrentBalance
		summary.TotalOriginalDebt += a.OriginalBalance
		summary.DebtByOwner[a.Owner] += a.CurrentBalance
		summary.AccountsByOwner[a.Owner]++
		summary.ByInstitution[a.InstitutionName] += a.CurrentBalance
		if a.MinimumPayment != nil {
			summary.TotalMinimumPayments += *a.MinimumPayment
		}
		switch {
		case a.SuggestedMinimumPayment != nil:
			summary.TotalSuggestedMinimums += *a.SuggestedMinimumPayment
		case a.MinimumPayment != nil:
			summary.TotalSuggestedMinimums += *a.MinimumPayment
		}
		summary.Accounts = append(summary.Accounts, SummaryAccount{
			ID:                      a.ID,
			Name:                    a.Name,
			Owner:                   a.Owner,
			Institution:             a.InstitutionName,
			Balance:                 a.CurrentBalance,
			OriginalBalance:         a.OriginalBalance,
			AccountType:             string(a.AccountType),
			InterestRate:            a.InterestRate,
			MinimumPayment:          a.MinimumPayment,
			SuggestedMinimumPayment: a.SuggestedMinimumPayment,
		})
	}
	summary.TotalPaidOff = summary.TotalOriginalDebt - summary.TotalDebt
	return summary, nil
}

// CreateLinkToken starts the provider link flow.
func (s *Service) CreateLinkToken(ctx context.Context, userID string) (*LinkToken, error) {
	if s.bank == nil {
		return nil, fmt.Errorf("%w: bank sync is not configured", httpx.ErrUnavailable)
	}
	return s.bank.CreateLinkToken(ctx, userID)
}

// ExchangeResult reports the outcome of connecting a bank.
type ExchangeResult struct {
	BankConnectionID int64 `json:"bank_connection_id"`
	AccountsAdded    int   `json:"accounts_added"`
}

// ExchangePublicToken completes the provider link flow: stores the
// connection and imports every credit or loan account it exposes as a debt
// account, with the reported balance as both original and current.
func (s *Service) ExchangePublicToken(ctx context.Context, publicToken, institutionID, institutionName, owner string) (*ExchangeResult, error) {
	if s.bank == nil {
		return nil, fmt.Errorf("%w: bank sync is not configured", httpx.ErrUnavailable)
	}
	accessToken, itemID, err := s.bank.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return nil, err
	}
	conn, err := s.repo.CreateBankConnection(ctx, BankConnectionInput{
		InstitutionID:   institutionID,
		InstitutionName: institutionName,
		AccessToken:     accessToken,
		ItemID:          itemID,
		Status:          "active",
	})
	if err != nil {
		return nil, err
	}

	provided, err := s.bank.GetAccounts(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	added := 0
	for _, pa := range provided {
		if pa.Type != "credit" && pa.Type != "loan" {
			continue
		}
		balance := pa.CurrentBalance
		if balance < 0 {
			balance = -balance
		}
		_, err := s.repo.CreateAccount(ctx, CreateAccountInput{
			Owner:            owner,
			Name:             pa.Name,
			AccountType:      AccountType(pa.Type),
			InstitutionName:  institutionName,
			OriginalBalance:  balance,
			CurrentBalance:   balance,
			PlaidAccountID:   pa.AccountID,
			BankConnectionID: &conn.ID,
		})
		if err != nil {
			return nil, err
		}
		added++
	}
	s.bumpCache(ctx)
	return &ExchangeResult{BankConnectionID: conn.ID, AccountsAdded: added}, nil
}

// SyncResult reports a single account balance refresh.
type SyncResult struct {
	AccountID  int64   `json:"account_id"`
	NewBalance float64 `json:"new_balance"`
}

// SyncAccount re-pulls the balance of a linked account from the provider.
// A balance drop is recorded as a plaid_sync payment so the history stays
// consistent with manual payments; a balance rise only updates the balance.
func (s *Service) SyncAccount(ctx context.Context, accountID int64) (*SyncResult, error) {
	if s.bank == nil {
		return nil, fmt.Errorf("%w: bank sync is not configured", httpx.ErrUnavailable)
	}
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.PlaidAccountID == "" || account.BankConnectionID == nil {
		return nil, ErrNotLinked
	}
	conn, err := s.repo.GetBankConnection(ctx, *account.BankConnectionID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, ErrNotLinked
	}

	provided, err := s.bank.GetAccounts(ctx, conn.AccessToken)
	if err != nil {
		return nil, err
	}
	for _, pa := range provided {
		if pa.AccountID != account.PlaidAccountID {
			continue
		}
		newBalance := pa.CurrentBalance
		if newBalance < 0 {
			newBalance = -newBalance
		}
		if newBalance < account.CurrentBalance {
			_, _, err := s.repo.RecordPayment(ctx, accountID, PaymentInput{
				Amount:      account.CurrentBalance - newBalance,
				PaymentType: PaymentPlaidSync,
				PaymentDate: s.now(),
			})
			if err != nil {
				return nil, err
			}
		} else if newBalance != account.CurrentBalance {
			if _, err := s.repo.UpdateAccount(ctx, accountID, UpdateAccountInput{CurrentBalance: &newBalance}); err != nil {
				return nil, err
			}
		}
		s.bumpCache(ctx)
		return &SyncResult{AccountID: accountID, NewBalance: newBalance}, nil
	}
	return nil, fmt.Errorf("%w: account missing from provider response", ErrAccountNotFound)
}

// SyncLinkedAccounts refreshes every linked account. Used by the background
// worker; individual failures are collected, not fatal.
func (s *Service) SyncLinkedAccounts(ctx context.Context) (synced int, errs []error) {
	accounts, err := s.repo.ListLinkedAccounts(ctx)
	if err != nil {
		return 0, []error{err}
	}
	for _, a := range accounts {
		if _, err := s.SyncAccount(ctx, a.ID); err != nil {
			errs = append(errs, fmt.Errorf("account %d: %w", a.ID, err))
			continue
		}
		synced++
	}
	return synced, errs
}

// EstimateResult reports an advisor minimum-payment estimate.
type EstimateResult struct {
	EstimatedMinimumPayment float64 `json:"estimated_minimum_payment"`
	AccountID               int64   `json:"account_id"`
	AccountName             string  `json:"account_name"`
}

// EstimateMinimumPayment asks the advisor for a minimum payment estimate and
// stores it on the account, also filling minimum_payment when it was unset.
func (s *Service) EstimateMinimumPayment(ctx context.Context, accountID int64) (*EstimateResult, error) {
	if s.advisor == nil {
		return nil, fmt.Errorf("%w: advisor is not configured", httpx.ErrUnavailable)
	}
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	estimate, err := s.advisor.EstimateMinimumPayment(ctx, *account)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetSuggestedMinimum(ctx, accountID, estimate, account.MinimumPayment == nil); err != nil {
		return nil, err
	}
	s.bumpCache(ctx)
	return &EstimateResult{
		EstimatedMinimumPayment: estimate,
		AccountID:               accountID,
		AccountName:             account.Name,
	}, nil
}

// SuggestStrategy asks the advisor for a payoff plan over the unpaid
// portfolio and persists any suggested minimum payments it returns.
func (s *Service) SuggestStrategy(ctx context.Context) (*StrategySuggestion, error) {
	if s.advisor == nil {
		return nil, fmt.Errorf("%w: advisor is not configured", httpx.ErrUnavailable)
	}
	accounts, err := s.repo.ListAccounts(ctx, ListAccountsRequest{})
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return &StrategySuggestion{Reasoning: "No active debt accounts found"}, nil
	}

	var total float64
	byOwner := make(map[string]float64)
	for _, a := range accounts {
		total += a.CurrentBalance
		byOwner[a.Owner] += a.CurrentBalance
	}
	suggestion, err := s.advisor.SuggestStrategy(ctx, total, byOwner, accounts)
	if err != nil {
		return nil, err
	}

	if len(suggestion.SuggestedMinimumPayments) > 0 {
		for _, a := range accounts {
			amount, ok := suggestion.SuggestedMinimumPayments[a.Name]
			if !ok {
				continue
			}
			if err := s.repo.SetSuggestedMinimum(ctx, a.ID, amount, false); err != nil {
				return nil, err
			}
		}
		s.bumpCache(ctx)
	}
	return suggestion, nil
}

func (s *Service) bumpCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Bump(ctx)
}
