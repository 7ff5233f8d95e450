package debt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clearpath/clearpath/internal/platform/httpx"
)

type memoryRepo struct {
	accounts    map[int64]*Account
	payments    []Payment
	connections map[int64]*BankConnection
	nextAccount int64
	nextPayment int64
	nextConn    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		accounts:    make(map[int64]*Account),
		connections: make(map[int64]*BankConnection),
	}
}

func (m *memoryRepo) ListAccounts(_ context.Context, req ListAccountsRequest) ([]Account, error) {
	var out []Account
	for id := int64(1); id <= m.nextAccount; id++ {
		a, ok := m.accounts[id]
		if !ok {
			continue
		}
		if a.IsPaidOff && !req.IncludePaidOff {
			continue
		}
		if req.Owner != "" && req.Owner != OwnerAll && a.Owner != req.Owner {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (m *memoryRepo) GetAccount(_ context.Context, id int64) (*Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

func (m *memoryRepo) CreateAccount(_ context.Context, input CreateAccountInput) (*Account, error) {
	m.nextAccount++
	a := &Account{
		ID:               m.nextAccount,
		Owner:            input.Owner,
		Name:             input.Name,
		AccountType:      input.AccountType,
		InstitutionName:  input.InstitutionName,
		OriginalBalance:  input.OriginalBalance,
		CurrentBalance:   input.CurrentBalance,
		InterestRate:     input.InterestRate,
		MinimumPayment:   input.MinimumPayment,
		MonthlyPayment:   input.MonthlyPayment,
		PaymentTerms:     input.PaymentTerms,
		PaymentLink:      input.PaymentLink,
		DueDate:          input.DueDate,
		PlaidAccountID:   input.PlaidAccountID,
		BankConnectionID: input.BankConnectionID,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	m.accounts[a.ID] = a
	copied := *a
	return &copied, nil
}

func (m *memoryRepo) UpdateAccount(_ context.Context, id int64, input UpdateAccountInput) (*Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	if input.Owner != nil {
		a.Owner = *input.Owner
	}
	if input.Name != nil {
		a.Name = *input.Name
	}
	if input.CurrentBalance != nil {
		a.CurrentBalance = *input.CurrentBalance
	}
	if input.OriginalBalance != nil {
		a.OriginalBalance = *input.OriginalBalance
	}
	if input.MinimumPayment != nil {
		a.MinimumPayment = input.MinimumPayment
	}
	if input.DueDate != nil {
		a.DueDate = input.DueDate
	}
	copied := *a
	return &copied, nil
}

func (m *memoryRepo) DeleteAccount(_ context.Context, id int64) error {
	if _, ok := m.accounts[id]; !ok {
		return ErrAccountNotFound
	}
	delete(m.accounts, id)
	return nil
}

func (m *memoryRepo) RecordPayment(_ context.Context, accountID int64, input PaymentInput) (*Payment, *Account, error) {
	a, ok := m.accounts[accountID]
	if !ok {
		return nil, nil, ErrAccountNotFound
	}
	m.nextPayment++
	p := Payment{
		ID:          m.nextPayment,
		AccountID:   accountID,
		Amount:      input.Amount,
		PaymentDate: input.PaymentDate,
		PaymentType: input.PaymentType,
		Notes:       input.Notes,
		CreatedAt:   time.Now(),
	}
	m.payments = append(m.payments, p)

	newBalance := a.CurrentBalance - input.Amount
	if newBalance < 0 {
		newBalance = 0
	}
	a.CurrentBalance = newBalance
	if newBalance == 0 && !a.IsPaidOff {
		a.IsPaidOff = true
		paidAt := input.PaymentDate
		a.PaidOffDate = &paidAt
	}
	copied := *a
	return &p, &copied, nil
}

func (m *memoryRepo) ListPayments(_ context.Context, accountID int64) ([]Payment, error) {
	var out []Payment
	for i := len(m.payments) - 1; i >= 0; i-- {
		if m.payments[i].AccountID == accountID {
			out = append(out, m.payments[i])
		}
	}
	return out, nil
}

func (m *memoryRepo) ListLinkedAccounts(_ context.Context) ([]Account, error) {
	var out []Account
	for id := int64(1); id <= m.nextAccount; id++ {
		a, ok := m.accounts[id]
		if !ok {
			continue
		}
		if a.PlaidAccountID != "" && a.BankConnectionID != nil && !a.IsPaidOff {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memoryRepo) CreateBankConnection(_ context.Context, input BankConnectionInput) (*BankConnection, error) {
	m.nextConn++
	c := &BankConnection{
		ID:              m.nextConn,
		InstitutionID:   input.InstitutionID,
		InstitutionName: input.InstitutionName,
		AccessToken:     input.AccessToken,
		ItemID:          input.ItemID,
		Status:          input.Status,
		CreatedAt:       time.Now(),
	}
	m.connections[c.ID] = c
	return c, nil
}

func (m *memoryRepo) GetBankConnection(_ context.Context, id int64) (*BankConnection, error) {
	c, ok := m.connections[id]
	if !ok {
		return nil, nil
	}
	return c, nil
}

func (m *memoryRepo) SetSuggestedMinimum(_ context.Context, id int64, amount float64, fillMinimum bool) error {
	a, ok := m.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	v := amount
	a.SuggestedMinimumPayment = &v
	if fillMinimum && a.MinimumPayment == nil {
		w := amount
		a.MinimumPayment = &w
	}
	return nil
}

type fakeBank struct {
	accounts  []ProviderAccount
	linkToken string
}

func (f *fakeBank) CreateLinkToken(context.Context, string) (*LinkToken, error) {
	return &LinkToken{Token: f.linkToken, Expiration: time.Now().Add(30 * time.Minute)}, nil
}

func (f *fakeBank) ExchangePublicToken(context.Context, string) (string, string, error) {
	return "access-token", "item-1", nil
}

func (f *fakeBank) GetAccounts(context.Context, string) ([]ProviderAccount, error) {
	return f.accounts, nil
}

type fakeAdvisor struct {
	estimate   float64
	suggestion *StrategySuggestion
}

func (f *fakeAdvisor) EstimateMinimumPayment(context.Context, Account) (float64, error) {
	return f.estimate, nil
}

func (f *fakeAdvisor) SuggestStrategy(context.Context, float64, map[string]float64, []Account) (*StrategySuggestion, error) {
	return f.suggestion, nil
}

func seedAccount(t *testing.T, repo *memoryRepo, input CreateAccountInput) *Account {
	t.Helper()
	a, err := repo.CreateAccount(context.Background(), input)
	require.NoError(t, err)
	return a
}

func TestRecordPaymentReducesBalance(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	acct := seedAccount(t, repo, CreateAccountInput{
		Owner: "Darius", Name: "Visa", AccountType: TypeCreditCard,
		InstitutionName: "Chase", OriginalBalance: 1000, CurrentBalance: 800,
	})

	payment, err := svc.RecordPayment(context.Background(), acct.ID, PaymentInput{Amount: 300})
	require.NoError(t, err)
	require.Equal(t, 300.0, payment.Amount)
	require.Equal(t, PaymentManual, payment.PaymentType)
	require.False(t, payment.PaymentDate.IsZero())

	after, err := svc.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	require.Equal(t, 500.0, after.CurrentBalance)
	require.False(t, after.IsPaidOff)
}

func TestRecordPaymentClampsAtZeroAndFiresHook(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	acct := seedAccount(t, repo, CreateAccountInput{
		Owner: "Darius", Name: "Store Card", AccountType: TypeCreditCard,
		InstitutionName: "Target", OriginalBalance: 400, CurrentBalance: 250,
	})

	var celebrated []string
	svc.OnAccountPaidOff(func(_ context.Context, name string) {
		celebrated = append(celebrated, name)
	})

	_, err := svc.RecordPayment(context.Background(), acct.ID, PaymentInput{Amount: 500})
	require.NoError(t, err)

	after, err := repo.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	require.Equal(t, 0.0, after.CurrentBalance)
	require.True(t, after.IsPaidOff)
	require.NotNil(t, after.PaidOffDate)
	require.Equal(t, []string{"Store Card"}, celebrated)
}

func TestRecordPaymentRejectsNonPositiveAmount(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	acct := seedAccount(t, repo, CreateAccountInput{
		Owner: "Darius", Name: "Visa", AccountType: TypeCreditCard,
		InstitutionName: "Chase", OriginalBalance: 100, CurrentBalance: 100,
	})

	_, err := svc.RecordPayment(context.Background(), acct.ID, PaymentInput{Amount: 0})
	require.ErrorIs(t, err, httpx.ErrValidation)
	_, err = svc.RecordPayment(context.Background(), acct.ID, PaymentInput{Amount: -5})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestRecordPaymentUnknownAccount(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.RecordPayment(context.Background(), 99, PaymentInput{Amount: 10})
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestGetSummaryAggregatesUnpaidAccounts(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)

	min1 := 100.0
	sugg2 := 75.0
	min3 := 50.0
	seedAccount(t, repo, CreateAccountInput{
		Owner: "Darius", Name: "Visa", AccountType: TypeCreditCard,
		InstitutionName: "Chase", OriginalBalance: 2000, CurrentBalance: 1500, MinimumPayment: &min1,
	})
	a2 := seedAccount(t, repo, CreateAccountInput{
		Owner: "Katia", Name: "Car Loan", AccountType: TypeLoan,
		InstitutionName: "Ally", OriginalBalance: 10000, CurrentBalance: 6000,
	})
	require.NoError(t, repo.SetSuggestedMinimum(context.Background(), a2.ID, sugg2, false))
	paid := seedAccount(t, repo, CreateAccountInput{
		Owner: "Darius", Name: "Old Card", AccountType: TypeCreditCard,
		InstitutionName: "Chase", OriginalBalance: 500, CurrentBalance: 500, MinimumPayment: &min3,
	})
	_, err := svc.RecordPayment(context.Background(), paid.ID, PaymentInput{Amount: 500})
	require.NoError(t, err)

	summary, err := svc.GetSummary(context.Background())
	require.NoError(t, err)

	require.Equal(t, 7500.0, summary.TotalDebt)
	require.Equal(t, 12000.0, summary.TotalOriginalDebt)
	require.Equal(t, 4500.0, summary.TotalPaidOff)
	require.Equal(t, 2, summary.AccountCount)
	require.Equal(t, 1500.0, summary.DebtByOwner["Darius"])
	require.Equal(t, 6000.0, summary.DebtByOwner["Katia"])
	require.Equal(t, 1, summary.AccountsByOwner["Darius"])
	require.Equal(t, 100.0, summary.TotalMinimumPayments)
	// suggested falls back to minimum when absent
	require.Equal(t, 175.0, summary.TotalSuggestedMinimums)
	require.Equal(t, 1500.0, summary.ByInstitution["Chase"])
	require.Len(t, summary.Accounts, 2)
}

func TestCreateLinkTokenUnavailableWithoutBank(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)

	_, err := svc.CreateLinkToken(context.Background(), "user-1")
	require.ErrorIs(t, err, httpx.ErrUnavailable)
}

func TestExchangePublicTokenImportsDebtAccounts(t *testing.T) {
	repo := newMemoryRepo()
	bank := &fakeBank{accounts: []ProviderAccount{
		{AccountID: "plaid-1", Name: "Platinum Card", Type: "credit", CurrentBalance: -1250.50},
		{AccountID: "plaid-2", Name: "Checking", Type: "depository", CurrentBalance: 900},
		{AccountID: "plaid-3", Name: "Auto Loan", Type: "loan", CurrentBalance: 8000},
	}}
	svc := NewService(repo, nil, bank, nil)

	result, err := svc.ExchangePublicToken(context.Background(), "public-token", "ins_1", "Chase", "Darius")
	require.NoError(t, err)
	require.Equal(t, 2, result.AccountsAdded)

	accounts, err := repo.ListAccounts(context.Background(), ListAccountsRequest{})
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	require.Equal(t, "Platinum Card", accounts[0].Name)
	require.Equal(t, 1250.50, accounts[0].CurrentBalance)
	require.Equal(t, 1250.50, accounts[0].OriginalBalance)
	require.Equal(t, "plaid-1", accounts[0].PlaidAccountID)
	require.NotNil(t, accounts[0].BankConnectionID)
}

func TestSyncAccountRecordsBalanceDropAsPayment(t *testing.T) {
	repo := newMemoryRepo()
	bank := &fakeBank{accounts: []ProviderAccount{
		{AccountID: "plaid-1", Name: "Platinum Card", Type: "credit", CurrentBalance: 1000},
	}}
	svc := NewService(repo, nil, bank, nil)

	_, err := svc.ExchangePublicToken(context.Background(), "public-token", "ins_1", "Chase", "Darius")
	require.NoError(t, err)

	// provider now reports a lower balance
	bank.accounts[0].CurrentBalance = 850

	accounts, err := repo.ListLinkedAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	syncResult, err := svc.SyncAccount(context.Background(), accounts[0].ID)
	require.NoError(t, err)
	require.Equal(t, 850.0, syncResult.NewBalance)

	payments, err := repo.ListPayments(context.Background(), accounts[0].ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Equal(t, 150.0, payments[0].Amount)
	require.Equal(t, PaymentPlaidSync, payments[0].PaymentType)
}

func TestSyncAccountBalanceRiseUpdatesWithoutPayment(t *testing.T) {
	repo := newMemoryRepo()
	bank := &fakeBank{accounts: []ProviderAccount{
		{AccountID: "plaid-1", Name: "Platinum Card", Type: "credit", CurrentBalance: 1000},
	}}
	svc := NewService(repo, nil, bank, nil)

	_, err := svc.ExchangePublicToken(context.Background(), "public-token", "ins_1", "Chase", "Darius")
	require.NoError(t, err)

	bank.accounts[0].CurrentBalance = 1200

	accounts, err := repo.ListLinkedAccounts(context.Background())
	require.NoError(t, err)
	syncResult, err := svc.SyncAccount(context.Background(), accounts[0].ID)
	require.NoError(t, err)
	require.Equal(t, 1200.0, syncResult.NewBalance)

	payments, err := repo.ListPayments(context.Background(), accounts[0].ID)
	require.NoError(t, err)
	require.Empty(t, payments)

	after, err := repo.GetAccount(context.Background(), accounts[0].ID)
	require.NoError(t, err)
	require.Equal(t, 1200.0, after.CurrentBalance)
}

func TestSyncAccountNotLinked(t *testing.T) {
	repo := newMemoryRepo()
	bank := &fakeBank{}
	svc := NewService(repo, nil, bank, nil)
	acct := seedAccount(t, repo, CreateAccountInput{
		Owner: "Darius", Name: "Visa", AccountType: TypeCreditCard,
		InstitutionName: "Chase", OriginalBalance: 100, CurrentBalance: 100,
	})

	_, err := svc.SyncAccount(context.Background(), acct.ID)
	require.ErrorIs(t, err, ErrNotLinked)
}

func TestSyncAccountMissingFromProvider(t *testing.T) {
	repo := newMemoryRepo()
	bank := &fakeBank{accounts: []ProviderAccount{
		{AccountID: "plaid-1", Name: "Platinum Card", Type: "credit", CurrentBalance: 1000},
	}}
	svc := NewService(repo, nil, bank, nil)

	_, err := svc.ExchangePublicToken(context.Background(), "public-token", "ins_1", "Chase", "Darius")
	require.NoError(t, err)

	bank.accounts = nil

	accounts, err := repo.ListLinkedAccounts(context.Background())
	require.NoError(t, err)
	_, err = svc.SyncAccount(context.Background(), accounts[0].ID)
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestEstimateMinimumPaymentFillsUnsetMinimum(t *testing.T) {
	repo := newMemoryRepo()
	adv := &fakeAdvisor{estimate: 45}
	svc := NewService(repo, nil, nil, adv)
	acct := seedAccount(t, repo, CreateAccountInput{
		Owner: "Darius", Name: "Visa", AccountType: TypeCreditCard,
		InstitutionName: "Chase", OriginalBalance: 2000, CurrentBalance: 1500,
	})

	result, err := svc.EstimateMinimumPayment(context.Background(), acct.ID)
	require.NoError(t, err)
	require.Equal(t, 45.0, result.EstimatedMinimumPayment)
	require.Equal(t, "Visa", result.AccountName)

	after, err := repo.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	require.NotNil(t, after.SuggestedMinimumPayment)
	require.Equal(t, 45.0, *after.SuggestedMinimumPayment)
	require.NotNil(t, after.MinimumPayment)
	require.Equal(t, 45.0, *after.MinimumPayment)
}

func TestEstimateMinimumPaymentKeepsExistingMinimum(t *testing.T) {
	repo := newMemoryRepo()
	adv := &fakeAdvisor{estimate: 45}
	svc := NewService(repo, nil, nil, adv)
	existing := 80.0
	acct := seedAccount(t, repo, CreateAccountInput{
		Owner: "Darius", Name: "Visa", AccountType: TypeCreditCard,
		InstitutionName: "Chase", OriginalBalance: 2000, CurrentBalance: 1500, MinimumPayment: &existing,
	})

	_, err := svc.EstimateMinimumPayment(context.Background(), acct.ID)
	require.NoError(t, err)

	after, err := repo.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	require.Equal(t, 80.0, *after.MinimumPayment)
	require.Equal(t, 45.0, *after.SuggestedMinimumPayment)
}

func TestSuggestStrategyPersistsSuggestedMinimums(t *testing.T) {
	repo := newMemoryRepo()
	adv := &fakeAdvisor{suggestion: &StrategySuggestion{
		PriorityOrder:            []string{"Visa", "Car Loan"},
		Reasoning:                "highest interest first",
		SuggestedMinimumPayments: map[string]float64{"Visa": 60, "Car Loan": 220},
	}}
	svc := NewService(repo, nil, nil, adv)
	a1 := seedAccount(t, repo, CreateAccountInput{
		Owner: "Darius", Name: "Visa", AccountType: TypeCreditCard,
		InstitutionName: "Chase", OriginalBalance: 2000, CurrentBalance: 1500,
	})
	a2 := seedAccount(t, repo, CreateAccountInput{
		Owner: "Katia", Name: "Car Loan", AccountType: TypeLoan,
		InstitutionName: "Ally", OriginalBalance: 10000, CurrentBalance: 6000,
	})

	suggestion, err := svc.SuggestStrategy(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Visa", "Car Loan"}, suggestion.PriorityOrder)

	first, err := repo.GetAccount(context.Background(), a1.ID)
	require.NoError(t, err)
	require.Equal(t, 60.0, *first.SuggestedMinimumPayment)
	second, err := repo.GetAccount(context.Background(), a2.ID)
	require.NoError(t, err)
	require.Equal(t, 220.0, *second.SuggestedMinimumPayment)
}

func TestSuggestStrategyEmptyPortfolio(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, &fakeAdvisor{})

	suggestion, err := svc.SuggestStrategy(context.Background())
	require.NoError(t, err)
	require.Equal(t, "No active debt accounts found", suggestion.Reasoning)
}

func TestSyncLinkedAccountsCollectsErrors(t *testing.T) {
	repo := newMemoryRepo()
	bank := &fakeBank{accounts: []ProviderAccount{
		{AccountID: "plaid-1", Name: "Platinum Card", Type: "credit", CurrentBalance: 1000},
	}}
	svc := NewService(repo, nil, bank, nil)

	_, err := svc.ExchangePublicToken(context.Background(), "public-token", "ins_1", "Chase", "Darius")
	require.NoError(t, err)

	// second linked account the provider no longer reports
	connID := int64(1)
	seedAccount(t, repo, CreateAccountInput{
		Owner: "Katia", Name: "Vanished Loan", AccountType: TypeLoan,
		InstitutionName: "Chase", OriginalBalance: 500, CurrentBalance: 500,
		PlaidAccountID: "plaid-gone", BankConnectionID: &connID,
	})

	synced, errs := svc.SyncLinkedAccounts(context.Background())
	require.Equal(t, 1, synced)
	require.Len(t, errs, 1)
	require.True(t, errors.Is(errs[0], ErrAccountNotFound))
}
