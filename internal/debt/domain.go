package debt

import (
	"time"
)

// AccountType is the stored account type, an open enum: manual entries and
// bank imports may carry values outside the known constants.
type AccountType string

const (
	TypeCreditCard   AccountType = "credit_card"
	TypeLoan         AccountType = "loan"
	TypeMortgage     AccountType = "mortgage"
	TypeStudentLoan  AccountType = "student_loan"
	TypeTax          AccountType = "tax"
	TypeBusiness     AccountType = "business"
	TypeMedical      AccountType = "medical"
	TypeRent         AccountType = "rent"
	TypeLineOfCredit AccountType = "line_of_credit"
)

// PaymentType enumerates how a payment was initiated.
type PaymentType string

const (
	PaymentManual      PaymentType = "manual"
	PaymentMinimum     PaymentType = "minimum"
	PaymentCustom      PaymentType = "custom"
	PaymentAISuggested PaymentType = "ai-suggested"
	// PaymentPlaidSync marks payments derived from a bank balance drop.
	PaymentPlaidSync PaymentType = "plaid_sync"
)

// Account model. Optional numeric fields are pointers so an absent value is
// distinguishable from zero.
type Account struct {
	ID                      int64
	Owner                   string
	Name                    string
	AccountType             AccountType
	InstitutionName         string
	OriginalBalance         float64
	CurrentBalance          float64
	InterestRate            *float64
	MinimumPayment          *float64
	SuggestedMinimumPayment *float64
	MonthlyPayment          *float64
	PaymentTerms            string
	PaymentLink             string
	DueDate                 *time.Time
	PlaidAccountID          string
	BankConnectionID        *int64
	IsPaidOff               bool
	PaidOffDate             *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// Payment model. Payments are immutable once recorded.
type Payment struct {
	ID          int64
	AccountID   int64
	Amount      float64
	PaymentDate time.Time
	PaymentType PaymentType
	Notes       string
	CreatedAt   time.Time
}

// BankConnection links imported accounts to an external bank-sync provider.
type BankConnection struct {
	ID              int64
	InstitutionID   string
	InstitutionName string
	AccessToken     string
	ItemID          string
	Status          string
	CreatedAt       time.Time
}

// CreateAccountInput for manual account entry or bank import.
type CreateAccountInput struct {
	Owner                   string
	Name                    string
	AccountType             AccountType
	InstitutionName         string
	OriginalBalance         float64
	CurrentBalance          float64
	InterestRate            *float64
	MinimumPayment          *float64
	SuggestedMinimumPayment *float64
	MonthlyPayment          *float64
	PaymentTerms            string
	PaymentLink             string
	DueDate                 *time.Time
	PlaidAccountID          string
	BankConnectionID        *int64
}

// UpdateAccountInput carries a partial update; nil fields are left untouched.
type UpdateAccountInput struct {
	Owner                   *string
	Name                    *string
	AccountType             *AccountType
	InstitutionName         *string
	OriginalBalance         *float64
	CurrentBalance          *float64
	InterestRate            *float64
	MinimumPayment          *float64
	SuggestedMinimumPayment *float64
	MonthlyPayment          *float64
	PaymentTerms            *string
	PaymentLink             *string
	DueDate                 *time.Time
}

// PaymentInput for recording a payment.
type PaymentInput struct {
	Amount      float64
	PaymentType PaymentType
	Notes       string
	PaymentDate time.Time
}

// ListAccountsRequest filters the account listing.
type ListAccountsRequest struct {
	Owner          string
	AccountType    string
	IncludePaidOff bool
}

// Summary aggregates the unpaid portfolio for the dashboard.
type Summary struct {
	TotalDebt              float64            `json:"total_debt"`
	TotalOriginalDebt      float64            `json:"total_original_debt"`
	TotalPaidOff           float64            `json:"total_paid_off"`
	DebtByOwner            map[string]float64 `json:"debt_by_owner"`
	AccountsByOwner        map[string]int     `json:"accounts_by_owner"`
	TotalMinimumPayments   float64            `json:"total_minimum_payments"`
	TotalSuggestedMinimums float64            `json:"total_suggested_minimum_payments"`
	AccountCount           int                `json:"account_count"`
	ByInstitution          map[string]float64 `json:"by_institution"`
	Accounts               []SummaryAccount   `json:"accounts"`
}

// SummaryAccount is the condensed account view embedded in Summary.
type SummaryAccount struct {
	ID                      int64    `json:"id"`
	Name                    string   `json:"name"`
	Owner                   string   `json:"owner"`
	Institution             string   `json:"institution"`
	Balance                 float64  `json:"balance"`
	OriginalBalance         float64  `json:"original_balance"`
	AccountType             string   `json:"type"`
	InterestRate            *float64 `json:"interest_rate"`
	MinimumPayment          *float64 `json:"minimum_payment"`
	SuggestedMinimumPayment *float64 `json:"suggested_minimum_payment"`
}

// StrategySuggestion is the advisor's payoff recommendation.
type StrategySuggestion struct {
	PriorityOrder            []string           `json:"priority_order"`
	Reasoning                string             `json:"reasoning"`
	SuggestedMinimumPayments map[string]float64 `json:"suggested_minimum_payments,omitempty"`
	EstimatedPayoffTimeline  string             `json:"estimated_payoff_timeline,omitempty"`
	Tips                     []string           `json:"tips"`
}
