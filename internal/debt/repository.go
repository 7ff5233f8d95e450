package debt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clearpath/clearpath/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for the debt tracker.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const accountColumns = `id, owner, name, account_type, institution_name, original_balance, current_balance,
interest_rate, minimum_payment, suggested_minimum_payment, monthly_payment, payment_terms, payment_link,
due_date, plaid_account_id, bank_connection_id, is_paid_off, paid_off_date, created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Owner, &a.Name, &a.AccountType, &a.InstitutionName, &a.OriginalBalance,
		&a.CurrentBalance, &a.InterestRate, &a.MinimumPayment, &a.SuggestedMinimumPayment, &a.MonthlyPayment,
		&a.PaymentTerms, &a.PaymentLink, &a.DueDate, &a.PlaidAccountID, &a.BankConnectionID, &a.IsPaidOff,
		&a.PaidOffDate, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// categoryPredicate expands a category name into the type/name predicate the
// listing endpoint accepts, mirroring the stored categorization rules. The
// placeholder numbering starts at the given index.
func categoryPredicate(category string, argIdx int) (string, []any) {
	switch category {
	case string(CategoryCreditCards):
		return "account_type = 'credit_card'", nil
	case string(CategoryPersonalLoans):
		// Loans that are neither car nor student loans.
		return `account_type = 'loan'
AND name NOT ILIKE '%car%' AND name NOT ILIKE '%auto%' AND name NOT ILIKE '%vehicle%'
AND name NOT ILIKE '%student%' AND name NOT ILIKE '%education%'`, nil
	case string(CategoryCarLoans):
		return "account_type = 'loan' AND (name ILIKE '%car%' OR name ILIKE '%auto%' OR name ILIKE '%vehicle%')", nil
	case string(CategoryMortgages):
		return "(account_type = 'mortgage' OR name ILIKE '%mortgage%' OR name ILIKE '%home loan%')", nil
	case string(CategoryStudentLoans):
		return "(account_type = 'student_loan' OR name ILIKE '%student%' OR name ILIKE '%education%' OR name ILIKE '%federal student%')", nil
	case string(CategoryTaxDebt):
		return "(account_type = 'tax' OR name ILIKE '%tax%' OR name ILIKE '%irs%')", nil
	case string(CategoryBusinessDebt):
		return "(account_type = 'business' OR name ILIKE '%business%' OR name ILIKE '%sba%')", nil
	default:
		// Not a category: exact account type match.
		return fmt.Sprintf("account_type = $%d", argIdx), []any{category}
	}
}

// ListAccounts returns accounts matching the request, insertion-ordered.
// Paid-off accounts are excluded unless explicitly requested.
func (r *Repository) ListAccounts(ctx context.Context, req ListAccountsRequest) ([]Account, error) {
	var (
		conds []string
		args  []any
	)
	if !req.IncludePaidOff {
		conds = append(conds, "is_paid_off = FALSE")
	}
	if req.Owner != "" {
		args = append(args, req.Owner)
		conds = append(conds, fmt.Sprintf("owner = $%d", len(args)))
	}
	if req.AccountType != "" {
		pred, predArgs := categoryPredicate(req.AccountType, len(args)+1)
		conds = append(conds, pred)
		args = append(args, predArgs...)
	}

	query := "SELECT " + accountColumns + " FROM debt_accounts"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// GetAccount fetches one account, nil when missing.
func (r *Repository) GetAccount(ctx context.Context, id int64) (*Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, "SELECT "+accountColumns+" FROM debt_accounts WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// CreateAccount inserts a new account.
func (r *Repository) CreateAccount(ctx context.Context, input CreateAccountInput) (*Account, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO debt_accounts
(owner, name, account_type, institution_name, original_balance, current_balance, interest_rate,
minimum_payment, suggested_minimum_payment, monthly_payment, payment_terms, payment_link, due_date,
plaid_account_id, bank_connection_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING `+accountColumns,
		input.Owner, input.Name, input.AccountType, input.InstitutionName, input.OriginalBalance,
		input.CurrentBalance, input.InterestRate, input.MinimumPayment, input.SuggestedMinimumPayment,
		input.MonthlyPayment, input.PaymentTerms, input.PaymentLink, input.DueDate, input.PlaidAccountID,
		input.BankConnectionID)
	return scanAccount(row)
}

// UpdateAccount applies the non-nil fields of a partial update and returns
// the updated row, nil when the account does not exist.
func (r *Repository) UpdateAccount(ctx context.Context, id int64, input UpdateAccountInput) (*Account, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if input.Owner != nil {
		add("owner", *input.Owner)
	}
	if input.Name != nil {
		add("name", *input.Name)
	}
	if input.AccountType != nil {
		add("account_type", *input.AccountType)
	}
	if input.InstitutionName != nil {
		add("institution_name", *input.InstitutionName)
	}
	if input.OriginalBalance != nil {
		add("original_balance", *input.OriginalBalance)
	}
	if input.CurrentBalance != nil {
		add("current_balance", *input.CurrentBalance)
	}
	if input.InterestRate != nil {
		add("interest_rate", *input.InterestRate)
	}
	if input.MinimumPayment != nil {
		add("minimum_payment", *input.MinimumPayment)
	}
	if input.SuggestedMinimumPayment != nil {
		add("suggested_minimum_payment", *input.SuggestedMinimumPayment)
	}
	if input.MonthlyPayment != nil {
		add("monthly_payment", *input.MonthlyPayment)
	}
	if input.PaymentTerms != nil {
		add("payment_terms", *input.PaymentTerms)
	}
	if input.PaymentLink != nil {
		add("payment_link", *input.PaymentLink)
	}
	if input.DueDate != nil {
		add("due_date", *input.DueDate)
	}

	query := fmt.Sprintf("UPDATE debt_accounts SET %s WHERE id = $1 RETURNING %s", strings.Join(sets, ", "), accountColumns)
	a, err := scanAccount(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// DeleteAccount removes an account; payments cascade.
func (r *Repository) DeleteAccount(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM debt_accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// RecordPayment inserts the payment and applies it to the account balance in
// one repeatable-read transaction. The balance clamps at zero and the
// account is flagged paid off the moment it gets there.
func (r *Repository) RecordPayment(ctx context.Context, accountID int64, input PaymentInput) (*Payment, *Account, error) {
	var (
		payment Payment
		account *Account
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		account, err = scanAccount(tx.QueryRow(ctx, "SELECT "+accountColumns+" FROM debt_accounts WHERE id = $1 FOR UPDATE", accountID))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `INSERT INTO debt_payments (debt_account_id, payment_amount, payment_date, payment_type, notes)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, debt_account_id, payment_amount, payment_date, payment_type, notes, created_at`,
			accountID, input.Amount, input.PaymentDate, input.PaymentType, input.Notes).
			Scan(&payment.ID, &payment.AccountID, &payment.Amount, &payment.PaymentDate, &payment.PaymentType,
				&payment.Notes, &payment.CreatedAt)
		if err != nil {
			return err
		}

		newBalance := account.CurrentBalance - input.Amount
		if newBalance < 0 {
			newBalance = 0
		}
		account.CurrentBalance = newBalance
		if newBalance == 0 && !account.IsPaidOff {
			account.IsPaidOff = true
			paidAt := input.PaymentDate
			account.PaidOffDate = &paidAt
		}
		_, err = tx.Exec(ctx, `UPDATE debt_accounts SET current_balance = $2, is_paid_off = $3, paid_off_date = $4, updated_at = now() WHERE id = $1`,
			accountID, account.CurrentBalance, account.IsPaidOff, account.PaidOffDate)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &payment, account, nil
}

// ListPayments returns an account's payment history, newest first.
func (r *Repository) ListPayments(ctx context.Context, accountID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, debt_account_id, payment_amount, payment_date, payment_type, notes, created_at
FROM debt_payments WHERE debt_account_id = $1 ORDER BY payment_date DESC, id DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Amount, &p.PaymentDate, &p.PaymentType, &p.Notes, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// ListLinkedAccounts returns unpaid accounts tied to a bank connection.
func (r *Repository) ListLinkedAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+accountColumns+` FROM debt_accounts
WHERE plaid_account_id <> '' AND bank_connection_id IS NOT NULL AND is_paid_off = FALSE ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// CreateBankConnection stores an exchanged bank link.
func (r *Repository) CreateBankConnection(ctx context.Context, input BankConnectionInput) (*BankConnection, error) {
	var conn BankConnection
	err := r.pool.QueryRow(ctx, `INSERT INTO bank_connections (institution_id, institution_name, access_token, item_id, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, institution_id, institution_name, access_token, item_id, status, created_at`,
		input.InstitutionID, input.InstitutionName, input.AccessToken, input.ItemID, input.Status).
		Scan(&conn.ID, &conn.InstitutionID, &conn.InstitutionName, &conn.AccessToken, &conn.ItemID,
			&conn.Status, &conn.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// GetBankConnection fetches a stored bank link, nil when missing.
func (r *Repository) GetBankConnection(ctx context.Context, id int64) (*BankConnection, error) {
	var conn BankConnection
	err := r.pool.QueryRow(ctx, `SELECT id, institution_id, institution_name, access_token, item_id, status, created_at
FROM bank_connections WHERE id = $1`, id).
		Scan(&conn.ID, &conn.InstitutionID, &conn.InstitutionName, &conn.AccessToken, &conn.ItemID,
			&conn.Status, &conn.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// SetSuggestedMinimum stores an advisor estimate, optionally filling the
// minimum payment when the account has none.
func (r *Repository) SetSuggestedMinimum(ctx context.Context, id int64, amount float64, fillMinimum bool) error {
	var err error
	if fillMinimum {
		_, err = r.pool.Exec(ctx, `UPDATE debt_accounts
SET suggested_minimum_payment = $2, minimum_payment = COALESCE(minimum_payment, $2), updated_at = now()
WHERE id = $1`, id, amount)
	} else {
		_, err = r.pool.Exec(ctx, `UPDATE debt_accounts
SET suggested_minimum_payment = $2, updated_at = now() WHERE id = $1`, id, amount)
	}
	return err
}

var _ RepositoryPort = (*Repository)(nil)
