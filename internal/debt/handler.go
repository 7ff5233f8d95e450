package debt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/clearpath/clearpath/internal/platform/httpx"
	"github.com/clearpath/clearpath/internal/shared"
)

// SyncEnqueuer schedules a background balance refresh for one account.
type SyncEnqueuer func(ctx context.Context, accountID int64) error

// Handler manages debt-tracker endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validator   *validator.Validate
	idempotency *shared.IdempotencyStore
	enqueueSync SyncEnqueuer
}

// NewHandler builds Handler instance. The idempotency store may be nil.
func NewHandler(logger *slog.Logger, service *Service, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		validator:   validator.New(),
		idempotency: idempotency,
	}
}

// SetSyncEnqueuer enables the async form of the sync endpoint.
func (h *Handler) SetSyncEnqueuer(fn SyncEnqueuer) {
	h.enqueueSync = fn
}

// MountRoutes registers debt-tracker routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.listAccounts)
	r.Post("/accounts", h.createAccount)
	r.Get("/accounts/{id}", h.getAccount)
	r.Put("/accounts/{id}", h.updateAccount)
	r.Delete("/accounts/{id}", h.deleteAccount)
	r.Post("/accounts/{id}/payments", h.createPayment)
	r.Get("/accounts/{id}/payments", h.listPayments)
	r.Post("/accounts/{id}/sync", h.syncAccount)
	r.Get("/summary", h.summary)
	r.Get("/link-token", h.createLinkToken)
	r.Post("/exchange-public-token", h.exchangePublicToken)
	r.Post("/ai/estimate-minimum-payment/{id}", h.estimateMinimumPayment)
	r.Post("/ai/suggest-payment-strategy", h.suggestStrategy)
}

type accountResponse struct {
	ID                      int64    `json:"id"`
	Owner                   string   `json:"owner"`
	Name                    string   `json:"name"`
	AccountType             string   `json:"account_type"`
	InstitutionName         string   `json:"institution_name"`
	OriginalBalance         float64  `json:"original_balance"`
	CurrentBalance          float64  `json:"current_balance"`
	InterestRate            *float64 `json:"interest_rate"`
	MinimumPayment          *float64 `json:"minimum_payment"`
	SuggestedMinimumPayment *float64 `json:"suggested_minimum_payment"`
	PaymentTerms            string   `json:"payment_terms"`
	PaymentLink             string   `json:"payment_link"`
	MonthlyPayment          *float64 `json:"monthly_payment"`
	DueDate                 *string  `json:"due_date"`
	PlaidAccountID          string   `json:"plaid_account_id"`
	IsPaidOff               bool     `json:"is_paid_off"`
	PaidOffDate             *string  `json:"paid_off_date"`
	CreatedAt               string   `json:"created_at"`
	UpdatedAt               string   `json:"updated_at"`
}

func toAccountResponse(a Account) accountResponse {
	resp := accountResponse{
		ID:                      a.ID,
		Owner:                   a.Owner,
		Name:                    a.Name,
		AccountType:             string(a.AccountType),
		InstitutionName:         a.InstitutionName,
		OriginalBalance:         a.OriginalBalance,
		CurrentBalance:          a.CurrentBalance,
		InterestRate:            a.InterestRate,
		MinimumPayment:          a.MinimumPayment,
		SuggestedMinimumPayment: a.SuggestedMinimumPayment,
		PaymentTerms:            a.PaymentTerms,
		PaymentLink:             a.PaymentLink,
		MonthlyPayment:          a.MonthlyPayment,
		PlaidAccountID:          a.PlaidAccountID,
		IsPaidOff:               a.IsPaidOff,
		CreatedAt:               a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:               a.UpdatedAt.Format(time.RFC3339),
	}
	if a.DueDate != nil {
		s := a.DueDate.Format("2006-01-02")
		resp.DueDate = &s
	}
	if a.PaidOffDate != nil {
		s := a.PaidOffDate.Format(time.RFC3339)
		resp.PaidOffDate = &s
	}
	return resp
}

type paymentResponse struct {
	ID            int64   `json:"id"`
	DebtAccountID int64   `json:"debt_account_id"`
	PaymentAmount float64 `json:"payment_amount"`
	PaymentDate   string  `json:"payment_date"`
	PaymentType   string  `json:"payment_type"`
	Notes         string  `json:"notes"`
	CreatedAt     string  `json:"created_at"`
}

func toPaymentResponse(p Payment) paymentResponse {
	return paymentResponse{
		ID:            p.ID,
		DebtAccountID: p.AccountID,
		PaymentAmount: p.Amount,
		PaymentDate:   p.PaymentDate.Format(time.RFC3339),
		PaymentType:   string(p.PaymentType),
		Notes:         p.Notes,
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
	}
}

type createAccountRequest struct {
	Owner                   string   `json:"owner" validate:"required"`
	Name                    string   `json:"name" validate:"required"`
	AccountType             string   `json:"account_type"`
	InstitutionName         string   `json:"institution_name" validate:"required"`
	OriginalBalance         float64  `json:"original_balance" validate:"gte=0"`
	CurrentBalance          float64  `json:"current_balance" validate:"gte=0"`
	InterestRate            *float64 `json:"interest_rate"`
	MinimumPayment          *float64 `json:"minimum_payment"`
	SuggestedMinimumPayment *float64 `json:"suggested_minimum_payment"`
	MonthlyPayment          *float64 `json:"monthly_payment"`
	PaymentTerms            string   `json:"payment_terms"`
	PaymentLink             string   `json:"payment_link" validate:"omitempty,url"`
	DueDate                 string   `json:"due_date"`
	PlaidAccountID          string   `json:"plaid_account_id"`
}

type updateAccountRequest struct {
	Owner                   *string  `json:"owner"`
	Name                    *string  `json:"name"`
	AccountType             *string  `json:"account_type"`
	InstitutionName         *string  `json:"institution_name"`
	OriginalBalance         *float64 `json:"original_balance" validate:"omitempty,gte=0"`
	CurrentBalance          *float64 `json:"current_balance" validate:"omitempty,gte=0"`
	InterestRate            *float64 `json:"interest_rate"`
	MinimumPayment          *float64 `json:"minimum_payment"`
	SuggestedMinimumPayment *float64 `json:"suggested_minimum_payment"`
	MonthlyPayment          *float64 `json:"monthly_payment"`
	PaymentTerms            *string  `json:"payment_terms"`
	PaymentLink             *string  `json:"payment_link" validate:"omitempty,url"`
	DueDate                 *string  `json:"due_date"`
}

type createPaymentRequest struct {
	PaymentAmount float64 `json:"payment_amount" validate:"required,gt=0"`
	PaymentType   string  `json:"payment_type"`
	Notes         string  `json:"notes"`
	PaymentDate   string  `json:"payment_date"`
}

type exchangeTokenRequest struct {
	PublicToken     string `json:"public_token" validate:"required"`
	InstitutionID   string `json:"institution_id" validate:"required"`
	InstitutionName string `json:"institution_name" validate:"required"`
	Owner           string `json:"owner"`
}

// parseDate accepts a bare ISO date or a full timestamp.
func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", httpx.ErrValidation, value)
	}
	return &t, nil
}

func (h *Handler) validate(payload any) error {
	err := h.validator.Struct(payload)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		return fmt.Errorf("%w: invalid fields: %s", httpx.ErrValidation, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNotLinked):
		httpx.Problem(w, http.StatusBadRequest, "Not Linked", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error("debt request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}

func accountID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid account id", httpx.ErrValidation)
	}
	return id, nil
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListAccountsRequest{
		Owner:          q.Get("owner"),
		AccountType:    q.Get("account_type"),
		IncludePaidOff: q.Get("include_paid_off") == "true" || q.Get("include_paid_off") == "1",
	}
	accounts, err := h.service.ListAccounts(r.Context(), req)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	account, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(*account))
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondErr(w, r, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if err := h.validate(req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	due, err := parseDate(req.DueDate)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	account, err := h.service.CreateAccount(r.Context(), CreateAccountInput{
		Owner:                   req.Owner,
		Name:                    req.Name,
		AccountType:             AccountType(req.AccountType),
		InstitutionName:         req.InstitutionName,
		OriginalBalance:         req.OriginalBalance,
		CurrentBalance:          req.CurrentBalance,
		InterestRate:            req.InterestRate,
		MinimumPayment:          req.MinimumPayment,
		SuggestedMinimumPayment: req.SuggestedMinimumPayment,
		MonthlyPayment:          req.MonthlyPayment,
		PaymentTerms:            req.PaymentTerms,
		PaymentLink:             req.PaymentLink,
		DueDate:                 due,
		PlaidAccountID:          req.PlaidAccountID,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountResponse(*account))
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	var req updateAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondErr(w, r, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if err := h.validate(req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	input := UpdateAccountInput{
		Owner:                   req.Owner,
		Name:                    req.Name,
		InstitutionName:         req.InstitutionName,
		OriginalBalance:         req.OriginalBalance,
		CurrentBalance:          req.CurrentBalance,
		InterestRate:            req.InterestRate,
		MinimumPayment:          req.MinimumPayment,
		SuggestedMinimumPayment: req.SuggestedMinimumPayment,
		MonthlyPayment:          req.MonthlyPayment,
		PaymentTerms:            req.PaymentTerms,
		PaymentLink:             req.PaymentLink,
	}
	if req.AccountType != nil {
		t := AccountType(*req.AccountType)
		input.AccountType = &t
	}
	if req.DueDate != nil {
		due, err := parseDate(*req.DueDate)
		if err != nil {
			h.respondErr(w, r, err)
			return
		}
		input.DueDate = due
	}
	account, err := h.service.UpdateAccount(r.Context(), id, input)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(*account))
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.service.DeleteAccount(r.Context(), id); err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Debt account deleted successfully"})
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	var req createPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondErr(w, r, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if err := h.validate(req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	var paymentDate time.Time
	if req.PaymentDate != "" {
		parsed, err := parseDate(req.PaymentDate)
		if err != nil {
			h.respondErr(w, r, err)
			return
		}
		paymentDate = *parsed
	}

	// Replays of the same Idempotency-Key are rejected instead of double
	// charging the ledger.
	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), idemKey, shared.ScopeDebtPayment); err != nil {
			h.respondErr(w, r, err)
			return
		}
	}

	payment, err := h.service.RecordPayment(r.Context(), id, PaymentInput{
		Amount:      req.PaymentAmount,
		PaymentType: PaymentType(req.PaymentType),
		Notes:       req.Notes,
		PaymentDate: paymentDate,
	})
	if err != nil {
		if idemKey != "" && h.idempotency != nil {
			_ = h.idempotency.Delete(r.Context(), idemKey)
		}
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPaymentResponse(*payment))
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	payments, err := h.service.ListPayments(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) syncAccount(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	async := r.URL.Query().Get("async")
	if (async == "1" || async == "true") && h.enqueueSync != nil {
		if err := h.enqueueSync(r.Context(), id); err != nil {
			h.respondErr(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"message": "Sync scheduled"})
		return
	}
	result, err := h.service.SyncAccount(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"message":     "Account synced successfully",
		"new_balance": result.NewBalance,
	})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetSummary(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) createLinkToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.service.CreateLinkToken(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, token)
}

func (h *Handler) exchangePublicToken(w http.ResponseWriter, r *http.Request) {
	var req exchangeTokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondErr(w, r, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if err := h.validate(req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if req.Owner == "" {
		req.Owner = "user"
	}
	result, err := h.service.ExchangePublicToken(r.Context(), req.PublicToken, req.InstitutionID, req.InstitutionName, req.Owner)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"message":            "Bank connected successfully",
		"bank_connection_id": result.BankConnectionID,
		"accounts_added":     result.AccountsAdded,
	})
}

func (h *Handler) estimateMinimumPayment(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	result, err := h.service.EstimateMinimumPayment(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) suggestStrategy(w http.ResponseWriter, r *http.Request) {
	suggestion, err := h.service.SuggestStrategy(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, suggestion)
}
