package debt

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, svc *Service) *httptest.Server {
	t.Helper()
	h := NewHandler(slog.Default(), svc, nil)
	r := chi.NewRouter()
	r.Route("/api/debt-tracker", h.MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestCreateAndGetAccount(t *testing.T) {
	repo := newMemoryRepo()
	srv := newTestServer(t, NewService(repo, nil, nil, nil))

	resp := postJSON(t, srv.URL+"/api/debt-tracker/accounts", map[string]any{
		"owner":            "Darius",
		"name":             "Visa",
		"account_type":     "credit_card",
		"institution_name": "Chase",
		"original_balance": 2000,
		"current_balance":  1500,
		"due_date":         "2026-09-15",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created accountResponse
	decodeBody(t, resp, &created)
	require.Equal(t, "Visa", created.Name)
	require.Equal(t, 1500.0, created.CurrentBalance)
	require.NotNil(t, created.DueDate)
	require.Equal(t, "2026-09-15", *created.DueDate)

	getResp, err := http.Get(srv.URL + "/api/debt-tracker/accounts/1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	var fetched accountResponse
	decodeBody(t, getResp, &fetched)
	require.Equal(t, created.ID, fetched.ID)
}

func TestCreateAccountValidation(t *testing.T) {
	srv := newTestServer(t, NewService(newMemoryRepo(), nil, nil, nil))

	resp := postJSON(t, srv.URL+"/api/debt-tracker/accounts", map[string]any{
		"owner": "Darius",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "application/json")
}

func TestGetAccountNotFound(t *testing.T) {
	srv := newTestServer(t, NewService(newMemoryRepo(), nil, nil, nil))

	resp, err := http.Get(srv.URL + "/api/debt-tracker/accounts/42")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateAccountPartial(t *testing.T) {
	repo := newMemoryRepo()
	srv := newTestServer(t, NewService(repo, nil, nil, nil))
	seedAccount(t, repo, CreateAccountInput{
		Owner: "Darius", Name: "Visa", AccountType: TypeCreditCard,
		InstitutionName: "Chase", OriginalBalance: 2000, CurrentBalance: 1500,
	})

	body, err := json.Marshal(map[string]any{"current_balance": 1200})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/debt-tracker/accounts/1", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated accountResponse
	decodeBody(t, resp, &updated)
	require.Equal(t, 1200.0, updated.CurrentBalance)
	require.Equal(t, "Visa", updated.Name)
}

func TestDeleteAccount(t *testing.T) {
	repo := newMemoryRepo()
	srv := newTestServer(t, NewService(repo, nil, nil, nil))
	seedAccount(t, repo, CreateAccountInput{
		Owner: "Darius", Name: "Visa", AccountType: TypeCreditCard,
		InstitutionName: "Chase", OriginalBalance: 100, CurrentBalance: 100,
	})

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/debt-tracker/accounts/1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var msg map[string]string
	decodeBody(t, resp, &msg)
	require.Equal(t, "Debt account deleted successfully", msg["message"])

	getResp, err := http.Get(srv.URL + "/api/debt-tracker/accounts/1")
	require.NoError(t, err)
	getResp.Body.Close()
	require.Equal(t, http.StatusNotFound, getResp.StatusCode)
}

func TestCreatePaymentAndHistory(t *testing.T) {
	repo := newMemoryRepo()
	srv := newTestServer(t, NewService(repo, nil, nil, nil))
	seedAccount(t, repo, CreateAccountInput{
		Owner: "Darius", Name: "Visa", AccountType: TypeCreditCard,
		InstitutionName: "Chase", OriginalBalance: 1000, CurrentBalance: 800,
	})

	resp := postJSON(t, srv.URL+"/api/debt-tracker/accounts/1/payments", map[string]any{
		"payment_amount": 300,
		"payment_type":   "custom",
		"payment_date":   "2026-08-01",
		"notes":          "extra payment",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var payment paymentResponse
	decodeBody(t, resp, &payment)
	require.Equal(t, 300.0, payment.PaymentAmount)
	require.Equal(t, "custom", payment.PaymentType)

	histResp, err := http.Get(srv.URL + "/api/debt-tracker/accounts/1/payments")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, histResp.StatusCode)
	var history []paymentResponse
	decodeBody(t, histResp, &history)
	require.Len(t, history, 1)

	acct, err := repo.GetAccount(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 500.0, acct.CurrentBalance)
}

func TestCreatePaymentRejectsZeroAmount(t *testing.T) {
	repo := newMemoryRepo()
	srv := newTestServer(t, NewService(repo, nil, nil, nil))
	seedAccount(t, repo, CreateAccountInput{
		Owner: "Darius", Name: "Visa", AccountType: TypeCreditCard,
		InstitutionName: "Chase", OriginalBalance: 100, CurrentBalance: 100,
	})

	resp := postJSON(t, srv.URL+"/api/debt-tracker/accounts/1/payments", map[string]any{
		"payment_amount": 0,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListAccountsFiltersByOwner(t *testing.T) {
	repo := newMemoryRepo()
	srv := newTestServer(t, NewService(repo, nil, nil, nil))
	seedAccount(t, repo, CreateAccountInput{
		Owner: "Darius", Name: "Visa", AccountType: TypeCreditCard,
		InstitutionName: "Chase", OriginalBalance: 100, CurrentBalance: 100,
	})
	seedAccount(t, repo, CreateAccountInput{
		Owner: "Katia", Name: "Car Loan", AccountType: TypeLoan,
		InstitutionName: "Ally", OriginalBalance: 5000, CurrentBalance: 4000,
	})

	resp, err := http.Get(srv.URL + "/api/debt-tracker/accounts?owner=Katia")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var accounts []accountResponse
	decodeBody(t, resp, &accounts)
	require.Len(t, accounts, 1)
	require.Equal(t, "Car Loan", accounts[0].Name)
}

func TestSummaryEndpoint(t *testing.T) {
	repo := newMemoryRepo()
	srv := newTestServer(t, NewService(repo, nil, nil, nil))
	seedAccount(t, repo, CreateAccountInput{
		Owner: "Darius", Name: "Visa", AccountType: TypeCreditCard,
		InstitutionName: "Chase", OriginalBalance: 2000, CurrentBalance: 1500,
	})

	resp, err := http.Get(srv.URL + "/api/debt-tracker/summary")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary Summary
	decodeBody(t, resp, &summary)
	require.Equal(t, 1500.0, summary.TotalDebt)
	require.Equal(t, 500.0, summary.TotalPaidOff)
	require.Equal(t, 1, summary.AccountCount)
}

func TestLinkTokenUnavailableWithoutBank(t *testing.T) {
	srv := newTestServer(t, NewService(newMemoryRepo(), nil, nil, nil))

	resp, err := http.Get(srv.URL + "/api/debt-tracker/link-token")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestExchangePublicTokenEndpoint(t *testing.T) {
	repo := newMemoryRepo()
	bank := &fakeBank{accounts: []ProviderAccount{
		{AccountID: "plaid-1", Name: "Platinum Card", Type: "credit", CurrentBalance: 1250},
	}}
	srv := newTestServer(t, NewService(repo, nil, bank, nil))

	resp := postJSON(t, srv.URL+"/api/debt-tracker/exchange-public-token", map[string]any{
		"public_token":     "public-token",
		"institution_id":   "ins_1",
		"institution_name": "Chase",
		"owner":            "Darius",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	decodeBody(t, resp, &out)
	require.Equal(t, "Bank connected successfully", out["message"])
	require.Equal(t, 1.0, out["accounts_added"])
}

func TestSyncEndpointNotLinked(t *testing.T) {
	repo := newMemoryRepo()
	bank := &fakeBank{}
	srv := newTestServer(t, NewService(repo, nil, bank, nil))
	seedAccount(t, repo, CreateAccountInput{
		Owner: "Darius", Name: "Visa", AccountType: TypeCreditCard,
		InstitutionName: "Chase", OriginalBalance: 100, CurrentBalance: 100,
	})

	resp := postJSON(t, srv.URL+"/api/debt-tracker/accounts/1/sync", map[string]any{})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSyncEndpointAsyncEnqueues(t *testing.T) {
	repo := newMemoryRepo()
	h := NewHandler(slog.Default(), NewService(repo, nil, &fakeBank{}, nil), nil)
	var enqueued []int64
	h.SetSyncEnqueuer(func(ctx context.Context, accountID int64) error {
		enqueued = append(enqueued, accountID)
		return nil
	})
	r := chi.NewRouter()
	r.Route("/api/debt-tracker", h.MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	seedAccount(t, repo, CreateAccountInput{
		Owner: "Darius", Name: "Visa", AccountType: TypeCreditCard,
		InstitutionName: "Chase", OriginalBalance: 100, CurrentBalance: 100,
	})

	resp := postJSON(t, srv.URL+"/api/debt-tracker/accounts/1/sync?async=1", map[string]any{})
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, []int64{1}, enqueued)
}

func TestEstimateMinimumPaymentEndpoint(t *testing.T) {
	repo := newMemoryRepo()
	adv := &fakeAdvisor{estimate: 55}
	srv := newTestServer(t, NewService(repo, nil, nil, adv))
	seedAccount(t, repo, CreateAccountInput{
		Owner: "Darius", Name: "Visa", AccountType: TypeCreditCard,
		InstitutionName: "Chase", OriginalBalance: 2000, CurrentBalance: 1500,
	})

	resp := postJSON(t, srv.URL+"/api/debt-tracker/ai/estimate-minimum-payment/1", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out EstimateResult
	decodeBody(t, resp, &out)
	require.Equal(t, 55.0, out.EstimatedMinimumPayment)
	require.Equal(t, "Visa", out.AccountName)
}

func TestSuggestStrategyEndpointUnavailableWithoutAdvisor(t *testing.T) {
	srv := newTestServer(t, NewService(newMemoryRepo(), nil, nil, nil))

	resp := postJSON(t, srv.URL+"/api/debt-tracker/ai/suggest-payment-strategy", map[string]any{})
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
