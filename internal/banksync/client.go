// Package banksync talks to the Plaid-style bank aggregation API that backs
// imported accounts and balance refreshes.
package banksync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clearpath/clearpath/internal/debt"
)

// Client wraps interactions with the provider API.
type Client struct {
	baseURL    string
	clientID   string
	secret     string
	httpClient *http.Client
}

// NewClient constructs a new client.
func NewClient(baseURL, clientID, secret string) *Client {
	return &Client{
		baseURL:  baseURL,
		clientID: clientID,
		secret:   secret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) post(ctx context.Context, path string, payload, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("bank provider returned status %d: %s", resp.StatusCode, raw)
	}
	return json.Unmarshal(raw, dest)
}

type linkTokenRequest struct {
	ClientID     string   `json:"client_id"`
	Secret       string   `json:"secret"`
	ClientName   string   `json:"client_name"`
	Products     []string `json:"products"`
	CountryCodes []string `json:"country_codes"`
	Language     string   `json:"language"`
	User         struct {
		ClientUserID string `json:"client_user_id"`
	} `json:"user"`
}

type linkTokenResponse struct {
	LinkToken  string    `json:"link_token"`
	Expiration time.Time `json:"expiration"`
}

// CreateLinkToken starts the link flow for a user.
func (c *Client) CreateLinkToken(ctx context.Context, userID string) (*debt.LinkToken, error) {
	if userID == "" {
		userID = "default_user"
	}
	req := linkTokenRequest{
		ClientID:     c.clientID,
		Secret:       c.secret,
		ClientName:   "ClearPath Debt Tracker",
		Products:     []string{"transactions"},
		CountryCodes: []string{"US"},
		Language:     "en",
	}
	req.User.ClientUserID = userID

	var resp linkTokenResponse
	if err := c.post(ctx, "/link/token/create", req, &resp); err != nil {
		return nil, err
	}
	return &debt.LinkToken{Token: resp.LinkToken, Expiration: resp.Expiration}, nil
}

type exchangeRequest struct {
	ClientID    string `json:"client_id"`
	Secret      string `json:"secret"`
	PublicToken string `json:"public_token"`
}

type exchangeResponse struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
}

// ExchangePublicToken trades the link flow's public token for a durable
// access token.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (string, string, error) {
	var resp exchangeResponse
	err := c.post(ctx, "/item/public_token/exchange", exchangeRequest{
		ClientID:    c.clientID,
		Secret:      c.secret,
		PublicToken: publicToken,
	}, &resp)
	if err != nil {
		return "", "", err
	}
	return resp.AccessToken, resp.ItemID, nil
}

type accountsRequest struct {
	ClientID    string `json:"client_id"`
	Secret      string `json:"secret"`
	AccessToken string `json:"access_token"`
}

type accountsResponse struct {
	Accounts []struct {
		AccountID string `json:"account_id"`
		Name      string `json:"name"`
		Type      string `json:"type"`
		Balances  struct {
			Current float64 `json:"current"`
		} `json:"balances"`
	} `json:"accounts"`
}

// GetAccounts lists the accounts visible through an access token.
func (c *Client) GetAccounts(ctx context.Context, accessToken string) ([]debt.ProviderAccount, error) {
	var resp accountsResponse
	err := c.post(ctx, "/accounts/get", accountsRequest{
		ClientID:    c.clientID,
		Secret:      c.secret,
		AccessToken: accessToken,
	}, &resp)
	if err != nil {
		return nil, err
	}
	out := make([]debt.ProviderAccount, 0, len(resp.Accounts))
	for _, a := range resp.Accounts {
		out = append(out, debt.ProviderAccount{
			AccountID:      a.AccountID,
			Name:           a.Name,
			Type:           a.Type,
			CurrentBalance: a.Balances.Current,
		})
	}
	return out, nil
}

var _ debt.BankPort = (*Client)(nil)
