// Package advisor calls the remote text-completion service that produces
// payoff strategies and minimum-payment estimates. The service is an opaque
// collaborator: prompts go out, text comes back, and the only structure we
// rely on is what we asked for in the prompt.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/clearpath/clearpath/internal/debt"
)

// Client wraps the chat-completions API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient constructs a new client.
func NewClient(baseURL, apiKey, model string) *Client {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "system", Content: system}, {Role: "user", Content: user}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("advisor returned status %d: %s", resp.StatusCode, raw)
	}
	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("advisor returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func formatOptional(v *float64, unknown string) string {
	if v == nil {
		return unknown
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// EstimateMinimumPayment asks for a single number: the likely minimum
// monthly payment for the account.
func (c *Client) EstimateMinimumPayment(ctx context.Context, a debt.Account) (float64, error) {
	terms := a.PaymentTerms
	if terms == "" {
		terms = "Not specified"
	}
	prompt := fmt.Sprintf(`Estimate the minimum monthly payment for this debt account:

Account Name: %s
Institution: %s
Current Balance: $%.2f
Interest Rate: %s%% APR
Account Type: %s
Payment Terms: %s

Based on standard practices for %s accounts, estimate what the minimum payment would likely be. Consider:
- For credit cards: typically 1-3%% of balance or $25-35 minimum
- For loans: based on amortization schedule
- For mortgages: based on principal and interest

Respond with ONLY a number (the estimated minimum payment amount). No text, just the number.`,
		a.Name, a.InstitutionName, a.CurrentBalance, formatOptional(a.InterestRate, "Unknown"),
		a.AccountType, terms, a.AccountType)

	content, err := c.complete(ctx, "You are a financial calculator. Respond with only numbers.", prompt, 0.3, 50)
	if err != nil {
		return 0, err
	}
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(content))
	estimate, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("advisor returned a non-numeric estimate %q", content)
	}
	return estimate, nil
}

// SuggestStrategy asks for a payoff plan over the whole portfolio as strict
// JSON and decodes it into the domain's suggestion shape.
func (c *Client) SuggestStrategy(ctx context.Context, total float64, byOwner map[string]float64, accounts []debt.Account) (*debt.StrategySuggestion, error) {
	owners := make([]string, 0, len(byOwner))
	for owner := range byOwner {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	var b strings.Builder
	fmt.Fprintf(&b, "You are a financial advisor helping someone pay off debt. Analyze their debt situation and provide recommendations.\n\n")
	fmt.Fprintf(&b, "Total Debt: $%.2f\n", total)
	for _, owner := range owners {
		fmt.Fprintf(&b, "%s's Debt: $%.2f\n", owner, byOwner[owner])
	}
	b.WriteString("\nDebt Accounts:\n")
	for _, a := range accounts {
		fmt.Fprintf(&b, "- %s (%s): $%.2f at %s%% APR, Min Payment: $%s, Type: %s, Owner: %s\n",
			a.Name, a.InstitutionName, a.CurrentBalance, formatOptional(a.InterestRate, "Unknown"),
			formatOptional(a.MinimumPayment, "Unknown"), a.AccountType, a.Owner)
	}
	b.WriteString(`
Provide a JSON response with:
1. "priority_order": Array of account names in order of priority to pay off
2. "reasoning": Brief explanation of the strategy
3. "suggested_minimum_payments": Object with account names as keys and suggested minimum payment amounts
4. "estimated_payoff_timeline": Estimated months to pay off all debt with current strategy
5. "tips": Array of 3-5 actionable tips

Format as valid JSON only.`)

	content, err := c.complete(ctx, "You are a financial advisor. Always respond with valid JSON only.", b.String(), 0.7, 1000)
	if err != nil {
		return nil, err
	}

	// The timeline field comes back as either a number of months or a
	// sentence, so it is decoded loosely.
	var raw struct {
		PriorityOrder            []string           `json:"priority_order"`
		Reasoning                string             `json:"reasoning"`
		SuggestedMinimumPayments map[string]float64 `json:"suggested_minimum_payments"`
		EstimatedPayoffTimeline  json.RawMessage    `json:"estimated_payoff_timeline"`
		Tips                     []string           `json:"tips"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &raw); err != nil {
		return nil, fmt.Errorf("advisor returned malformed JSON: %w", err)
	}
	return &debt.StrategySuggestion{
		PriorityOrder:            raw.PriorityOrder,
		Reasoning:                raw.Reasoning,
		SuggestedMinimumPayments: raw.SuggestedMinimumPayments,
		EstimatedPayoffTimeline:  strings.Trim(string(raw.EstimatedPayoffTimeline), `"`),
		Tips:                     raw.Tips,
	}, nil
}

// stripFences removes a markdown code fence that models sometimes wrap
// around JSON despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var _ debt.AdvisorPort = (*Client)(nil)
