package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// Client talks to the payment gateway's private API. The gateway is a
// black box: we open payment intents and checkout sessions and learn
// about outcomes only through webhooks.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string, client *http.Client) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  client,
	}
}

type intentRequest struct {
	Amount   decimal.Decimal   `json:"amount"`
	Currency string            `json:"currency"`
	Email    string            `json:"receipt_email,omitempty"`
	Metadata map[string]string `json:"metadata"`
}

type intentResponse struct {
	ID string `json:"id"`
}

// CreateIntent opens a payment intent for an order total and returns
// the gateway's intent reference. The order id rides along as metadata
// so webhook events can be correlated back.
func (c *Client) CreateIntent(ctx context.Context, orderID string, amount decimal.Decimal, customerEmail string) (string, error) {
	req := intentRequest{
		Amount:   amount,
		Currency: "usd",
		Email:    customerEmail,
		Metadata: map[string]string{"order_id": orderID},
	}

	var resp intentResponse
	if err := c.post(ctx, "/v1/payment_intents", req, &resp); err != nil {
		return "", fmt.Errorf("create payment intent: %w", err)
	}
	return resp.ID, nil
}

type SessionLine struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

type sessionRequest struct {
	Amount   decimal.Decimal   `json:"amount"`
	Currency string            `json:"currency"`
	Lines    []SessionLine     `json:"line_items"`
	Metadata map[string]string `json:"metadata"`
}

type sessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateInvoiceSession opens a hosted checkout session for an invoice.
// Lines itemize the amount due and the processing fee so the payer sees
// the same breakdown the invoice shows. Returns the session URL the
// customer is redirected to.
func (c *Client) CreateInvoiceSession(ctx context.Context, invoiceID string, total decimal.Decimal, lines []SessionLine) (string, error) {
	req := sessionRequest{
		Amount:   total,
		Currency: "usd",
		Lines:    lines,
		Metadata: map[string]string{"invoice_id": invoiceID},
	}

	var resp sessionResponse
	if err := c.post(ctx, "/v1/checkout_sessions", req, &resp); err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return resp.URL, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned %d for %s", resp.StatusCode, path)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
