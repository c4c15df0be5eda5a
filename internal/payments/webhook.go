package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fielderlane/farmstand/internal/orders"
)

const (
	// SignatureHeader carries the gateway's timestamped HMAC digest.
	SignatureHeader = "Gateway-Signature"

	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventPaymentCanceled  = "payment_intent.canceled"
)

// Event is the gateway webhook envelope.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

type EventData struct {
	Object PaymentIntent `json:"object"`
}

type PaymentIntent struct {
	ID       string            `json:"id"`
	Amount   decimal.Decimal   `json:"amount"`
	Metadata map[string]string `json:"metadata"`
	Card     *CardDetails      `json:"card,omitempty"`
}

type CardDetails struct {
	Brand string `json:"brand"`
	Last4 string `json:"last4"`
}

// Method renders the card as a payment method label, e.g. "visa 4242".
func (c *CardDetails) Method() string {
	if c == nil {
		return "card"
	}
	return c.Brand + " " + c.Last4
}

// StateMachine is the order transition surface driven by webhook
// events. Implemented by *orders.Service.
type StateMachine interface {
	HandlePaymentSucceeded(ctx context.Context, intentRef string) error
	HandlePaymentFailed(ctx context.Context, intentRef string) error
	HandlePaymentCanceled(ctx context.Context, intentRef string) error
}

// InvoicePayments records gateway payments against invoices.
type InvoicePayments interface {
	RecordGatewayPayment(ctx context.Context, invoiceID, intentRef string, amount decimal.Decimal, method string) error
}

// Deduper suppresses redelivered events. Forget undoes the seen marker
// when processing fails, so the next delivery runs the event again.
// Implemented by *EventDedup.
type Deduper interface {
	FirstDelivery(ctx context.Context, eventID string) bool
	Forget(ctx context.Context, eventID string)
}

var (
	meter = otel.Meter("farmstand/payments")

	webhookEvents metric.Int64Counter
)

func init() {
	var err error
	webhookEvents, err = meter.Int64Counter("webhook.events",
		metric.WithDescription("Gateway webhook events by type and outcome"))
	if err != nil {
		panic(err)
	}
}

// WebhookHandler verifies, dedups and routes gateway webhook events.
// It answers 200 for everything it accepted or deliberately ignored,
// 400 for requests the gateway should not retry, and 500 only for
// storage failures where a retry can succeed.
type WebhookHandler struct {
	machine   StateMachine
	invoices  InvoicePayments
	dedup     Deduper
	secret    string
	tolerance time.Duration
	logger    *slog.Logger

	now func() time.Time
}

func NewWebhookHandler(machine StateMachine, invoices InvoicePayments, dedup Deduper, secret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		machine:   machine,
		invoices:  invoices,
		dedup:     dedup,
		secret:    secret,
		tolerance: DefaultTolerance,
		logger:    logger,
		now:       time.Now,
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}

	if err := VerifySignature(body, r.Header.Get(SignatureHeader), h.secret, h.tolerance, h.now()); err != nil {
		h.logger.Warn("webhook signature rejected", "error", err)
		h.count(r.Context(), "rejected", "")
		h.writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil || event.ID == "" || event.Type == "" {
		h.count(r.Context(), "malformed", "")
		h.writeError(w, http.StatusBadRequest, "malformed event")
		return
	}

	if h.dedup != nil && !h.dedup.FirstDelivery(r.Context(), event.ID) {
		h.logger.Info("duplicate webhook delivery acknowledged", "event_id", event.ID, "type", event.Type)
		h.count(r.Context(), "duplicate", event.Type)
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	if err := h.route(r.Context(), event); err != nil {
		if errors.Is(err, orders.ErrUnknownOrder) {
			h.logger.Warn("webhook for unknown payment intent", "event_id", event.ID, "intent", event.Data.Object.ID)
			h.count(r.Context(), "unknown_order", event.Type)
			h.writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		// The 500 tells the gateway to redeliver; the marker must go
		// or the retry would be swallowed as a duplicate.
		if h.dedup != nil {
			h.dedup.Forget(r.Context(), event.ID)
		}
		h.logger.Error("webhook processing failed", "error", err, "event_id", event.ID, "type", event.Type)
		h.count(r.Context(), "error", event.Type)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.count(r.Context(), "processed", event.Type)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *WebhookHandler) route(ctx context.Context, event Event) error {
	intent := event.Data.Object

	switch event.Type {
	case EventPaymentSucceeded:
		if invoiceID := intent.Metadata["invoice_id"]; invoiceID != "" {
			return h.invoices.RecordGatewayPayment(ctx, invoiceID, intent.ID, intent.Amount, intent.Card.Method())
		}
		return h.machine.HandlePaymentSucceeded(ctx, intent.ID)
	case EventPaymentFailed:
		return h.machine.HandlePaymentFailed(ctx, intent.ID)
	case EventPaymentCanceled:
		return h.machine.HandlePaymentCanceled(ctx, intent.ID)
	default:
		h.logger.Info("ignoring unhandled event type", "event_id", event.ID, "type", event.Type)
		return nil
	}
}

func (h *WebhookHandler) count(ctx context.Context, outcome, eventType string) {
	webhookEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("event.type", eventType),
	))
}

func (h *WebhookHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *WebhookHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
