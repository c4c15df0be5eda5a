package invoices

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fielderlane/farmstand/internal/domain"
	"github.com/fielderlane/farmstand/internal/invoicing"
	"github.com/fielderlane/farmstand/internal/payments"
)

// Store loads invoices for display and payment initiation.
type Store interface {
	GetByID(ctx context.Context, id string) (*domain.Invoice, error)
}

// SessionCreator opens a hosted checkout session at the gateway.
// Implemented by *payments.Client.
type SessionCreator interface {
	CreateInvoiceSession(ctx context.Context, invoiceID string, total decimal.Decimal, lines []payments.SessionLine) (string, error)
}

type Handler struct {
	store    Store
	sessions SessionCreator
	logger   *slog.Logger

	now func() time.Time
}

func NewHandler(store Store, sessions SessionCreator, logger *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// invoiceView is the invoice plus everything derived from it. Totals
// and status are computed on read, never trusted from storage.
type invoiceView struct {
	*domain.Invoice
	Totals        invoicing.Totals     `json:"totals"`
	DerivedStatus domain.InvoiceStatus `json:"derived_status"`
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	inv, err := h.load(w, r)
	if inv == nil || err != nil {
		return
	}

	h.writeJSON(w, http.StatusOK, invoiceView{
		Invoice:       inv,
		Totals:        invoicing.ComputeTotals(inv),
		DerivedStatus: invoicing.DerivedStatusAt(inv, h.now()),
	})
}

type paymentInitiation struct {
	AmountDue     decimal.Decimal `json:"amount_due"`
	ProcessingFee decimal.Decimal `json:"processing_fee"`
	TotalCharged  decimal.Decimal `json:"total_charged"`
	SessionURL    string          `json:"session_url"`
}

// HandlePay opens a gateway checkout session for the outstanding
// balance plus the pass-through processing fee.
func (h *Handler) HandlePay(w http.ResponseWriter, r *http.Request) {
	inv, err := h.load(w, r)
	if inv == nil || err != nil {
		return
	}

	status := invoicing.DerivedStatusAt(inv, h.now())
	if status == domain.InvoiceStatusPaid || status == domain.InvoiceStatusCancelled {
		h.writeError(w, http.StatusConflict, "invoice is not payable")
		return
	}

	totals := invoicing.ComputeTotals(inv)
	if !totals.Balance.IsPositive() {
		h.writeError(w, http.StatusConflict, "invoice has no outstanding balance")
		return
	}

	fee := invoicing.ProcessingFee(totals.Balance, inv.ProcessingFee)
	total := totals.Balance.Add(fee)

	lines := []payments.SessionLine{
		{Label: "Invoice " + inv.Number, Amount: totals.Balance},
		{Label: "Processing fee", Amount: fee},
	}
	sessionURL, err := h.sessions.CreateInvoiceSession(r.Context(), inv.ID, total, lines)
	if err != nil {
		h.logger.Error("failed to open checkout session", "error", err, "invoice_id", inv.ID)
		h.writeError(w, http.StatusBadGateway, "payment gateway unavailable")
		return
	}

	h.writeJSON(w, http.StatusOK, paymentInitiation{
		AmountDue:     totals.Balance,
		ProcessingFee: fee,
		TotalCharged:  total,
		SessionURL:    sessionURL,
	})
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*domain.Invoice, error) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing invoice id")
		return nil, nil
	}

	inv, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get invoice", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return nil, err
	}
	if inv == nil {
		h.writeError(w, http.StatusNotFound, "invoice not found")
		return nil, nil
	}
	return inv, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
