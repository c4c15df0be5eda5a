package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/fielderlane/farmstand/internal/domain"
)

// Worker renders notification events into outbound messages and posts
// them to the email service. Delivery is best-effort: a failed send is
// logged and the event is dropped, so one undeliverable message never
// wedges the consumer group.
type Worker struct {
	emailServiceURL string
	adminEmail      string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewWorker(emailServiceURL, adminEmail string, client *http.Client, logger *slog.Logger) *Worker {
	return &Worker{
		emailServiceURL: emailServiceURL,
		adminEmail:      adminEmail,
		httpClient:      client,
		logger:          logger,
	}
}

// Handle implements messaging.Handler.
func (w *Worker) Handle(ctx context.Context, eventType string, payload []byte) error {
	var event domain.NotificationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		w.logger.Error("dropping undecodable notification event", "error", err, "event_type", eventType)
		return nil
	}

	w.logger.Info("processing notification event", "event_id", event.ID, "type", event.Type)

	var (
		email map[string]string
		err   error
	)
	switch event.Type {
	case domain.EventOrderConfirmed:
		email, err = w.orderConfirmedEmail(event.Order)
	case domain.EventAdminOrderAlert:
		email, err = w.adminOrderAlertEmail(event.Order)
	case domain.EventBackInStock:
		email, err = w.backInStockEmail(event.Stock)
	case domain.EventInvoiceApproved:
		email, err = w.invoiceApprovedEmail(event.Invoice)
	default:
		w.logger.Warn("skipping unknown notification type", "event_id", event.ID, "type", event.Type)
		return nil
	}
	if err != nil {
		w.logger.Error("dropping malformed notification event", "error", err, "event_id", event.ID, "type", event.Type)
		return nil
	}

	if err := w.sendEmail(ctx, email); err != nil {
		w.logger.Error("failed to send notification email", "error", err, "event_id", event.ID, "type", event.Type)
		return nil
	}

	return nil
}

func (w *Worker) orderConfirmedEmail(order *domain.OrderNotification) (map[string]string, error) {
	if order == nil {
		return nil, fmt.Errorf("order payload missing")
	}
	return map[string]string{
		"to":      order.CustomerEmail,
		"subject": "Order confirmed",
		"body": fmt.Sprintf("Hi %s, your order is confirmed. %d item(s), total %s, %s at %s.",
			order.CustomerName, len(order.Items), order.Total, order.FulfillmentType, order.Slot.String()),
	}, nil
}

func (w *Worker) adminOrderAlertEmail(order *domain.OrderNotification) (map[string]string, error) {
	if order == nil {
		return nil, fmt.Errorf("order payload missing")
	}
	return map[string]string{
		"to":      w.adminEmail,
		"subject": "New paid order " + order.OrderID,
		"body": fmt.Sprintf("%s paid %s for %d item(s), %s at %s.",
			order.CustomerName, order.Total, len(order.Items), order.FulfillmentType, order.Slot.String()),
	}, nil
}

func (w *Worker) backInStockEmail(stock *domain.StockNotification) (map[string]string, error) {
	if stock == nil {
		return nil, fmt.Errorf("stock payload missing")
	}
	return map[string]string{
		"to":      w.adminEmail,
		"subject": "Back in stock: " + stock.ItemName,
		"body":    fmt.Sprintf("%s is back in stock (%d available).", stock.ItemName, stock.Stock),
	}, nil
}

func (w *Worker) invoiceApprovedEmail(inv *domain.InvoiceNotification) (map[string]string, error) {
	if inv == nil {
		return nil, fmt.Errorf("invoice payload missing")
	}
	return map[string]string{
		"to":      inv.CustomerEmail,
		"subject": "Invoice " + inv.Number,
		"body":    fmt.Sprintf("Hi %s, your invoice %s is ready.", inv.CustomerName, inv.Number),
	}, nil
}

func (w *Worker) sendEmail(ctx context.Context, body map[string]string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
