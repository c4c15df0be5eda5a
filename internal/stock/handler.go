package stock

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fielderlane/farmstand/internal/domain"
	"github.com/fielderlane/farmstand/internal/pricing"
)

// Notifier fans out back-in-stock notices. Dispatch failures are
// reported as false and never bubble up.
type Notifier interface {
	BackInStock(ctx context.Context, item domain.SellableItem) bool
}

type Handler struct {
	repo     *Repository
	notifier Notifier
	logger   *slog.Logger

	now func() time.Time
}

func NewHandler(repo *Repository, notifier Notifier, logger *slog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// itemView is the catalog read model. Effective price and sale state
// come from the same pricing functions checkout uses, evaluated at the
// same kind of instant, so list and charge cannot drift.
type itemView struct {
	domain.SellableItem
	EffectivePrice decimal.Decimal `json:"effective_price"`
	SalePercent    int             `json:"sale_percent"`
	SaleEndsIn     string          `json:"sale_ends_in,omitempty"`
}

func (h *Handler) view(item domain.SellableItem, now time.Time) itemView {
	v := itemView{
		SellableItem:   item,
		EffectivePrice: pricing.EffectivePriceAt(item, now),
	}
	if pricing.OnSaleAt(item, now) {
		v.SalePercent = pricing.SalePercent(item.BasePrice, item.SalePrice)
	}
	if label, ok := pricing.SaleEndsIn(item, now); ok {
		v.SaleEndsIn = label
	}
	return v
}

func (h *Handler) HandleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.ListItems(r.Context())
	if err != nil {
		h.logger.Error("failed to list items", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	now := h.now()
	views := make([]itemView, 0, len(items))
	for _, item := range items {
		views = append(views, h.view(item, now))
	}

	h.writeJSON(w, http.StatusOK, views)
}

func (h *Handler) HandleGetItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing item id")
		return
	}

	item, err := h.repo.GetItem(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get item", "error", err, "item_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if item == nil {
		h.writeError(w, http.StatusNotFound, "item not found")
		return
	}

	h.writeJSON(w, http.StatusOK, h.view(*item, h.now()))
}

type restockRequest struct {
	Quantity int `json:"quantity"`
}

// HandleRestock adds stock back and fires a back-in-stock notice when
// the item was sold out before this delivery.
func (h *Handler) HandleRestock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing item id")
		return
	}

	var req restockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	newStock, err := h.repo.Increment(r.Context(), id, req.Quantity)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			h.writeError(w, http.StatusNotFound, "item not found")
			return
		}
		h.logger.Error("failed to restock item", "error", err, "item_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	wasSoldOut := newStock == req.Quantity
	if wasSoldOut && h.notifier != nil {
		item, err := h.repo.GetItem(r.Context(), id)
		if err != nil {
			h.logger.Error("failed to load item for notification", "error", err, "item_id", id)
		} else if item != nil && !h.notifier.BackInStock(r.Context(), *item) {
			h.logger.Warn("back-in-stock notification not dispatched", "item_id", id)
		}
	}

	h.logger.Info("item restocked", "item_id", id, "quantity", req.Quantity, "stock", newStock)
	h.writeJSON(w, http.StatusOK, map[string]any{"item_id": id, "stock": newStock})
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
