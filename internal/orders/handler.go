package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fielderlane/farmstand/internal/capacity"
)

type Handler struct {
	checkout *CheckoutService
	repo     *OrderRepository
	logger   *slog.Logger
}

func NewHandler(checkout *CheckoutService, repo *OrderRepository, logger *slog.Logger) *Handler {
	return &Handler{
		checkout: checkout,
		repo:     repo,
		logger:   logger,
	}
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var in CheckoutInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.checkout.PlaceOrder(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyOrder), errors.Is(err, ErrUnknownItem):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, capacity.ErrSlotNotFound):
			h.writeError(w, http.StatusNotFound, "time slot not found")
		case errors.Is(err, capacity.ErrSlotFull):
			h.writeError(w, http.StatusConflict, "time slot is full, please choose another slot")
		case errors.Is(err, capacity.ErrSlotTooSoon):
			h.writeError(w, http.StatusConflict, "time slot starts too soon, please choose a later slot")
		default:
			h.logger.Error("checkout failed", "error", err)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
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
