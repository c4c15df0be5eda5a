package capacity

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

type Handler struct {
	ledger *Ledger
	logger *slog.Logger
}

func NewHandler(ledger *Ledger, logger *slog.Logger) *Handler {
	return &Handler{
		ledger: ledger,
		logger: logger,
	}
}

type slotView struct {
	Date           string `json:"date"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	RemainingItems int    `json:"remaining_items"`
}

// HandleListSlots returns bookable slots. Query params: from and to
// (YYYY-MM-DD, default today through two weeks out) and items (how
// many items the customer wants to book, default 1).
func (h *Handler) HandleListSlots(w http.ResponseWriter, r *http.Request) {
	today := time.Now().Format("2006-01-02")
	from := r.URL.Query().Get("from")
	if from == "" {
		from = today
	}
	to := r.URL.Query().Get("to")
	if to == "" {
		to = time.Now().AddDate(0, 0, 14).Format("2006-01-02")
	}

	itemCount := 1
	if raw := r.URL.Query().Get("items"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "items must be a positive integer")
			return
		}
		itemCount = n
	}

	slots, err := h.ledger.ListAvailable(r.Context(), from, to, itemCount)
	if err != nil {
		h.logger.Error("failed to list slots", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	views := make([]slotView, 0, len(slots))
	for _, s := range slots {
		views = append(views, slotView{
			Date:           s.Date,
			StartTime:      s.StartTime,
			EndTime:        s.EndTime,
			RemainingItems: s.RemainingItems(),
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"slots": views})
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
