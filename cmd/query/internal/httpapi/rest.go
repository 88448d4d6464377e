package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vineet4007/crypto-streaming-platform/cmd/query/internal/repository"
)

// Handler serves the REST lookup endpoints backed by the materialized view.
type Handler struct {
	store  repository.PriceStore
	logger *zap.Logger
}

func NewHandler(store repository.PriceStore, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register mounts the REST routes on the given mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/price/", h.handlePrice)
	mux.HandleFunc("/health", h.handleHealth)
}

type priceResponse struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Ts     int64           `json:"ts"`
}

func (h *Handler) handlePrice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	symbol := strings.TrimPrefix(r.URL.Path, "/price/")
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || strings.Contains(symbol, "/") {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "price not available"})
		return
	}

	entry, found, err := h.store.GetEntry(r.Context(), symbol)
	if err != nil {
		h.logger.Error("View lookup failed", zap.String("symbol", symbol), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "price not available"})
		return
	}

	writeJSON(w, http.StatusOK, priceResponse{
		Symbol: entry.Symbol,
		Price:  entry.Price,
		Ts:     entry.EventTime,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
