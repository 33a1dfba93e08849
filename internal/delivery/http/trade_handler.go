package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"perp-autotrader/internal/domain"
	"perp-autotrader/internal/usecase"
)

// TradeHandler handles manual position management and the trade journal. Order-placing
// calls detach from the request context so a dropped client cannot cut an entry off
// before its stop is set.
type TradeHandler struct {
	engine *usecase.Engine
}

func NewTradeHandler(engine *usecase.Engine) *TradeHandler {
	return &TradeHandler{engine: engine}
}

type OpenRequest struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Qty        float64 `json:"qty"`
	StopLoss   float64 `json:"stopLoss"`
	TakeProfit float64 `json:"takeProfit"`
}

type OpenResponse struct {
	Trade   *domain.TradeRecord `json:"trade"`
	Message string              `json:"message"`
}

// Open handles POST /api/positions/open
func (h *TradeHandler) Open(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	symbol := normalizeSymbol(req.Symbol)
	if symbol == "" {
		http.Error(w, "Symbol is required", http.StatusBadRequest)
		return
	}
	side, ok := domain.ParseSide(req.Side)
	if !ok {
		http.Error(w, "Side must be Long or Short", http.StatusBadRequest)
		return
	}

	trade, text, err := h.engine.Orchestrator.OpenManual(context.WithoutCancel(r.Context()), usecase.ManualOrder{
		Symbol:     symbol,
		Side:       side,
		Qty:        req.Qty,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OpenResponse{Trade: trade, Message: text})
}

// CloseAll handles POST /api/positions/close-all
func (h *TradeHandler) CloseAll(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	res, err := h.engine.Orchestrator.CloseAll(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if res.Closed == nil {
		res.Closed = []domain.LivePosition{}
	}
	writeJSON(w, http.StatusOK, res)
}

type ProtectionRequest struct {
	Symbol     string  `json:"symbol"`
	StopLoss   float64 `json:"stopLoss"`
	TakeProfit float64 `json:"takeProfit"`
}

// UpdateProtection handles POST /api/positions/protection
func (h *TradeHandler) UpdateProtection(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req ProtectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	symbol := normalizeSymbol(req.Symbol)
	if symbol == "" || (req.StopLoss <= 0 && req.TakeProfit <= 0) {
		http.Error(w, "Symbol and at least one of stopLoss/takeProfit are required", http.StatusBadRequest)
		return
	}

	if err := h.engine.Orchestrator.UpdateProtection(context.WithoutCancel(r.Context()), symbol, req.StopLoss, req.TakeProfit); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Protection updated for " + symbol})
}

type PartialCloseRequest struct {
	Symbol string `json:"symbol"`
	Force  bool   `json:"force"`
}

// PartialClose handles POST /api/positions/partial-close
func (h *TradeHandler) PartialClose(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req PartialCloseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	symbol := normalizeSymbol(req.Symbol)
	if symbol == "" {
		http.Error(w, "Symbol is required", http.StatusBadRequest)
		return
	}

	result, qty, err := h.engine.Orchestrator.PartialClose(context.WithoutCancel(r.Context()), symbol, req.Force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol": symbol,
		"qty":    qty,
		"order":  result,
	})
}

// Review handles GET /api/positions/review. Each open position gets an advisory
// hold/add/close verdict; positions whose review fails are left out.
func (h *TradeHandler) Review(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	reviews, err := h.engine.Monitor.Review(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

// ListTrades handles GET /api/trades?limit=50
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	if h.engine.Audit == nil {
		writeJSON(w, http.StatusOK, []domain.TradeRecord{})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}

	trades, err := h.engine.Audit.ListTrades(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
