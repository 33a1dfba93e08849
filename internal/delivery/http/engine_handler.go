package http

import (
	"context"
	"net/http"
	"time"

	"perp-autotrader/internal/domain"
	"perp-autotrader/internal/usecase"
)

// EngineHandler exposes the operator controls of the trading engine.
type EngineHandler struct {
	engine *usecase.Engine
}

func NewEngineHandler(engine *usecase.Engine) *EngineHandler {
	return &EngineHandler{engine: engine}
}

// GetStatus handles GET /api/status
func (h *EngineHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	status, err := h.engine.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Enable handles POST /api/autotrade/enable
func (h *EngineHandler) Enable(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	h.engine.Orchestrator.Enable()
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Auto-trade enabled"})
}

// Disable handles POST /api/autotrade/disable
func (h *EngineHandler) Disable(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	h.engine.Orchestrator.Disable()
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Auto-trade disabled"})
}

type CycleResponse struct {
	Outcome  domain.CycleOutcome  `json:"outcome"`
	Opened   []domain.TradeRecord `json:"opened"`
	Duration string               `json:"duration"`
	Reply    string               `json:"reply"`
}

// RunCycle handles POST /api/autotrade/cycle. The cycle runs even while auto-trade is
// disabled; the replies it produces are returned in the response body. A client hanging
// up does not abort orders already in flight.
func (h *EngineHandler) RunCycle(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	responder := &usecase.BufferResponder{}
	report, err := h.engine.Orchestrator.RunCycle(context.WithoutCancel(r.Context()), responder)
	if err != nil && report == nil {
		writeError(w, err)
		return
	}

	resp := CycleResponse{
		Outcome:  report.Outcome,
		Opened:   report.Opened,
		Duration: report.Duration.Round(time.Millisecond).String(),
		Reply:    responder.String(),
	}
	if resp.Opened == nil {
		resp.Opened = []domain.TradeRecord{}
	}
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	}
	writeJSON(w, status, resp)
}

// GetQuarantine handles GET /api/quarantine
func (h *EngineHandler) GetQuarantine(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	entries := h.engine.Quarantine.Active(time.Now())
	if entries == nil {
		entries = []usecase.QuarantineEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cooldown": h.engine.Quarantine.Cooldown().String(),
		"entries":  entries,
	})
}

// ResetDailyLoss handles POST /api/daily-loss/reset
func (h *EngineHandler) ResetDailyLoss(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	h.engine.ResetDailyLoss()
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Daily loss reset"})
}

// GetReport handles GET /api/report. It also broadcasts the report like the scheduled job.
func (h *EngineHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	text, err := h.engine.Monitor.Report(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"report": text})
}
