package http

import (
	"net/http"

	"perp-autotrader/internal/domain"
	"perp-autotrader/internal/usecase"
)

// RouterDeps collects what the control API serves. Dashboard and Metrics are optional.
type RouterDeps struct {
	Engine    *usecase.Engine
	Tokens    domain.TokenRepository
	Dashboard http.HandlerFunc
	Metrics   http.Handler
}

func NewRouter(deps RouterDeps) *http.ServeMux {
	mux := http.NewServeMux()

	engine := NewEngineHandler(deps.Engine)
	mux.HandleFunc("/api/status", engine.GetStatus)
	mux.HandleFunc("/api/report", engine.GetReport)
	mux.HandleFunc("/api/autotrade/enable", engine.Enable)
	mux.HandleFunc("/api/autotrade/disable", engine.Disable)
	mux.HandleFunc("/api/autotrade/cycle", engine.RunCycle)
	mux.HandleFunc("/api/quarantine", engine.GetQuarantine)
	mux.HandleFunc("/api/daily-loss/reset", engine.ResetDailyLoss)

	trades := NewTradeHandler(deps.Engine)
	mux.HandleFunc("/api/positions/open", trades.Open)
	mux.HandleFunc("/api/positions/close-all", trades.CloseAll)
	mux.HandleFunc("/api/positions/protection", trades.UpdateProtection)
	mux.HandleFunc("/api/positions/partial-close", trades.PartialClose)
	mux.HandleFunc("/api/positions/review", trades.Review)
	mux.HandleFunc("/api/trades", trades.ListTrades)

	if deps.Tokens != nil {
		tokens := NewTokenHandler(deps.Tokens)
		mux.HandleFunc("/api/fcm/register", tokens.HandleRegisterToken)
		mux.HandleFunc("/api/fcm/unregister", tokens.HandleUnregisterToken)
		mux.HandleFunc("/api/fcm/count", tokens.HandleGetTokenCount)
	}

	mux.HandleFunc("/api/notify/test", NewTestHandler(deps.Engine.Notifier).SendTestNotification)

	if deps.Dashboard != nil {
		mux.HandleFunc("/ws", deps.Dashboard)
	}
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics)
	}
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}
