package domain

import "time"

// PositionState is the monitor's shadow copy of a symbol's position. Notification flags
// only move from false to true and are cleared when the position fully closes.
type PositionState struct {
	Symbol              string    `json:"symbol"`
	LastSize            float64   `json:"lastSize"`
	Side                Side      `json:"side"`
	EntryPrice          float64   `json:"entryPrice"`
	Leverage            float64   `json:"leverage"`
	UnrealizedPnL       float64   `json:"unrealizedPnl"`
	NotifiedLiquidation bool      `json:"notifiedLiquidation"`
	NotifiedProfit      bool      `json:"notifiedProfit"`
	TargetProfitPct     float64   `json:"targetProfitPct"`
	OpenedAt            time.Time `json:"openedAt"`
}

// Open reports whether the shadow entry tracks an open position.
func (s PositionState) Open() bool {
	return s.LastSize > activeSizeEpsilon || s.LastSize < -activeSizeEpsilon
}

type PositionEventKind string

const (
	EventOpened          PositionEventKind = "opened"
	EventClosed          PositionEventKind = "closed"
	EventNearLiquidation PositionEventKind = "near_liquidation"
	EventTargetReached   PositionEventKind = "target_reached"
)

// PositionEvent is emitted by the monitor, at most once per kind per position lifetime.
type PositionEvent struct {
	Kind       PositionEventKind `json:"kind"`
	Symbol     string            `json:"symbol"`
	Side       Side              `json:"side"`
	Size       float64           `json:"size"`
	EntryPrice float64           `json:"entryPrice"`
	Price      float64           `json:"price"`
	PnL        float64           `json:"pnl"`
	PnLPct     float64           `json:"pnlPct"`
	Detail     float64           `json:"detail"` // liquidation distance % or target %
	At         time.Time         `json:"at"`
}

type CycleOutcome string

const (
	CycleNeverRun     CycleOutcome = "never_run"
	CycleOK           CycleOutcome = "ok"
	CycleLimitReached CycleOutcome = "limit_reached"
	CycleNoCandidates CycleOutcome = "no_candidates"
	CycleBlocked      CycleOutcome = "blocked"
	CycleTimeout      CycleOutcome = "timeout"
	CycleError        CycleOutcome = "error"
	CycleDisabled     CycleOutcome = "disabled"
)

// AutoTradeState is the global auto-trade toggle and the last cycle status.
type AutoTradeState struct {
	Enabled    bool         `json:"enabled"`
	LastRun    time.Time    `json:"lastRun"`
	LastResult CycleOutcome `json:"lastResult"`
	LastDetail string       `json:"lastDetail"`
}

// OrchestratorState names the step a cycle is in.
type OrchestratorState string

const (
	StateIdle       OrchestratorState = "IDLE"
	StateScanning   OrchestratorState = "SCANNING"
	StateFiltering  OrchestratorState = "FILTERING"
	StateAdvisory   OrchestratorState = "ADVISORY"
	StateSizing     OrchestratorState = "SIZING"
	StateSubmitting OrchestratorState = "SUBMITTING"
	StateProtecting OrchestratorState = "PROTECTING"
)
