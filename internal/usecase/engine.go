package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"perp-autotrader/internal/domain"
)

type EngineConfig struct {
	Risk            domain.RiskParameters
	Analyzer        AnalyzerConfig
	Orchestrator    OrchestratorConfig
	Cooldown        time.Duration
	AdvisoryTimeout time.Duration
	Retention       domain.RetentionPolicy
	AutoTrade       bool
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Risk:            domain.DefaultRiskParameters(),
		Analyzer:        DefaultAnalyzerConfig(),
		Orchestrator:    DefaultOrchestratorConfig(),
		Cooldown:        4 * time.Hour,
		AdvisoryTimeout: 10 * time.Second,
		Retention:       domain.DefaultRetentionPolicy(),
	}
}

// EngineDeps are the outside collaborators. Everything except Exchange may be nil.
type EngineDeps struct {
	Exchange        domain.Exchange
	Advisor         domain.Advisor
	Audit           domain.AuditStore
	QuarantineStore domain.QuarantineStore
	Cache           domain.MarketCache
	Metrics         domain.Metrics
	Senders         []domain.Sender
}

// Engine owns every piece of mutable trading state and the components that act on it.
// It is built once at start-up and handed to the scheduler and the HTTP layer.
type Engine struct {
	Exchange     domain.Exchange
	Risk         *RiskEngine
	Quarantine   *QuarantineTracker
	DailyLoss    *DailyLossTracker
	Lots         *LotNormalizer
	Analyzer     *Analyzer
	Advisory     *AdvisoryGate
	Orchestrator *Orchestrator
	Monitor      *Monitor
	Housekeeper  *Housekeeper
	Notifier     *Broadcaster
	Audit        domain.AuditStore

	log zerolog.Logger
}

func NewEngine(cfg EngineConfig, deps EngineDeps, log zerolog.Logger) *Engine {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}

	var correlations CorrelationSource
	if deps.Audit != nil {
		correlations = NewHistoricalCorrelations(deps.Audit, cfg.Risk.CorrelationLookback, log)
	}
	risk := NewRiskEngine(cfg.Risk, correlations, log)
	quarantine := NewQuarantineTracker(deps.QuarantineStore, cfg.Cooldown, log)
	daily := NewDailyLossTracker(cfg.Risk.MaxDailyLoss)
	lots := NewLotNormalizer(deps.Exchange, log)
	analyzer := NewAnalyzer(deps.Exchange, risk, cfg.Analyzer, metrics, log).WithCache(deps.Cache)
	notifier := NewBroadcaster(log, metrics, deps.Senders...)

	var advisory *AdvisoryGate
	if deps.Advisor != nil {
		advisory = NewAdvisoryGate(deps.Advisor, deps.Audit, cfg.AdvisoryTimeout, log)
	}

	orch := NewOrchestrator(OrchestratorDeps{
		Exchange:   deps.Exchange,
		Analyzer:   analyzer,
		Risk:       risk,
		Quarantine: quarantine,
		DailyLoss:  daily,
		Lots:       lots,
		Advisory:   advisory,
		Audit:      deps.Audit,
		Metrics:    metrics,
	}, cfg.Orchestrator, log)
	if cfg.AutoTrade {
		orch.Enable()
	}

	monitor := NewMonitor(MonitorDeps{
		Exchange:   deps.Exchange,
		Analyzer:   analyzer,
		Risk:       risk,
		Quarantine: quarantine,
		DailyLoss:  daily,
		Audit:      deps.Audit,
		Advisory:   advisory,
		Notifier:   notifier,
		Metrics:    metrics,
	}, log)

	return &Engine{
		Exchange:     deps.Exchange,
		Risk:         risk,
		Quarantine:   quarantine,
		DailyLoss:    daily,
		Lots:         lots,
		Analyzer:     analyzer,
		Advisory:     advisory,
		Orchestrator: orch,
		Monitor:      monitor,
		Housekeeper:  NewHousekeeper(analyzer, deps.Audit, deps.Cache, cfg.Retention, metrics, log),
		Notifier:     notifier,
		Audit:        deps.Audit,
		log:          log.With().Str("component", "engine").Logger(),
	}
}

// Start loads persisted state. A quarantine load failure is logged; the engine runs with
// an empty in-memory map.
func (e *Engine) Start(ctx context.Context) {
	if err := e.Quarantine.Load(ctx); err != nil {
		e.log.Error().Err(err).Msg("quarantine load failed, starting empty")
	}
}

// Stop cancels pending stop/target refreshes. They are not persisted.
func (e *Engine) Stop() {
	e.Orchestrator.StopRefreshes()
}

// Tasks returns the periodic jobs in the order they are scheduled.
func (e *Engine) Tasks(intervals Intervals) []Task {
	responder := BroadcastResponder{Broadcaster: e.Notifier, Kind: "auto_trade"}
	return []Task{
		{
			Name:     "position_poll",
			Interval: intervals.PositionPoll,
			Run: func(ctx context.Context) error {
				_, err := e.Monitor.Poll(ctx)
				return err
			},
		},
		{
			Name:     "monitor_report",
			Interval: intervals.MonitorReport,
			Run: func(ctx context.Context) error {
				_, err := e.Monitor.Report(ctx)
				return err
			},
		},
		{
			Name:     "auto_trade",
			Interval: intervals.AutoTrade,
			Run: func(ctx context.Context) error {
				_, err := e.Orchestrator.AutoCycle(ctx, responder)
				if errors.Is(err, ErrCycleRunning) {
					return nil
				}
				return err
			},
		},
		{
			Name:     "data_collection",
			Interval: intervals.DataCollection,
			Run: func(ctx context.Context) error {
				_, _, err := e.Housekeeper.Collect(ctx)
				return err
			},
		},
		{
			Name:     "housekeeping",
			Interval: intervals.Housekeeping,
			Run: func(ctx context.Context) error {
				_, err := e.Housekeeper.Rotate(ctx)
				return err
			},
		},
	}
}

// Intervals are the periods of the scheduled jobs.
type Intervals struct {
	PositionPoll   time.Duration
	MonitorReport  time.Duration
	AutoTrade      time.Duration
	DataCollection time.Duration
	Housekeeping   time.Duration
}

func DefaultIntervals() Intervals {
	return Intervals{
		PositionPoll:   30 * time.Second,
		MonitorReport:  300 * time.Second,
		AutoTrade:      30 * time.Second,
		DataCollection: 60 * time.Second,
		Housekeeping:   24 * time.Hour,
	}
}

// Status is the operator view of the engine.
type Status struct {
	AutoTrade        domain.AutoTradeState    `json:"autoTrade"`
	State            domain.OrchestratorState `json:"state"`
	MaxPositions     int                      `json:"maxPositions"`
	Positions        []domain.LivePosition    `json:"positions"`
	Shadow           []domain.PositionState   `json:"shadow"`
	Quarantine       []QuarantineEntry        `json:"quarantine"`
	DailyLoss        domain.DailyLossStatus   `json:"dailyLoss"`
	TotalRisk        domain.TotalRisk         `json:"totalRisk"`
	Balance          float64                  `json:"balance"`
	PendingRefreshes []string                 `json:"pendingRefreshes"`
	Channels         []string                 `json:"channels"`
	AdvisoryEnabled  bool                     `json:"advisoryEnabled"`
}

// Status reads live positions and balance and combines them with the in-memory state.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	positions, err := e.Exchange.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	active := activePositions(positions)
	balance := e.Orchestrator.balance(ctx)

	return &Status{
		AutoTrade:        e.Orchestrator.AutoState(),
		State:            e.Orchestrator.State(),
		MaxPositions:     e.Orchestrator.MaxActivePositions(),
		Positions:        active,
		Shadow:           e.Monitor.Shadow(),
		Quarantine:       e.Quarantine.Active(time.Now()),
		DailyLoss:        e.DailyLoss.Check(balance, 0, active),
		TotalRisk:        e.Risk.CheckTotalRisk(active, balance),
		Balance:          balance,
		PendingRefreshes: e.Orchestrator.PendingRefreshes(),
		Channels:         e.Notifier.Channels(),
		AdvisoryEnabled:  e.Advisory.Enabled(),
	}, nil
}

// ResetDailyLoss clears the breaker before the UTC day ends.
func (e *Engine) ResetDailyLoss() {
	e.DailyLoss.Reset()
	e.log.Warn().Msg("daily loss breaker reset by operator")
}
