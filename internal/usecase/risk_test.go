package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"perp-autotrader/internal/domain"
)

func newTestRisk() *RiskEngine {
	return NewRiskEngine(domain.DefaultRiskParameters(), nil, zerolog.Nop())
}

// ==================== Stop loss ====================

func TestRecommendedStopLoss(t *testing.T) {
	r := newTestRisk()

	tests := []struct {
		name     string
		entry    float64
		side     domain.Side
		volFrac  float64
		atr      float64
		expected float64
	}{
		{"ATR below minimum distance is clamped up", 50000, domain.Long, 0.01, 100, 49750},
		{"ATR inside band", 100, domain.Long, 0.01, 1, 98},
		{"ATR above maximum distance is clamped down", 100, domain.Long, 0.01, 10, 95},
		{"short stop above entry", 100, domain.Short, 0.01, 1, 102},
		{"no ATR uses volatility fraction", 100, domain.Long, 0.04, 0, 96},
		{"no ATR short", 100, domain.Short, 0.04, 0, 104},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.RecommendedStopLoss(tt.entry, tt.side, tt.volFrac, tt.atr)
			if !floatEquals(got, tt.expected, 1e-9) {
				t.Errorf("Expected stop %.6f, got %.6f", tt.expected, got)
			}
		})
	}
}

func TestStopAlwaysOnLosingSide(t *testing.T) {
	r := newTestRisk()
	for _, atr := range []float64{0, 0.01, 1, 5, 50} {
		for _, vol := range []float64{0.005, 0.02, 0.1} {
			long := r.RecommendedStopLoss(100, domain.Long, vol, atr)
			short := r.RecommendedStopLoss(100, domain.Short, vol, atr)
			if long >= 100 {
				t.Errorf("Expected long stop below entry for atr=%v vol=%v, got %v", atr, vol, long)
			}
			if short <= 100 {
				t.Errorf("Expected short stop above entry for atr=%v vol=%v, got %v", atr, vol, short)
			}
		}
	}
}

// ==================== Take profit ====================

func TestTakeProfitLevels(t *testing.T) {
	r := newTestRisk()

	if got := r.DefaultTakeProfit(100, domain.Long); !floatEquals(got, 100.5, 1e-9) {
		t.Errorf("Expected default long target 100.5, got %v", got)
	}
	if got := r.DefaultTakeProfit(100, domain.Short); !floatEquals(got, 99.5, 1e-9) {
		t.Errorf("Expected default short target 99.5, got %v", got)
	}
	if got := r.RecommendedTakeProfit(100, 96, domain.Long); !floatEquals(got, 106, 1e-9) {
		t.Errorf("Expected recommended long target 106, got %v", got)
	}
	if got := r.RecommendedTakeProfit(100, 104, domain.Short); !floatEquals(got, 94, 1e-9) {
		t.Errorf("Expected recommended short target 94, got %v", got)
	}
}

// ==================== Position size ====================

func TestPositionSize(t *testing.T) {
	r := newTestRisk()

	tests := []struct {
		name     string
		entry    float64
		stop     float64
		risk     float64
		leverage int
		expected float64
	}{
		{"five percent stop", 100, 95, 20, 5, 0.8},
		{"short stop above entry", 100, 105, 20, 5, 0.8},
		{"leverage below one treated as one", 100, 95, 20, 0, 4},
		{"stop at entry rejects", 100, 100, 20, 5, 0},
		{"zero risk rejects", 100, 95, 0, 5, 0},
		{"zero entry rejects", 0, 95, 20, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.PositionSize(tt.entry, tt.stop, tt.risk, tt.leverage)
			if !floatEquals(got, tt.expected, 1e-9) {
				t.Errorf("Expected size %.8f, got %.8f", tt.expected, got)
			}
		})
	}
}

func TestPositionSizeLinearInRisk(t *testing.T) {
	r := newTestRisk()
	base := r.PositionSize(100, 97, 2, 3)
	for _, k := range []float64{2, 3, 10} {
		got := r.PositionSize(100, 97, 2*k, 3)
		if !floatEquals(got, base*k, 1e-6) {
			t.Errorf("Expected size %.8f for risk x%.0f, got %.8f", base*k, k, got)
		}
	}
}

func TestRiskAmount(t *testing.T) {
	r := newTestRisk()
	if got := r.RiskAmount(100, 1); !floatEquals(got, 2, 1e-9) {
		t.Errorf("Expected risk amount 2, got %v", got)
	}
	if got := r.RiskAmount(100, 0.1); !floatEquals(got, 0.5, 1e-9) {
		t.Errorf("Expected floored risk amount 0.5, got %v", got)
	}
}

// ==================== Validation ====================

func TestValidateTrade(t *testing.T) {
	r := newTestRisk()

	tests := []struct {
		name   string
		intent domain.PositionIntent
		valid  bool
	}{
		{"valid long", domain.PositionIntent{Side: domain.Long, Entry: 100, StopLoss: 98, TakeProfit: 103, Quantity: 1, Leverage: 5}, true},
		{"valid short", domain.PositionIntent{Side: domain.Short, Entry: 100, StopLoss: 102, TakeProfit: 97, Quantity: 1, Leverage: 5}, true},
		{"ratio exactly at minimum", domain.PositionIntent{Side: domain.Long, Entry: 100, StopLoss: 98, TakeProfit: 103, Quantity: 1, Leverage: 1}, true},
		{"ratio below minimum", domain.PositionIntent{Side: domain.Long, Entry: 100, StopLoss: 98, TakeProfit: 102, Quantity: 1, Leverage: 5}, false},
		{"long stop above entry", domain.PositionIntent{Side: domain.Long, Entry: 100, StopLoss: 101, TakeProfit: 103, Quantity: 1, Leverage: 5}, false},
		{"short stop below entry", domain.PositionIntent{Side: domain.Short, Entry: 100, StopLoss: 99, TakeProfit: 97, Quantity: 1, Leverage: 5}, false},
		{"stop too tight", domain.PositionIntent{Side: domain.Long, Entry: 100, StopLoss: 99.8, TakeProfit: 103, Quantity: 1, Leverage: 5}, false},
		{"leverage above maximum", domain.PositionIntent{Side: domain.Long, Entry: 100, StopLoss: 98, TakeProfit: 103, Quantity: 1, Leverage: 11}, false},
		{"leverage zero", domain.PositionIntent{Side: domain.Long, Entry: 100, StopLoss: 98, TakeProfit: 103, Quantity: 1, Leverage: 0}, false},
		{"zero quantity", domain.PositionIntent{Side: domain.Long, Entry: 100, StopLoss: 98, TakeProfit: 103, Quantity: 0, Leverage: 5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := r.ValidateTrade(tt.intent)
			if v.Valid != tt.valid {
				t.Errorf("Expected valid=%v, got %v (errors %v)", tt.valid, v.Valid, v.Errors)
			}
			if !v.Valid && len(v.Errors) == 0 {
				t.Error("Expected rejection reasons")
			}
		})
	}
}

func TestValidateTradeWarnsOnWideStop(t *testing.T) {
	r := newTestRisk()
	v := r.ValidateTrade(domain.PositionIntent{Side: domain.Long, Entry: 100, StopLoss: 90, TakeProfit: 120, Quantity: 1, Leverage: 2})
	if !v.Valid {
		t.Fatalf("Expected wide stop to stay valid, got errors %v", v.Errors)
	}
	if len(v.Warnings) != 1 {
		t.Errorf("Expected 1 warning, got %v", v.Warnings)
	}
}

func TestValidateExternalLevels(t *testing.T) {
	tests := []struct {
		name   string
		entry  float64
		stop   float64
		target float64
		side   domain.Side
		ok     bool
	}{
		{"long ok", 100, 98, 104, domain.Long, true},
		{"short ok", 100, 102, 96, domain.Short, true},
		{"long target below entry", 100, 98, 99, domain.Long, false},
		{"short stop below entry", 100, 98, 96, domain.Short, false},
		{"zero stop", 100, 0, 104, domain.Long, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExternalLevels(tt.entry, tt.stop, tt.target, tt.side)
			if (err == nil) != tt.ok {
				t.Errorf("Expected ok=%v, got err %v", tt.ok, err)
			}
			if err != nil && !errors.Is(err, domain.ErrAdvisoryInvalid) {
				t.Errorf("Expected ErrAdvisoryInvalid, got %v", err)
			}
		})
	}
}

// ==================== Trailing and partial close ====================

func TestTrailingStop(t *testing.T) {
	r := newTestRisk()

	tests := []struct {
		name     string
		entry    float64
		current  float64
		initial  float64
		side     domain.Side
		expected float64
	}{
		{"long in profit trails", 100, 110, 95, domain.Long, 107.8},
		{"long small profit trails", 100, 101, 95, domain.Long, 98.98},
		{"trail below initial keeps initial", 100, 100.5, 99, domain.Long, 99},
		{"long losing keeps initial", 100, 90, 95, domain.Long, 95},
		{"short in profit trails", 100, 90, 105, domain.Short, 91.8},
		{"short losing keeps initial", 100, 110, 105, domain.Short, 105},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.TrailingStop(tt.entry, tt.current, tt.initial, tt.side)
			if !floatEquals(got, tt.expected, 1e-9) {
				t.Errorf("Expected trailing stop %.4f, got %.4f", tt.expected, got)
			}
		})
	}
}

func TestShouldPartialClose(t *testing.T) {
	r := newTestRisk()

	tests := []struct {
		name     string
		current  float64
		target   float64
		side     domain.Side
		expected bool
	}{
		{"long halfway", 105, 110, domain.Long, true},
		{"long short of halfway", 104, 110, domain.Long, false},
		{"short halfway", 95, 90, domain.Short, true},
		{"short moving against", 102, 90, domain.Short, false},
		{"target on wrong side", 105, 95, domain.Long, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.ShouldPartialClose(100, tt.current, tt.target, tt.side); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

// ==================== Portfolio ====================

func TestCheckTotalRisk(t *testing.T) {
	r := newTestRisk()
	positions := []domain.LivePosition{
		{Symbol: "BTCUSDT", Side: "Buy", Size: 0.01, EntryPrice: 100, MarkPrice: 100, LiqPrice: 90, Leverage: 5, UnrealizedPnL: -1},
	}

	got := r.CheckTotalRisk(positions, 100)
	// 0.01 * 100 * 0.10 * 5
	if !floatEquals(got.TotalRisk, 0.5, 1e-9) {
		t.Errorf("Expected total risk 0.5, got %v", got.TotalRisk)
	}
	if !floatEquals(got.TotalNotional, 5, 1e-9) {
		t.Errorf("Expected notional 5, got %v", got.TotalNotional)
	}
	if !floatEquals(got.Drawdown, 0.01, 1e-9) {
		t.Errorf("Expected drawdown 0.01, got %v", got.Drawdown)
	}
	if !got.Acceptable {
		t.Error("Expected acceptable portfolio")
	}

	positions[0].UnrealizedPnL = -30
	if got := r.CheckTotalRisk(positions, 100); got.Acceptable {
		t.Error("Expected 30% drawdown to be unacceptable")
	}
}

func TestCheckCorrelation(t *testing.T) {
	params := domain.DefaultRiskParameters()
	params.MaxCorrelation = 0.8
	r := NewRiskEngine(params, nil, zerolog.Nop())
	ctx := context.Background()
	btcLong := []domain.LivePosition{{Symbol: "BTCUSDT", Side: "Buy", Size: 0.01}}

	tests := []struct {
		name  string
		sym   string
		side  domain.Side
		safe  bool
		hedge bool
	}{
		{"same side above limit", "ETHUSDT", domain.Long, false, false},
		{"opposite side is a hedge", "ETHUSDT", domain.Short, true, true},
		{"below limit", "SOLUSDT", domain.Long, true, false},
		{"unknown pair", "XYZUSDT", domain.Long, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.CheckCorrelation(ctx, tt.sym, tt.side, btcLong)
			if got.Safe != tt.safe {
				t.Errorf("Expected safe=%v, got %v (%v)", tt.safe, got.Safe, got.Warnings)
			}
			if got.Hedge != tt.hedge {
				t.Errorf("Expected hedge=%v, got %v", tt.hedge, got.Hedge)
			}
		})
	}

	if got := r.CheckCorrelation(ctx, "ETHUSDT", domain.Long, nil); !got.Safe {
		t.Error("Expected no positions to be safe")
	}
}
