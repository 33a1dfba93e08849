package usecase

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"perp-autotrader/internal/domain"
)

// CorrelationSource returns the pairwise correlation of two symbols, 0 when unknown.
type CorrelationSource interface {
	Correlation(ctx context.Context, a, b string) float64
}

// ratioTolerance absorbs float rounding when a target was derived from the minimum ratio.
const ratioTolerance = 1e-9

// RiskEngine computes protective levels, sizes positions and gates trades.
type RiskEngine struct {
	params       domain.RiskParameters
	correlations CorrelationSource
	log          zerolog.Logger
}

func NewRiskEngine(params domain.RiskParameters, correlations CorrelationSource, log zerolog.Logger) *RiskEngine {
	if correlations == nil {
		correlations = StaticCorrelations{}
	}
	return &RiskEngine{
		params:       params,
		correlations: correlations,
		log:          log.With().Str("component", "risk").Logger(),
	}
}

func (r *RiskEngine) Params() domain.RiskParameters {
	return r.params
}

// RecommendedStopLoss places the stop at twice the ATR clamped to [0.5%, 5%] of entry.
// Without an ATR the volatility fraction is used as the distance directly.
func (r *RiskEngine) RecommendedStopLoss(entry float64, side domain.Side, volatilityFrac, atr float64) float64 {
	distance := volatilityFrac
	if atr > 0 && entry > 0 {
		distance = (atr * r.params.ATRStopMultiplier) / entry
		distance = math.Max(r.params.MinStopDistance, math.Min(distance, r.params.MaxStopDistance))
	}

	if side == domain.Short {
		return entry * (1 + distance)
	}
	return entry * (1 - distance)
}

// DefaultTakeProfit is the small fixed gross target in the trade's favour.
func (r *RiskEngine) DefaultTakeProfit(entry float64, side domain.Side) float64 {
	if side == domain.Short {
		return entry * (1 - r.params.DefaultTargetPct)
	}
	return entry * (1 + r.params.DefaultTargetPct)
}

// RecommendedTakeProfit sets reward to risk times the minimum reward ratio.
func (r *RiskEngine) RecommendedTakeProfit(entry, stop float64, side domain.Side) float64 {
	if side == domain.Short {
		return entry - (stop-entry)*r.params.MinRewardRatio
	}
	return entry + (entry-stop)*r.params.MinRewardRatio
}

// PositionSize returns risk / (entry * stopDistance * leverage), rounded to 8 places.
// The side is inferred from which side of entry the stop lies on. 0 rejects the trade.
func (r *RiskEngine) PositionSize(entry, stop, riskAmount float64, leverage int) float64 {
	if entry <= 0 || riskAmount <= 0 {
		return 0
	}
	if leverage < 1 {
		leverage = 1
	}

	var distance float64
	if entry > stop {
		distance = (entry - stop) / entry
	} else {
		distance = (stop - entry) / entry
	}
	if distance <= 0 {
		r.log.Warn().Float64("entry", entry).Float64("stop", stop).Msg("non-positive stop distance")
		return 0
	}

	return roundTo(riskAmount/(entry*distance*float64(leverage)), 8)
}

// RiskAmount is the per-trade budget scaled by multiplier, floored at the minimum fraction.
func (r *RiskEngine) RiskAmount(capital, multiplier float64) float64 {
	amount := capital * r.params.MaxRiskPerTrade * multiplier
	return math.Max(amount, capital*r.params.MinRiskFraction)
}

// ValidateStopLoss checks side and minimum distance.
func (r *RiskEngine) ValidateStopLoss(entry, stop float64, side domain.Side) error {
	if entry <= 0 || stop <= 0 {
		return fmt.Errorf("stop %.8f and entry %.8f must be positive", stop, entry)
	}

	var distance float64
	if side == domain.Short {
		if stop <= entry {
			return fmt.Errorf("short stop %.8f must be above entry %.8f", stop, entry)
		}
		distance = (stop - entry) / entry
	} else {
		if stop >= entry {
			return fmt.Errorf("long stop %.8f must be below entry %.8f", stop, entry)
		}
		distance = (entry - stop) / entry
	}

	if distance < r.params.MinStopDistance {
		return fmt.Errorf("stop distance %.2f%% below minimum %.2f%%", distance*100, r.params.MinStopDistance*100)
	}
	return nil
}

// ValidateTakeProfit checks that both legs are positive and reward/risk meets the minimum.
func (r *RiskEngine) ValidateTakeProfit(entry, stop, target float64, side domain.Side) error {
	var risk, reward float64
	if side == domain.Short {
		risk = stop - entry
		reward = entry - target
	} else {
		risk = entry - stop
		reward = target - entry
	}

	if risk <= 0 || reward <= 0 {
		return fmt.Errorf("invalid reward %.8f or risk %.8f", reward, risk)
	}
	if ratio := reward / risk; ratio < r.params.MinRewardRatio-ratioTolerance {
		return fmt.Errorf("reward/risk %.2f below minimum %.2f", ratio, r.params.MinRewardRatio)
	}
	return nil
}

func (r *RiskEngine) ValidateLeverage(leverage int) error {
	if leverage < 1 || leverage > r.params.MaxLeverage {
		return fmt.Errorf("leverage %d outside 1..%d", leverage, r.params.MaxLeverage)
	}
	return nil
}

// ValidateTrade is the gate every intent passes before submission.
func (r *RiskEngine) ValidateTrade(intent domain.PositionIntent) domain.TradeValidation {
	result := domain.TradeValidation{Valid: true}

	if err := r.ValidateLeverage(intent.Leverage); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
	}
	if err := r.ValidateStopLoss(intent.Entry, intent.StopLoss, intent.Side); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
	}
	if err := r.ValidateTakeProfit(intent.Entry, intent.StopLoss, intent.TakeProfit, intent.Side); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
	}
	if intent.Quantity <= 0 {
		result.Valid = false
		result.Errors = append(result.Errors, "quantity must be positive")
	}

	if dist := math.Abs(intent.Entry-intent.StopLoss) / intent.Entry; intent.Entry > 0 && dist > r.params.MaxStopDistance {
		result.Warnings = append(result.Warnings, fmt.Sprintf("stop distance %.2f%% is wide", dist*100))
	}
	return result
}

// ValidateExternalLevels accepts externally supplied levels only when positive and on the
// correct side of entry.
func ValidateExternalLevels(entry, stop, target float64, side domain.Side) error {
	if entry <= 0 || stop <= 0 || target <= 0 {
		return fmt.Errorf("%w: non-positive level", domain.ErrAdvisoryInvalid)
	}
	if side == domain.Short {
		if stop <= entry || target >= entry {
			return fmt.Errorf("%w: short levels on wrong side of entry", domain.ErrAdvisoryInvalid)
		}
		return nil
	}
	if stop >= entry || target <= entry {
		return fmt.Errorf("%w: long levels on wrong side of entry", domain.ErrAdvisoryInvalid)
	}
	return nil
}

// TrailingStop ratchets the stop behind price while the trade is in profit. It never moves
// the stop back past the initial stop.
func (r *RiskEngine) TrailingStop(entry, current, initialStop float64, side domain.Side) float64 {
	if side == domain.Short {
		if entry-current > 0 {
			return math.Min(current*(1+r.params.TrailingStopPct), initialStop)
		}
		return initialStop
	}
	if current-entry > 0 {
		return math.Max(current*(1-r.params.TrailingStopPct), initialStop)
	}
	return initialStop
}

// ShouldPartialClose reports whether price has covered the partial-close share of the way
// from entry to target.
func (r *RiskEngine) ShouldPartialClose(entry, current, target float64, side domain.Side) bool {
	var toTarget, progress float64
	if side == domain.Short {
		toTarget = entry - target
		progress = entry - current
	} else {
		toTarget = target - entry
		progress = current - entry
	}
	if toTarget <= 0 {
		return false
	}
	return progress/toTarget >= r.params.PartialClosePct
}

// CheckTotalRisk aggregates liquidation-distance risk and drawdown across positions.
func (r *RiskEngine) CheckTotalRisk(positions []domain.LivePosition, capital float64) domain.TotalRisk {
	var out domain.TotalRisk
	unrealized := 0.0

	for _, p := range positions {
		size := math.Abs(p.Size)
		price := p.MarkPrice
		if price <= 0 {
			price = p.EntryPrice
		}
		lev := math.Max(p.Leverage, 1)

		if p.EntryPrice > 0 && size > 0 && price > 0 {
			pr := domain.PositionRisk{Symbol: p.Symbol}
			if p.LiqPrice > 0 {
				var distance float64
				if p.EntryPrice > p.LiqPrice {
					distance = (price - p.LiqPrice) / price
				} else {
					distance = (p.LiqPrice - price) / price
				}
				pr.Risk = size * price * distance * lev
			}
			pr.Notional = size * price * lev
			out.TotalRisk += pr.Risk
			out.TotalNotional += pr.Notional
			out.Positions = append(out.Positions, pr)
		}
		unrealized += p.UnrealizedPnL
	}

	if capital > 0 {
		out.TotalRiskPct = out.TotalRisk / capital * 100
		out.Drawdown = math.Abs(unrealized / capital)
	}
	out.Acceptable = out.TotalRiskPct <= r.params.MaxTotalRisk*100 && out.Drawdown <= r.params.MaxDrawdown
	return out
}

// CheckCorrelation blocks a new trade correlated above the maximum with an existing
// position, unless the new trade hedges (opposite side) one of those positions.
func (r *RiskEngine) CheckCorrelation(ctx context.Context, symbol string, side domain.Side, positions []domain.LivePosition) domain.CorrelationCheck {
	check := domain.CorrelationCheck{Safe: true}

	for _, p := range positions {
		if p.Symbol == "" || p.Symbol == symbol {
			continue
		}
		corr := r.correlations.Correlation(ctx, symbol, p.Symbol)
		if corr > check.MaxCorrelation {
			check.MaxCorrelation = corr
		}
		if corr <= r.params.MaxCorrelation {
			continue
		}
		if p.ResolveSide() == side.Opposite() {
			check.Hedge = true
			r.log.Info().Str("symbol", symbol).Str("against", p.Symbol).Float64("corr", corr).Msg("hedge allowed")
			continue
		}
		check.Warnings = append(check.Warnings, fmt.Sprintf("high correlation between %s and %s: %.2f", symbol, p.Symbol, corr))
	}

	if !check.Hedge {
		check.Safe = check.MaxCorrelation <= r.params.MaxCorrelation
	}
	return check
}
