package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"perp-autotrader/internal/domain"
)

// AdvisoryGate wraps the optional advisor. Every response is validated and anything that
// fails validation is returned as an error, so callers fall back to their own logic.
type AdvisoryGate struct {
	advisor domain.Advisor
	audit   domain.AuditStore
	timeout time.Duration
	log     zerolog.Logger
}

func NewAdvisoryGate(advisor domain.Advisor, audit domain.AuditStore, timeout time.Duration, log zerolog.Logger) *AdvisoryGate {
	return &AdvisoryGate{
		advisor: advisor,
		audit:   audit,
		timeout: timeout,
		log:     log.With().Str("component", "advisory").Logger(),
	}
}

func (g *AdvisoryGate) Enabled() bool {
	return g != nil && g.advisor != nil
}

// SelectTrade asks for a pick across the candidates. The pick must name one of them.
func (g *AdvisoryGate) SelectTrade(ctx context.Context, req domain.AdvisoryRequest) (*domain.TradeAdvice, error) {
	if !g.Enabled() {
		return nil, domain.ErrAdvisoryDisabled
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	advice, err := g.advisor.SelectTrade(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("select trade: %w", err)
	}
	g.record(ctx, "selection", "", advice)
	if advice == nil {
		return nil, fmt.Errorf("%w: empty selection", domain.ErrAdvisoryInvalid)
	}

	inScope := false
	for _, c := range req.Candidates {
		if c.Symbol == advice.Symbol {
			inScope = true
			break
		}
	}
	if !inScope {
		return nil, fmt.Errorf("%w: symbol %q not among candidates", domain.ErrAdvisoryInvalid, advice.Symbol)
	}

	if _, ok := domain.ParseSide(advice.Side); !ok {
		advice.Side = ""
	}
	return advice, nil
}

// PlanAsset asks for side and levels for one candidate. A plan is only returned when entry,
// stop and target are all present and stop and target sit on the correct side of both the
// suggested entry and the candidate's live price.
func (g *AdvisoryGate) PlanAsset(ctx context.Context, candidate domain.AdvisoryCandidate, req domain.AdvisoryRequest) (*domain.TradeAdvice, error) {
	if !g.Enabled() {
		return nil, domain.ErrAdvisoryDisabled
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	plan, err := g.advisor.PlanAsset(ctx, candidate, req)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", candidate.Symbol, err)
	}
	g.record(ctx, "plan", candidate.Symbol, plan)
	if plan == nil {
		return nil, fmt.Errorf("%w: empty plan for %s", domain.ErrAdvisoryInvalid, candidate.Symbol)
	}

	if plan.Symbol == "" {
		plan.Symbol = candidate.Symbol
	}
	if plan.Symbol != candidate.Symbol {
		return nil, fmt.Errorf("%w: plan for %q returned %q", domain.ErrAdvisoryInvalid, candidate.Symbol, plan.Symbol)
	}
	if !plan.HasLevels() {
		return nil, fmt.Errorf("%w: plan for %s is missing levels", domain.ErrAdvisoryInvalid, candidate.Symbol)
	}

	side, _ := domain.ParseSide(plan.Side)
	if err := ValidateExternalLevels(plan.Entry, plan.StopLoss, plan.TakeProfit, side); err != nil {
		return nil, fmt.Errorf("plan %s: %w", candidate.Symbol, err)
	}
	if candidate.Price > 0 {
		if err := ValidateExternalLevels(candidate.Price, plan.StopLoss, plan.TakeProfit, side); err != nil {
			return nil, fmt.Errorf("plan %s at live price %v: %w", candidate.Symbol, candidate.Price, err)
		}
	}
	plan.Side = string(side)
	return plan, nil
}

// ReviewPosition asks for a hold, add or close opinion on an open position. The signal must
// be known and confidence within [0,1]; stop or target on the wrong side of the mark price
// are dropped rather than shown.
func (g *AdvisoryGate) ReviewPosition(ctx context.Context, pos domain.LivePosition, market domain.AdvisoryCandidate) (*domain.PositionReview, error) {
	if !g.Enabled() {
		return nil, domain.ErrAdvisoryDisabled
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	review, err := g.advisor.ReviewPosition(ctx, pos, market)
	if err != nil {
		return nil, fmt.Errorf("review %s: %w", pos.Symbol, err)
	}
	if review == nil {
		return nil, fmt.Errorf("%w: empty review for %s", domain.ErrAdvisoryInvalid, pos.Symbol)
	}
	g.save(ctx, "review", pos.Symbol, review)

	if review.Symbol == "" {
		review.Symbol = pos.Symbol
	}
	if review.Symbol != pos.Symbol {
		return nil, fmt.Errorf("%w: review for %q returned %q", domain.ErrAdvisoryInvalid, pos.Symbol, review.Symbol)
	}
	signal, ok := domain.ParseReviewSignal(string(review.Signal))
	if !ok {
		return nil, fmt.Errorf("%w: unknown signal %q", domain.ErrAdvisoryInvalid, review.Signal)
	}
	review.Signal = signal
	if review.Confidence < 0 || review.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v out of range", domain.ErrAdvisoryInvalid, review.Confidence)
	}

	ref := pos.MarkPrice
	if ref <= 0 {
		ref = market.Price
	}
	long := pos.ResolveSide() != domain.Short
	if review.StopLoss > 0 && (ref <= 0 || (long && review.StopLoss >= ref) || (!long && review.StopLoss <= ref)) {
		g.log.Debug().Str("symbol", pos.Symbol).Float64("sl", review.StopLoss).Float64("mark", ref).Msg("review stop on wrong side, dropped")
		review.StopLoss = 0
	}
	if review.TakeProfit > 0 && (ref <= 0 || (long && review.TakeProfit <= ref) || (!long && review.TakeProfit >= ref)) {
		g.log.Debug().Str("symbol", pos.Symbol).Float64("tp", review.TakeProfit).Float64("mark", ref).Msg("review target on wrong side, dropped")
		review.TakeProfit = 0
	}
	return review, nil
}

func (g *AdvisoryGate) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *AdvisoryGate) record(ctx context.Context, kind, symbol string, advice *domain.TradeAdvice) {
	if advice == nil {
		return
	}
	g.save(ctx, kind, symbol, advice)
}

func (g *AdvisoryGate) save(ctx context.Context, kind, symbol string, v any) {
	if g.audit == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := g.audit.SaveAdvisoryResponse(ctx, kind, symbol, payload); err != nil {
		g.log.Debug().Err(err).Msg("advisory audit write failed")
	}
}
