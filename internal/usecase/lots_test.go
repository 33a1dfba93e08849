package usecase

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"perp-autotrader/internal/domain"
)

func TestNormalizeQty(t *testing.T) {
	tests := []struct {
		name     string
		qty      float64
		filter   domain.LotFilter
		expected float64
	}{
		{"floors to step", 0.12345, domain.LotFilter{MinQty: 0.001, QtyStep: 0.001}, 0.123},
		{"raised to minimum", 0.0004, domain.LotFilter{MinQty: 0.001, QtyStep: 0.001}, 0.001},
		{"whole lots", 157.9, domain.LotFilter{MinQty: 10, QtyStep: 1}, 157},
		{"exact step kept", 0.3, domain.LotFilter{MinQty: 0.1, QtyStep: 0.1}, 0.3},
		{"missing filter uses default step", 0.123456, domain.LotFilter{}, 0.1234},
		{"zero stays zero", 0, domain.LotFilter{MinQty: 0.001, QtyStep: 0.001}, 0},
		{"negative stays zero", -1, domain.LotFilter{MinQty: 0.001, QtyStep: 0.001}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeQty(tt.qty, tt.filter)
			if !floatEquals(got, tt.expected, 1e-12) {
				t.Errorf("Expected qty %v, got %v", tt.expected, got)
			}
		})
	}
}

type lotMarket struct {
	*fakeExchange
	filters map[string]*domain.LotFilter
	calls   int
}

func (m *lotMarket) GetLotFilter(_ context.Context, symbol string) (*domain.LotFilter, error) {
	m.calls++
	if f, ok := m.filters[symbol]; ok {
		return f, nil
	}
	return nil, domain.ErrNotFound
}

func TestLotNormalizerRefreshOnce(t *testing.T) {
	market := &lotMarket{
		fakeExchange: newFakeExchange(),
		filters: map[string]*domain.LotFilter{
			"BTCUSDT": {MinQty: 0.01, QtyStep: 0.01},
			"NEWUSDT": {MinQty: 5, QtyStep: 5},
		},
	}
	l := NewLotNormalizer(market, zerolog.Nop())

	if got := l.Normalize("BTCUSDT", 0.0155); !floatEquals(got, 0.015, 1e-12) {
		t.Errorf("Expected default BTC filter before refresh, got %v", got)
	}

	symbols := []string{"BTCUSDT", "NEWUSDT", "ETHUSDT"}
	l.RefreshOnce(context.Background(), symbols)
	l.RefreshOnce(context.Background(), symbols)
	if market.calls != len(symbols) {
		t.Errorf("Expected %d filter fetches, got %d", len(symbols), market.calls)
	}

	if got := l.Normalize("BTCUSDT", 0.0155); !floatEquals(got, 0.01, 1e-12) {
		t.Errorf("Expected exchange BTC filter after refresh, got %v", got)
	}
	if got := l.Normalize("NEWUSDT", 12); !floatEquals(got, 10, 1e-12) {
		t.Errorf("Expected fetched filter for NEWUSDT, got %v", got)
	}
	if got := l.Filter("ETHUSDT"); got.MinQty != 0.01 {
		t.Errorf("Expected ETH default kept after failed fetch, got %+v", got)
	}
}
