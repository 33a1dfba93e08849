package domain

import "context"

// MarketData is the read-only half of the exchange client.
type MarketData interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error)
	GetRecentTrades(ctx context.Context, symbol string, limit int) ([]PublicTrade, error)
	GetLotFilter(ctx context.Context, symbol string) (*LotFilter, error)
}

// Trading is the account half of the exchange client. Every call either fully succeeds
// or returns an error; partial success is never assumed.
type Trading interface {
	GetPositions(ctx context.Context) ([]LivePosition, error)
	GetBalance(ctx context.Context) (float64, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	SetTradingStop(ctx context.Context, symbol string, stopLoss, takeProfit float64) error
	CancelConditionalOrders(ctx context.Context, symbol string) error
	// ClosePosition sends a reduce-only market order; qty <= 0 closes the full size.
	ClosePosition(ctx context.Context, pos LivePosition, qty float64) (*OrderResult, error)
}

type Exchange interface {
	MarketData
	Trading
}
