package domain

import "time"

// Candle is one OHLCV bar. Slices of candles are ordered oldest first.
type Candle struct {
	OpenTime time.Time `json:"openTime"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Ticker is the 24h market summary of a linear perpetual.
type Ticker struct {
	Symbol            string  `json:"symbol"`
	LastPrice         float64 `json:"lastPrice"`
	Bid1Price         float64 `json:"bid1Price"`
	Ask1Price         float64 `json:"ask1Price"`
	Price24hPcnt      float64 `json:"price24hPcnt"` // fraction, 0.012 = 1.2%
	HighPrice24h      float64 `json:"highPrice24h"`
	LowPrice24h       float64 `json:"lowPrice24h"`
	Volume24h         float64 `json:"volume24h"`
	Turnover24h       float64 `json:"turnover24h"`
	FundingRate       float64 `json:"fundingRate"`
	OpenInterestValue float64 `json:"openInterestValue"`
}

// ChangePercent returns the 24h change in percent.
func (t Ticker) ChangePercent() float64 {
	return t.Price24hPcnt * 100
}

type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook is a depth snapshot. Bids are sorted best (highest) first, asks best (lowest) first.
type OrderBook struct {
	Symbol string      `json:"symbol"`
	Bids   []BookLevel `json:"bids"`
	Asks   []BookLevel `json:"asks"`
}

// PublicTrade is one print from the public trade tape.
type PublicTrade struct {
	Price float64   `json:"price"`
	Size  float64   `json:"size"`
	Side  string    `json:"side"` // "Buy" or "Sell" (taker side)
	Time  time.Time `json:"time"`
}

// LotFilter holds the exchange quantity constraints for a symbol.
type LotFilter struct {
	MinQty  float64 `json:"minQty"`
	QtyStep float64 `json:"qtyStep"`
}

// PricePoint is one persisted close used for historical correlation.
type PricePoint struct {
	Symbol string
	Time   time.Time
	Price  float64
}
