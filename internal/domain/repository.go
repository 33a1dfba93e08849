package domain

import (
	"context"
	"time"
)

// QuarantineStore persists the last close time per symbol.
type QuarantineStore interface {
	LoadAll(ctx context.Context) (map[string]time.Time, error)
	Save(ctx context.Context, symbol string, at time.Time) error
}

// RetentionPolicy controls audit rotation.
type RetentionPolicy struct {
	MarketHistory time.Duration `yaml:"market_history" default:"2160h"`
	APIErrors     time.Duration `yaml:"api_errors" default:"720h"`
	Trades        time.Duration `yaml:"trades" default:"2160h"`
	KeepAdvisory  int           `yaml:"keep_advisory" default:"1000" validate:"gte=0"`
}

func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		MarketHistory: 90 * 24 * time.Hour,
		APIErrors:     30 * 24 * time.Hour,
		Trades:        90 * 24 * time.Hour,
		KeepAdvisory:  1000,
	}
}

type RotationStats struct {
	MarketHistory int64 `json:"marketHistory"`
	APIErrors     int64 `json:"apiErrors"`
	Trades        int64 `json:"trades"`
	Advisory      int64 `json:"advisory"`
}

// AuditStore is the optional audit log. Nothing in the trading path depends on it for
// correctness.
type AuditStore interface {
	SaveTrade(ctx context.Context, trade *TradeRecord) error
	UpdateTradeExit(ctx context.Context, symbol string, exitPrice, pnl float64, at time.Time) error
	ListTrades(ctx context.Context, limit int) ([]TradeRecord, error)
	SaveMarketSnapshot(ctx context.Context, analysis *MarketAnalysis) error
	PriceHistory(ctx context.Context, symbol string, since time.Time) ([]PricePoint, error)
	SaveAdvisoryResponse(ctx context.Context, kind, symbol string, payload []byte) error
	SaveAPIError(ctx context.Context, operation, symbol, message string) error
	Rotate(ctx context.Context, policy RetentionPolicy) (RotationStats, error)
}

// MarketCache keeps the latest collected analysis per symbol.
type MarketCache interface {
	Get(ctx context.Context, symbol string) (*MarketAnalysis, error)
	Set(ctx context.Context, analysis *MarketAnalysis, ttl time.Duration) error
}

// TokenRepository stores device tokens for push notifications.
type TokenRepository interface {
	RegisterToken(token, platform string, timestamp int64)
	UnregisterToken(token string)
	GetAllTokens() []string
	GetTokenCount() int
}
