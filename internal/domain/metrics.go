package domain

// Metrics records engine activity. Implementations must be safe for concurrent use.
type Metrics interface {
	RecordCycle(outcome string, seconds float64)
	RecordOrder(symbol, side string)
	RecordProtection(symbol string, ok bool)
	RecordPositionEvent(kind string)
	RecordNotification(channel string, ok bool)
	RecordError(kind string)
	RecordOpenPositions(n int)
	RecordScore(symbol string, score float64)
	RecordDailyLoss(pct float64)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordCycle(string, float64)     {}
func (NopMetrics) RecordOrder(string, string)      {}
func (NopMetrics) RecordProtection(string, bool)   {}
func (NopMetrics) RecordPositionEvent(string)      {}
func (NopMetrics) RecordNotification(string, bool) {}
func (NopMetrics) RecordError(string)              {}
func (NopMetrics) RecordOpenPositions(int)         {}
func (NopMetrics) RecordScore(string, float64)     {}
func (NopMetrics) RecordDailyLoss(float64)         {}
