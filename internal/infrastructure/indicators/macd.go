package indicators

import "perp-autotrader/internal/domain"

// CalculateMACD needs slow+signal closes. The signal line is the EMA of the MACD values
// computed on every prefix from index slow onwards.
func CalculateMACD(closes []float64, fast, slow, signal int) (*domain.MACD, bool) {
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) < slow+signal {
		return nil, false
	}

	fastSeries := CalculateEMASeries(closes, fast)
	slowSeries := CalculateEMASeries(closes, slow)

	macdValues := make([]float64, 0, len(closes)-slow)
	for i := slow; i < len(closes); i++ {
		macdValues = append(macdValues, fastSeries[i]-slowSeries[i])
	}

	line := fastSeries[len(closes)-1] - slowSeries[len(closes)-1]
	signalLine, ok := CalculateEMA(macdValues, signal)
	if !ok {
		return nil, false
	}
	hist := line - signalLine

	bias := domain.SignalNeutral
	if line > signalLine && hist > 0 {
		bias = domain.SignalBullish
	} else if line < signalLine && hist < 0 {
		bias = domain.SignalBearish
	}

	return &domain.MACD{
		Line:      line,
		Signal:    signalLine,
		Histogram: hist,
		Bias:      bias,
	}, true
}
