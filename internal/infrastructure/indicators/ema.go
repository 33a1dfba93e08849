package indicators

import "perp-autotrader/internal/domain"

// CalculateEMASeries returns the running EMA for every index, seeded with the first value.
// When data is shorter than period the period shrinks to len(data).
func CalculateEMASeries(data []float64, period int) []float64 {
	if len(data) == 0 || period <= 0 {
		return nil
	}
	if len(data) < period {
		period = len(data)
	}

	k := 2.0 / (float64(period) + 1.0)
	ema := make([]float64, len(data))
	ema[0] = data[0]
	for i := 1; i < len(data); i++ {
		ema[i] = (data[i] * k) + (ema[i-1] * (1 - k))
	}
	return ema
}

// CalculateEMA returns the latest EMA value. ok is false on empty input.
func CalculateEMA(data []float64, period int) (float64, bool) {
	series := CalculateEMASeries(data, period)
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

// EMASignal compares the fast and slow EMA with a 0.2% dead band.
func EMASignal(fast, slow float64) domain.Signal {
	switch {
	case fast > slow*1.002:
		return domain.SignalBullish
	case fast < slow*0.998:
		return domain.SignalBearish
	}
	return domain.SignalNeutral
}
