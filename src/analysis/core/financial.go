package core

import "math"

// -----------------------------------------------------------------------------

// CalculateChangePercent calculates fractional change (0.01 = 1%).
func CalculateChangePercent(current, previous float64) float64 {
	if previous == 0 {
		return 0.0
	}
	return (current - previous) / previous
}

// -----------------------------------------------------------------------------

// CalculateVolumeRatio compares the latest volume to the window average.
// A window without volume yields the neutral ratio 1.
func CalculateVolumeRatio(currentVol, avgVol float64) float64 {
	if avgVol <= 0 {
		return 1.0
	}
	return currentVol / avgVol
}

// -----------------------------------------------------------------------------

// SimpleReturns returns r[i] = p[i+1]/p[i] - 1 for consecutive prices.
func SimpleReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out = append(out, CalculateChangePercent(prices[i], prices[i-1]))
	}
	return out
}

// -----------------------------------------------------------------------------

// CalculateRSI is the relative strength index over the last period price
// changes using simple averages. ok is false when there are fewer than
// period+1 prices.
func CalculateRSI(prices []float64, period int) (rsi float64, ok bool) {
	if period < 1 || len(prices) < period+1 {
		return 50.0, false
	}
	gain, loss := 0.0, 0.0
	start := len(prices) - period
	for i := start; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(period)
	loss /= float64(period)

	switch {
	case gain == 0 && loss == 0:
		return 50.0, true
	case loss == 0:
		return 100.0, true
	}
	rs := gain / loss
	return 100 - 100/(1+rs), true
}

// -----------------------------------------------------------------------------

// CalculateMovingAverageRatio is last price over the mean of the last n
// prices. ok is false when fewer than n prices exist.
func CalculateMovingAverageRatio(prices []float64, n int) (float64, bool) {
	if n < 1 || len(prices) < n {
		return 1.0, false
	}
	mean, _ := CalculateMeanStd(prices[len(prices)-n:])
	if mean <= 0 {
		return 1.0, false
	}
	return prices[len(prices)-1] / mean, true
}

// -----------------------------------------------------------------------------

// SafeLog returns ln(v) for positive v and false otherwise.
func SafeLog(v float64) (float64, bool) {
	if v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return math.Log(v), true
}
