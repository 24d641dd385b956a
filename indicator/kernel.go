// Package indicator implements the pure, stateless technical-indicator
// kernel (spec §4.B). Every function here is total and deterministic:
// insufficient data yields a defined sentinel rather than an error.
package indicator

import "math"

// Undefined is the sentinel returned by indicators that cannot be computed
// from the given input. math.IsNaN(x) identifies it.
var Undefined = math.NaN()

// IsUndefined reports whether v is the Undefined sentinel.
func IsUndefined(v float64) bool { return math.IsNaN(v) }

// SMA returns the mean of the last n closes, or Undefined if len(closes) < n.
func SMA(closes []float64, n int) float64 {
	if n <= 0 || len(closes) < n {
		return Undefined
	}
	sum := 0.0
	for _, c := range closes[len(closes)-n:] {
		sum += c
	}
	return sum / float64(n)
}

// EMA seeds with the first close then applies ema_i = c_i*k + ema_{i-1}*(1-k),
// k = 2/(n+1). Defined for any non-empty input (spec §4.B).
func EMA(closes []float64, n int) float64 {
	if len(closes) == 0 || n <= 0 {
		return Undefined
	}
	k := 2.0 / float64(n+1)
	ema := closes[0]
	for _, c := range closes[1:] {
		ema = c*k + ema*(1-k)
	}
	return ema
}

// RSIPeriod is the canonical Wilder RSI window used throughout the engine.
const RSIPeriod = 14

// RSI computes Wilder's smoothed RSI over period periods. Undefined if
// len(closes) < period+1. If the average loss is zero, RSI is 100 by
// convention (spec §4.B), so constant prices yield 100.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return Undefined
	}

	gain, loss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gain += change
		} else {
			loss += -change
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain = (avgGain*float64(period-1) + change) / float64(period)
			avgLoss = (avgLoss * float64(period-1)) / float64(period)
		} else {
			avgGain = (avgGain * float64(period-1)) / float64(period)
			avgLoss = (avgLoss*float64(period-1) + (-change)) / float64(period)
		}
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// TypicalPrice is (H+L+C)/3.
func TypicalPrice(high, low, close float64) float64 {
	return (high + low + close) / 3
}

// CandleLike is the minimal shape VWAP/swing/volatility need, so this
// package stays independent of candlebuf.Candle.
type CandleLike struct {
	High, Low, Close, Volume float64
}

// VWAP is Σ(typicalPrice*volume)/Σvolume over the given candles. Undefined
// if total volume is zero.
func VWAP(candles []CandleLike) float64 {
	var sumTPV, sumVol float64
	for _, c := range candles {
		tp := TypicalPrice(c.High, c.Low, c.Close)
		sumTPV += tp * c.Volume
		sumVol += c.Volume
	}
	if sumVol == 0 {
		return Undefined
	}
	return sumTPV / sumVol
}

// SwingLevels finds the highest swing high and lowest swing low of fractal
// turning points within the last lookback candles. A bar i (excluding the
// first and last of the window) is a swing high iff high_i > high_{i-1} and
// high_i > high_{i+1}; swing low is symmetric. Falls back to the window's
// max/min if no fractal is found (spec §4.B).
func SwingLevels(candles []CandleLike, lookback int) (swingLow, swingHigh float64) {
	if lookback <= 0 || lookback > len(candles) {
		lookback = len(candles)
	}
	if lookback == 0 {
		return Undefined, Undefined
	}
	window := candles[len(candles)-lookback:]

	haveHigh, haveLow := false, false
	for i := 1; i < len(window)-1; i++ {
		if window[i].High > window[i-1].High && window[i].High > window[i+1].High {
			if !haveHigh || window[i].High > swingHigh {
				swingHigh = window[i].High
			}
			haveHigh = true
		}
		if window[i].Low < window[i-1].Low && window[i].Low < window[i+1].Low {
			if !haveLow || window[i].Low < swingLow {
				swingLow = window[i].Low
			}
			haveLow = true
		}
	}

	maxHigh, minLow := window[0].High, window[0].Low
	for _, c := range window {
		if c.High > maxHigh {
			maxHigh = c.High
		}
		if c.Low < minLow {
			minLow = c.Low
		}
	}
	if !haveHigh {
		swingHigh = maxHigh
	}
	if !haveLow {
		swingLow = minLow
	}
	return swingLow, swingHigh
}

// Volatility returns the standard deviation of log-returns over the last n
// closes, annualized by sqrt(252). Used only for target sizing (spec §4.B).
func Volatility(closes []float64, n int) float64 {
	if n <= 1 || len(closes) < n+1 {
		return Undefined
	}
	window := closes[len(closes)-n-1:]
	returns := make([]float64, 0, n)
	for i := 1; i < len(window); i++ {
		if window[i-1] <= 0 || window[i] <= 0 {
			return Undefined
		}
		returns = append(returns, math.Log(window[i]/window[i-1]))
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance) * math.Sqrt(252)
}
