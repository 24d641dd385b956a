package indicator

import (
	"math"
	"sync"
	"time"
)

// VolumeLookback is the window used for the 20-period average-volume ratio.
const VolumeLookback = 20

// SwingLookback is the default lookback window for swing high/low (spec §4.B).
const SwingLookback = 20

// Set is the derived, versioned indicator snapshot for one symbol (spec §3).
type Set struct {
	RSI         float64
	EMA9        float64
	EMA21       float64
	EMA50       float64
	EMA200      float64
	MA50        float64
	MA200       float64
	VWAP        float64
	Volume      float64
	AvgVolume20 float64
	SwingHigh   float64
	SwingLow    float64
	ATROrVol    float64
	ComputedAt  time.Time
}

// VolumeRatio is Volume/AvgVolume20, Undefined if AvgVolume20 is zero or undefined.
func (s Set) VolumeRatio() float64 {
	if IsUndefined(s.AvgVolume20) || s.AvgVolume20 == 0 {
		return Undefined
	}
	return s.Volume / s.AvgVolume20
}

// Finite reports whether a required field is a finite number (not NaN/Inf).
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Compute derives a full Set from an ordered candle sequence (oldest
// first). candles may be empty; every field degrades to Undefined per
// spec §4.B rather than erroring.
func Compute(candles []CandleLike, at time.Time) Set {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	var volume float64
	if len(candles) > 0 {
		volume = candles[len(candles)-1].Volume
	} else {
		volume = Undefined
	}

	avgVol := Undefined
	if len(candles) >= VolumeLookback {
		sum := 0.0
		for _, c := range candles[len(candles)-VolumeLookback:] {
			sum += c.Volume
		}
		avgVol = sum / VolumeLookback
	}

	swingLow, swingHigh := Undefined, Undefined
	if len(candles) > 0 {
		swingLow, swingHigh = SwingLevels(candles, SwingLookback)
	}

	return Set{
		RSI:         RSI(closes, RSIPeriod),
		EMA9:        EMA(closes, 9),
		EMA21:       EMA(closes, 21),
		EMA50:       EMA(closes, 50),
		EMA200:      EMA(closes, 200),
		MA50:        SMA(closes, 50),
		MA200:       SMA(closes, 200),
		VWAP:        VWAP(candles),
		Volume:      volume,
		AvgVolume20: avgVol,
		SwingHigh:   swingHigh,
		SwingLow:    swingLow,
		ATROrVol:    Volatility(closes, SwingLookback),
		ComputedAt:  at,
	}
}

// Cache memoizes the last computed Set per symbol, keyed by the open time
// of the candle it was computed from, so repeated ticks against an
// unchanged buffer (spec §9, "repeated per-symbol recompute on every
// tick") reuse the prior result instead of recomputing.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	latestOpenTime int64
	set            Set
}

// NewCache returns an empty indicator cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// GetOrCompute returns the cached Set for symbol if latestOpenTime matches
// the cache entry; otherwise it calls compute, stores, and returns the
// fresh Set.
func (c *Cache) GetOrCompute(symbol string, latestOpenTime int64, compute func() Set) Set {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[symbol]; ok && e.latestOpenTime == latestOpenTime {
		return e.set
	}
	set := compute()
	c.entries[symbol] = cacheEntry{latestOpenTime: latestOpenTime, set: set}
	return set
}

// Latest returns the last cached Set for symbol, if any.
func (c *Cache) Latest(symbol string) (Set, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[symbol]
	return e.set, ok
}
