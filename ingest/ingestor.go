package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"scalpengine/candlebuf"
	"scalpengine/indicator"
	"scalpengine/logger"
	"scalpengine/metrics"
)

var log = logger.Named("ingest")

// minWarmCandles is max(RSI_PERIOD+1, 21) from spec §4.D.
const minWarmCandles = 21

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
	callTimeout    = 5 * time.Second
	historyDepth   = 200
)

// WatchlistProvider returns the current set of active symbols; the
// Ingestor calls it once per tick (spec §4.D step 1: "Read watchlist
// snapshot").
type WatchlistProvider func() []string

// Ingestor runs the periodic ingestion loop against a MarketDataSource,
// feeding a candlebuf.Buffer and an indicator.Cache (spec §4.D).
type Ingestor struct {
	source   MarketDataSource
	buffer   *candlebuf.Buffer
	cache    *indicator.Cache
	interval time.Duration

	mu          sync.RWMutex
	seeded      map[string]bool
	lastUpdated map[string]time.Time
	latestPrice map[string]float64
}

// New constructs an Ingestor. interval is baseInterval/scalingFactor,
// computed by the caller (spec §4.D).
func New(source MarketDataSource, buffer *candlebuf.Buffer, cache *indicator.Cache, interval time.Duration) *Ingestor {
	return &Ingestor{
		source:      source,
		buffer:      buffer,
		cache:       cache,
		interval:    interval,
		seeded:      make(map[string]bool),
		lastUpdated: make(map[string]time.Time),
		latestPrice: make(map[string]float64),
	}
}

// Warming reports whether symbol has fewer than the minimum candle count
// the Synthesizer requires before it stops forcing HOLD (spec §4.D).
func (ing *Ingestor) Warming(symbol string) bool {
	return ing.buffer.Len(symbol) < minWarmCandles
}

// LatestIndicator returns the most recently computed IndicatorSet for
// symbol, if any candles have been ingested yet.
func (ing *Ingestor) LatestIndicator(symbol string) (indicator.Set, bool) {
	return ing.cache.Latest(symbol)
}

// LatestMark implements venue.MarkSource.
func (ing *Ingestor) LatestMark(symbol string) (float64, bool) {
	ing.mu.RLock()
	defer ing.mu.RUnlock()
	p, ok := ing.latestPrice[symbol]
	return p, ok
}

// Run drives the periodic ingestion loop until ctx is cancelled (spec §5:
// "Ingestor stops polling" on shutdown).
func (ing *Ingestor) Run(ctx context.Context, watchlist WatchlistProvider) {
	backoff := initialBackoff
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		symbols := watchlist()
		ing.seedFreshSymbols(ctx, symbols)

		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		ticks, err := ing.source.Latest(callCtx, symbols)
		cancel()

		now := time.Now().UTC()

		if len(ticks) == 0 {
			if err != nil {
				log.Warnf("ingest: full source outage, backing off %v: %v", backoff, err)
				metrics.IngestErrorsTotal.WithLabelValues("_", errClass(err)).Inc()
			}
			ing.reportStaleness(now)
			timer.Reset(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		if err != nil {
			log.Warnf("ingest: partial failure, proceeding with %d/%d symbols: %v", len(ticks), len(symbols), err)
			metrics.IngestErrorsTotal.WithLabelValues("_", errClass(err)).Inc()
		}

		for symbol, tick := range ticks {
			ing.ingestTick(symbol, tick)
		}
		ing.reportStaleness(now)

		backoff = initialBackoff
		timer.Reset(ing.interval)
	}
}

// seedFreshSymbols fetches up to historyDepth candles for any symbol not
// yet seen, seeding the buffer (spec §4.D: "On initial startup for a fresh
// symbol"). If history is unavailable the symbol simply accumulates live
// ticks and stays warming until minWarmCandles is reached.
func (ing *Ingestor) seedFreshSymbols(ctx context.Context, symbols []string) {
	for _, symbol := range symbols {
		ing.mu.Lock()
		already := ing.seeded[symbol]
		ing.seeded[symbol] = true
		ing.mu.Unlock()
		if already {
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		history, err := ing.source.History(callCtx, symbol, ing.interval, historyDepth)
		cancel()
		if err != nil {
			log.Warnf("ingest: history unavailable for %s, starting from live only: %v", symbol, err)
			metrics.IngestErrorsTotal.WithLabelValues(symbol, errClass(err)).Inc()
			continue
		}
		for _, c := range history {
			ing.buffer.Append(symbol, candlebuf.Candle{
				Symbol: symbol, OpenTime: c.OpenTime,
				Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume,
			})
		}
	}
}

// ingestTick synthesizes a current-bar candle from tick (spec §4.D step 3:
// "o=h=l=c=price, volume=sourceVolume"), appends it via the replace-or-append
// rule, and recomputes indicators for the symbol inline so the ingest→
// recompute ordering spec §5 requires holds without extra synchronization.
func (ing *Ingestor) ingestTick(symbol string, tick Tick) {
	openTime := tick.Timestamp.Unix()
	c := candlebuf.Candle{
		Symbol: symbol, OpenTime: openTime,
		Open: tick.Price, High: tick.Price, Low: tick.Price, Close: tick.Price,
		Volume: tick.Volume,
	}
	ing.buffer.Append(symbol, c)

	ing.mu.Lock()
	ing.latestPrice[symbol] = tick.Price
	ing.lastUpdated[symbol] = time.Now().UTC()
	ing.mu.Unlock()

	candles := ing.buffer.Snapshot(symbol, 0)
	like := make([]indicator.CandleLike, len(candles))
	for i, cc := range candles {
		like[i] = indicator.CandleLike{High: cc.High, Low: cc.Low, Close: cc.Close, Volume: cc.Volume}
	}
	ing.cache.GetOrCompute(symbol, openTime, func() indicator.Set {
		return indicator.Compute(like, time.Now().UTC())
	})
}

func (ing *Ingestor) reportStaleness(now time.Time) {
	ing.mu.RLock()
	defer ing.mu.RUnlock()
	for symbol, last := range ing.lastUpdated {
		metrics.IngestStalenessSeconds.WithLabelValues(symbol).Set(now.Sub(last).Seconds())
	}
}

// errClass maps a MarketDataSource error onto the IngestErrorsTotal "class"
// label (spec §6's NotFound/RateLimited/Transient/Unauthorized taxonomy).
func errClass(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "unknown"
	}
}
