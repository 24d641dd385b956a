package orchestrator

import (
	"context"
	"time"

	"scalpengine/indicator"
	"scalpengine/journal"
	"scalpengine/metrics"
	"scalpengine/risk"
	"scalpengine/signal"
	"scalpengine/tradestore"
)

// unitPrecision controls SizeOrder's truncation granularity; four decimal
// places covers both equity-share counts and crypto base-unit sizing
// without the gate's sizing helper needing a per-symbol precision table.
const unitPrecision = 4

// WatchlistProvider returns the active symbol list for a decision tick.
type WatchlistProvider func() []string

// Orchestrator runs the periodic decision loop (spec §4.G). It never
// mutates EngineState directly — every mutation is submitted through the
// shared Queue so its commits interleave FIFO with the Exit Monitor's.
type Orchestrator struct {
	queue    *Queue
	store    *tradestore.Store
	market   MarketView
	venue    Venue
	journal  journal.Journal
	interval time.Duration

	timers *timeoutTimers
}

// New constructs an Orchestrator. interval is decisionInterval/
// scalingFactor (spec §4.G). timers is shared with the ExitMonitor
// constructed alongside it (via NewExitMonitor) so either side can cancel a
// timeout timer armed by the other.
func New(queue *Queue, store *tradestore.Store, market MarketView, v Venue, j journal.Journal, interval time.Duration, timers *timeoutTimers) *Orchestrator {
	return &Orchestrator{
		queue: queue, store: store, market: market, venue: v, journal: j,
		interval: interval, timers: timers,
	}
}

// NewTimeoutTimers constructs the timer set shared between an Orchestrator
// and its ExitMonitor.
func NewTimeoutTimers() *timeoutTimers {
	return newTimeoutTimers()
}

// Run drives the decision loop until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, watchlist WatchlistProvider) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.tick(watchlist())
		}
	}
}

func (o *Orchestrator) tick(symbols []string) {
	start := time.Now()
	defer func() { metrics.DecisionCycleDuration.Observe(time.Since(start).Seconds()) }()

	now := time.Now().UTC()
	snapshot := o.store.Snapshot()
	if !snapshot.Settings.IsEnabled {
		return
	}

	for _, symbol := range symbols {
		ind, ok := o.market.LatestIndicator(symbol)
		if !ok {
			continue
		}
		price, ok := o.market.LatestMark(symbol)
		if !ok {
			continue
		}
		warming := o.market.Warming(symbol)
		result := signal.Synthesize(ind, price, warming)
		metrics.SignalsTotal.WithLabelValues(string(result.Signal), string(result.Reason)).Inc()
		if !result.Signal.IsActionable() {
			continue // spec §4.G step 2: "If HOLD, move on."
		}

		existing, hasExisting := snapshot.Positions[symbol]
		side := sideForSignal(result.Signal)

		if hasExisting {
			if existing.Side == side {
				continue // spec §4.G step 4: same side, do not average in
			}
			o.submitOppositeClose(now, symbol, existing, price)
			continue
		}

		o.tryOpen(now, snapshot, symbol, side, price, ind, result)
	}
}

// submitOppositeClose implements spec §4.G step 5: close on an opposite
// signal and let cooldown (driven by lastTradeAt) gate the reverse entry
// rather than opening it in the same tick.
func (o *Orchestrator) submitOppositeClose(now time.Time, symbol string, existing tradestore.Position, price float64) {
	fill, err := o.venue.ClosePosition(symbol, existing.Quantity)
	if err != nil {
		log.Warnf("venue close failed for %s on opposite signal: %v", symbol, err)
		return
	}
	o.timers.cancel(symbol)
	err = o.queue.Submit(now, func(s *tradestore.EngineState) error {
		closePosition(s, o.journal, now, symbol, fill.FillPrice, tradestore.ReasonOppositeSig)
		s.LastTradeAt[symbol] = now // starts cooldown immediately per spec §4.G step 5
		return nil
	})
	if err != nil {
		log.Errorf("opposite-signal close rejected for %s: %v", symbol, err)
	}
}

// tryOpen implements spec §4.G step 6: size, gate, fill, and install a new
// position. Sizing/gating run twice — once optimistically against
// snapshot to decide whether a fill is even worth fetching, and once for
// real inside the committed mutate closure against live state, since
// snapshot may be stale by the time the command is dequeued.
func (o *Orchestrator) tryOpen(now time.Time, snapshot *tradestore.EngineState, symbol string, side tradestore.Side, price float64, ind indicator.Set, result signal.Result) {
	qty, notional := risk.SizeOrder(tradestore.M(price), snapshot.AvailableBalance, snapshot.Settings.MaxPositionSize, unitPrecision)
	if qty <= 0 {
		return
	}
	order := risk.Order{Symbol: symbol, Side: side, Signal: result.Signal, Confidence: result.Confidence, EntryPrice: tradestore.M(price), Quantity: qty, Notional: notional}
	if d := risk.Admit(order, snapshot, now); !d.Ok {
		log.Debugf("risk gate rejected %s: %s", symbol, d.Kind)
		metrics.RiskRejectionsTotal.WithLabelValues(string(d.Kind)).Inc()
		return
	}

	fill, err := o.venue.PlaceMarketOrder(symbol, side, qty)
	if err != nil {
		log.Warnf("venue open failed for %s: %v", symbol, err)
		return
	}
	fillPrice, _ := fill.FillPrice.Float64()

	err = o.queue.Submit(now, func(s *tradestore.EngineState) error {
		if _, exists := s.Positions[symbol]; exists {
			return nil // raced with another open; drop the speculative fill
		}
		liveQty, liveNotional := risk.SizeOrder(fill.FillPrice, s.AvailableBalance, s.Settings.MaxPositionSize, unitPrecision)
		if liveQty <= 0 {
			return nil
		}
		liveOrder := risk.Order{Symbol: symbol, Side: side, Signal: result.Signal, Confidence: result.Confidence, EntryPrice: fill.FillPrice, Quantity: liveQty, Notional: liveNotional}
		if d := risk.Admit(liveOrder, s, now); !d.Ok {
			metrics.RiskRejectionsTotal.WithLabelValues(string(d.Kind)).Inc()
			return nil
		}
		targets := signal.ComputeTargets(fillPrice, result.Signal, ind.SwingLow, ind.SwingHigh, s.Settings.StopLossPercent)
		installPosition(s, o.journal, now, symbol, side, fill.FillPrice, liveQty, targets, result)
		o.timers.arm(symbol, time.Duration(s.Settings.MaxHoldSeconds)*time.Second, func() {
			o.submitTimeout(symbol)
		})
		return nil
	})
	if err != nil {
		log.Errorf("open rejected for %s: %v", symbol, err)
	}
}

// submitTimeout is the time.AfterFunc callback armed at open time (spec
// §4.G step 6.d / the supplemented per-symbol position timers): it
// enqueues a CLOSE(reason=TIMEOUT) command. The Exit Monitor's own
// tick-based timeout check covers the case where this timer is delayed by
// scheduler load, so the close here is idempotent against a
// already-closed position.
func (o *Orchestrator) submitTimeout(symbol string) {
	now := time.Now().UTC()
	price, ok := o.market.LatestMark(symbol)
	if !ok {
		return
	}
	snapshot := o.store.Snapshot()
	pos, ok := snapshot.Positions[symbol]
	if !ok {
		return
	}
	fill, err := o.venue.ClosePosition(symbol, pos.Quantity)
	if err != nil {
		fill.FillPrice = tradestore.M(price)
	}
	o.queue.SubmitAsync(now, func(s *tradestore.EngineState) error {
		closePosition(s, o.journal, now, symbol, fill.FillPrice, tradestore.ReasonTimeout)
		return nil
	})
}
