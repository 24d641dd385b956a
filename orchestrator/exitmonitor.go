package orchestrator

import (
	"context"
	"time"

	"scalpengine/journal"
	"scalpengine/tradestore"
)

// ExitMonitor runs the periodic exit sweep (spec §4.H): take-profit,
// stop-loss, timeout, and manual close. Like the Orchestrator it never
// mutates EngineState directly; every close goes through the shared Queue.
type ExitMonitor struct {
	queue   *Queue
	store   *tradestore.Store
	market  MarketView
	venue   Venue
	journal journal.Journal
	timers  *timeoutTimers
}

// NewExitMonitor constructs an ExitMonitor sharing timers with the
// Orchestrator that armed them, so a TP/SL/manual close here cancels the
// matching timeout timer.
func NewExitMonitor(queue *Queue, store *tradestore.Store, market MarketView, v Venue, j journal.Journal, timers *timeoutTimers) *ExitMonitor {
	return &ExitMonitor{
		queue: queue, store: store, market: market, venue: v, journal: j,
		timers: timers,
	}
}

// Run drives the exit sweep at exitInterval (spec §4.H: fixed 1s, not
// scaled by scalingFactor) until ctx is cancelled.
func (m *ExitMonitor) Run(ctx context.Context, exitInterval time.Duration) {
	ticker := time.NewTicker(exitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *ExitMonitor) sweep() {
	now := time.Now().UTC()
	snapshot := m.store.Snapshot()
	for symbol, pos := range snapshot.Positions {
		price, ok := m.market.LatestMark(symbol)
		if !ok {
			continue
		}
		reason, shouldClose := m.evaluate(snapshot.Settings, pos, price, now)
		if !shouldClose {
			continue
		}
		m.closeVia(now, symbol, pos, reason)
	}
}

// evaluate implements spec §4.H's close conditions in priority order:
// take-profit, stop-loss, timeout. Manual closes are injected separately
// via RequestManualClose.
func (m *ExitMonitor) evaluate(settings tradestore.Settings, pos tradestore.Position, price float64, now time.Time) (tradestore.CloseReason, bool) {
	entry, _ := pos.EntryPrice.Float64()
	target, _ := pos.TargetPrice.Float64()
	stop, _ := pos.StopLossPrice.Float64()

	pct := (price - entry) / entry
	if pos.Side == tradestore.Short {
		pct = -pct
	}

	switch pos.Side {
	case tradestore.Long:
		if pct >= settings.TakeProfitPercent/100 || price >= target {
			return tradestore.ReasonTakeProfit, true
		}
		if pct <= -settings.StopLossPercent/100 || price <= stop {
			return tradestore.ReasonStopLoss, true
		}
	case tradestore.Short:
		if pct >= settings.TakeProfitPercent/100 || price <= target {
			return tradestore.ReasonTakeProfit, true
		}
		if pct <= -settings.StopLossPercent/100 || price >= stop {
			return tradestore.ReasonStopLoss, true
		}
	}

	if now.Sub(pos.EntryTime) >= time.Duration(settings.MaxHoldSeconds)*time.Second {
		return tradestore.ReasonTimeout, true
	}
	return "", false
}

func (m *ExitMonitor) closeVia(now time.Time, symbol string, pos tradestore.Position, reason tradestore.CloseReason) {
	fill, err := m.venue.ClosePosition(symbol, pos.Quantity)
	if err != nil {
		log.Warnf("venue close failed for %s (%s): %v", symbol, reason, err)
		return
	}
	m.timers.cancel(symbol)
	err = m.queue.Submit(now, func(s *tradestore.EngineState) error {
		closePosition(s, m.journal, now, symbol, fill.FillPrice, reason)
		return nil
	})
	if err != nil {
		log.Errorf("exit close failed for %s (%s): %v", symbol, reason, err)
	}
}

// RequestManualClose implements the API-injected manual close path (spec
// §4.H: "Manual close (injected via API): close with reason=MANUAL").
func (m *ExitMonitor) RequestManualClose(symbol string) error {
	snapshot := m.store.Snapshot()
	pos, ok := snapshot.Positions[symbol]
	if !ok {
		return nil
	}
	m.closeVia(time.Now().UTC(), symbol, pos, tradestore.ReasonManual)
	return nil
}

// shutdownSubmitTimeout bounds shutdown's force-close Submit calls so a
// queue that already exited (e.g. after a fatal invariant violation, spec
// §4.F/§7) can't hang Engine.Shutdown forever.
const shutdownSubmitTimeout = 5 * time.Second

// shutdown force-closes every open position at its last known mark (spec
// §5: "Exit Monitor is sent a SHUTDOWN command that force-closes all open
// positions with reason=SHUTDOWN at last known mark").
func (m *ExitMonitor) shutdown() {
	now := time.Now().UTC()
	snapshot := m.store.Snapshot()
	for symbol, pos := range snapshot.Positions {
		price, ok := m.market.LatestMark(symbol)
		mark := pos.CurrentMark
		if ok {
			mark = tradestore.M(price)
		}
		m.timers.cancel(symbol)
		err := m.queue.SubmitTimeout(now, func(s *tradestore.EngineState) error {
			closePosition(s, m.journal, now, symbol, mark, tradestore.ReasonShutdown)
			return nil
		}, shutdownSubmitTimeout)
		if err != nil {
			log.Errorf("shutdown force-close failed for %s: %v", symbol, err)
		}
	}
	if m.journal != nil {
		_ = m.journal.Append(journal.Entry{Kind: journal.KindShutdown, Timestamp: now})
	}
}
