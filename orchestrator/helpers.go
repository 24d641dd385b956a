package orchestrator

import (
	"encoding/json"
	"math"
	"time"

	"scalpengine/journal"
	"scalpengine/metrics"
	"scalpengine/signal"
	"scalpengine/tradestore"

	"github.com/google/uuid"
)

// pnlNoiseFraction is the |exitPrice-entryPrice| < 10^-3 * entryPrice
// zero-clamp threshold from spec §4.H.
const pnlNoiseFraction = 0.001

// sideForSignal maps a synthesized signal to a trade side; callers must
// only invoke this for actionable signals (signal.Kind.IsActionable()).
func sideForSignal(k signal.Kind) tradestore.Side {
	if k.Side() == signal.SideLong {
		return tradestore.Long
	}
	return tradestore.Short
}

// installPosition performs the in-state accounting for a newly opened
// position (spec §4.G step 6.d): journals OPEN_*, installs the position,
// deducts notional/margin, records lastTradeAt, and returns the opened
// Position so the caller can arm its timeout timer.
func installPosition(s *tradestore.EngineState, j journal.Journal, now time.Time, symbol string, side tradestore.Side, fillPrice tradestore.Money, quantity float64, targets signal.Targets, sig signal.Result) tradestore.Position {
	id := uuid.NewString()
	pos := tradestore.Position{
		ID:             id,
		Symbol:         symbol,
		Side:           side,
		Quantity:       quantity,
		EntryPrice:     fillPrice,
		EntryTime:      now,
		TargetPrice:    tradestore.M(targets.TakeProfit),
		StopLossPrice:  tradestore.M(targets.StopLoss),
		CurrentMark:    fillPrice,
		OpeningTradeID: id,
	}
	s.Positions[symbol] = pos

	notional := tradestore.M(quantity).Mul(fillPrice)
	if side == tradestore.Short {
		s.AvailableBalance = s.AvailableBalance.Sub(notional.Mul(tradestore.M(s.Settings.ShortMarginFraction)))
	} else {
		s.AvailableBalance = s.AvailableBalance.Sub(notional)
	}
	s.LastTradeAt[symbol] = now

	kind := tradestore.OpenLong
	if side == tradestore.Short {
		kind = tradestore.OpenShort
	}
	trade := tradestore.Trade{
		ID: uuid.NewString(), Symbol: symbol, Kind: kind,
		Price: fillPrice, Quantity: quantity, Timestamp: now,
		Signal: string(sig.Signal), Confidence: sig.Confidence,
	}
	appendTradeEntry(j, journal.KindTradeOpen, symbol, now, trade)

	metrics.PositionUnrealizedPnL.WithLabelValues(symbol, string(side)).Set(0)
	reportAccountMetrics(s)
	return pos
}

// closePosition performs the in-state accounting for closing an existing
// position (spec §4.H): computes realized P&L with the noise zero-clamp,
// journals CLOSE, restores balance, updates totalPnL/dayPnL, and removes
// the position. Returns false if the position no longer exists (already
// closed by a racing command), in which case the caller does nothing.
func closePosition(s *tradestore.EngineState, j journal.Journal, now time.Time, symbol string, exitPrice tradestore.Money, reason tradestore.CloseReason) bool {
	pos, ok := s.Positions[symbol]
	if !ok {
		return false
	}

	entry, _ := pos.EntryPrice.Float64()
	exit, _ := exitPrice.Float64()
	realized := (exit - entry) * pos.Quantity
	if pos.Side == tradestore.Short {
		realized = (entry - exit) * pos.Quantity
	}
	if math.Abs(exit-entry) < pnlNoiseFraction*entry {
		realized = 0
	}
	realizedM := tradestore.M(realized)

	notional := tradestore.M(pos.Quantity).Mul(pos.EntryPrice)
	restore := notional
	if pos.Side == tradestore.Short {
		restore = notional.Mul(tradestore.M(s.Settings.ShortMarginFraction))
	}
	s.AvailableBalance = s.AvailableBalance.Add(restore).Add(realizedM)
	s.TotalPnL = s.TotalPnL.Add(realizedM)
	s.DayPnL = s.DayPnL.Add(realizedM)

	holdSeconds := int64(now.Sub(pos.EntryTime).Seconds())
	trade := tradestore.Trade{
		ID: uuid.NewString(), Symbol: symbol, Kind: tradestore.Close,
		Price: pos.EntryPrice, Quantity: pos.Quantity, Timestamp: now,
		ExitPrice: &exitPrice, HoldSeconds: holdSeconds, RealizedPnL: &realizedM,
		Reason: reason,
	}
	appendTradeEntry(j, journal.KindTradeClose, symbol, now, trade)

	metrics.TradesTotal.WithLabelValues(string(tradestore.Close), string(reason)).Inc()
	metrics.ClearPosition(symbol, string(pos.Side))

	delete(s.Positions, symbol)
	reportAccountMetrics(s)
	return true
}

// reportAccountMetrics publishes the account-level gauges (spec §3's
// totalPnL/dayPnL/availableBalance plus open-position count) after any
// mutation that changes them, so the prometheus surface tracks EngineState
// rather than only documenting fields nothing ever sets.
func reportAccountMetrics(s *tradestore.EngineState) {
	totalPnL, _ := s.TotalPnL.Float64()
	dayPnL, _ := s.DayPnL.Float64()
	available, _ := s.AvailableBalance.Float64()
	metrics.TotalPnL.Set(totalPnL)
	metrics.DayPnL.Set(dayPnL)
	metrics.AvailableBalance.Set(available)
	metrics.OpenPositions.Set(float64(len(s.Positions)))
}

func appendTradeEntry(j journal.Journal, kind journal.EntryKind, symbol string, now time.Time, trade tradestore.Trade) {
	if j == nil {
		return
	}
	payload, err := json.Marshal(trade)
	if err != nil {
		log.Errorf("journal payload encode failed for %s: %v", symbol, err)
		return
	}
	if err := j.Append(journal.Entry{Kind: kind, Symbol: symbol, Timestamp: now, Payload: payload}); err != nil {
		log.Warnf("journal append failed for %s, relying on retry queue: %v", symbol, err)
	}
}
