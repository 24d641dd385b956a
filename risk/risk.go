// Package risk implements the Risk Gate (spec §4.E): a pure predicate that
// admits or rejects a proposed order against the current engine state. It
// never mutates state and never computes position size — the Execution
// Orchestrator proposes a size, the gate only validates it.
package risk

import (
	"time"

	"scalpengine/signal"
	"scalpengine/tradestore"
)

// RejectionKind enumerates the reasons an order can be refused (spec §4.E).
type RejectionKind string

const (
	BelowConfidence     RejectionKind = "BELOW_CONFIDENCE"
	DailyLossExceeded   RejectionKind = "DAILY_LOSS_EXCEEDED"
	TooManyPositions    RejectionKind = "TOO_MANY_POSITIONS"
	InsufficientBalance RejectionKind = "INSUFFICIENT_BALANCE"
	SymbolCoolingDown   RejectionKind = "SYMBOL_COOLING_DOWN"
	AlreadyOpen         RejectionKind = "ALREADY_OPEN"
	ZeroQuantity        RejectionKind = "ZERO_QUANTITY"
)

// Order is the Orchestrator's proposed entry, already sized (spec §4.E:
// "the gate does not compute size; it validates what the Orchestrator
// proposes").
type Order struct {
	Symbol     string
	Side       tradestore.Side
	Signal     signal.Kind
	Confidence float64
	EntryPrice tradestore.Money
	Quantity   float64
	Notional   tradestore.Money
}

// Decision is the gate's verdict. Ok is false iff Kind is populated.
type Decision struct {
	Ok   bool
	Kind RejectionKind
}

func admitted() Decision                   { return Decision{Ok: true} }
func rejected(kind RejectionKind) Decision { return Decision{Ok: false, Kind: kind} }

// Admit evaluates order against a read-only snapshot of EngineState. now is
// passed explicitly so tests can control cooldown/timeout comparisons
// without patching the clock.
func Admit(order Order, state *tradestore.EngineState, now time.Time) Decision {
	if order.Confidence < state.Settings.MinConfidence {
		return rejected(BelowConfidence)
	}
	if state.DayPnL.Abs().GreaterThanOrEqual(state.Settings.MaxDailyLoss) {
		return rejected(DailyLossExceeded)
	}

	existing, hasExisting := state.Positions[order.Symbol]
	if hasExisting && existing.Side == order.Side {
		return rejected(AlreadyOpen)
	}

	// TooManyPositions only applies when this order would add a net-new
	// position rather than replace/close an existing same-symbol one.
	if !hasExisting && len(state.Positions) >= state.Settings.MaxPositions {
		return rejected(TooManyPositions)
	}

	if order.Quantity <= 0 {
		return rejected(ZeroQuantity)
	}

	neededBalance := order.Notional
	if order.Side == tradestore.Short {
		neededBalance = order.Notional.Mul(tradestore.M(state.Settings.ShortMarginFraction))
	}
	if neededBalance.GreaterThan(state.AvailableBalance) {
		return rejected(InsufficientBalance)
	}

	if last, ok := state.LastTradeAt[order.Symbol]; ok {
		elapsed := now.Sub(last)
		if elapsed < time.Duration(state.Settings.CooldownSeconds)*time.Second {
			return rejected(SymbolCoolingDown)
		}
	}

	return admitted()
}

// SizeOrder implements spec §4.E's sizing formula: notional = min(
// maxPositionSize, availableBalance*0.9); quantity = floor(notional /
// entryPrice) expressed in base units at the configured precision. The
// Orchestrator calls this before submitting to Admit; the gate itself never
// calls it.
func SizeOrder(entryPrice, availableBalance, maxPositionSize tradestore.Money, unitPrecision int) (quantity float64, notional tradestore.Money) {
	cap90 := availableBalance.Mul(tradestore.M(0.9))
	notional = maxPositionSize
	if cap90.LessThan(notional) {
		notional = cap90
	}
	if !entryPrice.IsPositive() {
		return 0, tradestore.Zero
	}
	raw := notional.Div(entryPrice)
	scaled := raw.Shift(int32(unitPrecision)).Truncate(0).Shift(int32(-unitPrecision))
	qty, _ := scaled.Float64()
	if qty <= 0 {
		return 0, tradestore.Zero
	}
	actualNotional := tradestore.M(qty).Mul(entryPrice)
	return qty, actualNotional
}
