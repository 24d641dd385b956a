package tradestore

import "github.com/shopspring/decimal"

// Money is a fixed-point decimal used for every balance-affecting field in
// the store: tradingBalance, availableBalance, totalPnL, dayPnL, position
// notional/margin, and realized/unrealized P&L. Indicator and signal math
// elsewhere in the engine stays float64 per spec §4.B ("double-precision");
// ledger arithmetic uses decimal so repeated mutate() cycles can't
// accumulate float rounding drift against the conservation invariant
// (spec §8 property 1). See DESIGN.md for the go-binance/shopspring pairing
// this mirrors.
type Money = decimal.Decimal

// M constructs a Money from a float64 price/quantity, the conversion point
// between the float-based indicator/signal layer and the ledger.
func M(v float64) Money { return decimal.NewFromFloat(v) }

// Zero is the additive identity.
var Zero = decimal.Zero
