package tradestore

import "time"

// Side is a position direction (spec §3).
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// TradeKind tags a journal record's event type (spec §3).
type TradeKind string

const (
	OpenLong  TradeKind = "OPEN_LONG"
	OpenShort TradeKind = "OPEN_SHORT"
	Close     TradeKind = "CLOSE"
)

// CloseReason tags why a position was closed (spec §3).
type CloseReason string

const (
	ReasonTakeProfit  CloseReason = "TAKE_PROFIT"
	ReasonStopLoss    CloseReason = "STOP_LOSS"
	ReasonTimeout     CloseReason = "TIMEOUT"
	ReasonOppositeSig CloseReason = "OPPOSITE_SIGNAL"
	ReasonManual      CloseReason = "MANUAL"
	ReasonShutdown    CloseReason = "SHUTDOWN"
)

// Position is the authoritative open-position record (spec §3). At most
// one Position exists per symbol at any time (invariant enforced by Store).
type Position struct {
	ID             string
	Symbol         string
	Side           Side
	Quantity       float64
	EntryPrice     Money
	EntryTime      time.Time
	TargetPrice    Money
	StopLossPrice  Money
	UnrealizedPnL  Money
	CurrentMark    Money
	OpeningTradeID string
}

// Notional returns quantity * entryPrice.
func (p Position) Notional() Money {
	return M(p.Quantity).Mul(p.EntryPrice)
}

// Trade is an immutable journal record of an open-or-close event (spec §3).
type Trade struct {
	ID          string
	Symbol      string
	Kind        TradeKind
	Price       Money
	Quantity    float64
	Timestamp   time.Time
	Signal      string
	Confidence  float64
	ExitPrice   *Money
	HoldSeconds int64
	RealizedPnL *Money
	Reason      CloseReason
}

// Settings is the mutable configuration enumerated in spec §3.
type Settings struct {
	MinConfidence     float64
	MaxPositionSize   Money
	RiskPerTrade      float64
	MaxDailyLoss      Money
	MaxPositions      int
	StopLossPercent   float64
	TakeProfitPercent float64
	MaxHoldSeconds    int64
	ScalingFactor     float64
	IsEnabled         bool
	CooldownSeconds   int64
	// ShortMarginFraction is the fraction of notional reserved as margin
	// when opening a short (spec §4.E). Open Question #1 resolves this as
	// configurable with the source's fixed default preserved.
	ShortMarginFraction float64
}

// DefaultSettings matches the defaults implied across spec §3/§4/§8.
func DefaultSettings() Settings {
	return Settings{
		MinConfidence:       50,
		MaxPositionSize:     M(10_000),
		RiskPerTrade:        1.0,
		MaxDailyLoss:        M(500),
		MaxPositions:        5,
		StopLossPercent:     0.5,
		TakeProfitPercent:   1.0,
		MaxHoldSeconds:      300,
		ScalingFactor:       1.0,
		IsEnabled:           false,
		CooldownSeconds:     30,
		ShortMarginFraction: 0.2,
	}
}

// WatchlistEntry is a symbol tracked by the engine (spec §3's "watchlist"
// plus the Name/warming/quarantined/addedAt fields supplemented from the
// reference engine per SPEC_FULL.md §3).
type WatchlistEntry struct {
	Symbol      string
	Name        string
	Active      bool
	Warming     bool
	Quarantined bool
	AddedAt     time.Time
}
