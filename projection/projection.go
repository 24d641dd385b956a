// Package projection implements the read-only Projection API (spec §4.I):
// thin command wrappers around the orchestrator's single-writer Queue plus
// a deep-copy snapshot assembler for external consumers (UIs, the optional
// HTTP server).
package projection

import (
	"sort"
	"time"

	"scalpengine/indicator"
	"scalpengine/journal"
	"scalpengine/logger"
	"scalpengine/tradestore"
)

var log = logger.Named("projection")

// ManualCloser is the subset of *orchestrator.ExitMonitor the Projection
// API needs for closePosition.
type ManualCloser interface {
	RequestManualClose(symbol string) error
}

// QueueSubmitter is the subset of *orchestrator.Queue the Projection API
// needs to submit settings/watchlist mutations through the single writer.
type QueueSubmitter interface {
	Submit(now time.Time, fn tradestore.MutateFunc) error
}

// MarketView supplies the latest indicator/price for the symbols named in
// a snapshot; *ingest.Ingestor satisfies this.
type MarketView interface {
	LatestIndicator(symbol string) (indicator.Set, bool)
	LatestMark(symbol string) (float64, bool)
	Warming(symbol string) bool
}

// API is the Projection API surface (spec §4.I). All methods are safe for
// concurrent use by multiple external callers.
type API struct {
	store   *tradestore.Store
	queue   QueueSubmitter
	monitor ManualCloser
	market  MarketView
	journal journal.Journal
}

// New constructs a Projection API over the engine's shared components.
func New(store *tradestore.Store, queue QueueSubmitter, monitor ManualCloser, market MarketView, j journal.Journal) *API {
	return &API{store: store, queue: queue, monitor: monitor, market: market, journal: j}
}

// WatchlistView is one entry of GetSnapshot's watchlist, with the latest
// indicator/price joined in (spec §4.I: "watchlist (with latest indicators
// and price)").
type WatchlistView struct {
	Entry     tradestore.WatchlistEntry
	Indicator indicator.Set
	HasMark   bool
	Price     float64
}

// PositionView is one entry of GetSnapshot's positions, with the live mark
// re-joined at read time (spec §4.I: "positions (with live mark and
// unrealized P&L)") — Store doesn't itself track the mark continuously, so
// the Projection API computes it fresh from MarketView at read time rather
// than trusting the CurrentMark/UnrealizedPnL fields the last committed
// mutate() left behind.
type PositionView struct {
	Position      tradestore.Position
	CurrentMark   float64
	UnrealizedPnL tradestore.Money
}

// Snapshot is the full read-only projection (spec §4.I).
type Snapshot struct {
	Settings         tradestore.Settings
	Watchlist        []WatchlistView
	Positions        []PositionView
	RecentTrades     []journal.Entry
	TotalPnL         tradestore.Money
	DayPnL           tradestore.Money
	TradingBalance   tradestore.Money
	AvailableBalance tradestore.Money
}

// defaultRecentTrades is spec §4.I's "last K, default 200".
const defaultRecentTrades = 200

// GetSnapshot assembles the full read-only view of engine state (spec
// §4.I). It never touches the writer queue — Store.Snapshot already gives
// it an isolated deep copy safe to read without locking out the writer.
func (a *API) GetSnapshot() Snapshot {
	state := a.store.Snapshot()

	symbols := make([]string, 0, len(state.Watchlist))
	for s := range state.Watchlist {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	watchlist := make([]WatchlistView, 0, len(symbols))
	for _, symbol := range symbols {
		entry := state.Watchlist[symbol]
		var ind indicator.Set
		if a.market != nil {
			ind, _ = a.market.LatestIndicator(symbol)
		}
		price, hasMark := 0.0, false
		if a.market != nil {
			price, hasMark = a.market.LatestMark(symbol)
		}
		entry.Warming = a.market != nil && a.market.Warming(symbol)
		watchlist = append(watchlist, WatchlistView{Entry: entry, Indicator: ind, HasMark: hasMark, Price: price})
	}

	posSymbols := make([]string, 0, len(state.Positions))
	for s := range state.Positions {
		posSymbols = append(posSymbols, s)
	}
	sort.Strings(posSymbols)

	positions := make([]PositionView, 0, len(posSymbols))
	for _, symbol := range posSymbols {
		pos := state.Positions[symbol]
		mark := 0.0
		if a.market != nil {
			mark, _ = a.market.LatestMark(symbol)
		}
		if mark == 0 {
			entry, _ := pos.EntryPrice.Float64()
			mark = entry
		}
		unrealized := unrealizedPnL(pos, mark)
		positions = append(positions, PositionView{Position: pos, CurrentMark: mark, UnrealizedPnL: unrealized})
	}

	var trades []journal.Entry
	if a.journal != nil {
		trades, _ = a.journal.Recent(defaultRecentTrades)
	}

	return Snapshot{
		Settings:         state.Settings,
		Watchlist:        watchlist,
		Positions:        positions,
		RecentTrades:     trades,
		TotalPnL:         state.TotalPnL,
		DayPnL:           state.DayPnL,
		TradingBalance:   state.TradingBalance,
		AvailableBalance: state.AvailableBalance,
	}
}

func unrealizedPnL(pos tradestore.Position, mark float64) tradestore.Money {
	entry, _ := pos.EntryPrice.Float64()
	delta := mark - entry
	if pos.Side == tradestore.Short {
		delta = -delta
	}
	return tradestore.M(delta * pos.Quantity)
}

// Enable turns on automated execution (spec §4.I). Journals a
// SETTINGS_UPDATE entry like any other settings change.
func (a *API) Enable() error {
	return a.updateEnabled(true)
}

// Disable turns off automated execution without touching open positions —
// the Exit Monitor continues to manage them (spec §4.D: exit rules keep
// running on stale data; disabling automation only stops new entries).
func (a *API) Disable() error {
	return a.updateEnabled(false)
}

func (a *API) updateEnabled(enabled bool) error {
	now := time.Now().UTC()
	return a.queue.Submit(now, func(s *tradestore.EngineState) error {
		s.Settings.IsEnabled = enabled
		a.journalSettingsUpdate(now, s.Settings)
		return nil
	})
}

// UpdateSettings validates and applies a full settings replacement (spec
// §4.I). Returns a *tradestore.ValidationError listing offending fields on
// rejection; the engine state is left unchanged.
func (a *API) UpdateSettings(next tradestore.Settings) error {
	if err := tradestore.ValidateSettings(next); err != nil {
		return err
	}
	now := time.Now().UTC()
	return a.queue.Submit(now, func(s *tradestore.EngineState) error {
		s.Settings = next
		a.journalSettingsUpdate(now, s.Settings)
		return nil
	})
}

func (a *API) journalSettingsUpdate(now time.Time, settings tradestore.Settings) {
	if a.journal == nil {
		return
	}
	payload := encodeSettings(settings)
	if err := a.journal.Append(journal.Entry{Kind: journal.KindSettingsUpdate, Timestamp: now, Payload: payload}); err != nil {
		log.Warnf("settings-update journal append failed: %v", err)
	}
}

// ErrNotOpen is returned by ClosePosition when symbol has no open position
// (spec §7: "a closePosition on an unknown symbol returns NotOpen").
type notOpenError struct{ symbol string }

func (e *notOpenError) Error() string { return "projection: no open position for " + e.symbol }

// Is lets errors.Is(err, ErrNotOpen) match any *notOpenError regardless of
// which symbol it names.
func (e *notOpenError) Is(target error) bool {
	_, ok := target.(*notOpenError)
	return ok
}

// ErrNotOpen is the sentinel spec §7 names; use errors.As/Is against
// *notOpenError for symbol-specific handling.
var ErrNotOpen = &notOpenError{}

// ClosePosition requests a manual close of symbol's open position (spec
// §4.I/§4.H). Returns ErrNotOpen if no position is open.
func (a *API) ClosePosition(symbol string) error {
	snapshot := a.store.Snapshot()
	if _, ok := snapshot.Positions[symbol]; !ok {
		return &notOpenError{symbol: symbol}
	}
	return a.monitor.RequestManualClose(symbol)
}

// AddSymbol adds symbol to the watchlist (spec §4.I), marked warming until
// the Ingestor accumulates enough history.
func (a *API) AddSymbol(symbol, name string) error {
	now := time.Now().UTC()
	return a.queue.Submit(now, func(s *tradestore.EngineState) error {
		if _, exists := s.Watchlist[symbol]; exists {
			return nil
		}
		s.Watchlist[symbol] = tradestore.WatchlistEntry{
			Symbol: symbol, Name: name, Active: true, Warming: true, AddedAt: now,
		}
		return nil
	})
}

// RemoveSymbol removes symbol from the watchlist (spec §4.I). It does not
// close any existing position — an operator who wants that must also call
// ClosePosition.
func (a *API) RemoveSymbol(symbol string) error {
	now := time.Now().UTC()
	return a.queue.Submit(now, func(s *tradestore.EngineState) error {
		delete(s.Watchlist, symbol)
		return nil
	})
}

// Watchlist returns the active symbol list, used by the Ingestor and
// Orchestrator as their per-tick WatchlistProvider.
func (a *API) Watchlist() []string {
	state := a.store.Snapshot()
	out := make([]string, 0, len(state.Watchlist))
	for symbol, entry := range state.Watchlist {
		if entry.Active {
			out = append(out, symbol)
		}
	}
	sort.Strings(out)
	return out
}
