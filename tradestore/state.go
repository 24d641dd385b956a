package tradestore

import (
	"fmt"
	"time"

	"scalpengine/journal"
)

// EngineState is the singleton authoritative trading state (spec §3). It is
// exclusively owned by Store and must only be mutated through Store.Mutate;
// every other component receives a deep-copied Snapshot.
type EngineState struct {
	Settings Settings
	// Watchlist is keyed by symbol for O(1) lookup; iteration order is not
	// meaningful and callers needing a stable order should sort symbols.
	Watchlist map[string]WatchlistEntry
	Positions map[string]Position

	TradingBalance   Money
	AvailableBalance Money
	TotalPnL         Money
	DayPnL           Money
	LastTradeAt      map[string]time.Time

	// dayAnchor is the wall-clock day (in the configured display zone) the
	// current DayPnL accumulation belongs to; compared against the clock at
	// the start of every mutation to detect rollover (spec §4.F).
	dayAnchor time.Time
}

// NewState builds the initial EngineState at engine boot (spec §3:
// "created at engine boot with defaults").
func NewState(settings Settings, startingBalance Money, now time.Time) *EngineState {
	return &EngineState{
		Settings:         settings,
		Watchlist:        make(map[string]WatchlistEntry),
		Positions:        make(map[string]Position),
		TradingBalance:   startingBalance,
		AvailableBalance: startingBalance,
		TotalPnL:         Zero,
		DayPnL:           Zero,
		LastTradeAt:      make(map[string]time.Time),
		dayAnchor:        dayKey(now),
	}
}

// clone returns a deep structural copy, used both for Store.Snapshot (spec
// §4.F: "deep structural copy safe to share with any number of consumers")
// and internally by Mutate to give fn a working copy that is only
// committed after invariant validation succeeds.
func (s *EngineState) clone() *EngineState {
	cp := &EngineState{
		Settings:         s.Settings,
		Watchlist:        make(map[string]WatchlistEntry, len(s.Watchlist)),
		Positions:        make(map[string]Position, len(s.Positions)),
		TradingBalance:   s.TradingBalance,
		AvailableBalance: s.AvailableBalance,
		TotalPnL:         s.TotalPnL,
		DayPnL:           s.DayPnL,
		LastTradeAt:      make(map[string]time.Time, len(s.LastTradeAt)),
		dayAnchor:        s.dayAnchor,
	}
	for k, v := range s.Watchlist {
		cp.Watchlist[k] = v
	}
	for k, v := range s.Positions {
		cp.Positions[k] = v
	}
	for k, v := range s.LastTradeAt {
		cp.LastTradeAt[k] = v
	}
	return cp
}

// ValidationError lists the settings fields that failed validation (spec
// §4.I: "rejects with a validation error listing offending fields").
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid settings fields: %v", e.Fields)
}

// ValidateSettings checks the bounds spec §4.I requires of updateSettings.
func ValidateSettings(s Settings) error {
	var bad []string
	if s.RiskPerTrade <= 0 || s.RiskPerTrade > 10 {
		bad = append(bad, "riskPerTrade")
	}
	if s.StopLossPercent <= 0 || s.StopLossPercent > 10 {
		bad = append(bad, "stopLossPercent")
	}
	if s.TakeProfitPercent <= s.StopLossPercent*0.5 {
		bad = append(bad, "takeProfitPercent")
	}
	if s.MaxHoldSeconds < 5 {
		bad = append(bad, "maxHoldSeconds")
	}
	if s.CooldownSeconds < 0 {
		bad = append(bad, "cooldownSeconds")
	}
	if len(bad) > 0 {
		return &ValidationError{Fields: bad}
	}
	return nil
}

// invariantError marks a violation serious enough to halt the engine (spec
// §4.H: "any invariant violation detected during mutate triggers
// shutdown").
type invariantError struct {
	msg string
}

func (e *invariantError) Error() string { return "invariant violation: " + e.msg }

// IsInvariantViolation reports whether err is the fatal class of mutation
// failure spec §4.F/§7 requires the engine to halt on, as opposed to an
// ordinary MutateFunc-returned business error (e.g. a risk rejection that
// chose to abort its own closure).
func IsInvariantViolation(err error) bool {
	_, ok := err.(*invariantError)
	return ok
}

// checkInvariants runs the hard (fatal) invariants from spec §4.F. Soft
// checks (balance-drift detection) are run separately by Store.Mutate since
// they warn rather than fail.
func checkInvariants(s *EngineState) error {
	if s.AvailableBalance.IsNegative() {
		return &invariantError{msg: "availableBalance < 0"}
	}
	for symbol, p := range s.Positions {
		if p.Symbol != symbol {
			return &invariantError{msg: "position keyed under wrong symbol: " + symbol}
		}
		if p.Quantity <= 0 {
			return &invariantError{msg: "position quantity <= 0: " + symbol}
		}
		if !p.EntryPrice.IsPositive() {
			return &invariantError{msg: "position entryPrice <= 0: " + symbol}
		}
		switch p.Side {
		case Long:
			if p.TargetPrice.LessThanOrEqual(p.EntryPrice) {
				return &invariantError{msg: "long targetPrice not above entryPrice: " + symbol}
			}
			if p.StopLossPrice.GreaterThanOrEqual(p.EntryPrice) {
				return &invariantError{msg: "long stopLossPrice not below entryPrice: " + symbol}
			}
		case Short:
			if p.TargetPrice.GreaterThanOrEqual(p.EntryPrice) {
				return &invariantError{msg: "short targetPrice not below entryPrice: " + symbol}
			}
			if p.StopLossPrice.LessThanOrEqual(p.EntryPrice) {
				return &invariantError{msg: "short stopLossPrice not above entryPrice: " + symbol}
			}
		default:
			return &invariantError{msg: "position with unknown side: " + symbol}
		}
	}
	return nil
}

// dayKey truncates t to its calendar day in UTC, matching spec §6's default
// display zone.
func dayKey(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// rolloverIfNeeded resets DayPnL when now falls on a different day than the
// last mutation, journaling the prior total (spec §4.F).
func rolloverIfNeeded(s *EngineState, now time.Time, j journal.Journal) {
	today := dayKey(now)
	if s.dayAnchor.IsZero() {
		s.dayAnchor = today
		return
	}
	if today.Equal(s.dayAnchor) {
		return
	}
	priorDay := s.dayAnchor
	priorPnL := s.DayPnL
	s.dayAnchor = today
	s.DayPnL = Zero
	if j != nil {
		payload := fmt.Sprintf(`{"priorDay":%q,"priorDayPnL":"%s"}`, priorDay.Format("2006-01-02"), priorPnL.String())
		_ = j.Append(journal.Entry{
			Kind:      journal.KindDayRollover,
			Timestamp: now,
			Payload:   []byte(payload),
		})
	}
}
