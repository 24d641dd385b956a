package tradestore

import (
	"sync"
	"time"

	"scalpengine/journal"
	"scalpengine/logger"
)

var log = logger.Named("tradestore")

// MutateFunc is applied to a working copy of EngineState by Store.Mutate.
// It returns an error to abort the mutation (the copy is discarded and the
// store's committed state is unchanged).
type MutateFunc func(s *EngineState) error

// DriftWarner is notified when Mutate detects a soft balance-conservation
// drift (spec §4.F: "soft check; used to detect drift, logs a warning").
// The metrics package implements this to increment a counter; nil is a
// valid no-op.
type DriftWarner interface {
	WarnBalanceDrift(symbol string, delta Money)
}

// Store is the single writer for EngineState (spec §4.F/§5). All mutation
// goes through Mutate, which is the store's only exported write path; there
// is deliberately no exported setter for individual fields.
type Store struct {
	mu      sync.Mutex
	state   *EngineState
	journal journal.Journal
	drift   DriftWarner
}

// New constructs a Store around an already-initialized EngineState. j may be
// nil in tests that don't care about journaling; drift may be nil to skip
// drift-warning metrics.
func New(initial *EngineState, j journal.Journal, drift DriftWarner) *Store {
	return &Store{state: initial, journal: j, drift: drift}
}

// Mutate takes a snapshot, applies fn to the copy, validates invariants, and
// commits only if both fn and validation succeed (spec §4.F). now drives
// day-rollover detection; callers should pass a single consistent clock
// reading per call.
func (st *Store) Mutate(now time.Time, fn MutateFunc) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	working := st.state.clone()
	rolloverIfNeeded(working, now, st.journal)

	if err := fn(working); err != nil {
		return err
	}

	if err := checkInvariants(working); err != nil {
		log.Errorf("fatal invariant violation, halting writer: %v", err)
		return err
	}

	checkBalanceDrift(working, st.drift)

	st.state = working
	return nil
}

// Snapshot returns a deep structural copy of the committed state, safe to
// share with any number of concurrent readers (spec §4.F).
func (st *Store) Snapshot() *EngineState {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state.clone()
}

// driftTolerance bounds the soft balance-conservation check; spec §4.F only
// requires detecting drift, not an exact value, so a cent-scale tolerance
// absorbs decimal rounding from repeated Mul/Add without false-positiving
// on every mutation.
var driftTolerance = M(0.01)

// checkBalanceDrift implements spec §4.F's soft conservation check: the sum
// of committed notional/margin across open positions plus available
// balance should reconcile against tradingBalance + totalPnL +
// unrealized-of-open. A mismatch beyond tolerance logs a warning and notifies
// the drift metric; it never blocks the mutation.
func checkBalanceDrift(s *EngineState, warner DriftWarner) {
	committed := Zero
	unrealized := Zero
	for _, p := range s.Positions {
		switch p.Side {
		case Long:
			committed = committed.Add(p.Notional())
		case Short:
			committed = committed.Add(p.Notional().Mul(M(s.Settings.ShortMarginFraction)))
		}
		unrealized = unrealized.Add(p.UnrealizedPnL)
	}
	left := s.AvailableBalance.Add(committed)
	right := s.TradingBalance.Add(s.TotalPnL).Add(unrealized)
	delta := left.Sub(right)
	if delta.Abs().GreaterThan(driftTolerance) {
		log.Warnf("balance drift detected: available+committed=%s vs trading+totalPnL+unrealized=%s (delta=%s)",
			left.String(), right.String(), delta.String())
		if warner != nil {
			warner.WarnBalanceDrift("", delta)
		}
	}
}
