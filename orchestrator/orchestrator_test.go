package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"scalpengine/indicator"
	"scalpengine/metrics"
	"scalpengine/signal"
	"scalpengine/tradestore"
	"scalpengine/venue"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterVecValue reads a prometheus CounterVec's current value for the
// given label values, the same pattern metrics_test.go uses for its own
// counters.
func counterVecValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, vec.WithLabelValues(labels...).Write(m))
	return m.GetCounter().GetValue()
}

// gaugeValue reads a prometheus Gauge's current value.
func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}

// testCtx returns a context cancelled when t finishes, so a background
// Queue.Run started for a test is cleaned up automatically.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

// fakeMarket is a MarketView test double with per-symbol fixed readings.
type fakeMarket struct {
	mu      sync.Mutex
	indSet  map[string]indicator.Set
	marks   map[string]float64
	warming map[string]bool
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{indSet: map[string]indicator.Set{}, marks: map[string]float64{}, warming: map[string]bool{}}
}

func (f *fakeMarket) LatestIndicator(symbol string) (indicator.Set, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.indSet[symbol]
	return s, ok
}

func (f *fakeMarket) LatestMark(symbol string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.marks[symbol]
	return p, ok
}

func (f *fakeMarket) Warming(symbol string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.warming[symbol]
}

func (f *fakeMarket) setMark(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks[symbol] = price
}

// fakeVenue fills every order at a fixed price unless told to fail.
type fakeVenue struct {
	mu        sync.Mutex
	fillPrice float64
	fail      bool
	opens     int
	closes    int
}

func (v *fakeVenue) PlaceMarketOrder(symbol string, side tradestore.Side, quantity float64) (venue.Fill, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.opens++
	if v.fail {
		return venue.Fill{}, assertErr
	}
	return venue.Fill{FillPrice: tradestore.M(v.fillPrice), FillTime: time.Now(), OrderID: "ord"}, nil
}

func (v *fakeVenue) ClosePosition(symbol string, quantity float64) (venue.Fill, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closes++
	if v.fail {
		return venue.Fill{}, assertErr
	}
	return venue.Fill{FillPrice: tradestore.M(v.fillPrice), FillTime: time.Now(), OrderID: "ord"}, nil
}

type sentinelErr struct{ msg string }

func (e *sentinelErr) Error() string { return e.msg }

var assertErr = &sentinelErr{msg: "venue unavailable"}

func strongBuySignal() indicator.Set {
	return indicator.Set{
		RSI: 40, EMA9: 110, EMA21: 100, EMA50: 95, EMA200: 90,
		VWAP: 100, Volume: 200, AvgVolume20: 100, SwingLow: 95, SwingHigh: 120,
	}
}

func newTestStore(t *testing.T, now time.Time) *tradestore.Store {
	t.Helper()
	state := tradestore.NewState(tradestore.DefaultSettings(), tradestore.M(10_000), now)
	return tradestore.New(state, nil, nil)
}

func TestTryOpen_InstallsPositionOnActionableSignal(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t, now)
	require.NoError(t, store.Mutate(now, func(s *tradestore.EngineState) error {
		s.Settings.IsEnabled = true
		return nil
	}))

	market := newFakeMarket()
	market.indSet["BTCUSDT"] = strongBuySignal()
	market.setMark("BTCUSDT", 100)

	v := &fakeVenue{fillPrice: 100}
	q := NewQueue(store, 8)
	timers := NewTimeoutTimers()
	o := New(q, store, market, v, nil, time.Second, timers)

	go q.Run(testCtx(t))
	o.tick([]string{"BTCUSDT"})

	require.Eventually(t, func() bool {
		_, ok := store.Snapshot().Positions["BTCUSDT"]
		return ok
	}, time.Second, 5*time.Millisecond)

	pos := store.Snapshot().Positions["BTCUSDT"]
	assert.Equal(t, tradestore.Long, pos.Side)
	assert.Equal(t, 1, v.opens)
}

func TestTick_SkipsHoldSignal(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t, now)
	require.NoError(t, store.Mutate(now, func(s *tradestore.EngineState) error {
		s.Settings.IsEnabled = true
		return nil
	}))

	market := newFakeMarket()
	market.indSet["BTCUSDT"] = indicator.Set{RSI: 50, EMA9: 100, EMA21: 100, EMA50: 100, EMA200: 100, VWAP: 100}
	market.setMark("BTCUSDT", 100)

	v := &fakeVenue{fillPrice: 100}
	q := NewQueue(store, 8)
	o := New(q, store, market, v, nil, time.Second, NewTimeoutTimers())
	go q.Run(testCtx(t))

	o.tick([]string{"BTCUSDT"})
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, store.Snapshot().Positions)
	assert.Equal(t, 0, v.opens)
}

func TestTick_SameSideSignalDoesNotAverageIn(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t, now)
	require.NoError(t, store.Mutate(now, func(s *tradestore.EngineState) error {
		s.Settings.IsEnabled = true
		s.Positions["BTCUSDT"] = tradestore.Position{
			ID: "p1", Symbol: "BTCUSDT", Side: tradestore.Long, Quantity: 1,
			EntryPrice: tradestore.M(90), TargetPrice: tradestore.M(110), StopLossPrice: tradestore.M(80),
		}
		return nil
	}))

	market := newFakeMarket()
	market.indSet["BTCUSDT"] = strongBuySignal()
	market.setMark("BTCUSDT", 100)

	v := &fakeVenue{fillPrice: 100}
	q := NewQueue(store, 8)
	o := New(q, store, market, v, nil, time.Second, NewTimeoutTimers())
	go q.Run(testCtx(t))

	o.tick([]string{"BTCUSDT"})
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, v.opens)
	assert.Len(t, store.Snapshot().Positions, 1)
}

func TestSubmitOppositeClose_ClosesAndStartsCooldown(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t, now)
	require.NoError(t, store.Mutate(now, func(s *tradestore.EngineState) error {
		s.Settings.IsEnabled = true
		s.Positions["BTCUSDT"] = tradestore.Position{
			ID: "p1", Symbol: "BTCUSDT", Side: tradestore.Long, Quantity: 1,
			EntryPrice: tradestore.M(90), TargetPrice: tradestore.M(110), StopLossPrice: tradestore.M(80),
		}
		return nil
	}))

	market := newFakeMarket()
	// a strong-sell setup to flip an existing long
	market.indSet["BTCUSDT"] = indicator.Set{
		RSI: 60, EMA9: 90, EMA21: 100, EMA50: 105, EMA200: 110,
		VWAP: 100, Volume: 200, AvgVolume20: 100,
	}
	market.setMark("BTCUSDT", 95)

	v := &fakeVenue{fillPrice: 95}
	q := NewQueue(store, 8)
	o := New(q, store, market, v, nil, time.Second, NewTimeoutTimers())
	go q.Run(testCtx(t))

	o.tick([]string{"BTCUSDT"})

	require.Eventually(t, func() bool {
		_, stillOpen := store.Snapshot().Positions["BTCUSDT"]
		return !stillOpen
	}, time.Second, 5*time.Millisecond)

	_, hasCooldown := store.Snapshot().LastTradeAt["BTCUSDT"]
	assert.True(t, hasCooldown)
	assert.Equal(t, 1, v.closes)
}

func TestExitMonitor_ClosesOnTakeProfit(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t, now)
	require.NoError(t, store.Mutate(now, func(s *tradestore.EngineState) error {
		s.Positions["BTCUSDT"] = tradestore.Position{
			ID: "p1", Symbol: "BTCUSDT", Side: tradestore.Long, Quantity: 1,
			EntryPrice: tradestore.M(100), TargetPrice: tradestore.M(110), StopLossPrice: tradestore.M(90),
			EntryTime: now,
		}
		return nil
	}))

	market := newFakeMarket()
	market.setMark("BTCUSDT", 111)

	v := &fakeVenue{fillPrice: 111}
	q := NewQueue(store, 8)
	timers := NewTimeoutTimers()
	m := NewExitMonitor(q, store, market, v, nil, timers)
	go q.Run(testCtx(t))

	m.sweep()

	require.Eventually(t, func() bool {
		_, ok := store.Snapshot().Positions["BTCUSDT"]
		return !ok
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, v.closes)
	assert.True(t, store.Snapshot().TotalPnL.Equal(tradestore.M(11)))
}

func TestExitMonitor_ClosesOnStopLoss(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t, now)
	require.NoError(t, store.Mutate(now, func(s *tradestore.EngineState) error {
		s.Positions["BTCUSDT"] = tradestore.Position{
			ID: "p1", Symbol: "BTCUSDT", Side: tradestore.Short, Quantity: 1,
			EntryPrice: tradestore.M(100), TargetPrice: tradestore.M(90), StopLossPrice: tradestore.M(110),
			EntryTime: now,
		}
		return nil
	}))

	market := newFakeMarket()
	market.setMark("BTCUSDT", 111)

	v := &fakeVenue{fillPrice: 111}
	q := NewQueue(store, 8)
	m := NewExitMonitor(q, store, market, v, nil, NewTimeoutTimers())
	go q.Run(testCtx(t))

	m.sweep()

	require.Eventually(t, func() bool {
		_, ok := store.Snapshot().Positions["BTCUSDT"]
		return !ok
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, v.closes)
	assert.True(t, store.Snapshot().TotalPnL.Equal(tradestore.M(-11)))
}

func TestExitMonitor_ClosesOnTimeout(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t, now)
	require.NoError(t, store.Mutate(now, func(s *tradestore.EngineState) error {
		s.Settings.MaxHoldSeconds = 60
		s.Positions["BTCUSDT"] = tradestore.Position{
			ID: "p1", Symbol: "BTCUSDT", Side: tradestore.Long, Quantity: 1,
			EntryPrice: tradestore.M(100), TargetPrice: tradestore.M(200), StopLossPrice: tradestore.M(50),
			EntryTime: now.Add(-2 * time.Minute),
		}
		return nil
	}))

	market := newFakeMarket()
	market.setMark("BTCUSDT", 100) // flat, so neither TP nor SL fires first

	v := &fakeVenue{fillPrice: 100}
	q := NewQueue(store, 8)
	m := NewExitMonitor(q, store, market, v, nil, NewTimeoutTimers())
	go q.Run(testCtx(t))

	reason, shouldClose := m.evaluate(store.Snapshot().Settings, store.Snapshot().Positions["BTCUSDT"], 100, now)
	require.True(t, shouldClose)
	assert.Equal(t, tradestore.ReasonTimeout, reason)

	m.sweep()

	require.Eventually(t, func() bool {
		_, ok := store.Snapshot().Positions["BTCUSDT"]
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestExitMonitor_ZeroClampsNoiseLevelPnL(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t, now)
	require.NoError(t, store.Mutate(now, func(s *tradestore.EngineState) error {
		s.Settings.MaxHoldSeconds = 5
		s.Positions["BTCUSDT"] = tradestore.Position{
			ID: "p1", Symbol: "BTCUSDT", Side: tradestore.Long, Quantity: 1,
			EntryPrice: tradestore.M(100), TargetPrice: tradestore.M(200), StopLossPrice: tradestore.M(50),
			EntryTime: now.Add(-10 * time.Second),
		}
		return nil
	}))

	market := newFakeMarket()
	market.setMark("BTCUSDT", 100.01) // within 0.1% noise band

	v := &fakeVenue{fillPrice: 100.01}
	q := NewQueue(store, 8)
	m := NewExitMonitor(q, store, market, v, nil, NewTimeoutTimers())
	go q.Run(testCtx(t))

	m.sweep()

	require.Eventually(t, func() bool {
		_, ok := store.Snapshot().Positions["BTCUSDT"]
		return !ok
	}, time.Second, 5*time.Millisecond)

	assert.True(t, store.Snapshot().TotalPnL.Equal(tradestore.Zero), "sub-noise-band P&L must clamp to zero")
}

func TestRiskGate_RejectsWhenBelowMinConfidence(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t, now)
	require.NoError(t, store.Mutate(now, func(s *tradestore.EngineState) error {
		s.Settings.IsEnabled = true
		s.Settings.MinConfidence = 99
		return nil
	}))

	market := newFakeMarket()
	market.indSet["BTCUSDT"] = strongBuySignal()
	market.setMark("BTCUSDT", 100)

	v := &fakeVenue{fillPrice: 100}
	q := NewQueue(store, 8)
	o := New(q, store, market, v, nil, time.Second, NewTimeoutTimers())
	go q.Run(testCtx(t))

	before := counterVecValue(t, metrics.RiskRejectionsTotal, "BELOW_CONFIDENCE")
	o.tick([]string{"BTCUSDT"})
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, store.Snapshot().Positions)
	assert.Equal(t, 0, v.opens, "a rejected gate must not have placed a venue order")
	after := counterVecValue(t, metrics.RiskRejectionsTotal, "BELOW_CONFIDENCE")
	assert.Equal(t, before+1, after, "risk gate rejection must be counted")
}

func TestTick_RecordsSignalsTotal(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t, now)
	require.NoError(t, store.Mutate(now, func(s *tradestore.EngineState) error {
		s.Settings.IsEnabled = true
		return nil
	}))

	market := newFakeMarket()
	market.indSet["ETHUSDT"] = indicator.Set{} // all-zero indicators match no ladder tier, so HOLD
	market.setMark("ETHUSDT", 100)

	v := &fakeVenue{fillPrice: 100}
	q := NewQueue(store, 8)
	o := New(q, store, market, v, nil, time.Second, NewTimeoutTimers())
	go q.Run(testCtx(t))

	before := counterVecValue(t, metrics.SignalsTotal, string(signal.Hold), string(signal.ReasonNone))
	o.tick([]string{"ETHUSDT"})
	after := counterVecValue(t, metrics.SignalsTotal, string(signal.Hold), string(signal.ReasonNone))

	assert.Equal(t, before+1, after, "every synthesized signal must be counted, including HOLD")
}

func TestInstallAndClosePosition_UpdatesAccountGauges(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t, now)

	targets := signal.ComputeTargets(100, signal.StrongBuy, 95, 120, 0.5)
	result := signal.Result{Signal: signal.StrongBuy, Confidence: 80, Reason: signal.ReasonEMACross}

	require.NoError(t, store.Mutate(now, func(s *tradestore.EngineState) error {
		installPosition(s, nil, now, "BTCUSDT", tradestore.Long, tradestore.M(100), 10, targets, result)
		return nil
	}))

	assert.Equal(t, 1.0, gaugeValue(t, metrics.OpenPositions))
	openAvailable := gaugeValue(t, metrics.AvailableBalance)

	require.NoError(t, store.Mutate(now.Add(time.Minute), func(s *tradestore.EngineState) error {
		closePosition(s, nil, now.Add(time.Minute), "BTCUSDT", tradestore.M(110), tradestore.ReasonTakeProfit)
		return nil
	}))

	assert.Equal(t, 0.0, gaugeValue(t, metrics.OpenPositions))
	assert.Equal(t, 100.0, gaugeValue(t, metrics.TotalPnL), "10 units * (110-100) = 100 realized P&L")
	assert.Equal(t, 100.0, gaugeValue(t, metrics.DayPnL))
	assert.Greater(t, gaugeValue(t, metrics.AvailableBalance), openAvailable, "closing restores notional plus realized P&L")
}

func TestOpenTargetsMatchComputeTargets(t *testing.T) {
	targets := signal.ComputeTargets(100, signal.StrongBuy, 95, 120, 0.5)
	assert.Greater(t, targets.TakeProfit, 100.0)
	assert.Less(t, targets.StopLoss, 100.0)
}
