package projection

import (
	"testing"
	"time"

	"scalpengine/indicator"
	"scalpengine/journal"
	"scalpengine/tradestore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	store *tradestore.Store
}

func (q *fakeQueue) Submit(now time.Time, fn tradestore.MutateFunc) error {
	return q.store.Mutate(now, fn)
}

type fakeMonitor struct {
	closed []string
}

func (m *fakeMonitor) RequestManualClose(symbol string) error {
	m.closed = append(m.closed, symbol)
	return nil
}

type fakeMarket struct{}

func (fakeMarket) LatestIndicator(symbol string) (indicator.Set, bool) { return indicator.Set{}, false }
func (fakeMarket) LatestMark(symbol string) (float64, bool)            { return 100, true }
func (fakeMarket) Warming(symbol string) bool                          { return false }

type memJournal struct{ entries []journal.Entry }

func (j *memJournal) Append(e journal.Entry) error { j.entries = append(j.entries, e); return nil }
func (j *memJournal) Recent(n int) ([]journal.Entry, error) {
	if n > len(j.entries) {
		n = len(j.entries)
	}
	return j.entries[len(j.entries)-n:], nil
}
func (j *memJournal) Close() error { return nil }

func newTestAPI(t *testing.T) (*API, *tradestore.Store, *fakeMonitor, *memJournal) {
	t.Helper()
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	state := tradestore.NewState(tradestore.DefaultSettings(), tradestore.M(10_000), now)
	store := tradestore.New(state, nil, nil)
	mon := &fakeMonitor{}
	j := &memJournal{}
	return New(store, &fakeQueue{store: store}, mon, fakeMarket{}, j), store, mon, j
}

func TestEnableDisable_Idempotent(t *testing.T) {
	api, store, _, _ := newTestAPI(t)

	require.NoError(t, api.Enable())
	require.NoError(t, api.Disable())
	require.NoError(t, api.Enable())

	assert.True(t, store.Snapshot().Settings.IsEnabled)
}

func TestUpdateSettings_RejectsInvalid(t *testing.T) {
	api, _, _, _ := newTestAPI(t)
	bad := tradestore.DefaultSettings()
	bad.RiskPerTrade = -1

	err := api.UpdateSettings(bad)
	require.Error(t, err)
	ve, ok := err.(*tradestore.ValidationError)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "riskPerTrade")
}

func TestUpdateSettings_TwiceJournalsTwice(t *testing.T) {
	api, store, _, j := newTestAPI(t)
	next := tradestore.DefaultSettings()
	next.MaxPositions = 7

	require.NoError(t, api.UpdateSettings(next))
	require.NoError(t, api.UpdateSettings(next))

	assert.Equal(t, 7, store.Snapshot().Settings.MaxPositions)
	assert.Len(t, j.entries, 2)
}

func TestAddRemoveSymbol(t *testing.T) {
	api, store, _, _ := newTestAPI(t)
	require.NoError(t, api.AddSymbol("BTCUSDT", "Bitcoin"))
	assert.Equal(t, []string{"BTCUSDT"}, api.Watchlist())
	_ = store

	require.NoError(t, api.RemoveSymbol("BTCUSDT"))
	assert.Empty(t, api.Watchlist())
}

func TestClosePosition_NotOpenReturnsError(t *testing.T) {
	api, _, _, _ := newTestAPI(t)
	err := api.ClosePosition("BTCUSDT")
	require.Error(t, err)
}

func TestClosePosition_DelegatesToMonitor(t *testing.T) {
	api, store, mon, _ := newTestAPI(t)
	now := time.Date(2026, 7, 31, 10, 5, 0, 0, time.UTC)
	require.NoError(t, store.Mutate(now, func(s *tradestore.EngineState) error {
		s.Positions["BTCUSDT"] = tradestore.Position{
			ID: "p1", Symbol: "BTCUSDT", Side: tradestore.Long,
			Quantity: 1, EntryPrice: tradestore.M(100), EntryTime: now,
			TargetPrice: tradestore.M(110), StopLossPrice: tradestore.M(95),
		}
		return nil
	}))

	require.NoError(t, api.ClosePosition("BTCUSDT"))
	assert.Equal(t, []string{"BTCUSDT"}, mon.closed)
}

func TestGetSnapshot_IsolatedFromSubsequentMutation(t *testing.T) {
	api, store, _, _ := newTestAPI(t)
	s1 := api.GetSnapshot()
	assert.Empty(t, s1.Positions)

	now := time.Date(2026, 7, 31, 10, 5, 0, 0, time.UTC)
	require.NoError(t, store.Mutate(now, func(s *tradestore.EngineState) error {
		s.Positions["ETHUSDT"] = tradestore.Position{
			ID: "p1", Symbol: "ETHUSDT", Side: tradestore.Long,
			Quantity: 1, EntryPrice: tradestore.M(100), EntryTime: now,
			TargetPrice: tradestore.M(110), StopLossPrice: tradestore.M(95),
		}
		return nil
	}))

	s2 := api.GetSnapshot()
	assert.Empty(t, s1.Positions, "previously returned snapshot must stay frozen")
	assert.Len(t, s2.Positions, 1)
}
