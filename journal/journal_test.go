package journal

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteJournal_AppendAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewSQLiteJournal(path)
	require.NoError(t, err)
	defer j.Close()

	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	require.NoError(t, j.Append(Entry{Kind: KindTradeOpen, Symbol: "BTCUSDT", Timestamp: now, Payload: []byte(`{"a":1}`)}))
	require.NoError(t, j.Append(Entry{Kind: KindTradeClose, Symbol: "BTCUSDT", Timestamp: now.Add(time.Second), Payload: []byte(`{"b":2}`)}))

	entries, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, KindTradeOpen, entries[0].Kind)
	assert.Equal(t, KindTradeClose, entries[1].Kind)
	assert.True(t, entries[1].Sequence > entries[0].Sequence)
}

func TestSQLiteJournal_RecentLimitsAndOrdersNewestLast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewSQLiteJournal(path)
	require.NoError(t, err)
	defer j.Close()

	base := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, j.Append(Entry{Kind: KindSettingsUpdate, Timestamp: base.Add(time.Duration(i) * time.Second)}))
	}

	entries, err := j.Recent(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Sequence < entries[1].Sequence)
}

type flakyJournal struct {
	failUntil int
	calls     int
	entries   []Entry
}

func (f *flakyJournal) Append(e Entry) error {
	f.calls++
	if f.calls <= f.failUntil {
		return errors.New("simulated transient failure")
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *flakyJournal) Recent(n int) ([]Entry, error) { return f.entries, nil }
func (f *flakyJournal) Close() error                  { return nil }

func TestRetryingJournal_QueuesAndFlushesFailedAppend(t *testing.T) {
	flaky := &flakyJournal{failUntil: 2}
	rj := NewRetryingJournal(flaky)
	defer rj.Close()

	require.NoError(t, rj.Append(Entry{Kind: KindTradeOpen, Symbol: "ETHUSDT"}))

	require.Eventually(t, func() bool {
		return rj.PendingCount() == 0
	}, 5*time.Second, 5*time.Millisecond, "retry queue should drain once the inner journal recovers")

	entries, err := rj.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestRetryingJournal_RejectsMalformedEntrySynchronously(t *testing.T) {
	flaky := &flakyJournal{}
	rj := NewRetryingJournal(flaky)
	defer rj.Close()

	err := rj.Append(Entry{Symbol: "BTCUSDT"})
	require.Error(t, err)
	assert.Equal(t, 0, rj.PendingCount())
}
