// Package journal defines the append-only sink for trade and lifecycle
// events (spec §4.F/§6) and its SQLite-backed implementation.
package journal

import "time"

// EntryKind tags a journal record's category (spec §6).
type EntryKind string

const (
	KindTradeOpen      EntryKind = "TRADE_OPEN"
	KindTradeClose     EntryKind = "TRADE_CLOSE"
	KindSettingsUpdate EntryKind = "SETTINGS_UPDATE"
	KindDayRollover    EntryKind = "DAY_ROLLOVER"
	KindShutdown       EntryKind = "SHUTDOWN"
)

// Entry is one append-only record. Payload is a pre-serialized JSON blob;
// callers build it from the domain struct relevant to Kind (Trade,
// Settings, or a rollover summary) so the journal itself stays
// payload-agnostic.
type Entry struct {
	Sequence  int64
	Kind      EntryKind
	Symbol    string
	Timestamp time.Time
	Payload   []byte
}

// Journal is the append-only sink every mutate() commit writes through.
// Implementations must be safe for concurrent Append/Recent calls, since
// the retry queue may flush while a reader calls Recent.
type Journal interface {
	// Append assigns the next monotonic sequence number and persists entry.
	// SQLiteJournal returns persistence errors to the caller;
	// RetryingJournal instead queues a failed write for async retry
	// (at-least-once delivery) and only returns an error for a malformed
	// entry.
	Append(e Entry) error

	// Recent returns the last n appended entries of any kind, newest last.
	Recent(n int) ([]Entry, error)

	// Close flushes any pending retry-queue entries and releases resources.
	Close() error
}
