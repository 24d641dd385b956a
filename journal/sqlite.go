package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteJournal is the durable append-only Journal implementation (spec
// §6), table layout adapted from SynapseStrike/store/strategy.go's
// CREATE-TABLE-IF-NOT-EXISTS / db.Exec shape.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (or creates) the sqlite file at path and ensures
// the journal_entries table exists.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer, avoid SQLITE_BUSY

	j := &SQLiteJournal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *SQLiteJournal) initSchema() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS journal_entries (
			sequence  INTEGER PRIMARY KEY AUTOINCREMENT,
			kind      TEXT NOT NULL,
			symbol    TEXT NOT NULL DEFAULT '',
			timestamp DATETIME NOT NULL,
			payload   BLOB
		)
	`)
	if err != nil {
		return fmt.Errorf("journal: init schema: %w", err)
	}
	_, _ = j.db.Exec(`CREATE INDEX IF NOT EXISTS idx_journal_entries_symbol ON journal_entries(symbol)`)
	_, _ = j.db.Exec(`CREATE INDEX IF NOT EXISTS idx_journal_entries_kind ON journal_entries(kind)`)
	return nil
}

// Append persists e, assigning it the table's autoincrementing sequence.
// Per the Journal interface contract, the caller's copy of e is not
// updated with the assigned sequence — Recent() is the read path for
// sequence numbers.
func (j *SQLiteJournal) Append(e Entry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := j.db.Exec(`
		INSERT INTO journal_entries (kind, symbol, timestamp, payload) VALUES (?, ?, ?, ?)
	`, string(e.Kind), e.Symbol, ts.UTC(), e.Payload)
	if err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	return nil
}

// Recent returns the last n appended entries, oldest first within the
// returned slice but overall newest-last (spec's Journal.Recent contract).
func (j *SQLiteJournal) Recent(n int) ([]Entry, error) {
	if n <= 0 {
		n = 200
	}
	rows, err := j.db.Query(`
		SELECT sequence, kind, symbol, timestamp, payload
		FROM journal_entries
		ORDER BY sequence DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var kind string
		if err := rows.Scan(&e.Sequence, &kind, &e.Symbol, &e.Timestamp, &e.Payload); err != nil {
			return nil, fmt.Errorf("journal: recent scan: %w", err)
		}
		e.Kind = EntryKind(kind)
		out = append(out, e)
	}
	// reverse to ascending-sequence (newest last), matching the Journal
	// interface's documented ordering
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, rows.Err()
}

// Close releases the underlying sqlite connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
