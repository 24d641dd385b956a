package journal

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// retryLog is the journal's own structured log stream, kept on logrus
// rather than the engine-wide zerolog logger — mirroring the teacher's
// go.mod, which carries both side by side as two logging stacks grown
// around distinct subsystems.
var retryLog = logrus.WithField("component", "journal.retry")

const (
	retryInitialBackoff = 1 * time.Second
	retryMaxBackoff      = 30 * time.Second
	retryQueueCapacity   = 1024
)

// RetryingJournal wraps an inner Journal and gives Append at-least-once
// delivery semantics (spec §4.H / §7: "Journal write failure: recovered
// locally via a retry queue; does not block hot path"). A failed Append
// is hand off to a background goroutine that keeps retrying with
// exponential backoff instead of surfacing the error to the caller.
type RetryingJournal struct {
	inner Journal

	mu      sync.Mutex
	pending []Entry

	wake chan struct{}
	done chan struct{}
}

// NewRetryingJournal starts the background flush loop around inner.
func NewRetryingJournal(inner Journal) *RetryingJournal {
	j := &RetryingJournal{
		inner: inner,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go j.run()
	return j
}

// Append tries inner.Append once; on failure the entry is queued for
// async retry and Append still returns nil, since the in-memory
// EngineState mutation has already committed by the time the journal
// write is attempted (spec: "the in-memory state is still authoritative").
// A nil entry.Kind (malformed caller input) is the only case Append itself
// rejects synchronously.
func (j *RetryingJournal) Append(e Entry) error {
	if e.Kind == "" {
		return errMalformedEntry
	}
	if err := j.inner.Append(e); err != nil {
		retryLog.WithError(err).WithField("kind", e.Kind).Warn("journal append failed, queuing for retry")
		j.enqueue(e)
	}
	return nil
}

func (j *RetryingJournal) enqueue(e Entry) {
	j.mu.Lock()
	if len(j.pending) < retryQueueCapacity {
		j.pending = append(j.pending, e)
	} else {
		retryLog.Error("journal retry queue full, dropping oldest entry")
		j.pending = append(j.pending[1:], e)
	}
	j.mu.Unlock()
	select {
	case j.wake <- struct{}{}:
	default:
	}
}

func (j *RetryingJournal) run() {
	backoff := retryInitialBackoff
	ticker := time.NewTicker(backoff)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-j.wake:
		case <-ticker.C:
		}

		if j.flushOnce() {
			backoff = retryInitialBackoff
		} else {
			backoff *= 2
			if backoff > retryMaxBackoff {
				backoff = retryMaxBackoff
			}
		}
		ticker.Reset(backoff)
	}
}

// flushOnce attempts to drain the pending queue; returns true if the queue
// is empty afterward (success or nothing to do).
func (j *RetryingJournal) flushOnce() bool {
	j.mu.Lock()
	batch := j.pending
	j.pending = nil
	j.mu.Unlock()

	if len(batch) == 0 {
		return true
	}

	var failed []Entry
	for _, e := range batch {
		if err := j.inner.Append(e); err != nil {
			failed = append(failed, e)
		}
	}
	if len(failed) > 0 {
		retryLog.WithField("count", len(failed)).Warn("journal retry flush still failing")
		j.mu.Lock()
		j.pending = append(failed, j.pending...)
		j.mu.Unlock()
		return false
	}
	retryLog.WithField("count", len(batch)).Info("journal retry flush succeeded")
	return true
}

// Recent delegates to the inner journal; retried entries are indistinguishable
// from directly-persisted ones once flushed.
func (j *RetryingJournal) Recent(n int) ([]Entry, error) {
	return j.inner.Recent(n)
}

// Close stops the retry loop, makes one final flush attempt, and closes the
// inner journal. Entries that still fail on that attempt are dropped with
// the in-memory queue.
func (j *RetryingJournal) Close() error {
	close(j.done)
	j.flushOnce()
	return j.inner.Close()
}

// PendingCount reports the number of entries awaiting a successful retry.
func (j *RetryingJournal) PendingCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

type malformedEntryError struct{}

func (malformedEntryError) Error() string { return "journal: entry missing Kind" }

var errMalformedEntry = malformedEntryError{}
