package orchestrator

import (
	"sync"
	"time"
)

// timeoutTimers tracks the per-symbol time.AfterFunc timer armed when a
// position opens (spec §4.G step 6.d), so it can be cancelled the moment
// the position closes through any other path (spec §4.H step 5: "Cancels
// the timeout timer").
type timeoutTimers struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newTimeoutTimers() *timeoutTimers {
	return &timeoutTimers{timers: make(map[string]*time.Timer)}
}

func (t *timeoutTimers) arm(symbol string, after time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.timers[symbol]; ok {
		existing.Stop()
	}
	t.timers[symbol] = time.AfterFunc(after, fn)
}

func (t *timeoutTimers) cancel(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.timers[symbol]; ok {
		existing.Stop()
		delete(t.timers, symbol)
	}
}

// cancelAll stops every armed timer. Nothing in the engine calls it;
// ExitMonitor's shutdown path cancels timers per symbol as it closes
// positions.
func (t *timeoutTimers) cancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for symbol, timer := range t.timers {
		timer.Stop()
		delete(t.timers, symbol)
	}
}
