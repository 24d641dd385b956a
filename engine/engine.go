// Package engine wires components A–I into the running trading engine
// (spec §2's data-flow diagram): boot, the component goroutines, and the
// fatal-invariant-violation crash path (spec §4.F/§7).
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"scalpengine/candlebuf"
	"scalpengine/indicator"
	"scalpengine/ingest"
	"scalpengine/journal"
	"scalpengine/logger"
	"scalpengine/metrics"
	"scalpengine/orchestrator"
	"scalpengine/projection"
	"scalpengine/tradestore"
	"scalpengine/venue"
)

var log = logger.Named("engine")

// Engine owns every component's lifecycle: it is the only thing that
// starts/stops goroutines and is the sole caller of os/journal-level
// crash handling.
type Engine struct {
	store      *tradestore.Store
	buffer     *candlebuf.Buffer
	cache      *indicator.Cache
	ingestor   *ingest.Ingestor
	venue      venue.ExecutionVenue
	journal    journal.Journal
	queue      *orchestrator.Queue
	orch       *orchestrator.Orchestrator
	monitor    *orchestrator.ExitMonitor
	projection *projection.API

	// CrashSnapshotPath is where Shutdown-on-fatal-invariant-violation
	// writes the final positions (spec §7). Defaults to
	// "./crash-snapshot.json" if empty.
	CrashSnapshotPath string

	// cancel stops the ingestor, the decision loop, and the exit monitor.
	// queueCancel stops the Queue's writer loop separately and is only
	// invoked once those three have fully stopped, so the exit monitor's
	// shutdown-time force-close Submit calls (spec §5) are guaranteed a
	// live writer loop to drain into rather than racing it on the same
	// ctx.Done() (see Shutdown).
	cancel      context.CancelFunc
	queueCancel context.CancelFunc
	workersWG   sync.WaitGroup
	queueWG     sync.WaitGroup
	fatalMu     sync.Mutex
	fatal       error
}

// New wires an Engine from cfg and a MarketDataSource. j and v may be nil
// to use the journal-less/default-paper-venue configuration tests prefer.
func New(cfg Config, source ingest.MarketDataSource, j journal.Journal, v venue.ExecutionVenue) *Engine {
	now := cfg.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	state := tradestore.NewState(cfg.Settings, cfg.StartingBalance, now)
	for _, entry := range cfg.Watchlist {
		state.Watchlist[entry.Symbol] = entry
	}
	store := tradestore.New(state, j, metrics.Reporter{})

	buffer := candlebuf.New(candlebuf.BufferMax)
	cache := indicator.NewCache()
	ingestor := ingest.New(source, buffer, cache, cfg.ingestInterval())

	if v == nil {
		v = venue.NewPaperVenue(ingestor)
	}

	queue := orchestrator.NewQueue(store, queueCapacity)
	timers := orchestrator.NewTimeoutTimers()
	orch := orchestrator.New(queue, store, ingestor, v, j, cfg.decisionInterval(), timers)
	monitor := orchestrator.NewExitMonitor(queue, store, ingestor, v, j, timers)

	proj := projection.New(store, queue, monitor, ingestor, j)

	e := &Engine{
		store: store, buffer: buffer, cache: cache, ingestor: ingestor,
		venue: v, journal: j, queue: queue, orch: orch, monitor: monitor,
		projection: proj,
	}
	queue.OnFatal(e.handleFatal)
	return e
}

// Projection exposes the read-only/command API for a server or CLI to use.
func (e *Engine) Projection() *projection.API { return e.projection }

// Start boots all component goroutines (spec §2/§5). It performs a
// best-effort health check against the MarketDataSource before starting
// the loops (supplemented feature, SPEC_FULL §3: "does not abort boot").
func (e *Engine) Start(ctx context.Context, source ingest.MarketDataSource) {
	workCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	queueCtx, queueCancel := context.WithCancel(ctx)
	e.queueCancel = queueCancel

	e.healthCheck(workCtx, source)

	metrics.Init()
	metrics.EngineRunning.Set(boolToFloat(e.store.Snapshot().Settings.IsEnabled))

	e.queueWG.Add(1)
	go func() { defer e.queueWG.Done(); e.queue.Run(queueCtx) }()

	e.workersWG.Add(3)
	go func() { defer e.workersWG.Done(); e.ingestor.Run(workCtx, e.projection.Watchlist) }()
	go func() { defer e.workersWG.Done(); e.orch.Run(workCtx, e.projection.Watchlist) }()
	go func() { defer e.workersWG.Done(); e.monitor.Run(workCtx, exitInterval) }()

	log.Infof("engine started")
}

// healthCheck performs a cheap single-symbol Latest() call and logs a
// warning (never aborts boot) on failure, matching the reference engine's
// Start()-time Binance health check.
func (e *Engine) healthCheck(ctx context.Context, source ingest.MarketDataSource) {
	symbols := e.projection.Watchlist()
	if len(symbols) == 0 {
		return
	}
	hcCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := source.Latest(hcCtx, symbols[:1]); err != nil {
		log.Warnf("market data source health check failed, continuing to boot: %v", err)
	}
}

// Shutdown stops all component goroutines gracefully (spec §5): cancels
// ingestion/the decision loop/the exit monitor first and waits for them to
// stop — the exit monitor's ctx.Done() branch synchronously force-closes
// every open position with reason=SHUTDOWN via blocking Queue.Submit calls
// (spec §5), which requires the Queue's writer loop to still be draining.
// Only once those three workers have fully stopped (so no more Submits will
// arrive) is the Queue's own context cancelled, and the journal closed.
func (e *Engine) Shutdown() {
	if e.cancel != nil {
		e.cancel()
	}
	e.workersWG.Wait()
	if e.queueCancel != nil {
		e.queueCancel()
	}
	e.queueWG.Wait()
	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			log.Warnf("journal close failed: %v", err)
		}
	}
	log.Infof("engine shut down")
}

// FatalErr returns the invariant-violation error that triggered an
// unplanned shutdown, or nil if none occurred.
func (e *Engine) FatalErr() error {
	e.fatalMu.Lock()
	defer e.fatalMu.Unlock()
	return e.fatal
}

// handleFatal is Queue's onFatal callback (spec §4.F/§7: "any invariant
// violation detected during mutate triggers shutdown: positions are
// serialized to a crash file, engine halts").
func (e *Engine) handleFatal(err error) {
	e.fatalMu.Lock()
	e.fatal = err
	e.fatalMu.Unlock()

	log.Errorf("fatal invariant violation, writing crash snapshot and halting: %v", err)
	if writeErr := e.writeCrashSnapshot(); writeErr != nil {
		log.Errorf("failed to write crash snapshot: %v", writeErr)
	}
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) writeCrashSnapshot() error {
	path := e.CrashSnapshotPath
	if path == "" {
		path = "./crash-snapshot.json"
	}
	snap := e.store.Snapshot()
	data, err := json.MarshalIndent(struct {
		Timestamp time.Time                          `json:"timestamp"`
		Positions map[string]tradestore.Position      `json:"positions"`
		Settings  tradestore.Settings                `json:"settings"`
	}{
		Timestamp: time.Now().UTC(),
		Positions: snap.Positions,
		Settings:  snap.Settings,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("engine: marshal crash snapshot: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
