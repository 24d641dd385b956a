// Package metrics exposes the engine's prometheus instrumentation,
// adapted from a trader-dashboard metrics set down to this engine's
// single-account, per-symbol shape.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"scalpengine/tradestore"
)

// Registry is the custom prometheus registry for the engine's metrics.
var Registry = prometheus.NewRegistry()

var (
	TotalPnL = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scalpengine",
			Subsystem: "account",
			Name:      "total_pnl",
			Help:      "Cumulative realized P&L since engine boot.",
		},
	)

	DayPnL = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scalpengine",
			Subsystem: "account",
			Name:      "day_pnl",
			Help:      "Realized P&L for the current calendar day.",
		},
	)

	AvailableBalance = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scalpengine",
			Subsystem: "account",
			Name:      "available_balance",
			Help:      "Balance available for new entries.",
		},
	)

	OpenPositions = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scalpengine",
			Subsystem: "account",
			Name:      "open_positions",
			Help:      "Number of currently open positions.",
		},
	)

	PositionUnrealizedPnL = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "scalpengine",
			Subsystem: "position",
			Name:      "unrealized_pnl",
			Help:      "Unrealized P&L per open position.",
		},
		[]string{"symbol", "side"},
	)

	TradesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scalpengine",
			Subsystem: "trade",
			Name:      "total",
			Help:      "Completed trades by kind and close reason.",
		},
		[]string{"kind", "reason"},
	)

	RiskRejectionsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scalpengine",
			Subsystem: "risk",
			Name:      "rejections_total",
			Help:      "Orders rejected by the risk gate, by rejection kind.",
		},
		[]string{"kind"},
	)

	SignalsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scalpengine",
			Subsystem: "signal",
			Name:      "total",
			Help:      "Signals synthesized, by kind and reason.",
		},
		[]string{"signal", "reason"},
	)

	IngestStalenessSeconds = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "scalpengine",
			Subsystem: "ingest",
			Name:      "staleness_seconds",
			Help:      "Seconds since the last successfully ingested candle, per symbol.",
		},
		[]string{"symbol"},
	)

	IngestErrorsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scalpengine",
			Subsystem: "ingest",
			Name:      "errors_total",
			Help:      "MarketDataSource errors, by symbol and error class.",
		},
		[]string{"symbol", "class"},
	)

	BalanceDriftWarningsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scalpengine",
			Subsystem: "tradestore",
			Name:      "balance_drift_warnings_total",
			Help:      "Soft balance-conservation drift warnings detected during mutate.",
		},
		[]string{"symbol"},
	)

	DecisionCycleDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scalpengine",
			Subsystem: "orchestrator",
			Name:      "decision_cycle_duration_seconds",
			Help:      "Wall-clock duration of one Execution Orchestrator tick across the whole watchlist.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
	)

	EngineRunning = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scalpengine",
			Subsystem: "engine",
			Name:      "running",
			Help:      "Whether automated execution is enabled (1) or disabled (0).",
		},
	)
)

// ClearPosition removes the per-position gauge series for a closed
// position, mirroring the label-cleanup pattern a long-running gauge
// vector needs once its label combination stops existing.
func ClearPosition(symbol, side string) {
	PositionUnrealizedPnL.DeleteLabelValues(symbol, side)
}

// Reporter implements tradestore.DriftWarner, decoupling tradestore from a
// direct prometheus import.
type Reporter struct{}

func (Reporter) WarnBalanceDrift(symbol string, delta tradestore.Money) {
	if symbol == "" {
		symbol = "_"
	}
	BalanceDriftWarningsTotal.WithLabelValues(symbol).Inc()
}

// Init registers the standard go/process collectors alongside the
// application-specific ones above. Only the first call registers; later
// calls (one per Engine.Start in the same process) are no-ops.
func Init() {
	initOnce.Do(func() {
		Registry.MustRegister(prometheus.NewGoCollector())
		Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

var initOnce sync.Once
