package engine

import (
	"time"

	"scalpengine/tradestore"
)

// baseIngestInterval and baseDecisionInterval are the spec §4.D/§4.G
// un-scaled cadences; Config.Settings.ScalingFactor divides them.
const (
	baseIngestInterval   = 10 * time.Second
	baseDecisionInterval = 1500 * time.Millisecond
	exitInterval         = 1 * time.Second
	queueCapacity        = 128
)

// Config bundles the boot-time parameters cmd/engine resolves from
// environment/.env (spec §1.3) before calling New.
type Config struct {
	Watchlist       []tradestore.WatchlistEntry
	StartingBalance tradestore.Money
	Settings        tradestore.Settings
	Now             time.Time
}

// ingestInterval returns baseIngestInterval/ScalingFactor (spec §4.D).
func (c Config) ingestInterval() time.Duration {
	return scaled(baseIngestInterval, c.Settings.ScalingFactor)
}

// decisionInterval returns baseDecisionInterval/ScalingFactor (spec §4.G).
func (c Config) decisionInterval() time.Duration {
	return scaled(baseDecisionInterval, c.Settings.ScalingFactor)
}

func scaled(base time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		factor = 1
	}
	d := time.Duration(float64(base) / factor)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}
