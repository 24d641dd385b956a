package orchestrator

import (
	"scalpengine/indicator"
	"scalpengine/tradestore"
	"scalpengine/venue"
)

// MarketView is the read-only surface the Orchestrator and Exit Monitor
// need from ingestion (spec §4.G step 1: "Fetch latest IndicatorSet +
// latest price"). *ingest.Ingestor satisfies this directly.
type MarketView interface {
	LatestIndicator(symbol string) (indicator.Set, bool)
	LatestMark(symbol string) (float64, bool)
	Warming(symbol string) bool
}

// Venue is the subset of venue.ExecutionVenue the Orchestrator/Exit Monitor
// call. Declared locally so this package only depends on the method set it
// actually uses.
type Venue interface {
	PlaceMarketOrder(symbol string, side tradestore.Side, quantity float64) (venue.Fill, error)
	ClosePosition(symbol string, quantity float64) (venue.Fill, error)
}
