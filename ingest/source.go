// Package ingest implements the Market Data Ingestor (spec §4.D): the
// periodic task that pulls prices/history from a MarketDataSource, feeds the
// candle buffer, and triggers indicator recomputation.
package ingest

import (
	"context"
	"errors"
	"time"
)

// Tick is the {price, volume, timestamp} shape spec §6 requires of
// MarketDataSource.latest.
type Tick struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp time.Time
}

// HistoricalCandle mirrors candlebuf.Candle without importing it, the same
// decoupling indicator.CandleLike uses — MarketDataSource is an external
// collaborator contract and shouldn't depend on the buffer's package.
type HistoricalCandle struct {
	OpenTime int64
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Error classes a MarketDataSource call can fail with (spec §6).
var (
	ErrNotFound     = errors.New("ingest: symbol not found")
	ErrRateLimited  = errors.New("ingest: rate limited")
	ErrTransient    = errors.New("ingest: transient failure")
	ErrUnauthorized = errors.New("ingest: unauthorized")
)

// RateLimitedError carries the retry-after hint spec §6 names.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string { return "ingest: rate limited" }
func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// MarketDataSource is the external collaborator contract (spec §6).
// Implementations must respect ctx's deadline; the Ingestor wraps every
// call with a 5s default per spec §5.
type MarketDataSource interface {
	History(ctx context.Context, symbol string, interval time.Duration, n int) ([]HistoricalCandle, error)
	Latest(ctx context.Context, symbols []string) (map[string]Tick, error)
}
