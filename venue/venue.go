// Package venue defines the ExecutionVenue contract (spec §6) and a
// default in-memory paper-trading implementation that fills synchronously
// at the latest known mark.
package venue

import (
	"fmt"
	"sync"
	"time"

	"scalpengine/tradestore"
)

// Fill is the result of a simulated order (spec §6).
type Fill struct {
	FillPrice tradestore.Money
	FillTime  time.Time
	OrderID   string
}

// ExecutionVenue places and closes orders. The default paper venue fills
// synchronously; a real venue implementation would block on exchange I/O
// and must be wrapped with the deadline spec §5 requires of callers.
type ExecutionVenue interface {
	PlaceMarketOrder(symbol string, side tradestore.Side, quantity float64) (Fill, error)
	ClosePosition(symbol string, quantity float64) (Fill, error)
}

// MarkSource supplies the latest known price for a symbol, letting the
// paper venue fill without a real order book. *ingest.Ingestor satisfies
// this directly; engine.New passes it to NewPaperVenue.
type MarkSource interface {
	LatestMark(symbol string) (float64, bool)
}

// PaperVenue is the default ExecutionVenue (spec §6: "Default implementation
// fills at the latest known mark, synchronously").
type PaperVenue struct {
	marks MarkSource

	mu      sync.Mutex
	counter int64
}

// NewPaperVenue constructs a PaperVenue reading marks from marks.
func NewPaperVenue(marks MarkSource) *PaperVenue {
	return &PaperVenue{marks: marks}
}

func (v *PaperVenue) nextOrderID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.counter++
	return fmt.Sprintf("paper-%d", v.counter)
}

// PlaceMarketOrder fills instantly at the symbol's latest mark.
func (v *PaperVenue) PlaceMarketOrder(symbol string, side tradestore.Side, quantity float64) (Fill, error) {
	price, ok := v.marks.LatestMark(symbol)
	if !ok {
		return Fill{}, fmt.Errorf("venue: no mark available for %s", symbol)
	}
	return Fill{FillPrice: tradestore.M(price), FillTime: time.Now().UTC(), OrderID: v.nextOrderID()}, nil
}

// ClosePosition fills instantly at the symbol's latest mark, same as
// PlaceMarketOrder; the default venue has no partial fills or slippage.
func (v *PaperVenue) ClosePosition(symbol string, quantity float64) (Fill, error) {
	price, ok := v.marks.LatestMark(symbol)
	if !ok {
		return Fill{}, fmt.Errorf("venue: no mark available for %s", symbol)
	}
	return Fill{FillPrice: tradestore.M(price), FillTime: time.Now().UTC(), OrderID: v.nextOrderID()}, nil
}
