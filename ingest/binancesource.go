package ingest

import (
	"context"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
)

// BinanceSource is a concrete MarketDataSource backed by Binance's spot
// REST API, grounded on the klines-fetch-and-parse pattern used across the
// retrieval pack's Binance-backed bots.
type BinanceSource struct {
	client *binance.Client
}

// NewBinanceSource wraps an authenticated go-binance client. apiKey/secret
// may be empty for the public market-data endpoints this source uses.
func NewBinanceSource(apiKey, apiSecret string) *BinanceSource {
	return &BinanceSource{client: binance.NewClient(apiKey, apiSecret)}
}

// History implements MarketDataSource via /api/v3/klines.
func (b *BinanceSource) History(ctx context.Context, symbol string, interval time.Duration, n int) ([]HistoricalCandle, error) {
	klines, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval(intervalString(interval)).
		Limit(n).
		Do(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]HistoricalCandle, len(klines))
	for i, k := range klines {
		out[i] = HistoricalCandle{
			OpenTime: k.OpenTime / 1000,
			Open:     parseFloat(k.Open),
			High:     parseFloat(k.High),
			Low:      parseFloat(k.Low),
			Close:    parseFloat(k.Close),
			Volume:   parseFloat(k.Volume),
		}
	}
	return out, nil
}

// Latest implements MarketDataSource via per-symbol 24hr ticker price
// lookups, called sequentially; partial failures drop only the failed
// symbol from the result and are surfaced through the final error.
func (b *BinanceSource) Latest(ctx context.Context, symbols []string) (map[string]Tick, error) {
	out := make(map[string]Tick)
	var firstErr error
	for _, symbol := range symbols {
		prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
		if err != nil || len(prices) == 0 {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		stats, err := b.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
		volume := 0.0
		if err == nil && len(stats) > 0 {
			volume = parseFloat(stats[0].Volume)
		}
		out[symbol] = Tick{
			Symbol:    symbol,
			Price:     parseFloat(prices[0].Price),
			Volume:    volume,
			Timestamp: time.Now().UTC(),
		}
	}
	return out, firstErr
}

func intervalString(d time.Duration) string {
	switch {
	case d <= time.Minute:
		return "1m"
	case d <= 3*time.Minute:
		return "3m"
	case d <= 5*time.Minute:
		return "5m"
	case d <= 15*time.Minute:
		return "15m"
	default:
		return "1h"
	}
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
