package ingest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"scalpengine/logger"
)

var wsLog = logger.Named("ingest.ws")

// aggTradeEvent matches Binance's combined-stream aggTrade payload.
type aggTradeEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

const (
	wsReconnectDelay    = 1 * time.Second
	wsMaxReconnectDelay = 30 * time.Second
)

// WSFeed pushes trade ticks from a Binance combined aggTrade stream into an
// in-memory last-tick cache, serving as a low-latency push complement to
// BinanceSource's REST poll. Reconnects with exponential backoff, mirroring
// the same outage-handling shape the Ingestor applies to its own poll loop.
type WSFeed struct {
	url string

	mu    sync.RWMutex
	ticks map[string]Tick
}

// NewWSFeed builds a feed that reads whichever aggTrade streams url
// subscribes to (a combined-stream endpoint, e.g.
// "wss://stream.binance.com:9443/stream?streams=btcusdt@aggTrade/ethusdt@aggTrade").
func NewWSFeed(url string) *WSFeed {
	return &WSFeed{url: url, ticks: make(map[string]Tick)}
}

// Run connects and consumes until ctx is cancelled, reconnecting with
// exponential backoff on any read/dial error.
func (f *WSFeed) Run(ctx context.Context) {
	delay := wsReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := f.connectAndConsume(ctx); err != nil {
			wsLog.Warnf("websocket feed error, reconnecting in %v: %v", delay, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > wsMaxReconnectDelay {
				delay = wsMaxReconnectDelay
			}
			continue
		}
		delay = wsReconnectDelay
	}
}

func (f *WSFeed) connectAndConsume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		var envelope struct {
			Data aggTradeEvent `json:"data"`
		}
		if err := conn.ReadJSON(&envelope); err != nil {
			return err
		}
		ev := envelope.Data
		price, err := strconv.ParseFloat(ev.Price, 64)
		if err != nil {
			continue
		}
		qty, _ := strconv.ParseFloat(ev.Quantity, 64)

		f.mu.Lock()
		f.ticks[ev.Symbol] = Tick{
			Symbol:    ev.Symbol,
			Price:     price,
			Volume:    qty,
			Timestamp: time.UnixMilli(ev.TradeTime),
		}
		f.mu.Unlock()
	}
}

// Latest implements MarketDataSource's push-side contract: it returns
// whatever ticks have arrived since the feed connected, never blocking on
// the network (the WebSocket read loop runs independently in Run).
func (f *WSFeed) Latest(ctx context.Context, symbols []string) (map[string]Tick, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]Tick)
	for _, s := range symbols {
		if t, ok := f.ticks[s]; ok {
			out[s] = t
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ingest: no websocket ticks received yet")
	}
	return out, nil
}

// History is not supported by the push feed; BinanceSource handles seeding.
func (f *WSFeed) History(ctx context.Context, symbol string, interval time.Duration, n int) ([]HistoricalCandle, error) {
	return nil, fmt.Errorf("ingest: wsfeed does not support history, pair with BinanceSource")
}
