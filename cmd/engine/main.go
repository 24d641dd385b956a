// Command engine boots the scalping engine and its optional HTTP
// projection surface.
//
// Boot sequence:
//  1. loadDotEnv()           – read ./.env (real exported vars still win)
//  2. cfg := loadEngineConfig() – build the engine.Config
//  3. wire market data source, journal, venue
//  4. e := engine.New(cfg, source, journal, venue); e.Start(ctx, source)
//  5. optionally start server.New(e.Projection(), serverCfg) on HTTP_ADDR
//  6. block on SIGINT/SIGTERM, then e.Shutdown()
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"scalpengine/engine"
	"scalpengine/ingest"
	"scalpengine/journal"
	"scalpengine/logger"
	"scalpengine/server"
	"scalpengine/tradestore"
	"scalpengine/venue"
)

var log = logger.Named("cmd.engine")

func main() {
	loadDotEnv()

	cfg := loadEngineConfig()
	source := newMarketDataSource()

	var j journal.Journal
	if path := getEnv("JOURNAL_PATH", ""); path != "" {
		sqliteJournal, err := journal.NewSQLiteJournal(path)
		if err != nil {
			log.Errorf("journal init failed, running without durable journal: %v", err)
		} else {
			j = journal.NewRetryingJournal(sqliteJournal)
		}
	}

	var execVenue venue.ExecutionVenue // nil selects engine.New's default PaperVenue

	e := engine.New(cfg, source, j, execVenue)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if feed, ok := source.(*ingest.WSFeed); ok {
		go feed.Run(ctx)
	}

	e.Start(ctx, source)
	log.Infof("scalpengine running, watchlist=%v", watchlistSymbols(cfg))

	if addr := getEnv("HTTP_ADDR", ""); addr != "" {
		srv := server.New(e.Projection(), loadServerConfig())
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Errorf("http server stopped: %v", err)
			}
		}()
	}

	<-ctx.Done()
	log.Infof("shutdown signal received")

	shutdownDone := make(chan struct{})
	go func() {
		e.Shutdown()
		close(shutdownDone)
	}()
	select {
	case <-shutdownDone:
	case <-time.After(30 * time.Second):
		log.Warnf("engine shutdown did not complete within timeout, exiting anyway")
	}

	if err := e.FatalErr(); err != nil {
		log.Errorf("engine halted on fatal invariant violation: %v", err)
		os.Exit(1)
	}
}

// loadEngineConfig resolves engine.Config from the environment: starting
// balance, watchlist, and the Settings fields an operator tunes without
// recompiling.
func loadEngineConfig() engine.Config {
	settings := tradestore.DefaultSettings()
	settings.MinConfidence = getEnvFloat("MIN_CONFIDENCE", settings.MinConfidence)
	settings.MaxPositionSize = tradestore.M(getEnvFloat("MAX_POSITION_SIZE", 10_000))
	settings.RiskPerTrade = getEnvFloat("RISK_PER_TRADE", settings.RiskPerTrade)
	settings.MaxDailyLoss = tradestore.M(getEnvFloat("MAX_DAILY_LOSS", 500))
	settings.MaxPositions = int(getEnvInt("MAX_POSITIONS", int64(settings.MaxPositions)))
	settings.StopLossPercent = getEnvFloat("STOP_LOSS_PERCENT", settings.StopLossPercent)
	settings.TakeProfitPercent = getEnvFloat("TAKE_PROFIT_PERCENT", settings.TakeProfitPercent)
	settings.MaxHoldSeconds = getEnvInt("MAX_HOLD_SECONDS", settings.MaxHoldSeconds)
	settings.ScalingFactor = getEnvFloat("SCALING_FACTOR", settings.ScalingFactor)
	settings.IsEnabled = getEnvBool("TRADING_ENABLED", settings.IsEnabled)
	settings.CooldownSeconds = getEnvInt("COOLDOWN_SECONDS", settings.CooldownSeconds)
	settings.ShortMarginFraction = getEnvFloat("SHORT_MARGIN_FRACTION", settings.ShortMarginFraction)

	now := time.Now().UTC()
	symbols := getEnvList("WATCHLIST_SYMBOLS")
	names := getEnvList("WATCHLIST_NAMES")
	watchlist := make([]tradestore.WatchlistEntry, 0, len(symbols))
	for i, symbol := range symbols {
		name := symbol
		if i < len(names) {
			name = names[i]
		}
		watchlist = append(watchlist, tradestore.WatchlistEntry{
			Symbol: symbol, Name: name, Active: true, Warming: true, AddedAt: now,
		})
	}

	return engine.Config{
		Watchlist:       watchlist,
		StartingBalance: tradestore.M(getEnvFloat("STARTING_BALANCE", 10_000)),
		Settings:        settings,
		Now:             now,
	}
}

func watchlistSymbols(cfg engine.Config) []string {
	out := make([]string, 0, len(cfg.Watchlist))
	for _, e := range cfg.Watchlist {
		out = append(out, e.Symbol)
	}
	return out
}

// newMarketDataSource picks the MarketDataSource implementation from
// MARKET_DATA_SOURCE: "ws" for the low-latency Binance push feed, anything
// else (including unset) for the REST poll source.
func newMarketDataSource() ingest.MarketDataSource {
	switch strings.ToLower(getEnv("MARKET_DATA_SOURCE", "rest")) {
	case "ws":
		url := getEnv("BINANCE_WS_URL", "wss://stream.binance.com:9443/stream")
		return ingest.NewWSFeed(url)
	default:
		return ingest.NewBinanceSource(getEnv("BINANCE_API_KEY", ""), getEnv("BINANCE_API_SECRET", ""))
	}
}

// loadServerConfig resolves the optional HTTP projection surface's
// bind address and auth material.
func loadServerConfig() server.Config {
	return server.Config{
		Addr:       getEnv("HTTP_ADDR", ":8080"),
		JWTSecret:  []byte(getEnv("JWT_SECRET", "")),
		TOTPSecret: getEnv("TOTP_SECRET", ""),
	}
}
