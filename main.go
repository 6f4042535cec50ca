package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/cywu/reversal/broker"
	"github.com/cywu/reversal/database"
	"github.com/cywu/reversal/feed"
	"github.com/cywu/reversal/service"
	"github.com/cywu/reversal/shared"
	"github.com/cywu/reversal/strategy"
	"github.com/rs/zerolog"
)

const (
	// backtestDateLayout is the format layout for backtest range dates.
	backtestDateLayout = "2006-01-02"

	// Fallbacks applied when the corresponding flags are unset.
	defaultQuantity   = 1
	defaultWarmupBars = 200
	defaultStartCash  = 1_000_000
)

// defaultMultipliers maps market symbol prefixes to their point values.
var defaultMultipliers = map[string]float64{
	"TXF": 200,
	"MXF": 50,
}

// applyDefaults fills unset config fields with their defaults.
func applyDefaults(cfg *Config) {
	if cfg.Quantity == 0 {
		cfg.Quantity = defaultQuantity
	}
	if cfg.WarmupBars == 0 {
		cfg.WarmupBars = defaultWarmupBars
	}
	if cfg.StopLossPoints == 0 {
		cfg.StopLossPoints = strategy.DefaultStopLossPoints
	}
	if cfg.TrailTriggerPoints == 0 {
		cfg.TrailTriggerPoints = strategy.DefaultTrailTriggerPoints
	}
	if cfg.TrailRetrace == 0 {
		cfg.TrailRetrace = strategy.DefaultTrailRetrace
	}
	if cfg.AccelFactor == 0 {
		cfg.AccelFactor = strategy.DefaultAccelFactor
	}
	if cfg.MaxAccelFactor == 0 {
		cfg.MaxAccelFactor = strategy.DefaultMaxAccelFactor
	}
	if cfg.StartCash == 0 {
		cfg.StartCash = defaultStartCash
	}
}

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

// runBacktest replays the configured market range through the strategy.
func runBacktest(ctx context.Context, cfg *Config, store *database.TickStore, logger *zerolog.Logger, cancel context.CancelFunc) error {
	loc := shared.TaipeiLocation()
	start, err := time.ParseInLocation(backtestDateLayout, cfg.BacktestStart, loc)
	if err != nil {
		return err
	}
	end, err := time.ParseInLocation(backtestDateLayout, cfg.BacktestEnd, loc)
	if err != nil {
		return err
	}

	warmupStart := start.Add(-time.Duration(cfg.WarmupBars) * time.Hour)
	warmup, err := store.LoadHourlyBars(ctx, cfg.BacktestMarket, warmupStart, start)
	if err != nil {
		return err
	}

	minutes, err := store.LoadMinuteBars(ctx, cfg.BacktestMarket, start, end)
	if err != nil {
		return err
	}

	backtester, err := service.NewBacktester(&service.BacktesterConfig{
		Market:             cfg.BacktestMarket,
		MinuteBars:         minutes,
		WarmupBars:         warmup,
		Quantity:           cfg.Quantity,
		StartCash:          cfg.StartCash,
		Multipliers:        defaultMultipliers,
		Slippage:           cfg.Slippage,
		FeePerContract:     cfg.FeePerContract,
		StopLossPoints:     cfg.StopLossPoints,
		TrailTriggerPoints: cfg.TrailTriggerPoints,
		TrailRetrace:       cfg.TrailRetrace,
		AccelFactor:        cfg.AccelFactor,
		MaxAccelFactor:     cfg.MaxAccelFactor,
		OutputDir:          cfg.OutputDir,
		Store:              store,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	_, err = backtester.Run(ctx)
	if err != nil {
		return err
	}

	cancel()
	return nil
}

// runLive runs the live trading loop until cancelled.
func runLive(ctx context.Context, cfg *Config, store *database.TickStore, logger *zerolog.Logger, cancel context.CancelFunc) error {
	sessions, err := shared.DefaultSessions()
	if cfg.Sessions != "" {
		sessions, err = shared.ParseSessions(cfg.Sessions)
	}
	if err != nil {
		return err
	}

	codes, err := cfg.contractCodes()
	if err != nil {
		return err
	}

	feedLogger := logger.With().Str("component", "feed").Logger()
	tickFeed, err := feed.NewWebsocketFeed(&feed.WebsocketFeedConfig{
		URL:     cfg.FeedURL,
		Markets: cfg.Markets,
		Logger:  &feedLogger,
	})
	if err != nil {
		return err
	}

	gatewayLogger := logger.With().Str("component", "gateway").Logger()
	gateway, err := broker.NewClient(&broker.ClientConfig{
		BaseURL: cfg.GatewayURL,
		APIKey:  cfg.GatewayAPIKey,
		Logger:  &gatewayLogger,
	})
	if err != nil {
		return err
	}

	trader, err := service.NewTrader(&service.TraderConfig{
		Markets:            cfg.Markets,
		ContractCodes:      codes,
		Quantity:           cfg.Quantity,
		WarmupBars:         cfg.WarmupBars,
		StopLossPoints:     cfg.StopLossPoints,
		TrailTriggerPoints: cfg.TrailTriggerPoints,
		TrailRetrace:       cfg.TrailRetrace,
		AccelFactor:        cfg.AccelFactor,
		MaxAccelFactor:     cfg.MaxAccelFactor,
		Sessions:           sessions,
		Feed:               tickFeed,
		Broker:             gateway,
		Bars:               store,
		Store:              store,
		Cancel:             cancel,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	trader.Run(ctx)
	return nil
}

func main() {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Printf("loading config: %v", err)
		return
	}

	applyDefaults(&cfg)

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storeLogger := logger.With().Str("component", "tickstore").Logger()
	store, err := database.NewTickStore(ctx, &database.TickStoreConfig{
		Endpoint: cfg.DBEndpoint,
		User:     cfg.DBUser,
		Pass:     cfg.DBPass,
		Logger:   &storeLogger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("creating tick store")
		return
	}

	go handleTermination(ctx, cancel)

	switch cfg.Backtest {
	case true:
		err = runBacktest(ctx, &cfg, store, &logger, cancel)
	case false:
		err = runLive(ctx, &cfg, store, &logger, cancel)
	}
	if err != nil {
		logger.Error().Err(err).Msg("running service")
	}
}
