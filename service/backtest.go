package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cywu/reversal/backtest"
	"github.com/cywu/reversal/bar"
	"github.com/cywu/reversal/feed"
	"github.com/cywu/reversal/fill"
	"github.com/cywu/reversal/shared"
	"github.com/cywu/reversal/strategy"
	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
)

const (
	// tradesCSVName is the backtest trade log filename.
	tradesCSVName = "trades.csv"
	// equityCSVName is the backtest equity curve filename.
	equityCSVName = "equity.csv"
)

// TradeStorer defines the requirements for persisting closed trades.
type TradeStorer interface {
	// PersistClosedTrade stores the provided closed trade.
	PersistClosedTrade(ctx context.Context, trade *backtest.Trade) error
}

// BacktesterConfig represents the configuration struct for the backtester.
type BacktesterConfig struct {
	// Market is the market being backtested.
	Market string
	// MinuteBars is the minute bar history replayed through the strategy.
	MinuteBars []shared.Bar
	// WarmupBars is the hourly bar history seeding the strategy.
	WarmupBars []shared.Bar
	// Quantity is the contract quantity per signal.
	Quantity int
	// StartCash is the starting account balance.
	StartCash float64
	// Multipliers maps market symbol prefixes to point values.
	Multipliers map[string]float64
	// Slippage is the per-fill adverse price adjustment in points.
	Slippage float64
	// FeePerContract is the per-contract round fee.
	FeePerContract float64
	// StopLossPoints is the fixed stop distance in points.
	StopLossPoints float64
	// TrailTriggerPoints is the profit arming the trailing stop.
	TrailTriggerPoints float64
	// TrailRetrace is the retrace fraction firing the trailing stop.
	TrailRetrace float64
	// AccelFactor is the starting acceleration factor.
	AccelFactor float64
	// MaxAccelFactor is the acceleration factor cap.
	MaxAccelFactor float64
	// OutputDir is the directory for result artifacts, empty disables
	// file output.
	OutputDir string
	// Store persists closed trades, may be nil.
	Store TradeStorer
	// Logger is the backtester logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *BacktesterConfig) Validate() error {
	var errs error

	if cfg.Market == "" {
		errs = errors.Join(errs, fmt.Errorf("backtest market cannot be an empty string"))
	}
	if len(cfg.MinuteBars) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no minute bars provided for backtest"))
	}
	if cfg.Quantity <= 0 {
		errs = errors.Join(errs, fmt.Errorf("quantity must be positive"))
	}
	if cfg.StartCash <= 0 {
		errs = errors.Join(errs, fmt.Errorf("start cash must be positive"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Backtester replays minute bars through the strategy with next bar open
// fills and settles the outcome into a ledger.
type Backtester struct {
	cfg       *BacktesterConfig
	strategy  *strategy.RiskPSAR
	ledger    *backtest.Ledger
	scheduler *fill.Scheduler
	logger    *zerolog.Logger
}

// NewBacktester initializes a new backtester.
func NewBacktester(cfg *BacktesterConfig) (*Backtester, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating backtester config: %w", err)
	}

	logger := cfg.Logger.With().Str("service", "backtester").Logger()

	psarLogger := logger.With().Str("component", "psar").Logger()
	psar, err := strategy.NewPSAR(&strategy.PSARConfig{
		Quantity:       cfg.Quantity,
		AccelFactor:    cfg.AccelFactor,
		MaxAccelFactor: cfg.MaxAccelFactor,
		Logger:         &psarLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating psar strategy: %w", err)
	}

	riskLogger := logger.With().Str("component", "risk").Logger()
	risk, err := strategy.NewRiskPSAR(&strategy.RiskConfig{
		StopLossPoints:     cfg.StopLossPoints,
		TrailTriggerPoints: cfg.TrailTriggerPoints,
		TrailRetrace:       cfg.TrailRetrace,
		Logger:             &riskLogger,
	}, psar)
	if err != nil {
		return nil, fmt.Errorf("creating risk overlay: %w", err)
	}

	ledgerLogger := logger.With().Str("component", "ledger").Logger()
	ledger, err := backtest.NewLedger(&backtest.LedgerConfig{
		StartCash:      cfg.StartCash,
		Multipliers:    cfg.Multipliers,
		Slippage:       cfg.Slippage,
		FeePerContract: cfg.FeePerContract,
		AutoClose:      shared.IsAutoCloseMoment,
		Logger:         &ledgerLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating ledger: %w", err)
	}

	schedulerLogger := logger.With().Str("component", "fillscheduler").Logger()
	scheduler, err := fill.NewScheduler(&fill.SchedulerConfig{
		Logger: &schedulerLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating fill scheduler: %w", err)
	}

	backtester := &Backtester{
		cfg:       cfg,
		strategy:  risk,
		ledger:    ledger,
		scheduler: scheduler,
		logger:    &logger,
	}

	return backtester, nil
}

// Run replays the configured history and returns the backtest results.
func (b *Backtester) Run(ctx context.Context) (*backtest.Results, error) {
	market := b.cfg.Market
	b.strategy.OnStart([]string{market}, map[string][]shared.Bar{
		market: b.cfg.WarmupBars,
	})

	replay := feed.NewReplayFeed(feed.SyntheticTicks(b.cfg.MinuteBars))
	hourBars := bar.NewBuilder(shared.OneHour)
	minuteBars := bar.NewBuilder(shared.OneMinute)

	var lastTick *shared.Tick
	for {
		tick, err := replay.NextTick(0)
		if errors.Is(err, shared.ErrNoTick) {
			break
		}
		lastTick = tick

		hourKey := shared.BucketKey(tick.Timestamp, shared.OneHour)
		minuteKey := shared.BucketKey(tick.Timestamp, shared.OneMinute)

		closedHours := hourBars.PopClosedBars(market, hourKey)
		for idx := range closedHours {
			signal := b.strategy.OnBar(&closedHours[idx])
			if signal != nil {
				// The new hour's opening minute, not this tick's minute. If
				// the opening minute never prints the order stays pending.
				b.scheduler.Register(signal, hourKey)
			}
		}

		closedMinutes := minuteBars.PopClosedBars(market, minuteKey)
		for range closedMinutes {
			b.ledger.OnBarClose(market)
		}

		hourBars.OnTick(tick)
		minuteBars.OnTick(tick)

		fillSignal := b.scheduler.Check(tick)
		if fillSignal != nil {
			b.ledger.OnTick(tick, fillSignal)
		}

		signal := b.strategy.OnTick(tick)
		b.ledger.OnTick(tick, signal)
	}

	b.strategy.OnStop()

	if lastTick == nil {
		return nil, fmt.Errorf("no replayable ticks for %s", market)
	}

	b.ledger.CloseAll(lastTick.Timestamp)

	if b.cfg.Store != nil {
		for _, trade := range b.ledger.Trades() {
			err := b.cfg.Store.PersistClosedTrade(ctx, trade)
			if err != nil {
				b.logger.Error().Err(err).Str("trade", trade.ID).
					Msg("persisting closed trade")
			}
		}
	}

	results := b.ledger.Results()
	b.logger.Info().Str("market", market).
		Int("trades", results.TradeCount).
		Float64("endequity", results.EndEquity).
		Float64("return", results.TotalReturn).
		Float64("sharpe", results.SharpeDaily).
		Float64("maxdrawdown", results.MaxDrawdown).
		Msg("backtest complete")
	b.logger.Debug().Msg(spew.Sdump(results))

	if b.cfg.OutputDir != "" {
		err := backtest.WriteTradesCSV(filepath.Join(b.cfg.OutputDir, tradesCSVName),
			b.ledger.Trades())
		if err != nil {
			return nil, fmt.Errorf("writing trades csv: %w", err)
		}

		err = backtest.WriteEquityCSV(filepath.Join(b.cfg.OutputDir, equityCSVName),
			b.ledger.EquityCurve())
		if err != nil {
			return nil, fmt.Errorf("writing equity csv: %w", err)
		}
	}

	return results, nil
}
