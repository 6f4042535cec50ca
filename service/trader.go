package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cywu/reversal/bar"
	"github.com/cywu/reversal/broker"
	"github.com/cywu/reversal/fill"
	"github.com/cywu/reversal/shared"
	"github.com/cywu/reversal/strategy"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

const (
	// tickPollTimeout is the wait for the next tick before idling.
	tickPollTimeout = time.Second * 5
	// feedRetryDelay is the pause after a feed read failure.
	feedRetryDelay = time.Second
	// reconcileTime is the daily broker reconciliation time, just after
	// the day session close.
	reconcileTime = "13:50"
)

// TickStorer defines the requirements for persisting ticks.
type TickStorer interface {
	// PersistTick stores the provided tick.
	PersistTick(ctx context.Context, tick *shared.Tick) error
}

// TraderConfig represents the configuration struct for the live trader.
type TraderConfig struct {
	// Markets represents the traded markets.
	Markets []string
	// ContractCodes maps market names to their tradeable contract codes.
	ContractCodes map[string]string
	// Quantity is the contract quantity per signal.
	Quantity int
	// WarmupBars is the hourly bar count used to seed the strategy.
	WarmupBars int
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
	// Sessions are the tradable sessions.
	Sessions []*shared.Session
	// Feed streams live ticks.
	Feed shared.TickFeed
	// Broker is the order execution venue.
	Broker shared.Broker
	// Bars loads warmup bar history.
	Bars shared.BarLoader
	// Store persists ticks, may be nil.
	Store TickStorer
	// Cancel is the context cancellation function.
	Cancel context.CancelFunc
	// Logger is the trader logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *TraderConfig) Validate() error {
	var errs error

	if len(cfg.Markets) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no markets provided for trader"))
	}
	for _, market := range cfg.Markets {
		if _, ok := cfg.ContractCodes[market]; !ok {
			errs = errors.Join(errs, fmt.Errorf("no contract code for market %s", market))
		}
	}
	if cfg.Quantity <= 0 {
		errs = errors.Join(errs, fmt.Errorf("quantity must be positive"))
	}
	if cfg.WarmupBars <= 0 {
		errs = errors.Join(errs, fmt.Errorf("warmup bar count must be positive"))
	}
	if len(cfg.Sessions) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no sessions provided for trader"))
	}
	if cfg.Feed == nil {
		errs = errors.Join(errs, fmt.Errorf("tick feed cannot be nil"))
	}
	if cfg.Broker == nil {
		errs = errors.Join(errs, fmt.Errorf("broker cannot be nil"))
	}
	if cfg.Bars == nil {
		errs = errors.Join(errs, fmt.Errorf("bar loader cannot be nil"))
	}
	if cfg.Cancel == nil {
		errs = errors.Join(errs, fmt.Errorf("context cancellation function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Trader runs the live tick-to-order loop: hourly trend flips queue
// deferred entries, tick level risk exits fire immediately.
type Trader struct {
	cfg          *TraderConfig
	strategy     *strategy.RiskPSAR
	hourBars     *bar.Builder
	scheduler    *fill.Scheduler
	submitter    *broker.Submitter
	jobScheduler *gocron.Scheduler
	lastSettle   map[string]time.Time
	logger       *zerolog.Logger
}

// NewTrader initializes a new live trader.
func NewTrader(cfg *TraderConfig) (*Trader, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating trader config: %w", err)
	}

	logger := cfg.Logger.With().Str("service", "trader").Logger()

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

	schedulerLogger := logger.With().Str("component", "fillscheduler").Logger()
	scheduler, err := fill.NewScheduler(&fill.SchedulerConfig{
		Logger: &schedulerLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating fill scheduler: %w", err)
	}

	submitterLogger := logger.With().Str("component", "submitter").Logger()
	submitter, err := broker.NewSubmitter(&broker.SubmitterConfig{
		Broker:        cfg.Broker,
		ContractCodes: cfg.ContractCodes,
		Logger:        &submitterLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating order submitter: %w", err)
	}

	trader := &Trader{
		cfg:          cfg,
		strategy:     risk,
		hourBars:     bar.NewBuilder(shared.OneHour),
		scheduler:    scheduler,
		submitter:    submitter,
		jobScheduler: gocron.NewScheduler(shared.TaipeiLocation()),
		lastSettle:   make(map[string]time.Time),
		logger:       &logger,
	}

	return trader, nil
}

// warmup seeds the strategy with recent hourly bars for every market.
func (t *Trader) warmup(ctx context.Context) error {
	histories := make(map[string][]shared.Bar, len(t.cfg.Markets))
	for _, market := range t.cfg.Markets {
		bars, err := t.cfg.Bars.LoadRecentBars(ctx, market, t.cfg.WarmupBars)
		if err != nil {
			return fmt.Errorf("loading warmup bars for %s: %w", market, err)
		}

		histories[market] = bars
	}

	t.strategy.OnStart(t.cfg.Markets, histories)

	return nil
}

// reconcile compares broker net positions against the strategy view and
// flags drift.
func (t *Trader) reconcile(ctx context.Context) {
	positions, err := t.cfg.Broker.ListPositions(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("listing positions for reconciliation")
		return
	}

	for _, market := range t.cfg.Markets {
		net := broker.NetPosition(positions, t.cfg.ContractCodes[market])
		want := t.strategy.Position(market) * t.cfg.Quantity
		if net != want {
			t.logger.Warn().Str("market", market).Int("broker", net).
				Int("strategy", want).Msg("position drift detected")
			continue
		}

		t.logger.Info().Str("market", market).Int("net", net).
			Msg("positions reconciled")
	}
}

// submit executes the provided signal, logging failures.
func (t *Trader) submit(ctx context.Context, signal *shared.Signal) {
	err := t.submitter.Submit(ctx, signal)
	if err != nil {
		t.logger.Error().Err(err).Str("market", signal.Market).
			Msg("submitting order")
	}
}

// processTick advances bar aggregation, queued fills, settlement closes
// and tick level risk for the provided tick.
func (t *Trader) processTick(ctx context.Context, tick *shared.Tick) {
	if t.cfg.Store != nil {
		err := t.cfg.Store.PersistTick(ctx, tick)
		if err != nil {
			t.logger.Error().Err(err).Msg("persisting tick")
		}
	}

	tradable := shared.InSession(tick.Timestamp, t.cfg.Sessions)
	settling := shared.IsAutoCloseMoment(tick.Timestamp)
	if !tradable && !settling {
		return
	}

	// Hour buckets strictly older than this tick's bucket are complete.
	hourKey := shared.BucketKey(tick.Timestamp, shared.OneHour)
	closed := t.hourBars.PopClosedBars(tick.Market, hourKey)
	for idx := range closed {
		signal := t.strategy.OnBar(&closed[idx])
		if signal != nil {
			// The new hour's opening minute, not this tick's minute. If the
			// opening minute never prints the order stays pending.
			t.scheduler.Register(signal, hourKey)
		}
	}

	t.hourBars.OnTick(tick)

	fillSignal := t.scheduler.Check(tick)
	if fillSignal != nil {
		t.submit(ctx, fillSignal)
	}

	if settling {
		day := shared.BucketKey(tick.Timestamp, shared.OneHour).Truncate(time.Hour * 24)
		if last, ok := t.lastSettle[tick.Market]; !ok || !last.Equal(day) {
			t.lastSettle[tick.Market] = day
			t.submit(ctx, shared.NewSignal(tick.Market, shared.Flat, 0,
				"settlement auto close"))
		}
		return
	}

	signal := t.strategy.OnTick(tick)
	if signal != nil {
		t.submit(ctx, signal)
	}
}

// Run handles the lifecycle processes of the live trader.
func (t *Trader) Run(ctx context.Context) {
	err := t.warmup(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("warming up strategy")
		t.cfg.Cancel()
		return
	}

	_, err = t.jobScheduler.Every(1).Day().At(reconcileTime).Do(func() {
		t.reconcile(ctx)
	})
	if err != nil {
		t.logger.Error().Err(err).Msg("scheduling reconciliation job")
		t.cfg.Cancel()
		return
	}

	t.jobScheduler.StartAsync()
	defer t.jobScheduler.Stop()

	t.logger.Info().Strs("markets", t.cfg.Markets).Msg("trader started")

	for {
		select {
		case <-ctx.Done():
			t.strategy.OnStop()
			err := t.cfg.Feed.Close()
			if err != nil {
				t.logger.Error().Err(err).Msg("closing tick feed")
			}
			t.logger.Info().Msg("trader stopped")
			return
		default:
		}

		tick, err := t.cfg.Feed.NextTick(tickPollTimeout)
		switch {
		case errors.Is(err, shared.ErrNoTick):
			continue
		case err != nil:
			t.logger.Warn().Err(err).Msg("reading tick feed, retrying")
			time.Sleep(feedRetryDelay)
			continue
		}

		t.processTick(ctx, tick)
	}
}
