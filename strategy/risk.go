package strategy

import (
	"errors"
	"fmt"
	"math"

	"github.com/cywu/reversal/shared"
	"github.com/rs/zerolog"
)

const (
	// DefaultStopLossPoints is the default fixed stop loss distance in points.
	DefaultStopLossPoints = 200
	// DefaultTrailTriggerPoints is the default favorable excursion required
	// to arm the trailing stop, in points.
	DefaultTrailTriggerPoints = 200
	// DefaultTrailRetrace is the default retracement fraction of the maximum
	// favorable excursion that closes an armed position.
	DefaultTrailRetrace = 0.40
)

// riskState tracks risk bookkeeping for a market position.
type riskState struct {
	position int
	entry    float64
	peak     float64
	trough   float64
	armed    bool
}

// RiskConfig represents the risk overlay configuration.
type RiskConfig struct {
	// StopLossPoints is the fixed stop loss distance in raw price points.
	StopLossPoints float64
	// TrailTriggerPoints is the favorable excursion in points that arms the
	// trailing stop.
	TrailTriggerPoints float64
	// TrailRetrace is the retracement fraction of the maximum favorable
	// excursion that triggers an armed trailing stop.
	TrailRetrace float64
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config has sane inputs.
func (cfg *RiskConfig) Validate() error {
	var errs error

	if cfg.StopLossPoints <= 0 {
		errs = errors.Join(errs, fmt.Errorf("stop loss points must be positive"))
	}
	if cfg.TrailTriggerPoints <= 0 {
		errs = errors.Join(errs, fmt.Errorf("trail trigger points must be positive"))
	}
	if cfg.TrailRetrace <= 0 || cfg.TrailRetrace >= 1 {
		errs = errors.Join(errs, fmt.Errorf("trail retrace must be a fraction between 0 and 1"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// RiskPSAR wraps a trend strategy with a fixed stop loss and a trailing
// stop referenced to the favorable excursion extreme since entry. Risk
// driven flat signals take priority over the wrapped strategy's own signal
// for the same tick.
type RiskPSAR struct {
	cfg   *RiskConfig
	inner shared.Strategy
	state map[string]*riskState
}

// Ensure RiskPSAR implements the Strategy interface.
var _ shared.Strategy = (*RiskPSAR)(nil)

// NewRiskPSAR initializes a new risk wrapped trend strategy.
func NewRiskPSAR(cfg *RiskConfig, inner shared.Strategy) (*RiskPSAR, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating risk config: %w", err)
	}
	if inner == nil {
		return nil, fmt.Errorf("wrapped strategy cannot be nil")
	}

	return &RiskPSAR{
		cfg:   cfg,
		inner: inner,
		state: make(map[string]*riskState),
	}, nil
}

// OnStart initializes the wrapped strategy and flat risk bookkeeping.
func (r *RiskPSAR) OnStart(markets []string, warmup map[string][]shared.Bar) {
	r.inner.OnStart(markets, warmup)
	for idx := range markets {
		r.state[markets[idx]] = &riskState{
			peak:   math.Inf(-1),
			trough: math.Inf(1),
		}
	}
}

// marketState returns risk bookkeeping for the market, creating it if needed.
func (r *RiskPSAR) marketState(market string) *riskState {
	st, ok := r.state[market]
	if !ok {
		st = &riskState{
			peak:   math.Inf(-1),
			trough: math.Inf(1),
		}
		r.state[market] = st
	}

	return st
}

// applyRisk evaluates stop loss and trailing stop conditions for the
// provided tick, returning a flat signal when a stop fires.
func (r *RiskPSAR) applyRisk(tick *shared.Tick) *shared.Signal {
	st := r.marketState(tick.Market)
	if st.position == 0 {
		return nil
	}

	price := tick.Price
	switch {
	case st.position > 0:
		st.peak = math.Max(st.peak, price)

		if price <= st.entry-r.cfg.StopLossPoints {
			st.position = 0
			st.armed = false
			return shared.NewSignal(tick.Market, shared.Flat, 0,
				fmt.Sprintf("stop loss %.0fpts", r.cfg.StopLossPoints))
		}
		if price-st.entry >= r.cfg.TrailTriggerPoints {
			st.armed = true
		}
		if st.armed {
			excursion := st.peak - st.entry
			if excursion > 0 && st.peak-price >= r.cfg.TrailRetrace*excursion {
				st.position = 0
				st.armed = false
				return shared.NewSignal(tick.Market, shared.Flat, 0,
					fmt.Sprintf("trailing stop %.0f%% of %.0fpts", r.cfg.TrailRetrace*100, excursion))
			}
		}

	case st.position < 0:
		st.trough = math.Min(st.trough, price)

		if price >= st.entry+r.cfg.StopLossPoints {
			st.position = 0
			st.armed = false
			return shared.NewSignal(tick.Market, shared.Flat, 0,
				fmt.Sprintf("stop loss %.0fpts", r.cfg.StopLossPoints))
		}
		if st.entry-price >= r.cfg.TrailTriggerPoints {
			st.armed = true
		}
		if st.armed {
			excursion := st.entry - st.trough
			if excursion > 0 && price-st.trough >= r.cfg.TrailRetrace*excursion {
				st.position = 0
				st.armed = false
				return shared.NewSignal(tick.Market, shared.Flat, 0,
					fmt.Sprintf("trailing stop %.0f%% of %.0fpts", r.cfg.TrailRetrace*100, excursion))
			}
		}
	}

	return nil
}

// bookSignal updates position bookkeeping to reflect a realized signal at
// the provided price. New entries reset the favorable excursion extremes.
func (r *RiskPSAR) bookSignal(signal *shared.Signal, price float64) {
	if signal == nil {
		return
	}

	st := r.marketState(signal.Market)
	switch signal.Side {
	case shared.Buy:
		st.position = 1
		st.entry = price
		st.peak = price
		st.trough = price
		st.armed = false
	case shared.Sell:
		st.position = -1
		st.entry = price
		st.peak = price
		st.trough = price
		st.armed = false
	case shared.Flat:
		st.position = 0
		st.armed = false
	}
}

// OnTick applies the risk overlay first and defers to the wrapped strategy
// only when no stop fired.
func (r *RiskPSAR) OnTick(tick *shared.Tick) *shared.Signal {
	if riskSignal := r.applyRisk(tick); riskSignal != nil {
		r.bookSignal(riskSignal, tick.Price)
		r.cfg.Logger.Info().Msgf("%s risk exit: %s", tick.Market, riskSignal.Note)
		return riskSignal
	}

	signal := r.inner.OnTick(tick)
	if signal != nil {
		r.bookSignal(signal, tick.Price)
	}

	return signal
}

// OnBar delegates to the wrapped strategy, booking any resulting signal at
// the bar close.
func (r *RiskPSAR) OnBar(bar *shared.Bar) *shared.Signal {
	signal := r.inner.OnBar(bar)
	if signal != nil {
		r.bookSignal(signal, bar.Close)
	}

	return signal
}

// OnStop tears down the wrapped strategy.
func (r *RiskPSAR) OnStop() {
	r.inner.OnStop()
}

// Position returns the signed unit position tracked for the market.
func (r *RiskPSAR) Position(market string) int {
	st, ok := r.state[market]
	if !ok {
		return 0
	}

	return st.position
}
