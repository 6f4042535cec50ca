package strategy

import (
	"errors"
	"fmt"

	"github.com/cywu/reversal/shared"
	"github.com/rs/zerolog"
)

const (
	// DefaultAccelFactor is the initial parabolic acceleration factor.
	DefaultAccelFactor = 0.02
	// DefaultMaxAccelFactor is the parabolic acceleration factor cap.
	DefaultMaxAccelFactor = 0.2
)

// psarState tracks the parabolic stop state for a market.
type psarState struct {
	trend   shared.Direction
	stop    float64
	extreme float64
	accel   float64
	prevBar shared.Bar
}

// PSARConfig represents the parabolic stop and reverse strategy configuration.
type PSARConfig struct {
	// Quantity is the order quantity attached to emitted signals.
	Quantity int
	// AccelFactor is the initial acceleration factor.
	AccelFactor float64
	// MaxAccelFactor is the acceleration factor cap.
	MaxAccelFactor float64
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config has sane inputs.
func (cfg *PSARConfig) Validate() error {
	var errs error

	if cfg.Quantity <= 0 {
		errs = errors.Join(errs, fmt.Errorf("quantity must be positive"))
	}
	if cfg.AccelFactor <= 0 {
		errs = errors.Join(errs, fmt.Errorf("acceleration factor must be positive"))
	}
	if cfg.MaxAccelFactor < cfg.AccelFactor {
		errs = errors.Join(errs, fmt.Errorf("acceleration factor cap cannot be below the initial factor"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// PSAR is a parabolic stop and reverse trend strategy. It maintains a
// trailing stop level per market from closed bar sequences and flips trend
// when price breaches it, either on bar close or intrabar on a tick.
type PSAR struct {
	cfg   *PSARConfig
	state map[string]*psarState
}

// Ensure PSAR implements the Strategy interface.
var _ shared.Strategy = (*PSAR)(nil)

// NewPSAR initializes a new parabolic stop and reverse strategy.
func NewPSAR(cfg *PSARConfig) (*PSAR, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating psar config: %w", err)
	}

	return &PSAR{
		cfg:   cfg,
		state: make(map[string]*psarState),
	}, nil
}

// initMarket derives initial trend state from the provided first bar.
func (p *PSAR) initMarket(market string, first *shared.Bar) {
	st := &psarState{
		trend:   shared.Long,
		stop:    first.Low,
		extreme: first.High,
		accel:   p.cfg.AccelFactor,
		prevBar: *first,
	}
	if first.Close < first.Open {
		st.trend = shared.Short
		st.stop = first.High
		st.extreme = first.Low
	}

	p.state[market] = st
}

// update advances the parabolic stop with the provided closed bar and
// reports whether the trend flipped.
func (p *PSAR) update(st *psarState, bar *shared.Bar) bool {
	candidate := st.stop + st.accel*(st.extreme-st.stop)
	prev := &st.prevBar

	var flipped bool
	switch st.trend {
	case shared.Long:
		// The stop may never move into the range of the last two bars.
		candidate = min(candidate, prev.Low, bar.Low)
		if bar.High > st.extreme {
			st.extreme = bar.High
			st.accel = min(p.cfg.MaxAccelFactor, st.accel+p.cfg.AccelFactor)
		}
		flipped = bar.Low <= candidate
		if flipped {
			st.trend = shared.Short
			st.stop = st.extreme
			st.extreme = bar.Low
			st.accel = p.cfg.AccelFactor
		} else {
			st.stop = candidate
		}
	case shared.Short:
		candidate = max(candidate, prev.High, bar.High)
		if bar.Low < st.extreme {
			st.extreme = bar.Low
			st.accel = min(p.cfg.MaxAccelFactor, st.accel+p.cfg.AccelFactor)
		}
		flipped = bar.High >= candidate
		if flipped {
			st.trend = shared.Long
			st.stop = st.extreme
			st.extreme = bar.High
			st.accel = p.cfg.AccelFactor
		} else {
			st.stop = candidate
		}
	}

	st.prevBar = *bar
	return flipped
}

// OnStart seeds per market state from the most recent warmup bar.
func (p *PSAR) OnStart(markets []string, warmup map[string][]shared.Bar) {
	for idx := range markets {
		market := markets[idx]
		bars := warmup[market]
		if len(bars) == 0 {
			p.cfg.Logger.Warn().Msgf("no warmup bars for %s, state deferred to first bar", market)
			continue
		}

		p.initMarket(market, &bars[len(bars)-1])
	}
}

// OnBar processes the provided closed bar, emitting a reversal signal when
// the trend flips. The first bar of an unknown market only initializes state.
func (p *PSAR) OnBar(bar *shared.Bar) *shared.Signal {
	st, ok := p.state[bar.Market]
	if !ok {
		p.initMarket(bar.Market, bar)
		return nil
	}

	if !p.update(st, bar) {
		return nil
	}

	side := shared.Buy
	if st.trend == shared.Short {
		side = shared.Sell
	}

	p.cfg.Logger.Info().Msgf("%s trend flipped %s on bar %v, stop now %.2f",
		bar.Market, st.trend.String(), bar.Start, st.stop)

	return shared.NewSignal(bar.Market, side, p.cfg.Quantity, "psar flip (bar)")
}

// OnTick checks the current stop level against the provided tick price and
// flips trend immediately on an intrabar crossing. The stop level itself is
// not recomputed here.
func (p *PSAR) OnTick(tick *shared.Tick) *shared.Signal {
	st, ok := p.state[tick.Market]
	if !ok {
		return nil
	}

	switch {
	case st.trend == shared.Long && tick.Price <= st.stop:
		st.trend = shared.Short
		st.accel = p.cfg.AccelFactor
		st.extreme = tick.Price

		p.cfg.Logger.Info().Msgf("%s trend flipped short on tick @ %.2f", tick.Market, tick.Price)
		return shared.NewSignal(tick.Market, shared.Sell, p.cfg.Quantity, "psar flip (tick)")

	case st.trend == shared.Short && tick.Price >= st.stop:
		st.trend = shared.Long
		st.accel = p.cfg.AccelFactor
		st.extreme = tick.Price

		p.cfg.Logger.Info().Msgf("%s trend flipped long on tick @ %.2f", tick.Market, tick.Price)
		return shared.NewSignal(tick.Market, shared.Buy, p.cfg.Quantity, "psar flip (tick)")
	}

	return nil
}

// OnStop tears down the strategy.
func (p *PSAR) OnStop() {}

// StopLevel returns the current parabolic stop level for the market.
func (p *PSAR) StopLevel(market string) (float64, bool) {
	st, ok := p.state[market]
	if !ok {
		return 0, false
	}

	return st.stop, true
}

// Trend returns the current trend for the market.
func (p *PSAR) Trend(market string) (shared.Direction, bool) {
	st, ok := p.state[market]
	if !ok {
		return 0, false
	}

	return st.trend, true
}
