package backtest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cywu/reversal/shared"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Position represents simulated exposure in a market.
type Position struct {
	Side     int
	Quantity int
	AvgPrice float64
}

// Trade represents a round trip through a position.
type Trade struct {
	ID         string
	Market     string
	Direction  shared.Direction
	Quantity   int
	EntryTime  time.Time
	EntryPrice float64
	ExitTime   time.Time
	ExitPrice  float64
	PNL        float64
	BarsHeld   int
}

// EquityRecord represents a point on the equity curve.
type EquityRecord struct {
	Timestamp time.Time
	Equity    float64
}

// LedgerConfig represents the backtest ledger configuration.
type LedgerConfig struct {
	// StartCash is the starting account equity.
	StartCash float64
	// Multipliers maps market symbol prefixes to contract multipliers
	// (points to currency). Unmatched symbols default to 1.
	Multipliers map[string]float64
	// Slippage is the per fill slippage in points, applied against the
	// fill direction.
	Slippage float64
	// FeePerContract is the per contract fee charged on trade close.
	FeePerContract float64
	// AutoClose reports whether positions must be force closed at the
	// provided moment.
	AutoClose shared.AutoClosePredicate
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config has sane inputs.
func (cfg *LedgerConfig) Validate() error {
	var errs error

	if cfg.StartCash <= 0 {
		errs = errors.Join(errs, fmt.Errorf("start cash must be positive"))
	}
	if cfg.Slippage < 0 {
		errs = errors.Join(errs, fmt.Errorf("slippage cannot be negative"))
	}
	if cfg.FeePerContract < 0 {
		errs = errors.Join(errs, fmt.Errorf("fee per contract cannot be negative"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Ledger simulates fills, marks open positions to market tick by tick and
// records closed trades and an equity curve. Equity is realized cash plus
// the unrealized excursion of open positions at their last observed price,
// so the sum of closed trade profits always reconciles with final equity.
type Ledger struct {
	cfg       *LedgerConfig
	cash      float64
	positions map[string]*Position
	lastPrice map[string]float64
	trades    []*Trade
	openTrade map[string]*Trade
	records   []EquityRecord
}

// NewLedger initializes a new backtest ledger.
func NewLedger(cfg *LedgerConfig) (*Ledger, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating ledger config: %w", err)
	}

	return &Ledger{
		cfg:       cfg,
		cash:      cfg.StartCash,
		positions: make(map[string]*Position),
		lastPrice: make(map[string]float64),
		openTrade: make(map[string]*Trade),
	}, nil
}

// multiplier resolves the contract multiplier for the provided market by
// symbol prefix, defaulting to 1.
func (l *Ledger) multiplier(market string) float64 {
	for prefix, mult := range l.cfg.Multipliers {
		if strings.HasPrefix(market, prefix) {
			return mult
		}
	}

	return 1
}

// Equity returns the current marked to market equity.
func (l *Ledger) Equity() float64 {
	equity := l.cash
	for market, pos := range l.positions {
		if pos.Side == 0 {
			continue
		}

		price, ok := l.lastPrice[market]
		if !ok {
			continue
		}

		equity += float64(pos.Side) * float64(pos.Quantity) *
			(price - pos.AvgPrice) * l.multiplier(market)
	}

	return equity
}

// closeTrade realizes the market's open trade, if any, at the provided
// price. Closing without an open trade is a guarded no-op.
func (l *Ledger) closeTrade(market string, ts time.Time, price float64) {
	trade, ok := l.openTrade[market]
	if !ok {
		return
	}
	delete(l.openTrade, market)

	pnl := (price - trade.EntryPrice) * float64(trade.Direction.Sign()) *
		float64(trade.Quantity) * l.multiplier(market)
	pnl -= l.cfg.FeePerContract * float64(trade.Quantity)

	trade.ExitTime = ts
	trade.ExitPrice = price
	trade.PNL = pnl

	l.cash += pnl
	l.positions[market] = &Position{}
}

// openTradeRecord opens a new trade record and position for the market.
func (l *Ledger) openTradeRecord(market string, ts time.Time, direction shared.Direction,
	quantity int, price float64) {
	trade := &Trade{
		ID:         uuid.New().String(),
		Market:     market,
		Direction:  direction,
		Quantity:   quantity,
		EntryTime:  ts,
		EntryPrice: price,
	}

	l.trades = append(l.trades, trade)
	l.openTrade[market] = trade
	l.positions[market] = &Position{
		Side:     direction.Sign(),
		Quantity: quantity,
		AvgPrice: price,
	}
}

// OnTick marks the market's position to the tick price, applies the auto
// close predicate, then processes the provided signal, if any, with
// slippage adjusted fills.
func (l *Ledger) OnTick(tick *shared.Tick, signal *shared.Signal) {
	market := tick.Market

	l.lastPrice[market] = tick.Price
	l.records = append(l.records, EquityRecord{Timestamp: tick.Timestamp, Equity: l.Equity()})

	// Monthly settlement auto close.
	if l.cfg.AutoClose != nil && l.cfg.AutoClose(tick.Timestamp) {
		if pos, ok := l.positions[market]; ok && pos.Side != 0 {
			l.cfg.Logger.Info().Msgf("%s: auto closing position at settlement @ %.2f",
				market, tick.Price)
			l.closeTrade(market, tick.Timestamp, tick.Price)
		}
	}

	if signal == nil {
		return
	}

	var targetSide int
	switch signal.Side {
	case shared.Buy:
		targetSide = 1
	case shared.Sell:
		targetSide = -1
	}

	quantity := signal.Quantity
	if quantity == 0 {
		quantity = 1
	}

	fillPrice := tick.Price + l.cfg.Slippage*float64(targetSide)

	current, ok := l.positions[market]
	if !ok {
		current = &Position{}
	}

	// Holding the opposite side closes the existing trade first.
	if current.Side != 0 && targetSide != 0 && current.Side != targetSide {
		l.closeTrade(market, tick.Timestamp, fillPrice)
	}

	if targetSide == 0 {
		if current.Side != 0 {
			l.closeTrade(market, tick.Timestamp, fillPrice)
		}
		return
	}

	// A re-entry on the same side restarts the trade record.
	if _, ok := l.openTrade[market]; ok {
		l.closeTrade(market, tick.Timestamp, fillPrice)
	}

	direction := shared.Long
	if targetSide < 0 {
		direction = shared.Short
	}

	l.openTradeRecord(market, tick.Timestamp, direction, quantity, fillPrice)
}

// OnBarClose increments the holding period of the market's open trade.
func (l *Ledger) OnBarClose(market string) {
	if trade, ok := l.openTrade[market]; ok {
		trade.BarsHeld++
	}
}

// CloseAll force closes every market with an open trade at its last
// observed price, so no position is left unsettled at the end of a run.
func (l *Ledger) CloseAll(asOf time.Time) {
	for market := range l.openTrade {
		price, ok := l.lastPrice[market]
		if !ok {
			continue
		}
		l.closeTrade(market, asOf, price)
	}
}

// Trades returns all trade records in entry order.
func (l *Ledger) Trades() []*Trade {
	return l.trades
}

// EquityCurve returns the recorded equity curve.
func (l *Ledger) EquityCurve() []EquityRecord {
	return l.records
}
