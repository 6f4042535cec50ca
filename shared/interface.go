package shared

import (
	"context"
	"errors"
	"time"
)

// ErrNoTick is returned by a tick feed when no tick arrived within the
// requested timeout.
var ErrNoTick = errors.New("no tick available")

// Strategy defines the requirements for a trading strategy variant.
type Strategy interface {
	// OnStart initializes strategy state from the provided warmup bars.
	OnStart(markets []string, warmup map[string][]Bar)
	// OnBar processes a closed bar, returning a signal if one fired.
	OnBar(bar *Bar) *Signal
	// OnTick processes a tick, returning a signal if one fired.
	OnTick(tick *Tick) *Signal
	// OnStop tears down the strategy.
	OnStop()
}

// TickFeed defines the requirements for a live tick transport.
type TickFeed interface {
	// NextTick blocks for at most the provided timeout waiting for the
	// next tick, returning ErrNoTick on timeout.
	NextTick(timeout time.Duration) (*Tick, error)
	// Close releases the feed.
	Close() error
}

// BarLoader defines the requirements for loading historical bars.
type BarLoader interface {
	// LoadRecentBars loads up to count recent hourly bars for the market,
	// ordered by ascending bucket start.
	LoadRecentBars(ctx context.Context, market string, count int) ([]Bar, error)
}

// OrderRequest represents a broker order request.
type OrderRequest struct {
	Market       string
	ContractCode string
	Side         Side
	Quantity     int
	PriceType    string
	TimeInForce  string
	OpenClose    string
	Session      string
}

// OrderResponse represents the broker's response to an order request.
type OrderResponse struct {
	Ok    bool
	Order map[string]string
	Err   string
}

// PositionRecord is a raw broker position record. Brokers disagree on side
// naming, normalization happens at the broker boundary.
type PositionRecord struct {
	Code     string
	Side     string
	Quantity int
}

// Broker defines the requirements for order placement and position queries.
type Broker interface {
	// PlaceOrder submits the provided order request.
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResponse, error)
	// ListPositions returns the account's open position records.
	ListPositions(ctx context.Context) ([]PositionRecord, error)
}
