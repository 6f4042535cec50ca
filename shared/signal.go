package shared

// Side represents the side of a trading signal.
type Side int

const (
	Buy Side = iota
	Sell
	Flat
)

// String stringifies the provided side.
func (s *Side) String() string {
	switch *s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	case Flat:
		return "flat"
	default:
		return "unknown"
	}
}

// Signal represents a trading decision for a market.
type Signal struct {
	Market   string
	Side     Side
	Quantity int
	Note     string
}

// NewSignal initializes a new signal.
func NewSignal(market string, side Side, quantity int, note string) *Signal {
	return &Signal{
		Market:   market,
		Side:     side,
		Quantity: quantity,
		Note:     note,
	}
}
