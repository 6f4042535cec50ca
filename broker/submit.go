package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cywu/reversal/shared"
	"github.com/rs/zerolog"
)

const (
	// nightSessionStartHour is the Taipei hour the night session opens.
	nightSessionStartHour = 15
	// nightSessionEndHour is the Taipei hour the night session closes.
	nightSessionEndHour = 5
)

// SubmitterConfig is the configuration for an order submitter.
type SubmitterConfig struct {
	// Broker is the order execution venue.
	Broker shared.Broker
	// ContractCodes maps market names to their tradeable contract codes.
	ContractCodes map[string]string
	// Logger is the submitter logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *SubmitterConfig) Validate() error {
	var errs error

	if cfg.Broker == nil {
		errs = errors.Join(errs, fmt.Errorf("broker cannot be nil"))
	}
	if len(cfg.ContractCodes) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no contract codes provided"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Submitter translates strategy signals into broker orders.
type Submitter struct {
	cfg *SubmitterConfig
}

// NewSubmitter initializes a new order submitter.
func NewSubmitter(cfg *SubmitterConfig) (*Submitter, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating submitter config: %w", err)
	}

	return &Submitter{
		cfg: cfg,
	}, nil
}

// MarketSession returns the session label for the provided time.
func MarketSession(ts time.Time) string {
	local := ts.In(shared.TaipeiLocation())
	if local.Hour() >= nightSessionStartHour || local.Hour() < nightSessionEndHour {
		return "Night"
	}

	return "Day"
}

// Submit executes the provided signal as a market order. Flat signals
// close out the current net position, directional signals open new ones.
func (s *Submitter) Submit(ctx context.Context, signal *shared.Signal) error {
	code, ok := s.cfg.ContractCodes[signal.Market]
	if !ok {
		return fmt.Errorf("no contract code for market %s", signal.Market)
	}

	req := shared.OrderRequest{
		Market:       signal.Market,
		ContractCode: code,
		PriceType:    "MKT",
		TimeInForce:  "IOC",
		OpenClose:    "Auto",
		Session:      MarketSession(time.Now()),
	}

	switch signal.Side {
	case shared.Buy, shared.Sell:
		req.Side = signal.Side
		req.Quantity = signal.Quantity
	case shared.Flat:
		positions, err := s.cfg.Broker.ListPositions(ctx)
		if err != nil {
			return fmt.Errorf("listing positions: %w", err)
		}

		net := NetPosition(positions, code)
		if net == 0 {
			s.cfg.Logger.Info().Str("market", signal.Market).
				Msg("flat signal with no open position, skipping")
			return nil
		}

		req.OpenClose = "Close"
		req.Quantity = net
		req.Side = shared.Sell
		if net < 0 {
			req.Quantity = -net
			req.Side = shared.Buy
		}
	default:
		return fmt.Errorf("unknown signal side: %d", signal.Side)
	}

	resp, err := s.cfg.Broker.PlaceOrder(ctx, req)
	if err != nil {
		return fmt.Errorf("placing %s order for %s: %w",
			req.Side.String(), signal.Market, err)
	}
	if !resp.Ok {
		return fmt.Errorf("order rejected for %s: %s", signal.Market, resp.Err)
	}

	s.cfg.Logger.Info().Str("market", signal.Market).
		Str("side", req.Side.String()).Int("quantity", req.Quantity).
		Str("session", req.Session).Str("note", signal.Note).
		Msg("order placed")

	return nil
}
