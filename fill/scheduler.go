package fill

import (
	"errors"
	"fmt"
	"time"

	"github.com/cywu/reversal/shared"
	"github.com/rs/zerolog"
)

// FillNote is the note attached to deferred fill signals.
const FillNote = "next-bar open fill"

// Order is a bar signal waiting for the opening print of the bar following
// the one that produced it.
type Order struct {
	Side       shared.Side
	Quantity   int
	Activation time.Time
}

// SchedulerConfig represents the deferred fill scheduler configuration.
type SchedulerConfig struct {
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config has sane inputs.
func (cfg *SchedulerConfig) Validate() error {
	var errs error

	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Scheduler defers bar close signals to the opening print of the following
// bar, matching charting platform fill semantics. It holds at most one
// pending order per market and fires each exactly once. Tick originated
// signals bypass the scheduler entirely.
type Scheduler struct {
	cfg     *SchedulerConfig
	pending map[string]*Order
	seen    map[string]map[time.Time]struct{}
}

// NewScheduler initializes a new deferred fill scheduler.
func NewScheduler(cfg *SchedulerConfig) (*Scheduler, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating scheduler config: %w", err)
	}

	return &Scheduler{
		cfg:     cfg,
		pending: make(map[string]*Order),
		seen:    make(map[string]map[time.Time]struct{}),
	}, nil
}

// Register queues a bar signal for the market, activated by the opening
// print of the bucket with the provided key. An existing pending order for
// the market is replaced.
func (s *Scheduler) Register(signal *shared.Signal, activation time.Time) {
	if s.pending[signal.Market] != nil {
		s.cfg.Logger.Warn().Msgf("%s: replacing unfilled pending %s order",
			signal.Market, s.pending[signal.Market].Side.String())
	}

	s.pending[signal.Market] = &Order{
		Side:       signal.Side,
		Quantity:   signal.Quantity,
		Activation: activation,
	}
}

// Pending returns the pending order for the market, if any.
func (s *Scheduler) Pending(market string) *Order {
	return s.pending[market]
}

// Check fires the market's pending order if the provided tick is the first
// tick observed inside the activation bucket, the opening print. There is
// no timeout, if the activation bucket never prints the order stays
// pending.
func (s *Scheduler) Check(tick *shared.Tick) *shared.Signal {
	order := s.pending[tick.Market]
	if order == nil {
		return nil
	}

	minuteKey := shared.BucketKey(tick.Timestamp, shared.OneMinute)
	if !minuteKey.Equal(order.Activation) {
		return nil
	}

	seen, ok := s.seen[tick.Market]
	if !ok {
		seen = make(map[time.Time]struct{})
		s.seen[tick.Market] = seen
	}
	if _, ok := seen[minuteKey]; ok {
		return nil
	}
	seen[minuteKey] = struct{}{}

	delete(s.pending, tick.Market)

	s.cfg.Logger.Info().Msgf("%s: filling deferred %s x%d at next bar open @ %.2f",
		tick.Market, order.Side.String(), order.Quantity, tick.Price)

	return shared.NewSignal(tick.Market, order.Side, order.Quantity, FillNote)
}
