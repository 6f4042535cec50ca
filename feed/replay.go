package feed

import (
	"slices"
	"strings"
	"time"

	"github.com/cywu/reversal/shared"
)

// closeTickOffset places the synthetic closing tick near the end of its
// minute so it sorts after every opening tick of the same bucket.
const closeTickOffset = time.Second * 59

// ReplayFeed replays a fixed tick series, used for backtests.
type ReplayFeed struct {
	ticks []shared.Tick
	next  int
}

// NewReplayFeed initializes a replay feed over the provided ticks.
func NewReplayFeed(ticks []shared.Tick) *ReplayFeed {
	return &ReplayFeed{
		ticks: ticks,
	}
}

// NextTick returns the next tick in the series. shared.ErrNoTick is
// returned once the series is exhausted.
func (f *ReplayFeed) NextTick(_ time.Duration) (*shared.Tick, error) {
	if f.next >= len(f.ticks) {
		return nil, shared.ErrNoTick
	}

	tick := &f.ticks[f.next]
	f.next++

	return tick, nil
}

// Close is a no-op for replay feeds.
func (f *ReplayFeed) Close() error {
	return nil
}

// SyntheticTicks expands minute bars into opening and closing tick pairs
// for replay. The opening tick carries the bar open at the bucket start,
// the closing tick carries the bar close and volume at the bucket end.
func SyntheticTicks(bars []shared.Bar) []shared.Tick {
	ticks := make([]shared.Tick, 0, len(bars)*2)
	for idx := range bars {
		b := &bars[idx]
		ticks = append(ticks, shared.Tick{
			Market:    b.Market,
			Timestamp: b.Start,
			Price:     b.Open,
			Opening:   true,
		})
		ticks = append(ticks, shared.Tick{
			Market:    b.Market,
			Timestamp: b.Start.Add(closeTickOffset),
			Price:     b.Close,
			Volume:    b.Volume,
		})
	}

	slices.SortFunc(ticks, func(a, b shared.Tick) int {
		if cmp := a.Timestamp.Compare(b.Timestamp); cmp != 0 {
			return cmp
		}
		if a.Opening != b.Opening {
			if a.Opening {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Market, b.Market)
	})

	return ticks
}
