package bar

import (
	"slices"
	"time"

	"github.com/cywu/reversal/shared"
)

// Builder accumulates ticks into open/high/low/close/volume buckets keyed
// by their truncated timestamp. A bucket is judged closed purely by the
// arrival of a tick belonging to a strictly later bucket, there is no wall
// clock timer.
type Builder struct {
	timeframe shared.Timeframe
	buckets   map[string]map[time.Time]*shared.Bar
}

// NewBuilder initializes a new bar builder for the provided timeframe.
func NewBuilder(timeframe shared.Timeframe) *Builder {
	return &Builder{
		timeframe: timeframe,
		buckets:   make(map[string]map[time.Time]*shared.Bar),
	}
}

// OnTick updates the accumulator bucket the provided tick belongs to,
// creating it on first touch.
func (b *Builder) OnTick(tick *shared.Tick) {
	key := shared.BucketKey(tick.Timestamp, b.timeframe)

	buckets, ok := b.buckets[tick.Market]
	if !ok {
		buckets = make(map[time.Time]*shared.Bar)
		b.buckets[tick.Market] = buckets
	}

	bucket, ok := buckets[key]
	if !ok {
		buckets[key] = &shared.Bar{
			Market: tick.Market,
			Start:  key,
			Open:   tick.Price,
			High:   tick.Price,
			Low:    tick.Price,
			Close:  tick.Price,
			Volume: tick.Volume,
		}
		return
	}

	if tick.Price > bucket.High {
		bucket.High = tick.Price
	}
	if tick.Price < bucket.Low {
		bucket.Low = tick.Price
	}
	bucket.Close = tick.Price
	bucket.Volume += tick.Volume
}

// PopClosedBars returns every accumulated bucket for the market strictly
// older than the provided bucket key, in ascending bucket start order,
// removing them from the builder.
func (b *Builder) PopClosedBars(market string, currentKey time.Time) []shared.Bar {
	buckets := b.buckets[market]
	if len(buckets) == 0 {
		return nil
	}

	keys := make([]time.Time, 0, len(buckets))
	for key := range buckets {
		if key.Before(currentKey) {
			keys = append(keys, key)
		}
	}

	slices.SortFunc(keys, func(a, b time.Time) int {
		return a.Compare(b)
	})

	closed := make([]shared.Bar, 0, len(keys))
	for idx := range keys {
		closed = append(closed, *buckets[keys[idx]])
		delete(buckets, keys[idx])
	}

	return closed
}
