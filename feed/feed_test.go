package feed

import (
	"errors"
	"testing"
	"time"

	"github.com/cywu/reversal/shared"
	"github.com/peterldowns/testy/assert"
)

func TestParseTick(t *testing.T) {
	msg := []byte(`{"type":"tick","market":"MXF","ts":"2024-05-06 09:30:15",` +
		`"price":20150.0,"volume":3,"simtrade":false}`)

	tick, err := parseTick(msg)
	assert.NoError(t, err)
	assert.NotNil(t, tick)
	assert.Equal(t, "MXF", tick.Market)
	assert.Equal(t, float64(20150), tick.Price)
	assert.Equal(t, float64(3), tick.Volume)
	assert.Equal(t, false, tick.Opening)

	want := time.Date(2024, 5, 6, 9, 30, 15, 0, shared.TaipeiLocation())
	assert.True(t, tick.Timestamp.Equal(want))
}

func TestParseTickNonTickMessage(t *testing.T) {
	tick, err := parseTick([]byte(`{"type":"ack","op":"subscribe"}`))
	assert.NoError(t, err)
	assert.True(t, tick == nil)
}

func TestParseTickMalformed(t *testing.T) {
	tests := []struct {
		name string
		msg  string
	}{
		{
			name: "missing market",
			msg:  `{"type":"tick","ts":"2024-05-06 09:30:15","price":1}`,
		},
		{
			name: "bad timestamp",
			msg:  `{"type":"tick","market":"MXF","ts":"yesterday","price":1}`,
		},
	}

	for _, test := range tests {
		_, err := parseTick([]byte(test.msg))
		if err == nil {
			t.Errorf("%s: expected a parse error", test.name)
		}
	}
}

func TestReplayFeed(t *testing.T) {
	loc := shared.TaipeiLocation()
	ticks := []shared.Tick{
		{Market: "MXF", Timestamp: time.Date(2024, 5, 6, 9, 0, 0, 0, loc), Price: 20000},
		{Market: "MXF", Timestamp: time.Date(2024, 5, 6, 9, 0, 59, 0, loc), Price: 20010},
	}

	replay := NewReplayFeed(ticks)
	first, err := replay.NextTick(time.Second)
	assert.NoError(t, err)
	assert.Equal(t, float64(20000), first.Price)

	second, err := replay.NextTick(time.Second)
	assert.NoError(t, err)
	assert.Equal(t, float64(20010), second.Price)

	_, err = replay.NextTick(time.Second)
	assert.True(t, errors.Is(err, shared.ErrNoTick))

	assert.NoError(t, replay.Close())
}

func TestSyntheticTicks(t *testing.T) {
	loc := shared.TaipeiLocation()
	bars := []shared.Bar{
		{
			Market: "MXF",
			Start:  time.Date(2024, 5, 6, 9, 1, 0, 0, loc),
			Open:   20010, High: 20020, Low: 20005, Close: 20015,
			Volume: 7,
		},
		{
			Market: "MXF",
			Start:  time.Date(2024, 5, 6, 9, 0, 0, 0, loc),
			Open:   20000, High: 20012, Low: 19995, Close: 20010,
			Volume: 5,
		},
	}

	ticks := SyntheticTicks(bars)
	assert.Equal(t, 4, len(ticks))

	// Chronological order, opening tick leading each minute pair.
	assert.True(t, ticks[0].Opening)
	assert.Equal(t, float64(20000), ticks[0].Price)
	assert.True(t, ticks[0].Timestamp.Equal(bars[1].Start))

	assert.Equal(t, false, ticks[1].Opening)
	assert.Equal(t, float64(20010), ticks[1].Price)
	assert.Equal(t, float64(5), ticks[1].Volume)

	assert.True(t, ticks[2].Opening)
	assert.Equal(t, float64(20010), ticks[2].Price)

	assert.Equal(t, false, ticks[3].Opening)
	assert.Equal(t, float64(20015), ticks[3].Price)

	// Each closing tick stays inside its opening tick's minute bucket.
	for idx := 0; idx < len(ticks); idx += 2 {
		openKey := shared.BucketKey(ticks[idx].Timestamp, shared.OneMinute)
		closeKey := shared.BucketKey(ticks[idx+1].Timestamp, shared.OneMinute)
		assert.True(t, openKey.Equal(closeKey))
	}
}

func TestSyntheticTicksMultiMarketOrdering(t *testing.T) {
	loc := shared.TaipeiLocation()
	start := time.Date(2024, 5, 6, 9, 0, 0, 0, loc)
	bars := []shared.Bar{
		{Market: "TXF", Start: start, Open: 20100, Close: 20110, Volume: 2},
		{Market: "MXF", Start: start, Open: 20000, Close: 20010, Volume: 3},
	}

	ticks := SyntheticTicks(bars)
	assert.Equal(t, 4, len(ticks))

	// Opening ticks precede closing ticks, markets break ties.
	assert.Equal(t, "MXF", ticks[0].Market)
	assert.True(t, ticks[0].Opening)
	assert.Equal(t, "TXF", ticks[1].Market)
	assert.True(t, ticks[1].Opening)
	assert.Equal(t, "MXF", ticks[2].Market)
	assert.Equal(t, "TXF", ticks[3].Market)
}
