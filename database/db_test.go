package database

import (
	"testing"
	"time"

	"github.com/cywu/reversal/shared"
	"github.com/peterldowns/testy/assert"
)

func TestAggregate(t *testing.T) {
	loc := shared.TaipeiLocation()
	ticks := []shared.Tick{
		{Market: "MXF", Timestamp: time.Date(2024, 5, 6, 9, 0, 5, 0, loc), Price: 20000, Volume: 1},
		{Market: "MXF", Timestamp: time.Date(2024, 5, 6, 9, 20, 0, 0, loc), Price: 20050, Volume: 2},
		{Market: "MXF", Timestamp: time.Date(2024, 5, 6, 9, 40, 0, 0, loc), Price: 19990, Volume: 1},
		{Market: "MXF", Timestamp: time.Date(2024, 5, 6, 10, 0, 0, 0, loc), Price: 20010, Volume: 3},
	}

	bars := aggregate(ticks, shared.OneHour)
	assert.Equal(t, 2, len(bars))

	first := bars[0]
	assert.True(t, first.Start.Equal(time.Date(2024, 5, 6, 9, 0, 0, 0, loc)))
	assert.Equal(t, float64(20000), first.Open)
	assert.Equal(t, float64(20050), first.High)
	assert.Equal(t, float64(19990), first.Low)
	assert.Equal(t, float64(19990), first.Close)
	assert.Equal(t, float64(4), first.Volume)

	// The trailing partial bucket is included.
	second := bars[1]
	assert.True(t, second.Start.Equal(time.Date(2024, 5, 6, 10, 0, 0, 0, loc)))
	assert.Equal(t, float64(20010), second.Open)
	assert.Equal(t, float64(3), second.Volume)
}

func TestAggregateEmpty(t *testing.T) {
	bars := aggregate(nil, shared.OneMinute)
	assert.Equal(t, 0, len(bars))
}

func TestAsFloat(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
	}{
		{
			name: "json number",
			in:   float64(20150.5),
			want: 20150.5,
		},
		{
			name: "integer cell",
			in:   int64(42),
			want: 42,
		},
		{
			name: "unsupported cell type",
			in:   "not a number",
			want: 0,
		},
	}

	for _, test := range tests {
		got := asFloat(test.in)
		if got != test.want {
			t.Errorf("%s: expected %v, got %v", test.name, test.want, got)
		}
	}
}
