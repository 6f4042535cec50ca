package strategy

import (
	"testing"
	"time"

	"github.com/cywu/reversal/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"
)

const market = "MXF"

func newTestPSAR(t *testing.T) *PSAR {
	t.Helper()

	logger := zerolog.Nop()
	psar, err := NewPSAR(&PSARConfig{
		Quantity:       1,
		AccelFactor:    DefaultAccelFactor,
		MaxAccelFactor: DefaultMaxAccelFactor,
		Logger:         &logger,
	})
	assert.NoError(t, err)

	return psar
}

func warmupBar(open, high, low, close float64) shared.Bar {
	return shared.Bar{
		Market: market,
		Start:  time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: 10,
	}
}

func nextBar(prev shared.Bar, open, high, low, close float64) *shared.Bar {
	return &shared.Bar{
		Market: market,
		Start:  prev.Start.Add(time.Hour),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: 10,
	}
}

func TestPSARWarmupInitialization(t *testing.T) {
	psar := newTestPSAR(t)

	psar.OnStart([]string{market}, map[string][]shared.Bar{
		market: {warmupBar(100, 105, 99, 104)},
	})

	trend, ok := psar.Trend(market)
	assert.True(t, ok)
	assert.Equal(t, shared.Long, trend)

	stop, ok := psar.StopLevel(market)
	assert.True(t, ok)
	assert.Equal(t, float64(99), stop)
}

func TestPSARBearishWarmupBar(t *testing.T) {
	psar := newTestPSAR(t)

	psar.OnStart([]string{market}, map[string][]shared.Bar{
		market: {warmupBar(104, 105, 99, 100)},
	})

	trend, _ := psar.Trend(market)
	assert.Equal(t, shared.Short, trend)

	stop, _ := psar.StopLevel(market)
	assert.Equal(t, float64(105), stop)
}

func TestPSARBarFlip(t *testing.T) {
	psar := newTestPSAR(t)

	first := warmupBar(100, 105, 99, 104)
	psar.OnStart([]string{market}, map[string][]shared.Bar{market: {first}})

	// A bar extending the trend emits nothing.
	extend := nextBar(first, 104, 104.5, 103, 103.5)
	signal := psar.OnBar(extend)
	assert.Equal(t, (*shared.Signal)(nil), signal)

	// A bar breaching the stop emits exactly one opposite side signal.
	breach := nextBar(*extend, 103, 103.5, 98, 98.5)
	signal = psar.OnBar(breach)
	assert.NotNil(t, signal)
	assert.Equal(t, shared.Sell, signal.Side)
	assert.Equal(t, 1, signal.Quantity)

	trend, _ := psar.Trend(market)
	assert.Equal(t, shared.Short, trend)

	// After the flip the stop resets to the old extreme point.
	stop, _ := psar.StopLevel(market)
	assert.Equal(t, float64(105), stop)
}

func TestPSARTickFlip(t *testing.T) {
	psar := newTestPSAR(t)

	psar.OnStart([]string{market}, map[string][]shared.Bar{
		market: {warmupBar(100, 105, 99, 104)},
	})

	ts := time.Date(2024, time.March, 5, 10, 15, 0, 0, time.UTC)

	// Price above the stop extends the trend.
	signal := psar.OnTick(&shared.Tick{Market: market, Timestamp: ts, Price: 101})
	assert.Equal(t, (*shared.Signal)(nil), signal)

	// Price at or below the stop flips immediately.
	signal = psar.OnTick(&shared.Tick{Market: market, Timestamp: ts, Price: 98})
	assert.NotNil(t, signal)
	assert.Equal(t, shared.Sell, signal.Side)
	assert.Equal(t, "psar flip (tick)", signal.Note)

	trend, _ := psar.Trend(market)
	assert.Equal(t, shared.Short, trend)

	// The flip does not repeat on a further adverse tick.
	signal = psar.OnTick(&shared.Tick{Market: market, Timestamp: ts, Price: 97})
	assert.Equal(t, (*shared.Signal)(nil), signal)

	// Crossing back above the unchanged stop flips long again.
	signal = psar.OnTick(&shared.Tick{Market: market, Timestamp: ts, Price: 100})
	assert.NotNil(t, signal)
	assert.Equal(t, shared.Buy, signal.Side)
}

func TestPSARUnknownMarket(t *testing.T) {
	psar := newTestPSAR(t)

	// Ticks before any warmup bar are a no-op.
	signal := psar.OnTick(&shared.Tick{Market: market, Price: 100})
	assert.Equal(t, (*shared.Signal)(nil), signal)

	// The first bar of an unknown market initializes state and emits nothing.
	first := warmupBar(100, 105, 99, 104)
	signal = psar.OnBar(&first)
	assert.Equal(t, (*shared.Signal)(nil), signal)

	trend, ok := psar.Trend(market)
	assert.True(t, ok)
	assert.Equal(t, shared.Long, trend)
}

func TestPSARConfigValidate(t *testing.T) {
	logger := zerolog.Nop()

	tests := []struct {
		name    string
		cfg     PSARConfig
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: PSARConfig{
				Quantity:       1,
				AccelFactor:    0.02,
				MaxAccelFactor: 0.2,
				Logger:         &logger,
			},
			wantErr: false,
		},
		{
			name: "missing quantity",
			cfg: PSARConfig{
				AccelFactor:    0.02,
				MaxAccelFactor: 0.2,
				Logger:         &logger,
			},
			wantErr: true,
		},
		{
			name: "cap below initial factor",
			cfg: PSARConfig{
				Quantity:       1,
				AccelFactor:    0.2,
				MaxAccelFactor: 0.02,
				Logger:         &logger,
			},
			wantErr: true,
		},
	}

	for _, test := range tests {
		err := test.cfg.Validate()
		if test.wantErr && err == nil {
			t.Errorf("%s: expected a validation error", test.name)
		}
		if !test.wantErr && err != nil {
			t.Errorf("%s: unexpected validation error: %v", test.name, err)
		}
	}
}
