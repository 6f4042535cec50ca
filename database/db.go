package database

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cywu/reversal/backtest"
	"github.com/cywu/reversal/bar"
	"github.com/cywu/reversal/shared"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
)

const (
	// SQL statements.
	createTickTableSQL  = "CREATE TABLE IF NOT EXISTS tick (market TEXT, ts INTEGER, price REAL, volume REAL)"
	createTickIndexSQL  = "CREATE INDEX IF NOT EXISTS tick_market_ts ON tick (market, ts)"
	createTradeTableSQL = "CREATE TABLE IF NOT EXISTS trade (id TEXT PRIMARY KEY, market TEXT, direction TEXT, quantity INTEGER, entrytime INTEGER, entryprice REAL, exittime INTEGER, exitprice REAL, pnl REAL, barsheld INTEGER)"
	persistTickSQL      = "INSERT INTO tick(market, ts, price, volume) VALUES(?,?,?,?)"
	persistTradeSQL     = "INSERT INTO trade(id, market, direction, quantity, entrytime, entryprice, exittime, exitprice, pnl, barsheld) VALUES(?,?,?,?,?,?,?,?,?,?)"
	findTicksSinceSQL   = "SELECT ts, price, volume FROM tick WHERE market = ? AND ts >= ? ORDER BY ts ASC"
	findTicksRangeSQL   = "SELECT ts, price, volume FROM tick WHERE market = ? AND ts >= ? AND ts < ? ORDER BY ts ASC"
)

// TickStoreConfig is the configuration for the tick store.
type TickStoreConfig struct {
	// Endpoint represents the database connection endpoint.
	Endpoint string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// Logger is the tick store logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *TickStoreConfig) Validate() error {
	var errs error

	if cfg.Endpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("endpoint cannot be an empty string"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// TickStore persists raw ticks and closed trades, and serves tick
// history aggregated into bars.
type TickStore struct {
	cfg    *TickStoreConfig
	client *rqlitehttp.Client
}

// Ensure the tick store implements the BarLoader interface.
var _ shared.BarLoader = (*TickStore)(nil)

// NewTickStore initializes a new tick store connection.
func NewTickStore(ctx context.Context, cfg *TickStoreConfig) (*TickStore, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating tick store config: %w", err)
	}

	httpc := &http.Client{Timeout: time.Second * 5}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating tick store client: %w", err)
	}

	client.SetBasicAuth(cfg.User, cfg.Pass)

	store := &TickStore{
		cfg:    cfg,
		client: client,
	}

	err = store.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping tick store: %w", err)
	}

	return store, nil
}

// bootstrap initializes the tick store schema.
func (s *TickStore) bootstrap(ctx context.Context) error {
	resp, err := s.client.Execute(ctx, rqlitehttp.SQLStatements{
		{SQL: createTickTableSQL},
		{SQL: createTickIndexSQL},
		{SQL: createTradeTableSQL},
	}, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("creating schema: %d -> %s", idx, errStr)
	}

	return nil
}

// PersistTick stores the provided tick.
func (s *TickStore) PersistTick(ctx context.Context, tick *shared.Tick) error {
	resp, err := s.client.Execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL:              persistTickSQL,
			PositionalParams: []any{tick.Market, tick.Timestamp.Unix(), tick.Price, tick.Volume},
		},
	}, &rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("persisting tick for %s: %d -> %s", tick.Market, idx, errStr)
	}

	return nil
}

// PersistClosedTrade stores the provided closed trade.
func (s *TickStore) PersistClosedTrade(ctx context.Context, trade *backtest.Trade) error {
	resp, err := s.client.Execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: persistTradeSQL,
			PositionalParams: []any{trade.ID, trade.Market, trade.Direction.String(),
				trade.Quantity, trade.EntryTime.Unix(), trade.EntryPrice,
				trade.ExitTime.Unix(), trade.ExitPrice, trade.PNL, trade.BarsHeld},
		},
	}, &rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("persisting trade %s: %d -> %s", trade.ID, idx, errStr)
	}

	return nil
}

// asFloat coerces a query result cell into a float64.
func asFloat(v any) float64 {
	switch value := v.(type) {
	case float64:
		return value
	case int64:
		return float64(value)
	case int:
		return float64(value)
	}

	return 0
}

// queryTicks fetches stored ticks for the market using the provided
// statement and arguments.
func (s *TickStore) queryTicks(ctx context.Context, market string, sql string, args ...any) ([]shared.Tick, error) {
	resp, err := s.client.QuerySingle(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ticks for %s: %w", market, err)
	}

	results := resp.GetQueryResultsAssoc()
	if len(results) == 0 {
		return nil, nil
	}

	rows := results[0].Rows
	ticks := make([]shared.Tick, 0, len(rows))
	for _, row := range rows {
		ticks = append(ticks, shared.Tick{
			Market:    market,
			Timestamp: time.Unix(int64(asFloat(row["ts"])), 0).In(shared.TaipeiLocation()),
			Price:     asFloat(row["price"]),
			Volume:    asFloat(row["volume"]),
		})
	}

	return ticks, nil
}

// aggregate folds the provided ticks into bars of the given timeframe,
// including the still-forming trailing bucket.
func aggregate(ticks []shared.Tick, timeframe shared.Timeframe) []shared.Bar {
	if len(ticks) == 0 {
		return nil
	}

	builder := bar.NewBuilder(timeframe)
	for idx := range ticks {
		builder.OnTick(&ticks[idx])
	}

	market := ticks[0].Market
	last := shared.BucketKey(ticks[len(ticks)-1].Timestamp, timeframe)
	return builder.PopClosedBars(market, last.Add(timeframe.Duration()))
}

// LoadRecentBars returns up to count hourly bars for the market,
// aggregated from stored ticks ending now.
func (s *TickStore) LoadRecentBars(ctx context.Context, market string, count int) ([]shared.Bar, error) {
	now, _, err := shared.TaipeiTime()
	if err != nil {
		return nil, err
	}

	since := now.Add(-time.Duration(count) * time.Hour)
	ticks, err := s.queryTicks(ctx, market, findTicksSinceSQL, market, since.Unix())
	if err != nil {
		return nil, err
	}

	bars := aggregate(ticks, shared.OneHour)
	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}

	s.cfg.Logger.Info().Str("market", market).Int("bars", len(bars)).
		Msg("loaded recent hourly bars")

	return bars, nil
}

// LoadHourlyBars returns hourly bars for the market aggregated from
// stored ticks within [start, end).
func (s *TickStore) LoadHourlyBars(ctx context.Context, market string, start, end time.Time) ([]shared.Bar, error) {
	ticks, err := s.queryTicks(ctx, market, findTicksRangeSQL, market, start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}

	bars := aggregate(ticks, shared.OneHour)

	s.cfg.Logger.Info().Str("market", market).Int("bars", len(bars)).
		Msg("loaded hourly bars")

	return bars, nil
}

// LoadMinuteBars returns minute bars for the market aggregated from
// stored ticks within [start, end).
func (s *TickStore) LoadMinuteBars(ctx context.Context, market string, start, end time.Time) ([]shared.Bar, error) {
	ticks, err := s.queryTicks(ctx, market, findTicksRangeSQL, market, start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}

	bars := aggregate(ticks, shared.OneMinute)

	s.cfg.Logger.Info().Str("market", market).Int("bars", len(bars)).
		Msg("loaded minute bars")

	return bars, nil
}
