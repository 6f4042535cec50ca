package backtest

import (
	"math"
	"time"
)

const (
	// tradingDaysPerYear annualizes the daily sharpe ratio.
	tradingDaysPerYear = 252
	// varianceGuard avoids division by zero for flat return series.
	varianceGuard = 1e-12
)

// Results summarizes a backtest run.
type Results struct {
	StartCash     float64
	EndEquity     float64
	TotalReturn   float64
	SharpeDaily   float64
	MaxDrawdown   float64
	TradeCount    int
	WinRate       float64
	AvgTradePNL   float64
	TotalTradePNL float64
}

// dailyEquity resamples the equity curve to the last record of each day.
// Days roll over at midnight in the record's own location, not UTC.
func dailyEquity(records []EquityRecord) []float64 {
	daily := make([]float64, 0)
	var currentDay time.Time
	for idx := range records {
		ts := records[idx].Timestamp
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
		if idx == 0 || !day.Equal(currentDay) {
			currentDay = day
			daily = append(daily, records[idx].Equity)
			continue
		}
		daily[len(daily)-1] = records[idx].Equity
	}

	return daily
}

// sharpeRatio computes the annualized sharpe ratio of daily returns.
func sharpeRatio(daily []float64) float64 {
	if len(daily) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(daily)-1)
	for idx := 1; idx < len(daily); idx++ {
		if daily[idx-1] == 0 {
			continue
		}
		returns = append(returns, daily[idx]/daily[idx-1]-1)
	}
	if len(returns) == 0 {
		return 0
	}

	var mean float64
	for idx := range returns {
		mean += returns[idx]
	}
	mean /= float64(len(returns))

	var variance float64
	for idx := range returns {
		diff := returns[idx] - mean
		variance += diff * diff
	}
	if len(returns) > 1 {
		variance /= float64(len(returns) - 1)
	}

	std := math.Sqrt(variance)
	return mean / (std + varianceGuard) * math.Sqrt(tradingDaysPerYear)
}

// maxDrawdown computes the deepest drop from the equity high water mark.
func maxDrawdown(records []EquityRecord) float64 {
	var drawdown float64
	var highWater float64
	for idx := range records {
		if records[idx].Equity > highWater {
			highWater = records[idx].Equity
		}
		if highWater == 0 {
			continue
		}
		dd := records[idx].Equity/highWater - 1
		if dd < drawdown {
			drawdown = dd
		}
	}

	return drawdown
}

// Results computes summary statistics for the run.
func (l *Ledger) Results() *Results {
	res := &Results{
		StartCash: l.cfg.StartCash,
		EndEquity: l.cfg.StartCash,
	}

	if len(l.records) > 0 {
		res.EndEquity = l.records[len(l.records)-1].Equity
		res.TotalReturn = res.EndEquity/l.cfg.StartCash - 1
		res.SharpeDaily = sharpeRatio(dailyEquity(l.records))
		res.MaxDrawdown = maxDrawdown(l.records)
	}

	var wins int
	var closed int
	for idx := range l.trades {
		trade := l.trades[idx]
		if trade.ExitTime.IsZero() {
			continue
		}

		closed++
		res.TotalTradePNL += trade.PNL
		if trade.PNL > 0 {
			wins++
		}
	}

	res.TradeCount = closed
	if closed > 0 {
		res.WinRate = float64(wins) / float64(closed)
		res.AvgTradePNL = res.TotalTradePNL / float64(closed)
	}

	return res
}
