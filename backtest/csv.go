package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/cywu/reversal/shared"
)

// WriteTradesCSV persists the provided trade records to a csv file.
func WriteTradesCSV(path string, trades []*Trade) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating trades csv: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"id", "market", "direction", "quantity", "entry_time", "entry_price",
		"exit_time", "exit_price", "pnl", "bars_held"}
	err = writer.Write(header)
	if err != nil {
		return fmt.Errorf("writing trades csv header: %w", err)
	}

	for idx := range trades {
		trade := trades[idx]
		record := []string{
			trade.ID,
			trade.Market,
			trade.Direction.String(),
			strconv.Itoa(trade.Quantity),
			trade.EntryTime.Format(shared.DateLayout),
			strconv.FormatFloat(trade.EntryPrice, 'f', -1, 64),
			trade.ExitTime.Format(shared.DateLayout),
			strconv.FormatFloat(trade.ExitPrice, 'f', -1, 64),
			strconv.FormatFloat(trade.PNL, 'f', -1, 64),
			strconv.Itoa(trade.BarsHeld),
		}
		err = writer.Write(record)
		if err != nil {
			return fmt.Errorf("writing trade record: %w", err)
		}
	}

	return nil
}

// WriteEquityCSV persists the provided equity curve to a csv file.
func WriteEquityCSV(path string, records []EquityRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating equity csv: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	err = writer.Write([]string{"timestamp", "equity"})
	if err != nil {
		return fmt.Errorf("writing equity csv header: %w", err)
	}

	for idx := range records {
		record := []string{
			records[idx].Timestamp.Format(shared.DateLayout),
			strconv.FormatFloat(records[idx].Equity, 'f', -1, 64),
		}
		err = writer.Write(record)
		if err != nil {
			return fmt.Errorf("writing equity record: %w", err)
		}
	}

	return nil
}
