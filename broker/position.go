package broker

import (
	"strings"

	"github.com/cywu/reversal/shared"
)

// NetPosition normalizes heterogeneous broker position records into a
// signed net quantity for the provided market. Brokers disagree on side
// naming, the explicit mapping here is the only place those variants are
// interpreted.
func NetPosition(records []shared.PositionRecord, market string) int {
	var net int
	for idx := range records {
		record := &records[idx]
		if record.Code == "" {
			continue
		}
		if record.Code != market && !strings.HasPrefix(record.Code, market) {
			continue
		}

		switch strings.ToUpper(record.Side) {
		case "LONG", "B", "BUY":
			net += record.Quantity
		case "SHORT", "S", "SELL":
			net -= record.Quantity
		}
	}

	return net
}
