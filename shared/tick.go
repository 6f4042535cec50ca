package shared

import (
	"time"
)

// Tick represents a single trade print for a market.
type Tick struct {
	Market    string
	Timestamp time.Time
	Price     float64
	Volume    float64

	// Opening marks a synthetic tick standing in for a bucket's opening
	// print. Backtests replay each minute bar as an opening tick followed
	// by a closing tick to approximate intrabar order.
	Opening bool
}

// Bar represents aggregated trade activity for a market over a time bucket.
type Bar struct {
	Market string
	Start  time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}
