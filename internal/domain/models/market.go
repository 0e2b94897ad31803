package models

import "time"

// Tick is a single validated trade print from the feed.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
}

// Bar is an OHLCV record for one symbol and timeframe.
// Notional is the running Σ price·size used for VWAP.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	OpenTime  time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	VWAP      float64   `json:"vwap"`
	Notional  float64   `json:"-"`
}

// MarketSnapshot is a point-in-time copy of the aggregator state.
type MarketSnapshot struct {
	Timestamp  time.Time            `json:"timestamp"`
	Prices     map[string]float64   `json:"prices"`
	Volumes    map[string]float64   `json:"volumes"`
	OHLC       map[string][]Bar     `json:"ohlc,omitempty"`
	LastUpdate map[string]time.Time `json:"last_update,omitempty"`
}
