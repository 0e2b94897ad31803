package models

import "time"

// Stream message types.
const (
	MessageInitial = "initial"
	MessageUpdate  = "update"
	MessageAlert   = "alert"
	MessagePong    = "pong"
)

// InitialMessage carries the full current state to a new subscriber.
type InitialMessage struct {
	Type    string             `json:"type"`
	Prices  map[string]float64 `json:"prices"`
	OHLC    map[string][]Bar   `json:"ohlc,omitempty"`
	Volumes map[string]float64 `json:"volumes,omitempty"`
	Message string             `json:"message,omitempty"`
}

// UpdateMessage is pushed every cycle; absent fields mean unchanged.
type UpdateMessage struct {
	Type      string             `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
	Prices    map[string]float64 `json:"prices,omitempty"`
	OHLC      map[string][]Bar   `json:"ohlc,omitempty"`
	Volumes   map[string]float64 `json:"volumes,omitempty"`
	// Analytics holds the tracked pairs keyed "A/B".
	Analytics map[string]*PairAnalytics `json:"analytics,omitempty"`
}

// AlertMessage wraps an AlertEvent for subscribers.
type AlertMessage struct {
	Type string `json:"type"`
	AlertEvent
}
