// Package ticks defines the quote tick value type and the latest-quote
// store shared by the order book.
package ticks

import "time"

// Tick is one (timestamp, asset, bid, ask) observation for an epoch.
// Volume is NaN or zero when the source does not report it.
type Tick struct {
	EpochID uint
	Asset   string
	Tst     time.Time
	Bid     float64
	Ask     float64
	Volume  float64
}

// IsLimitProbe reports whether the tick is a synthetic high/low tick
// (bid > ask) injected by a bar replayer to exercise limit and stop
// conditions. Probe ticks never update the latest-quote store.
func (t Tick) IsLimitProbe() bool { return t.Bid > t.Ask }

// Mid returns the bid/ask midpoint.
func (t Tick) Mid() float64 { return (t.Ask + t.Bid) / 2 }
