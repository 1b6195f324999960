// Package tickers feeds tick batches into the engine. The replay ticker
// drives a backtest from historical bars; a live source would implement
// the same interface.
package tickers

import (
	"tradesim/internal/series"
	"tradesim/internal/ticks"
)

// TickSink consumes tick batches. The engine is the canonical sink.
type TickSink interface {
	OnTicks(batch []ticks.Tick) error
}

// EndOfBar is invoked after the last tick batch of a bar with that batch
// and a view of the feature frame up to the current timestamp.
type EndOfBar func(barTicks []ticks.Tick, features *series.Frame) error

// Ticker emits ticks for one epoch until its source is exhausted.
type Ticker interface {
	Start(epochID uint, callback EndOfBar) error
}
