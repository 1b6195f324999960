// Package engine chains the per-batch pipeline: roll positions forward,
// match orders, execute trades, settle against positions and cash.
//
// The event cascade (tick -> position_updated -> trade_executed) is inlined
// as direct calls; each tick batch runs as one all-or-nothing transaction.
package engine

import (
	"sort"

	"gorm.io/gorm"

	"tradesim/internal/orderbook"
	"tradesim/internal/ticks"
)

// Engine processes tick batches against the ledger. One engine owns one
// latest-quote store; its lifecycle is a single backtest run.
type Engine struct {
	db     *gorm.DB
	quotes *ticks.QuoteStore
}

// New creates an engine on top of an opened database.
func New(db *gorm.DB) *Engine {
	return &Engine{db: db, quotes: ticks.NewQuoteStore()}
}

// Quotes exposes the latest-quote store, mainly for tests and diagnostics.
func (e *Engine) Quotes() *ticks.QuoteStore { return e.quotes }

// Reset clears run-scoped state between backtest runs.
func (e *Engine) Reset() { e.quotes.Reset() }

// OnTicks runs one tick batch through roll-forward, order matching and
// settlement inside a single transaction. A failure anywhere rolls back
// every ledger and order mutation of the batch.
func (e *Engine) OnTicks(batch []ticks.Tick) error {
	if len(batch) == 0 {
		return nil
	}
	batch = canonicalize(batch)

	return e.db.Transaction(func(tx *gorm.DB) error {
		if err := RollForward(tx, batch); err != nil {
			return err
		}

		agg := orderbook.AggregateTicks(batch)
		e.quotes.Update(agg)

		trades, err := orderbook.Process(tx, e.quotes, agg)
		if err != nil {
			return err
		}
		if len(trades) == 0 {
			return nil
		}

		if err := SaveTrades(tx, trades, true); err != nil {
			return err
		}
		return SettleTrades(tx, trades)
	})
}

// canonicalize orders a batch by timestamp ascending, then by asset name.
func canonicalize(batch []ticks.Tick) []ticks.Tick {
	out := make([]ticks.Tick, len(batch))
	copy(out, batch)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Tst.Equal(out[j].Tst) {
			return out[i].Tst.Before(out[j].Tst)
		}
		return out[i].Asset < out[j].Asset
	})
	return out
}
