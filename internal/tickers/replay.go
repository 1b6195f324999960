package tickers

import (
	"math"
	"math/rand"

	"tradesim/internal/series"
	"tradesim/internal/ticks"
)

// PricePair names the bar columns used as (bid, ask) for one tick of a
// bar's replay sequence.
type PricePair struct {
	Bid string
	Ask string
}

// ReplayTicker replays a bar frame as tick batches. Each bar emits one
// batch per price pair; the default (Open,Open), (High,Low), (Close,Close)
// sequence puts a limit-probe tick (bid=High > ask=Low) between open and
// close so resting limit and stop orders inside the bar's range trigger.
type ReplayTicker struct {
	sink          TickSink
	frame         *series.Frame
	prices        []PricePair
	slippageFixed float64
	slippageStd   float64
	volumeColumn  string
}

// ReplayOption customizes a ReplayTicker.
type ReplayOption func(*ReplayTicker)

// WithPricePairs overrides the per-bar tick sequence.
func WithPricePairs(pairs ...PricePair) ReplayOption {
	return func(r *ReplayTicker) { r.prices = pairs }
}

// WithSlippage widens non-probe quotes by a fixed amount plus a sample
// from |N(0, std)|.
func WithSlippage(fixed, std float64) ReplayOption {
	return func(r *ReplayTicker) { r.slippageFixed, r.slippageStd = fixed, std }
}

// WithVolume attaches the given bar column as tick volume.
func WithVolume(column string) ReplayOption {
	return func(r *ReplayTicker) { r.volumeColumn = column }
}

// NewReplayTicker creates a replay ticker over a bar frame.
func NewReplayTicker(sink TickSink, frame *series.Frame, opts ...ReplayOption) *ReplayTicker {
	r := &ReplayTicker{
		sink:  sink,
		frame: frame,
		prices: []PricePair{
			{Bid: series.Open, Ask: series.Open},
			{Bid: series.High, Ask: series.Low},
			{Bid: series.Close, Ask: series.Close},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start replays every bar as its tick batch sequence and invokes the
// callback at end of bar with the truncated feature frame. Assets without
// data for a bar are left out of that bar's batches.
func (r *ReplayTicker) Start(epochID uint, callback EndOfBar) error {
	assets := r.frame.Assets()
	for i, tst := range r.frame.Index() {
		var last []ticks.Tick
		for _, pair := range r.prices {
			batch := make([]ticks.Tick, 0, len(assets))
			for _, asset := range assets {
				bid := r.frame.At(i, asset, pair.Bid)
				ask := r.frame.At(i, asset, pair.Ask)
				if math.IsNaN(bid) || math.IsNaN(ask) {
					continue
				}
				if pair.Bid == pair.Ask && (r.slippageFixed != 0 || r.slippageStd != 0) {
					slip := r.slippageFixed + math.Abs(rand.NormFloat64())*r.slippageStd
					bid -= slip
					ask += slip
				}
				volume := math.NaN()
				if r.volumeColumn != "" {
					volume = r.frame.At(i, asset, r.volumeColumn)
				}
				batch = append(batch, ticks.Tick{
					EpochID: epochID,
					Asset:   asset,
					Tst:     tst,
					Bid:     bid,
					Ask:     ask,
					Volume:  volume,
				})
			}
			if len(batch) == 0 {
				continue
			}
			if err := r.sink.OnTicks(batch); err != nil {
				return err
			}
			last = batch
		}
		if callback != nil && last != nil {
			if err := callback(last, r.frame.Truncate(tst)); err != nil {
				return err
			}
		}
	}
	return nil
}
