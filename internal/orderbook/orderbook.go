// Package orderbook matches pending orders against incoming tick batches
// and converts them into executable trades.
//
// Flow per batch: fetch eligible orders (grouped by bracket), resolve each
// order type to a signed quantity, gate on limit/stop-limit, filter the
// minimum trade notional, then mark orders executed or cancelled. Bracket
// members that reach marking end a batch in the same terminal state; a
// member skipped for a missing quote or held back by its limit stays pending.
package orderbook

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"tradesim/internal/models"
	"tradesim/internal/ticks"
)

// PendingTrade is one resolved (quantity, price, tick, order) tuple on its
// way to becoming a trade.
type PendingTrade struct {
	Quantity float64
	Price    float64
	Tick     ticks.Tick
	Order    *models.Order
}

// AggregateTicks reduces a batch to the latest tick per asset, ordered by
// timestamp ascending and by asset name for identical timestamps.
func AggregateTicks(batch []ticks.Tick) []ticks.Tick {
	latest := make(map[string]ticks.Tick, len(batch))
	for _, t := range batch {
		if prev, ok := latest[t.Asset]; !ok || !t.Tst.Before(prev.Tst) {
			latest[t.Asset] = t
		}
	}
	out := make([]ticks.Tick, 0, len(latest))
	for _, t := range latest {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Tst.Equal(out[j].Tst) {
			return out[i].Tst.Before(out[j].Tst)
		}
		return out[i].Asset < out[j].Asset
	})
	return out
}

// Process runs the full matching pipeline for one aggregated tick batch and
// returns the surviving trades. Order state transitions (executed,
// cancelled, stop_limit_activated) are persisted through tx; trades are
// returned unsaved so the caller can persist and settle them in the same
// transaction.
func Process(tx *gorm.DB, quotes *ticks.QuoteStore, batch []ticks.Tick) ([]models.Trade, error) {
	groups, err := FetchOrders(tx, batch)
	if err != nil {
		return nil, err
	}

	// Batch ticks (probes included) drive limit gating and trade
	// timestamps; quantity math always prices off the latest real quote.
	batchTicks := make(map[assetKey]ticks.Tick, len(batch))
	for _, t := range batch {
		batchTicks[assetKey{t.EpochID, t.Asset}] = t
	}

	var resolved []PendingTrade
	for _, brackets := range groups {
		for _, orders := range brackets {
			items, err := resolveBracket(tx, quotes, batchTicks, orders)
			if err != nil {
				return nil, err
			}
			resolved = append(resolved, items...)
		}
	}

	// Sells first, so sales free cash before buys consume it.
	sort.SliceStable(resolved, func(i, j int) bool { return resolved[i].Quantity < resolved[j].Quantity })

	gated, err := CheckLimits(tx, resolved)
	if err != nil {
		return nil, err
	}
	return markOrders(tx, gated)
}

// FetchOrders returns the pending orders eligible for the batch, grouped by
// epoch and target weight bracket. An order qualifies when a tick of the
// batch falls inside its validity window and either matches its asset or
// shares a bracket with an order that does, so partially quoted brackets
// still enter matching as a whole.
func FetchOrders(tx *gorm.DB, batch []ticks.Tick) (map[uint]map[string][]*models.Order, error) {
	type window struct {
		epochID uint
		tst     time.Time
	}
	assetsByWindow := make(map[window][]string)
	for _, t := range batch {
		w := window{epochID: t.EpochID, tst: t.Tst}
		assetsByWindow[w] = append(assetsByWindow[w], t.Asset)
	}

	groups := make(map[uint]map[string][]*models.Order)
	seen := make(map[uint]bool)
	for w, assets := range assetsByWindow {
		var bracketIDs []string
		err := tx.Model(&models.Order{}).
			Distinct("target_weight_bracket_id").
			Where("epoch_id = ? AND executed = ? AND cancelled = ? AND valid_from < ? AND valid_until >= ? AND asset IN ?",
				w.epochID, false, false, w.tst, w.tst, assets).
			Pluck("target_weight_bracket_id", &bracketIDs).Error
		if err != nil {
			return nil, err
		}
		if len(bracketIDs) == 0 {
			continue
		}

		var orders []*models.Order
		err = tx.
			Where("epoch_id = ? AND executed = ? AND cancelled = ? AND valid_from < ? AND valid_until >= ? AND target_weight_bracket_id IN ?",
				w.epochID, false, false, w.tst, w.tst, bracketIDs).
			Find(&orders).Error
		if err != nil {
			return nil, err
		}
		for _, o := range orders {
			if seen[o.ID] {
				continue
			}
			seen[o.ID] = true
			if groups[o.EpochID] == nil {
				groups[o.EpochID] = make(map[string][]*models.Order)
			}
			groups[o.EpochID][o.TargetWeightBracketID] = append(groups[o.EpochID][o.TargetWeightBracketID], o)
		}
	}
	return groups, nil
}

type assetKey struct {
	epochID uint
	asset   string
}

func resolveBracket(tx *gorm.DB, quotes *ticks.QuoteStore, batchTicks map[assetKey]ticks.Tick, orders []*models.Order) ([]PendingTrade, error) {
	if len(orders) > 0 && orders[0].OrderType == models.OrderTargetWeight {
		return resolveTargetWeights(tx, quotes, batchTicks, orders)
	}

	var out []PendingTrade
	for _, o := range orders {
		item, ok, err := resolveOrder(tx, quotes, batchTicks, o)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// resolveOrder derives the signed trade quantity for a single
// non-TARGET_WEIGHT order from the latest quote and the current position.
func resolveOrder(tx *gorm.DB, quotes *ticks.QuoteStore, batchTicks map[assetKey]ticks.Tick, o *models.Order) (PendingTrade, bool, error) {
	latest, ok := quotes.Latest(o.EpochID, o.Asset)
	if !ok {
		log.Warn().Str("asset", o.Asset).Uint("order", o.ID).Msg("No price available, skipping order")
		return PendingTrade{}, false, nil
	}
	tick := latest
	if bt, ok := batchTicks[assetKey{o.EpochID, o.Asset}]; ok {
		tick = bt
	}

	switch o.OrderType {
	case models.OrderClose:
		pos, err := positionFor(tx, o)
		if err != nil {
			return PendingTrade{}, false, err
		}
		quantity := 0.0
		if pos != nil {
			quantity = -pos.Quantity
		}
		return PendingTrade{Quantity: quantity, Tick: tick, Order: o}, true, nil

	case models.OrderTargetQuantity:
		pos, err := positionFor(tx, o)
		if err != nil {
			return PendingTrade{}, false, err
		}
		quantity := 0.0
		if pos != nil {
			quantity = *o.Quantity - pos.Quantity
		}
		return PendingTrade{Quantity: quantity, Tick: tick, Order: o}, true, nil

	case models.OrderPercent:
		cash, err := models.FetchMostRecentCash(tx, o.EpochID)
		if err != nil {
			return PendingTrade{}, false, err
		}
		pos, err := positionFor(tx, o)
		if err != nil {
			return PendingTrade{}, false, err
		}

		var quantity, side float64
		if *o.Quantity < 0 && pos != nil {
			// Negative percent against an open position trades (1 + percent)
			// of the position's value, priced on the position's side.
			side = sidePrice(latest, pos.Quantity > 0)
			quantity = ((1 + *o.Quantity) * pos.Value()) / side
		} else {
			side = sidePrice(latest, *o.Quantity > 0)
			quantity = (*o.Quantity * cash.Value()) / side
		}
		if cash.Value() < 0 || math.Abs(quantity)*side < models.MinTradeSize {
			quantity = 0
		}
		return PendingTrade{Quantity: quantity, Tick: tick, Order: o}, true, nil

	case models.OrderIncreasePercent:
		pos, err := positionFor(tx, o)
		if err != nil {
			return PendingTrade{}, false, err
		}
		if pos == nil {
			log.Warn().Str("asset", o.Asset).Uint("order", o.ID).Msg("No position to increase, cancelling order")
			return PendingTrade{Quantity: 0, Tick: tick, Order: o}, true, nil
		}
		quantity := ((1 + *o.Quantity) * pos.Value()) / sidePrice(latest, *o.Quantity > 0)
		return PendingTrade{Quantity: quantity, Tick: tick, Order: o}, true, nil

	default: // QUANTITY
		return PendingTrade{Quantity: *o.Quantity, Tick: tick, Order: o}, true, nil
	}
}

// resolveTargetWeights prices a whole bracket against a common portfolio
// snapshot. Held assets missing from the bracket get a generated weight-0
// order so they are closed out; bracket assets without a known quote are
// skipped for this batch.
func resolveTargetWeights(tx *gorm.DB, quotes *ticks.QuoteStore, batchTicks map[assetKey]ticks.Tick, orders []*models.Order) ([]PendingTrade, error) {
	first := orders[0]
	byAsset := make(map[string]*models.Order, len(orders))
	for _, o := range orders {
		byAsset[o.Asset] = o
	}

	portfolioValue, positions, err := models.NewPortfolio(tx, first.EpochID).Positions()
	if err != nil {
		return nil, err
	}
	for asset, pos := range positions {
		if pos.AssetStrategy != first.AssetStrategy {
			delete(positions, asset)
		}
	}

	// Held but untargeted assets are closed via generated weight-0 orders.
	zero := 0.0
	for asset := range positions {
		if _, ok := byAsset[asset]; !ok && asset != models.CashAsset {
			byAsset[asset] = &models.Order{
				EpochID:               first.EpochID,
				Asset:                 asset,
				AssetStrategy:         first.AssetStrategy,
				OrderType:             models.OrderTargetWeight,
				ValidFrom:             first.ValidFrom,
				ValidUntil:            first.ValidFrom,
				Quantity:              &zero,
				TargetWeightBracketID: first.TargetWeightBracketID,
				Generated:             true,
			}
		}
	}

	assets := make([]string, 0, len(byAsset))
	for asset := range byAsset {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	var out []PendingTrade
	for _, asset := range assets {
		o := byAsset[asset]
		latest, ok := quotes.Latest(o.EpochID, asset)
		if !ok {
			log.Warn().Str("asset", asset).Uint("order", o.ID).Msg("No price available, skipping bracket asset")
			continue
		}
		tick := latest
		if bt, ok := batchTicks[assetKey{o.EpochID, asset}]; ok {
			tick = bt
		}

		price := latest.Mid()
		quantity := (portfolioValue * *o.Quantity) / price
		if pos, held := positions[asset]; held {
			quantity -= pos.Quantity
		}
		out = append(out, PendingTrade{Quantity: quantity, Price: price, Tick: tick, Order: o})
	}
	return out, nil
}

// markOrders applies the minimum-notional filter, persists terminal order
// states (joint per bracket) and returns the surviving trades in input
// order.
func markOrders(tx *gorm.DB, gated []PendingTrade) ([]models.Trade, error) {
	type groupKey struct {
		epochID uint
		bracket string
	}
	groups := make(map[groupKey][]PendingTrade)
	for _, it := range gated {
		k := groupKey{epochID: it.Order.EpochID, bracket: it.Order.TargetWeightBracketID}
		groups[k] = append(groups[k], it)
	}

	executable := func(it PendingTrade) bool {
		return math.Abs(it.Quantity) > 0 && math.Abs(it.Quantity*it.Price) >= models.MinTradeSize
	}

	for _, items := range groups {
		survived := false
		for _, it := range items {
			if executable(it) {
				survived = true
				break
			}
		}
		for _, it := range items {
			if survived {
				it.Order.Executed = true
			} else {
				it.Order.Cancelled = true
			}
			if err := tx.Save(it.Order).Error; err != nil {
				return nil, err
			}
		}
	}

	var trades []models.Trade
	for _, it := range gated {
		if !executable(it) {
			continue
		}
		trades = append(trades, models.Trade{
			EpochID:       it.Order.EpochID,
			Tstamp:        it.Tick.Tst,
			Asset:         it.Tick.Asset,
			AssetStrategy: it.Order.AssetStrategy,
			Quantity:      it.Quantity,
			Price:         it.Price,
			OrderID:       it.Order.ID,
		})
	}
	return trades, nil
}

func positionFor(tx *gorm.DB, o *models.Order) (*models.Position, error) {
	rows, err := models.FetchMostRecentPositions(tx, []uint{o.EpochID}, o.Asset, true)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].AssetStrategy == o.AssetStrategy {
			return &rows[i], nil
		}
	}
	return nil, nil
}

func sidePrice(t ticks.Tick, buy bool) float64 {
	if buy {
		return t.Ask
	}
	return t.Bid
}
