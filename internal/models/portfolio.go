package models

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gorm.io/gorm"

	"tradesim/internal/series"
)

// Portfolio is a derived view over one epoch's ledger.
type Portfolio struct {
	db      *gorm.DB
	EpochID uint
}

// NewPortfolio creates a portfolio view for an epoch.
func NewPortfolio(db *gorm.DB, epochID uint) *Portfolio {
	return &Portfolio{db: db, EpochID: epochID}
}

// Positions returns the portfolio value and the most recent position per
// asset. The portfolio value sums absolute position values so that a book
// of longs and shorts still normalizes to weight 1.
func (p *Portfolio) Positions() (float64, map[string]*Position, error) {
	rows, err := FetchMostRecentPositions(p.db, []uint{p.EpochID}, "", false)
	if err != nil {
		return 0, nil, err
	}

	portfolioValue := 0.0
	for i := range rows {
		portfolioValue += math.Abs(rows[i].Value())
	}

	byAsset := make(map[string]*Position, len(rows))
	for i := range rows {
		if portfolioValue > 0 {
			rows[i].Weight = rows[i].Value() / portfolioValue
		}
		byAsset[rows[i].Asset] = &rows[i]
	}
	return portfolioValue, byAsset, nil
}

// PositionHistory returns the epoch's ledger pivoted into a timeseries of
// quantity, last_price, derived value and weight per asset, forward-filled
// across assets, plus a (portfolio, value) column. Columns for a non-default
// asset strategy are labelled asset:asset_strategy.
func (p *Portfolio) PositionHistory(from time.Time) (*series.Frame, error) {
	var rows []Position
	err := p.db.
		Where("epoch_id = ? AND tstamp >= ?", p.EpochID, from).
		Order("asset, asset_strategy, tstamp").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch position history: %w", err)
	}

	stamps := make(map[time.Time]bool)
	labels := make(map[string]bool)
	for i := range rows {
		stamps[rows[i].Tstamp] = true
		labels[historyLabel(&rows[i])] = true
	}

	index := make([]time.Time, 0, len(stamps))
	for t := range stamps {
		index = append(index, t)
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Before(index[j]) })
	at := make(map[time.Time]int, len(index))
	for i, t := range index {
		at[t] = i
	}

	names := make([]string, 0, len(labels))
	for l := range labels {
		names = append(names, l)
	}
	sort.Strings(names)

	frame := series.New(index)
	for _, label := range names {
		quantity := nanSlice(len(index))
		lastPrice := nanSlice(len(index))
		for i := range rows {
			if historyLabel(&rows[i]) != label {
				continue
			}
			j := at[rows[i].Tstamp]
			quantity[j] = rows[i].Quantity
			lastPrice[j] = rows[i].LastPrice
		}
		frame.SetColumn(series.Key{Asset: label, Column: "quantity"}, quantity)
		frame.SetColumn(series.Key{Asset: label, Column: "last_price"}, lastPrice)
	}
	frame = frame.ForwardFill()

	portfolioValue := make([]float64, len(index))
	values := make(map[string][]float64, len(names))
	for _, label := range names {
		quantity, _ := frame.Column(label, "quantity")
		lastPrice, _ := frame.Column(label, "last_price")
		value := make([]float64, len(index))
		for i := range value {
			value[i] = quantity[i] * lastPrice[i]
			if !math.IsNaN(value[i]) {
				portfolioValue[i] += value[i]
			}
		}
		values[label] = value
		frame.SetColumn(series.Key{Asset: label, Column: "value"}, value)
	}
	for _, label := range names {
		weight := make([]float64, len(index))
		for i := range weight {
			weight[i] = values[label][i] / portfolioValue[i]
		}
		frame.SetColumn(series.Key{Asset: label, Column: "weight"}, weight)
	}
	frame.SetColumn(series.Key{Asset: "portfolio", Column: "value"}, portfolioValue)
	return frame, nil
}

func historyLabel(p *Position) string {
	if p.AssetStrategy == DefaultAssetStrategy {
		return p.Asset
	}
	return p.Asset + ":" + p.AssetStrategy
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
