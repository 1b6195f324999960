// Package models defines the persisted trade engine entities and the
// queries over the position ledger. A Strategy owns Epochs; an Epoch owns
// Positions, Orders and Trades. Child-to-parent references are plain id
// lookups, never back-pointers.
package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Wire-level constants.
const (
	CashAsset            = "$$$"
	CashAssetStrategy    = "cash"
	DefaultAssetStrategy = "-"

	// MinTradeSize is the minimum |quantity * price| notional for a trade
	// to execute; smaller trades are dropped, and their order is cancelled
	// unless another member of its bracket trades.
	MinTradeSize = 0.01

	DefaultStartCapital = 100_000
)

// MinDate and MaxDate bound order validity windows and the cash seed row.
var (
	MinDate = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	MaxDate = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
)

// ErrInvariant reports a broken ledger invariant (missing or duplicated
// cash row, duplicate position key). Batches must abort on it.
var ErrInvariant = fmt.Errorf("ledger invariant violation")

// OrderType tags the quantity semantics of an order.
type OrderType string

const (
	OrderClose           OrderType = "CLOSE"
	OrderQuantity        OrderType = "QUANTITY"
	OrderTargetQuantity  OrderType = "TARGET_QUANTITY"
	OrderPercent         OrderType = "PERCENT"
	OrderIncreasePercent OrderType = "INCREASE_PERCENT"
	OrderTargetWeight    OrderType = "TARGET_WEIGHT"
)

// Strategy is one named backtest configuration. Runs are tracked as Epochs.
type Strategy struct {
	ID              uint      `gorm:"primaryKey"`
	Name            string    `gorm:"size:512;uniqueIndex"`
	StartCapital    float64   `gorm:"default:100000"`
	TrainUntil      time.Time
	HyperParameters string `gorm:"type:text"`
}

// LastEpoch returns the strategy's highest-numbered epoch, or nil when the
// strategy has not run yet.
func (s *Strategy) LastEpoch(db *gorm.DB) (*Epoch, error) {
	var epoch Epoch
	err := db.Where("strategy_id = ?", s.ID).Order("epoch DESC").First(&epoch).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &epoch, nil
}

// Epoch is one independent run of a strategy. All positions, orders and
// trades are scoped to an epoch.
type Epoch struct {
	ID         uint `gorm:"primaryKey"`
	StrategyID uint `gorm:"index"`
	Strategy   *Strategy
	Epoch      int
}

// AfterCreate seeds the epoch's cash position so the ledger always has
// exactly one cash row per epoch from the start.
func (e *Epoch) AfterCreate(tx *gorm.DB) error {
	capital := float64(DefaultStartCapital)
	if e.Strategy != nil {
		capital = e.Strategy.StartCapital
	} else {
		var s Strategy
		if err := tx.First(&s, e.StrategyID).Error; err != nil {
			return fmt.Errorf("seed cash position: %w", err)
		}
		capital = s.StartCapital
	}
	return tx.Create(&Position{
		EpochID:       e.ID,
		Tstamp:        MinDate,
		Asset:         CashAsset,
		AssetStrategy: CashAssetStrategy,
		Quantity:      capital,
		LastPrice:     1,
	}).Error
}

// Position is one row of the per-epoch ledger timeseries. Rows are unique
// on (epoch, asset, asset_strategy, tstamp); a write at an existing tstamp
// overwrites the row, anything newer appends.
type Position struct {
	ID            uint      `gorm:"primaryKey"`
	EpochID       uint      `gorm:"uniqueIndex:uniq_asset_position;index:idx_position_epoch_asset_tstamp;index:idx_position_epoch_asset"`
	Tstamp        time.Time `gorm:"uniqueIndex:uniq_asset_position;index:idx_position_epoch_asset_tstamp"`
	Asset         string    `gorm:"size:64;uniqueIndex:uniq_asset_position;index:idx_position_epoch_asset_tstamp;index:idx_position_epoch_asset"`
	AssetStrategy string    `gorm:"size:64;default:-;uniqueIndex:uniq_asset_position"`
	Quantity      float64
	LastPrice     float64

	// Weight is filled by Portfolio.Positions, not persisted.
	Weight float64 `gorm:"-"`
}

// Value is the signed position notional.
func (p *Position) Value() float64 { return p.Quantity * p.LastPrice }

// Order is a pending trade intent with a validity window. Quantity is
// required for every order type except CLOSE, which takes its quantity
// from the current position.
type Order struct {
	ID                    uint      `gorm:"primaryKey"`
	EpochID               uint      `gorm:"index:idx_order_epoch_asset_from"`
	Asset                 string    `gorm:"size:64;index:idx_order_epoch_asset_from"`
	AssetStrategy         string    `gorm:"size:64;default:-"`
	OrderType             OrderType `gorm:"size:20"`
	ValidFrom             time.Time `gorm:"index:idx_order_epoch_asset_from"`
	ValidUntil            time.Time
	Quantity              *float64
	Limit                 *float64 `gorm:"column:limit_price"`
	StopLimit             *float64
	StopLimitActivated    bool
	TargetWeightBracketID string `gorm:"size:64;index"`
	Executed              bool   `gorm:"index"`
	Cancelled             bool   `gorm:"index"`
	Generated             bool
}

// Trade is an executable fill produced by the order book and consumed by
// settlement. Immutable once produced.
type Trade struct {
	ID            uint `gorm:"primaryKey"`
	EpochID       uint `gorm:"index"`
	Tstamp        time.Time
	Asset         string `gorm:"size:64"`
	AssetStrategy string `gorm:"size:64;default:-"`
	Quantity      float64
	Price         float64
	OrderID       uint
}

// Notional is the unsigned trade value.
func (t *Trade) Notional() float64 {
	n := t.Quantity * t.Price
	if n < 0 {
		return -n
	}
	return n
}
