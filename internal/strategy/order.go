// Package strategy is the strategy-facing surface of the engine: order
// placement, the run lifecycle over epochs, and the upfront/streaming
// order front ends.
package strategy

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tradesim/internal/models"
)

// OrderSpec describes an order intent. Zero-valued fields take their
// defaults at placement: asset strategy "-", valid-until far future, a
// fresh bracket id.
type OrderSpec struct {
	Asset                 string
	OrderType             models.OrderType
	Quantity              *float64
	AssetStrategy         string
	ValidUntil            time.Time
	Limit                 *float64
	StopLimit             *float64
	TargetWeightBracketID string
}

// Float returns a pointer to v, for the nullable OrderSpec fields.
func Float(v float64) *float64 { return &v }

// PlaceOrder persists one order for an epoch, valid strictly after
// validFrom. Every order type except CLOSE requires a quantity.
func PlaceOrder(db *gorm.DB, epochID uint, validFrom time.Time, spec OrderSpec) error {
	order, err := spec.toOrder(epochID, validFrom)
	if err != nil {
		return err
	}
	return db.Create(order).Error
}

// ScheduledOrder pairs an order spec with the time it becomes valid.
type ScheduledOrder struct {
	ValidFrom time.Time
	Spec      OrderSpec
}

// PlaceOrders bulk-inserts a set of scheduled orders for an epoch.
func PlaceOrders(db *gorm.DB, epochID uint, orders []ScheduledOrder) error {
	rows := make([]*models.Order, 0, len(orders))
	for _, so := range orders {
		order, err := so.Spec.toOrder(epochID, so.ValidFrom)
		if err != nil {
			return err
		}
		rows = append(rows, order)
	}
	if len(rows) == 0 {
		return nil
	}
	return db.Create(rows).Error
}

func (s OrderSpec) toOrder(epochID uint, validFrom time.Time) (*models.Order, error) {
	if s.OrderType != models.OrderClose && s.Quantity == nil {
		return nil, fmt.Errorf("order type %s requires a quantity", s.OrderType)
	}

	assetStrategy := s.AssetStrategy
	if assetStrategy == "" {
		assetStrategy = models.DefaultAssetStrategy
	}
	validUntil := s.ValidUntil
	if validUntil.IsZero() {
		validUntil = models.MaxDate
	}
	bracketID := s.TargetWeightBracketID
	if bracketID == "" {
		bracketID = uuid.NewString()
	}

	return &models.Order{
		EpochID:               epochID,
		Asset:                 s.Asset,
		AssetStrategy:         assetStrategy,
		OrderType:             s.OrderType,
		ValidFrom:             validFrom,
		ValidUntil:            validUntil,
		Quantity:              s.Quantity,
		Limit:                 s.Limit,
		StopLimit:             s.StopLimit,
		TargetWeightBracketID: bracketID,
	}, nil
}
