package orderbook

import (
	"gorm.io/gorm"

	"tradesim/internal/models"
)

// CheckLimits gates resolved orders on their limit and stop-limit prices
// and fixes the effective fill price. Orders that fail their condition stay
// pending and are dropped from the batch; a freshly activated stop-limit is
// persisted but does not execute in the same round. TARGET_WEIGHT orders
// bypass limit handling and keep their mid price.
func CheckLimits(tx *gorm.DB, resolved []PendingTrade) ([]PendingTrade, error) {
	out := resolved[:0]
	for _, it := range resolved {
		o := it.Order
		if o.OrderType == models.OrderTargetWeight {
			out = append(out, it)
			continue
		}

		buy := it.Quantity > 0

		if o.StopLimit != nil && !o.StopLimitActivated {
			activated := false
			if buy {
				activated = *o.StopLimit <= it.Tick.Ask
			} else {
				activated = *o.StopLimit >= it.Tick.Bid
			}
			if activated {
				o.StopLimitActivated = true
				if err := tx.Save(o).Error; err != nil {
					return nil, err
				}
			}
			continue
		}

		if o.Limit != nil {
			if buy && *o.Limit < it.Tick.Ask {
				continue
			}
			if !buy && *o.Limit > it.Tick.Bid {
				continue
			}
		}

		it.Price = sidePrice(it.Tick, buy)
		if o.Limit != nil {
			if buy && *o.Limit < it.Price {
				it.Price = *o.Limit
			}
			if !buy && *o.Limit > it.Price {
				it.Price = *o.Limit
			}
		}
		out = append(out, it)
	}
	return out, nil
}
