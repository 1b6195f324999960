package engine

import (
	"gorm.io/gorm"

	"tradesim/internal/models"
	"tradesim/internal/ticks"
)

// RollForward marks open positions to market for every tick in the batch.
// A tick newer than the ledger head appends a fresh row, a tick at the same
// timestamp overwrites the head's price. Longs are marked at bid, shorts at
// ask. Limit-probe ticks are skipped entirely.
func RollForward(tx *gorm.DB, batch []ticks.Tick) error {
	for _, t := range batch {
		if t.IsLimitProbe() {
			continue
		}

		positions, err := models.FetchMostRecentPositions(tx, nil, t.Asset, false)
		if err != nil {
			return err
		}
		for i := range positions {
			p := &positions[i]
			price := t.Ask
			if p.Quantity > 0 {
				price = t.Bid
			}

			if t.Tst.After(p.Tstamp) {
				row := models.Position{
					EpochID:       p.EpochID,
					Tstamp:        t.Tst,
					Asset:         p.Asset,
					AssetStrategy: p.AssetStrategy,
					Quantity:      p.Quantity,
					LastPrice:     price,
				}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
			} else {
				p.LastPrice = price
				if err := tx.Save(p).Error; err != nil {
					return err
				}
			}
		}
	}
	return nil
}
