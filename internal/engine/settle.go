package engine

import (
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"tradesim/internal/models"
)

type positionKey struct {
	epochID       uint
	asset         string
	assetStrategy string
}

// SettleTrades applies executed trades to the position ledger and the cash
// account. Each trade creates or adjusts its position; the per-epoch cash
// delta lands in one cash row at the batch's maximum trade timestamp.
// Trades on the cash asset itself are rejected and skipped.
func SettleTrades(tx *gorm.DB, trades []models.Trade) error {
	epochSet := make(map[uint]bool)
	for i := range trades {
		epochSet[trades[i].EpochID] = true
	}
	epochIDs := make([]uint, 0, len(epochSet))
	for id := range epochSet {
		epochIDs = append(epochIDs, id)
	}

	// zero-quantity rows count as existing here, otherwise re-opening a
	// position closed at the same tstamp would collide with the ledger's
	// unique key
	rows, err := models.FetchMostRecentPositions(tx, epochIDs, "", true)
	if err != nil {
		return err
	}
	positions := make(map[positionKey]*models.Position, len(rows))
	for i := range rows {
		key := positionKey{rows[i].EpochID, rows[i].Asset, rows[i].AssetStrategy}
		positions[key] = &rows[i]
	}

	cash := make(map[uint]*models.Position, len(epochIDs))
	for _, id := range epochIDs {
		c, err := models.FetchMostRecentCash(tx, id)
		if err != nil {
			return err
		}
		cash[id] = c
	}

	cashDelta := make(map[uint]float64)
	maxTst := make(map[uint]time.Time)

	for i := range trades {
		t := &trades[i]
		if t.Asset == models.CashAsset {
			log.Warn().Uint("epoch", t.EpochID).Msg("Cannot trade the cash asset, skipping trade")
			continue
		}

		key := positionKey{t.EpochID, t.Asset, t.AssetStrategy}
		if pos, held := positions[key]; !held {
			row := models.Position{
				EpochID:       t.EpochID,
				Tstamp:        t.Tstamp,
				Asset:         t.Asset,
				AssetStrategy: t.AssetStrategy,
				Quantity:      t.Quantity,
				LastPrice:     t.Price,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			positions[key] = &row
		} else {
			pos.Quantity += t.Quantity
			pos.LastPrice = t.Price
			if t.Tstamp.After(pos.Tstamp) {
				row := models.Position{
					EpochID:       pos.EpochID,
					Tstamp:        t.Tstamp,
					Asset:         pos.Asset,
					AssetStrategy: pos.AssetStrategy,
					Quantity:      pos.Quantity,
					LastPrice:     pos.LastPrice,
				}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
				positions[key] = &row
			} else {
				if err := tx.Save(pos).Error; err != nil {
					return err
				}
			}
		}

		cashDelta[t.EpochID] -= t.Quantity * t.Price
		if t.Tstamp.After(maxTst[t.EpochID]) {
			maxTst[t.EpochID] = t.Tstamp
		}
	}

	for epochID, delta := range cashDelta {
		c := cash[epochID]
		c.Quantity += delta
		if c.Tstamp.Equal(maxTst[epochID]) {
			if err := tx.Save(c).Error; err != nil {
				return err
			}
			continue
		}
		row := models.Position{
			EpochID:       epochID,
			Tstamp:        maxTst[epochID],
			Asset:         models.CashAsset,
			AssetStrategy: models.CashAssetStrategy,
			Quantity:      c.Quantity,
			LastPrice:     1,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}
