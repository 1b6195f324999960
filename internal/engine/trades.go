package engine

import (
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"tradesim/internal/models"
)

// SaveTrades persists the executed trades of a batch. Under silent a
// persistence failure is logged and swallowed — the caller already sees the
// effect through the ledger; otherwise it is surfaced.
func SaveTrades(tx *gorm.DB, trades []models.Trade, silent bool) error {
	if len(trades) == 0 {
		return nil
	}
	if err := tx.Create(&trades).Error; err != nil {
		if !silent {
			return err
		}
		log.Warn().Err(err).Int("trades", len(trades)).Msg("Failed to save trades")
	}
	return nil
}
