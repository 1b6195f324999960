package models

import (
	"fmt"

	"gorm.io/gorm"
)

// FetchMostRecentPositions returns, for every (asset, asset_strategy) pair
// in scope, the ledger row with the maximum tstamp. Scope narrows to the
// given epochs and/or asset when set. Zero-quantity rows are dropped unless
// includeZero is set; the cash asset is always kept.
func FetchMostRecentPositions(db *gorm.DB, epochIDs []uint, asset string, includeZero bool) ([]Position, error) {
	where := "1 = 1"
	var args []interface{}
	if len(epochIDs) > 0 {
		where += " AND epoch_id IN ?"
		args = append(args, epochIDs)
	}
	if asset != "" {
		where += " AND asset = ?"
		args = append(args, asset)
	}

	sql := fmt.Sprintf(`
		SELECT pos.* FROM positions pos
		JOIN (
			SELECT epoch_id, asset, asset_strategy, MAX(tstamp) AS tstamp
			  FROM positions
			 WHERE %s
			 GROUP BY epoch_id, asset, asset_strategy
		) recent
		  ON recent.epoch_id = pos.epoch_id
		 AND recent.asset = pos.asset
		 AND recent.asset_strategy = pos.asset_strategy
		 AND recent.tstamp = pos.tstamp`, where)

	var rows []Position
	if err := db.Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch most recent positions: %w", err)
	}
	if includeZero {
		return rows, nil
	}

	out := rows[:0]
	for _, p := range rows {
		if p.Quantity != 0 || p.Asset == CashAsset {
			out = append(out, p)
		}
	}
	return out, nil
}

// FetchMostRecentCash returns the epoch's single cash row. Anything other
// than exactly one row is an invariant violation and aborts the batch.
func FetchMostRecentCash(db *gorm.DB, epochID uint) (*Position, error) {
	rows, err := FetchMostRecentPositions(db, []uint{epochID}, CashAsset, true)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("%w: expected one cash position for epoch %d, got %d", ErrInvariant, epochID, len(rows))
	}
	return &rows[0], nil
}
