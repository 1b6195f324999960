package engine_test

import (
	"testing"

	"tradesim/internal/engine"
	"tradesim/internal/models"
	"tradesim/internal/ticks"
)

func TestRollForwardAppendsNewerTick(t *testing.T) {
	db := testDB(t)
	epoch := newEpoch(t, db, 100_000)

	long := models.Position{EpochID: epoch.ID, Tstamp: day(1), Asset: "abc", AssetStrategy: "-", Quantity: 2, LastPrice: 100}
	if err := db.Create(&long).Error; err != nil {
		t.Fatalf("create position: %v", err)
	}

	batch := []ticks.Tick{{EpochID: epoch.ID, Asset: "abc", Tst: day(2), Bid: 105, Ask: 106}}
	if err := engine.RollForward(db, batch); err != nil {
		t.Fatalf("RollForward: %v", err)
	}

	rows, err := models.FetchMostRecentPositions(db, []uint{epoch.ID}, "abc", false)
	if err != nil {
		t.Fatalf("FetchMostRecentPositions: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	// longs mark at bid
	if !rows[0].Tstamp.Equal(day(2)) || rows[0].LastPrice != 105 {
		t.Errorf("rolled row = %v @ %v, want day 2 @ 105", rows[0].Tstamp, rows[0].LastPrice)
	}

	var n int64
	db.Model(&models.Position{}).Where("epoch_id = ? AND asset = ?", epoch.ID, "abc").Count(&n)
	if n != 2 {
		t.Errorf("abc rows = %d, want 2 (history kept)", n)
	}
}

func TestRollForwardMarksShortAtAsk(t *testing.T) {
	db := testDB(t)
	epoch := newEpoch(t, db, 100_000)

	short := models.Position{EpochID: epoch.ID, Tstamp: day(1), Asset: "abc", AssetStrategy: "-", Quantity: -2, LastPrice: 100}
	if err := db.Create(&short).Error; err != nil {
		t.Fatalf("create position: %v", err)
	}

	batch := []ticks.Tick{{EpochID: epoch.ID, Asset: "abc", Tst: day(2), Bid: 105, Ask: 106}}
	if err := engine.RollForward(db, batch); err != nil {
		t.Fatalf("RollForward: %v", err)
	}

	rows, _ := models.FetchMostRecentPositions(db, []uint{epoch.ID}, "abc", false)
	if rows[0].LastPrice != 106 {
		t.Errorf("short marked at %v, want ask 106", rows[0].LastPrice)
	}
}

func TestRollForwardSameTimestampUpdatesInPlace(t *testing.T) {
	db := testDB(t)
	epoch := newEpoch(t, db, 100_000)

	pos := models.Position{EpochID: epoch.ID, Tstamp: day(2), Asset: "abc", AssetStrategy: "-", Quantity: 2, LastPrice: 100}
	if err := db.Create(&pos).Error; err != nil {
		t.Fatalf("create position: %v", err)
	}

	batch := []ticks.Tick{{EpochID: epoch.ID, Asset: "abc", Tst: day(2), Bid: 101, Ask: 102}}
	if err := engine.RollForward(db, batch); err != nil {
		t.Fatalf("RollForward: %v", err)
	}

	var n int64
	db.Model(&models.Position{}).Where("epoch_id = ? AND asset = ?", epoch.ID, "abc").Count(&n)
	if n != 1 {
		t.Fatalf("abc rows = %d, want 1 (in-place update)", n)
	}
	rows, _ := models.FetchMostRecentPositions(db, []uint{epoch.ID}, "abc", false)
	if rows[0].LastPrice != 101 {
		t.Errorf("last price = %v, want 101", rows[0].LastPrice)
	}
}

func TestRollForwardSkipsLimitProbes(t *testing.T) {
	db := testDB(t)
	epoch := newEpoch(t, db, 100_000)

	pos := models.Position{EpochID: epoch.ID, Tstamp: day(1), Asset: "abc", AssetStrategy: "-", Quantity: 2, LastPrice: 100}
	if err := db.Create(&pos).Error; err != nil {
		t.Fatalf("create position: %v", err)
	}

	probe := []ticks.Tick{{EpochID: epoch.ID, Asset: "abc", Tst: day(2), Bid: 120, Ask: 90}}
	if err := engine.RollForward(db, probe); err != nil {
		t.Fatalf("RollForward: %v", err)
	}

	rows, _ := models.FetchMostRecentPositions(db, []uint{epoch.ID}, "abc", false)
	if !rows[0].Tstamp.Equal(day(1)) || rows[0].LastPrice != 100 {
		t.Errorf("probe tick moved the ledger: %v @ %v", rows[0].Tstamp, rows[0].LastPrice)
	}
}
