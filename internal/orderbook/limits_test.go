package orderbook_test

import (
	"testing"

	"tradesim/internal/models"
	"tradesim/internal/orderbook"
	"tradesim/internal/ticks"
)

func TestLimitBuyGate(t *testing.T) {
	db := testDB(t)
	epoch := newEpoch(t, db, 100_000)
	order := addOrder(t, db, &models.Order{
		EpochID: epoch.ID, Asset: "FOO", OrderType: models.OrderQuantity,
		Quantity: f(5), Limit: f(9.5),
	})

	// ask above the limit: stays pending
	item := orderbook.PendingTrade{Quantity: 5, Tick: flat(epoch.ID, "FOO", 2, 10), Order: order}
	out, err := orderbook.CheckLimits(db, []orderbook.PendingTrade{item})
	if err != nil {
		t.Fatalf("CheckLimits: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("gated = %d, want 0 while ask > limit", len(out))
	}

	// ask at or below the limit: fills at the ask
	item.Tick = flat(epoch.ID, "FOO", 3, 9.4)
	out, err = orderbook.CheckLimits(db, []orderbook.PendingTrade{item})
	if err != nil {
		t.Fatalf("CheckLimits: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("gated = %d, want 1", len(out))
	}
	if out[0].Price != 9.4 {
		t.Errorf("fill price = %v, want 9.4", out[0].Price)
	}
}

func TestLimitSellGate(t *testing.T) {
	db := testDB(t)
	epoch := newEpoch(t, db, 100_000)
	order := addOrder(t, db, &models.Order{
		EpochID: epoch.ID, Asset: "FOO", OrderType: models.OrderQuantity,
		Quantity: f(-5), Limit: f(11),
	})

	item := orderbook.PendingTrade{Quantity: -5, Tick: flat(epoch.ID, "FOO", 2, 10.5), Order: order}
	out, err := orderbook.CheckLimits(db, []orderbook.PendingTrade{item})
	if err != nil {
		t.Fatalf("CheckLimits: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("gated = %d, want 0 while bid < limit", len(out))
	}

	item.Tick = flat(epoch.ID, "FOO", 3, 11.2)
	out, err = orderbook.CheckLimits(db, []orderbook.PendingTrade{item})
	if err != nil {
		t.Fatalf("CheckLimits: %v", err)
	}
	if len(out) != 1 || out[0].Price != 11.2 {
		t.Fatalf("gated = %v, want one fill at 11.2", out)
	}
}

// A stop-limit walks pending -> activated -> executed, never skipping a
// stage even when the limit would already be satisfied.
func TestStopLimitLadder(t *testing.T) {
	db := testDB(t)
	epoch := newEpoch(t, db, 100_000)
	order := addOrder(t, db, &models.Order{
		EpochID: epoch.ID, Asset: "FOO", OrderType: models.OrderQuantity,
		Quantity: f(5), StopLimit: f(10.5), Limit: f(10.8),
	})

	// below the stop: nothing happens
	item := orderbook.PendingTrade{Quantity: 5, Tick: flat(epoch.ID, "FOO", 2, 10), Order: order}
	out, err := orderbook.CheckLimits(db, []orderbook.PendingTrade{item})
	if err != nil {
		t.Fatalf("CheckLimits: %v", err)
	}
	if len(out) != 0 || order.StopLimitActivated {
		t.Fatal("stop must not trigger below the stop price")
	}

	// stop hit: activates and persists, but does not execute this round
	item.Tick = flat(epoch.ID, "FOO", 3, 10.6)
	out, err = orderbook.CheckLimits(db, []orderbook.PendingTrade{item})
	if err != nil {
		t.Fatalf("CheckLimits: %v", err)
	}
	if len(out) != 0 {
		t.Fatal("activation round must not execute")
	}
	if got := reload(t, db, order); !got.StopLimitActivated {
		t.Fatal("stop activation not persisted")
	}

	// limit satisfied on a later tick: executes
	item.Order = reload(t, db, order)
	item.Tick = flat(epoch.ID, "FOO", 4, 10.7)
	out, err = orderbook.CheckLimits(db, []orderbook.PendingTrade{item})
	if err != nil {
		t.Fatalf("CheckLimits: %v", err)
	}
	if len(out) != 1 || out[0].Price != 10.7 {
		t.Fatalf("gated = %v, want one fill at 10.7", out)
	}
}

func TestTargetWeightBypassesLimits(t *testing.T) {
	db := testDB(t)
	epoch := newEpoch(t, db, 100_000)
	order := addOrder(t, db, &models.Order{
		EpochID: epoch.ID, Asset: "FOO", OrderType: models.OrderTargetWeight,
		Quantity: f(0.5), Limit: f(1),
	})

	item := orderbook.PendingTrade{Quantity: 5000, Price: 10, Tick: flat(epoch.ID, "FOO", 2, 10), Order: order}
	out, err := orderbook.CheckLimits(db, []orderbook.PendingTrade{item})
	if err != nil {
		t.Fatalf("CheckLimits: %v", err)
	}
	if len(out) != 1 || out[0].Price != 10 {
		t.Fatalf("gated = %v, want preset mid price 10", out)
	}
}
