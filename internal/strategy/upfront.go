package strategy

import (
	"gorm.io/gorm"

	"tradesim/internal/models"
)

// UpfrontOrders places a fixed order schedule in bulk when the run's first
// epoch is created. Signals computed offline become the schedule; the
// engine does the rest during replay.
type UpfrontOrders struct {
	schedule []ScheduledOrder
}

// NewUpfrontOrders creates an upfront-orders strategy from a schedule.
func NewUpfrontOrders(schedule []ScheduledOrder) *UpfrontOrders {
	return &UpfrontOrders{schedule: schedule}
}

func (u *UpfrontOrders) OnInit(tx *gorm.DB, epoch *models.Epoch) error {
	return PlaceOrders(tx, epoch.ID, u.schedule)
}

func (u *UpfrontOrders) OnEpochEnd(*models.Epoch) error { return nil }
