package strategy

import (
	"gorm.io/gorm"

	"tradesim/internal/models"
	"tradesim/internal/series"
	"tradesim/internal/ticks"
)

// Generator evaluates a streaming strategy at end of bar and returns the
// orders to place, if any.
type Generator func(isTraining bool, barTicks []ticks.Tick, features *series.Frame) ([]OrderSpec, error)

// StreamingOrders asks a generator for orders after every bar. This is the
// front end for strategies that need the cumulative feature frame, such as
// walk-forward model evaluation.
type StreamingOrders struct {
	generator Generator
}

// NewStreamingOrders creates a streaming strategy around a generator.
func NewStreamingOrders(generator Generator) *StreamingOrders {
	return &StreamingOrders{generator: generator}
}

func (s *StreamingOrders) OnInit(*gorm.DB, *models.Epoch) error { return nil }

func (s *StreamingOrders) OnEpochEnd(*models.Epoch) error { return nil }

func (s *StreamingOrders) OnBarEnd(isTraining bool, barTicks []ticks.Tick, features *series.Frame) ([]OrderSpec, error) {
	return s.generator(isTraining, barTicks, features)
}
