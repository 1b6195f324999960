package strategy

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"tradesim/internal/models"
	"tradesim/internal/series"
	"tradesim/internal/tickers"
	"tradesim/internal/ticks"
)

// Strategy hooks into the run lifecycle. OnInit runs once inside a
// transaction when the first epoch is created; OnEpochEnd runs after each
// epoch's ticker is exhausted.
type Strategy interface {
	OnInit(tx *gorm.DB, epoch *models.Epoch) error
	OnEpochEnd(epoch *models.Epoch) error
}

// BarHandler is implemented by strategies that emit orders at end of bar.
// isTraining reflects whether the bar is at or before the strategy's
// train-until cutoff.
type BarHandler interface {
	OnBarEnd(isTraining bool, barTicks []ticks.Tick, features *series.Frame) ([]OrderSpec, error)
}

// Params configures a backtest run.
type Params struct {
	Name            string
	Epochs          int
	StartCapital    float64
	TrainUntil      time.Time
	HyperParameters string

	// Parallel runs epochs concurrently. Epoch state is disjoint, so this
	// is safe for streaming strategies; upfront orders are placed on the
	// first epoch only either way.
	Parallel bool
}

// Run creates the strategy record and drives it through its epochs against
// the ticker. A "realtime" ticker may never return.
func Run(db *gorm.DB, ticker tickers.Ticker, s Strategy, p Params) (*models.Strategy, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("strategy name is required")
	}
	if p.Epochs <= 0 {
		p.Epochs = 1
	}
	if p.StartCapital == 0 {
		p.StartCapital = models.DefaultStartCapital
	}
	if p.TrainUntil.IsZero() {
		p.TrainUntil = models.MaxDate
	}

	strat := &models.Strategy{
		Name:            p.Name,
		StartCapital:    p.StartCapital,
		TrainUntil:      p.TrainUntil,
		HyperParameters: p.HyperParameters,
	}
	if err := db.Create(strat).Error; err != nil {
		return nil, fmt.Errorf("create strategy: %w", err)
	}

	runEpoch := func(e int) error {
		epoch := &models.Epoch{StrategyID: strat.ID, Strategy: strat, Epoch: e}
		if err := db.Create(epoch).Error; err != nil {
			return fmt.Errorf("create epoch %d: %w", e, err)
		}

		if e == 0 {
			err := db.Transaction(func(tx *gorm.DB) error { return s.OnInit(tx, epoch) })
			if err != nil {
				return fmt.Errorf("init epoch %d: %w", e, err)
			}
		}

		log.Info().Str("strategy", strat.Name).Int("epoch", e).Msg("Epoch started")
		if err := ticker.Start(epoch.ID, barCallback(db, strat, epoch, s)); err != nil {
			return fmt.Errorf("epoch %d: %w", e, err)
		}
		return s.OnEpochEnd(epoch)
	}

	if p.Parallel && p.Epochs > 1 {
		var g errgroup.Group
		for e := 0; e < p.Epochs; e++ {
			g.Go(func() error { return runEpoch(e) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return strat, nil
	}

	for e := 0; e < p.Epochs; e++ {
		if err := runEpoch(e); err != nil {
			return nil, err
		}
	}
	return strat, nil
}

// barCallback adapts a BarHandler strategy to the ticker's end-of-bar
// hook: evaluate the strategy on the truncated feature frame and place the
// returned orders at the bar's timestamp.
func barCallback(db *gorm.DB, strat *models.Strategy, epoch *models.Epoch, s Strategy) tickers.EndOfBar {
	handler, ok := s.(BarHandler)
	if !ok {
		return nil
	}
	return func(barTicks []ticks.Tick, features *series.Frame) error {
		if features.Len() == 0 {
			return nil
		}
		last := features.Index()[features.Len()-1]
		isTraining := !last.After(strat.TrainUntil)

		specs, err := handler.OnBarEnd(isTraining, barTicks, features)
		if err != nil {
			return err
		}
		if len(specs) == 0 {
			return nil
		}

		tst := barTicks[0].Tst
		for _, t := range barTicks[1:] {
			if t.Tst.After(tst) {
				tst = t.Tst
			}
		}
		for _, spec := range specs {
			if err := PlaceOrder(db, epoch.ID, tst, spec); err != nil {
				return err
			}
		}
		return nil
	}
}
