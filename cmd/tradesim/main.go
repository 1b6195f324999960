// Tradesim - tick-driven trade execution engine for backtests
//
// Replays historical bars through the orderbook/portfolio settlement
// pipeline and reports the resulting portfolio.
//
// Pipeline per tick batch: roll-forward -> match -> gate -> settle,
// atomically against the position ledger and cash account.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tradesim/internal/config"
	"tradesim/internal/database"
	"tradesim/internal/engine"
	"tradesim/internal/models"
	"tradesim/internal/series"
	"tradesim/internal/strategy"
	"tradesim/internal/tickers"
	"tradesim/internal/ticks"
)

const version = "1.0.0"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Str("bars", cfg.BarsFile).
		Msg("🚀 Tradesim starting...")

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	frame, err := series.LoadCSV(cfg.BarsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load bars")
	}
	log.Info().
		Int("bars", frame.Len()).
		Strs("assets", frame.Assets()).
		Msg("📈 Bars loaded")

	eng := engine.New(db)
	ticker := tickers.NewReplayTicker(eng, frame)

	sma := strategy.NewStreamingOrders(smaCross(cfg.FastWindow, cfg.SlowWindow))
	strat, err := strategy.Run(db, ticker, sma, strategy.Params{
		Name:         cfg.StrategyName,
		Epochs:       cfg.Epochs,
		StartCapital: cfg.StartCapital,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Backtest failed")
	}

	report(db, strat)
}

// smaCross buys everything on a fast-over-slow moving average cross and
// closes on the cross back down.
func smaCross(fastWindow, slowWindow int) strategy.Generator {
	return func(isTraining bool, barTicks []ticks.Tick, features *series.Frame) ([]strategy.OrderSpec, error) {
		var specs []strategy.OrderSpec
		for _, asset := range features.Assets() {
			closes, ok := features.Column(asset, series.Close)
			if !ok || len(closes) <= slowWindow {
				continue
			}
			fast := series.RollingMean(closes, fastWindow)
			slow := series.RollingMean(closes, slowWindow)

			n := len(closes) - 1
			above := fast[n] > slow[n]
			wasAbove := fast[n-1] > slow[n-1]
			switch {
			case above && !wasAbove:
				specs = append(specs, strategy.OrderSpec{
					Asset:     asset,
					OrderType: models.OrderPercent,
					Quantity:  strategy.Float(1.0),
				})
			case !above && wasAbove:
				specs = append(specs, strategy.OrderSpec{
					Asset:     asset,
					OrderType: models.OrderClose,
				})
			}
		}
		return specs, nil
	}
}

func report(db *gorm.DB, strat *models.Strategy) {
	epoch, err := strat.LastEpoch(db)
	if err != nil || epoch == nil {
		log.Fatal().Err(err).Msg("No epoch to report")
	}

	portfolioValue, positions, err := models.NewPortfolio(db, epoch.ID).Positions()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read portfolio")
	}

	for asset, pos := range positions {
		log.Info().
			Str("asset", asset).
			Float64("quantity", pos.Quantity).
			Str("value", decimal.NewFromFloat(pos.Value()).StringFixed(2)).
			Float64("weight", pos.Weight).
			Msg("Position")
	}
	log.Info().
		Str("portfolio_value", "$"+decimal.NewFromFloat(portfolioValue).StringFixed(2)).
		Float64("return", portfolioValue/strat.StartCapital).
		Msg("💰 Backtest finished")
}
