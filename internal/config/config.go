// Package config loads runner configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"tradesim/internal/models"
)

type Config struct {
	Debug bool

	// Database: SQLite file path or postgres:// DSN
	DatabasePath string

	// Backtest inputs
	BarsFile     string
	StrategyName string
	StartCapital float64
	Epochs       int

	// SMA-cross demo strategy windows
	FastWindow int
	SlowWindow int
}

func Load() (*Config, error) {
	cfg := &Config{
		Debug:        getEnvBool("DEBUG", false),
		DatabasePath: getEnv("DATABASE_PATH", "data/tradesim.db"),
		BarsFile:     getEnv("BARS_FILE", ""),
		StrategyName: getEnv("STRATEGY_NAME", "sma-cross"),
		StartCapital: getEnvFloat("START_CAPITAL", models.DefaultStartCapital),
		Epochs:       getEnvInt("EPOCHS", 1),
		FastWindow:   getEnvInt("SMA_FAST_WINDOW", 20),
		SlowWindow:   getEnvInt("SMA_SLOW_WINDOW", 60),
	}

	if cfg.BarsFile == "" {
		return nil, fmt.Errorf("BARS_FILE is required")
	}
	if cfg.FastWindow >= cfg.SlowWindow {
		return nil, fmt.Errorf("SMA_FAST_WINDOW must be below SMA_SLOW_WINDOW")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
