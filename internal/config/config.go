// Package config loads process configuration from environment variables,
// optionally sourced from a .env file via godotenv, the same env-var-plus-
// defaults pattern the teacher uses for its own Config.Load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/quantlab/optionsim/types"
)

// Config holds every knob the simulated options-trading backend reads at
// startup.
type Config struct {
	Debug bool

	// Engine simulation knobs.
	SimulatedSlippage float64
	SimulatedFillRate float64

	// Pricing inputs for the synthetic market-data feed. The risk evaluator
	// does not read these; it prices with its own fixed 0.02 rate and 0.20
	// volatility.
	RiskFreeRate      float64
	DefaultVolatility float64

	// Risk limits and refresh cadence.
	RiskLimits        types.RiskLimits
	RiskRefreshPeriod time.Duration

	// LogLevel is a zerolog level name ("debug", "info", "warn", "error").
	LogLevel string
}

// Load reads configuration from the environment, loading a .env file
// first if one is present (godotenv.Load returns an error when the file
// is simply absent, which Load treats as fine — only a malformed file is
// fatal).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	defaults := types.DefaultRiskLimits()
	cfg := &Config{
		Debug:             getEnvBool("DEBUG", false),
		SimulatedSlippage: getEnvFloat("SIMULATED_SLIPPAGE", 0.01),
		SimulatedFillRate: getEnvFloat("SIMULATED_FILL_RATE", 0.95),
		RiskFreeRate:      getEnvFloat("RISK_FREE_RATE", 0.02),
		DefaultVolatility: getEnvFloat("DEFAULT_VOLATILITY", 0.20),
		RiskRefreshPeriod: getEnvDuration("RISK_REFRESH_PERIOD", 5*time.Second),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		RiskLimits: types.RiskLimits{
			MaxDelta:        getEnvFloat("RISK_MAX_DELTA", defaults.MaxDelta),
			MaxGamma:        getEnvFloat("RISK_MAX_GAMMA", defaults.MaxGamma),
			MaxVega:         getEnvFloat("RISK_MAX_VEGA", defaults.MaxVega),
			MaxTheta:        getEnvFloat("RISK_MAX_THETA", defaults.MaxTheta),
			MaxPositionSize: getEnvFloat("RISK_MAX_POSITION_SIZE", defaults.MaxPositionSize),
			MaxLoss:         getEnvFloat("RISK_MAX_LOSS", defaults.MaxLoss),
		},
	}

	if cfg.SimulatedSlippage < 0 || cfg.SimulatedSlippage > 1 {
		return nil, fmt.Errorf("config: SIMULATED_SLIPPAGE must be in [0,1], got %f", cfg.SimulatedSlippage)
	}
	if cfg.SimulatedFillRate < 0 || cfg.SimulatedFillRate > 1 {
		return nil, fmt.Errorf("config: SIMULATED_FILL_RATE must be in [0,1], got %f", cfg.SimulatedFillRate)
	}

	return cfg, nil
}

// ZerologLevel parses LogLevel, falling back to InfoLevel on a bad value.
func (c *Config) ZerologLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
