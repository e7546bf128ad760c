// Package config loads the immutable runtime configuration. All tunables are
// threaded into the services as a value; nothing here is process-global.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/corefin/ledger/internal/money"
)

// Config carries every tunable recognized by the core.
type Config struct {
	// BaseCurrency is the ISO 4217 code balances and totals are kept in.
	BaseCurrency string
	// RoundingMode applies to display and allocation rounding.
	RoundingMode money.RoundingMode
	// Epsilon is the monetary tolerance for balance comparisons.
	Epsilon decimal.Decimal
	// PeriodGraceDays allows posting N days past a period's end date.
	PeriodGraceDays int
	// SchedulerInterval is how often the recurring scheduler wakes.
	SchedulerInterval time.Duration

	Addr        string
	DatabaseURL string
	LogLevel    string
	LogFormat   string
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		BaseCurrency:      "USD",
		RoundingMode:      money.RoundHalfEven,
		Epsilon:           decimal.New(1, -2),
		PeriodGraceDays:   0,
		SchedulerInterval: time.Hour,
		Addr:              ":8080",
	}
}

// Load builds a Config from the environment, reading an optional .env file
// first. Unset variables keep their defaults.
func Load() (Config, error) {
	// .env is a dev convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := Default()
	if v := strings.TrimSpace(os.Getenv("BASE_CURRENCY")); v != "" {
		if !money.ValidCurrency(v) {
			return Config{}, fmt.Errorf("BASE_CURRENCY %q is not ISO 4217", v)
		}
		cfg.BaseCurrency = money.NormalizeCurrency(v)
	}
	if v := strings.TrimSpace(os.Getenv("ROUNDING_MODE")); v != "" {
		m := money.RoundingMode(strings.ToLower(v))
		if !m.Valid() {
			return Config{}, fmt.Errorf("ROUNDING_MODE %q: want half_even or half_up", v)
		}
		cfg.RoundingMode = m
	}
	if v := strings.TrimSpace(os.Getenv("MONETARY_EPSILON")); v != "" {
		eps, err := decimal.NewFromString(v)
		if err != nil || eps.IsNegative() {
			return Config{}, fmt.Errorf("MONETARY_EPSILON %q: %w", v, err)
		}
		cfg.Epsilon = eps
	}
	if v := strings.TrimSpace(os.Getenv("PERIOD_OPEN_GRACE_DAYS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("PERIOD_OPEN_GRACE_DAYS %q", v)
		}
		cfg.PeriodGraceDays = n
	}
	if v := strings.TrimSpace(os.Getenv("RECURRING_SCHEDULER_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("RECURRING_SCHEDULER_INTERVAL %q", v)
		}
		cfg.SchedulerInterval = d
	}
	if v := strings.TrimSpace(os.Getenv("ADDR")); v != "" {
		cfg.Addr = v
	}
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	cfg.LogFormat = os.Getenv("LOG_FORMAT")
	return cfg, nil
}
