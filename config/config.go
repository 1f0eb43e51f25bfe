/*
Package config loads service settings from the environment.

PURPOSE:
  Every tunable of the service (listen port, store, token secret, reward
  numbers, scheduler) comes from REWARDS_* environment variables, mapped
  with envconfig struct tags. The unprefixed name is accepted as a fallback
  (PORT, DATABASE_URL).

EXAMPLE:
  REWARDS_JWT_SECRET=dev-secret \
  REWARDS_PRIORITY_POINTS="critical:150,high:75,medium:50,low:25" \
  ./server

SEE ALSO:
  - logging.go: logrus setup from LOG_LEVEL / LOG_FORMAT
  - cmd/server/main.go: Consumer
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/cleanjamaica/rewards-ledger/ledger"
	"github.com/cleanjamaica/rewards-ledger/rewards"
)

// Prefix is prepended to every variable name.
const Prefix = "REWARDS"

// Config holds all service settings.
type Config struct {
	// --- HTTP ---
	Port        int      `envconfig:"PORT" default:"8080"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173,http://localhost:3000"`

	// --- Store ---
	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBPath      string `envconfig:"DB_PATH" default:"rewards.db"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10"`

	// --- Auth ---
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
	JWTIssuer string `envconfig:"JWT_ISSUER"`

	// --- Logging ---
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// --- Rewards ---
	Timezone              string           `envconfig:"TIMEZONE" default:"America/Jamaica"`
	MinRedemption         int64            `envconfig:"MIN_REDEMPTION" default:"500"`
	MonthlyCap            int64            `envconfig:"MONTHLY_CAP" default:"5000"`
	PointsPerCurrencyUnit int64            `envconfig:"POINTS_PER_CURRENCY_UNIT" default:"1"`
	SignupBonus           int64            `envconfig:"SIGNUP_BONUS" default:"50"`
	PriorityPoints        map[string]int64 `envconfig:"PRIORITY_POINTS" default:"critical:100,high:75,medium:50,low:25"`
	ReservePending        bool             `envconfig:"RESERVE_PENDING" default:"false"`

	// --- Scheduler ---
	SchedulerEnabled     bool          `envconfig:"SCHEDULER_ENABLED" default:"true"`
	StaleRedemptionCron  string        `envconfig:"STALE_REDEMPTION_CRON" default:"0 * * * *"`
	StaleRedemptionAfter time.Duration `envconfig:"STALE_REDEMPTION_AFTER" default:"72h"`
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver)
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if c.StaleRedemptionAfter <= 0 {
		return fmt.Errorf("STALE_REDEMPTION_AFTER must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	return nil
}

// Location resolves the service timezone used for monthly cap windows and cron.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Policy builds the reward policy from the configured numbers.
func (c *Config) Policy() (rewards.Policy, error) {
	loc, err := c.Location()
	if err != nil {
		return rewards.Policy{}, err
	}

	table := make(map[string]ledger.Points, len(c.PriorityPoints))
	for priority, points := range c.PriorityPoints {
		table[rewards.PriorityKey(priority)] = ledger.Points(points)
	}

	p := rewards.Policy{
		MinRedemption:         ledger.Points(c.MinRedemption),
		MonthlyCap:            ledger.Points(c.MonthlyCap),
		PointsPerCurrencyUnit: ledger.Points(c.PointsPerCurrencyUnit),
		SignupBonus:           ledger.Points(c.SignupBonus),
		PriorityPoints:        table,
		Location:              loc,
		ReservePending:        c.ReservePending,
	}
	if err := p.Validate(); err != nil {
		return rewards.Policy{}, fmt.Errorf("invalid reward settings: %w", err)
	}
	return p, nil
}
