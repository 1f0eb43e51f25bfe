package config

import (
	"bytes"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanjamaica/rewards-ledger/ledger"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REWARDS_JWT_SECRET", "test-secret")
	t.Setenv("REWARDS_PORT", "8080")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "rewards.db", cfg.DBPath)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, 72*time.Hour, cfg.StaleRedemptionAfter)
	assert.False(t, cfg.ReservePending)

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, ledger.Points(500), policy.MinRedemption)
	assert.Equal(t, ledger.Points(5000), policy.MonthlyCap)
	assert.Equal(t, ledger.Points(50), policy.SignupBonus)
	assert.Equal(t, ledger.Points(100), policy.PriorityPoints["critical"])
	assert.Equal(t, "America/Jamaica", policy.Location.String())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("REWARDS_JWT_SECRET", "test-secret")
	t.Setenv("REWARDS_PORT", "9090")
	t.Setenv("REWARDS_PRIORITY_POINTS", "Critical:150, High :80")
	t.Setenv("REWARDS_RESERVE_PENDING", "true")
	t.Setenv("REWARDS_STALE_REDEMPTION_AFTER", "24h")
	t.Setenv("REWARDS_TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.StaleRedemptionAfter)

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.True(t, policy.ReservePending)
	assert.Equal(t, map[string]ledger.Points{"critical": 150, "high": 80}, policy.PriorityPoints)
	assert.Equal(t, time.UTC, policy.Location)
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("REWARDS_JWT_SECRET", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("REWARDS_PORT", "8080")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:                  8080,
			DBDriver:              "sqlite",
			DBPath:                "rewards.db",
			JWTSecret:             "secret",
			Timezone:              "America/Jamaica",
			MinRedemption:         500,
			MonthlyCap:            5000,
			PointsPerCurrencyUnit: 1,
			SignupBonus:           50,
			PriorityPoints:        map[string]int64{"critical": 100},
			StaleRedemptionAfter:  time.Hour,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Port = 70000 }, "PORT"},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, "DB_DRIVER"},
		{"postgres without url", func(c *Config) { c.DBDriver = "postgres" }, "DATABASE_URL"},
		{"postgres with url", func(c *Config) {
			c.DBDriver = "postgres"
			c.DatabaseURL = "postgres://localhost/rewards"
		}, ""},
		{"blank secret", func(c *Config) { c.JWTSecret = "  " }, "JWT_SECRET"},
		{"unknown timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "TIMEZONE"},
		{"cap below minimum", func(c *Config) { c.MonthlyCap = 100 }, "monthly cap"},
		{"zero ratio", func(c *Config) { c.PointsPerCurrencyUnit = 0 }, "currency unit"},
		{"empty priority table", func(c *Config) { c.PriorityPoints = nil }, "priority"},
		{"zero stale window", func(c *Config) { c.StaleRedemptionAfter = 0 }, "STALE_REDEMPTION_AFTER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	log, err := NewLogger("debug", "json", &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log.WithField("user_id", "abc").Info("hello")
	assert.Contains(t, buf.String(), `"user_id":"abc"`)
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	_, err = NewLogger("loud", "text", &buf)
	assert.Error(t, err)

	_, err = NewLogger("info", "xml", &buf)
	assert.Error(t, err)
}
