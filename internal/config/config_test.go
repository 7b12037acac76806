package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("PLATFORM_FEE_PERCENT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "usd", cfg.Payment.Currency)
	assert.Equal(t, 3.0, cfg.Payment.PlatformFeePercent)
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("PAYMENT_CURRENCY", "CAD")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("FRONTEND_BASE_URL", "https://market.example/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "cache:6380", cfg.Redis.Addr())
	assert.Equal(t, "cad", cfg.Payment.Currency)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Frontend.AllowedOrigins)
	assert.Equal(t, "https://market.example", cfg.Frontend.BaseURL)
}

func TestValidateProduction(t *testing.T) {
	cfg := &Config{Environment: "production"}
	cfg.JWT.SecretKey = "your-secret-key-change-in-production"
	assert.Error(t, cfg.Validate())

	cfg.JWT.SecretKey = "s3cret"
	cfg.Database.Password = "pw"
	assert.NoError(t, cfg.Validate())

	cfg.Payment.StripeSecretKey = "sk_live_x"
	assert.Error(t, cfg.Validate())

	cfg.Payment.StripeWebhookSecret = "whsec_x"
	cfg.Payment.PlatformFeePercent = 120
	assert.Error(t, cfg.Validate())
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "market", Password: "pw", Database: "farmers_market", SSLMode: "require"}

	assert.Equal(t, "host=db port=5432 user=market password=pw dbname=farmers_market sslmode=require TimeZone=UTC application_name=farmers-market", d.DSN())
	assert.Equal(t, "market@db:5432/farmers_market", d.Target())
	assert.NotContains(t, d.Target(), "pw")
}
