package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validLocal() Config {
	return Config{
		App:  AppConfig{Env: "local", Port: 8080, Store: StorePostgres},
		DB:   DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "soapbox"},
		Auth: AuthConfig{JWTSecret: "secret"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_ENV is required")
	assert.Contains(t, err.Error(), "DB_HOST is required")
	assert.Contains(t, err.Error(), "JWT_SECRET is required")
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Auth.JWTIssuer, c.Auth.JWTAudience = "soapbox", "soapbox-api"
	c.Twilio.AuthToken = "tok"

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_SSLMODE")
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	require.NoError(t, c.Validate())
	assert.Equal(t, "disable", c.DB.SSLMode)
	assert.Equal(t, 15*time.Minute, c.Auth.AccessTokenTTL)
	assert.Equal(t, 30*24*time.Hour, c.Auth.RefreshTokenTTL)
	assert.Equal(t, 2*time.Hour, c.Calls.SlotTTL)
}

func TestValidate_MemoryStoreSkipsDatabase(t *testing.T) {
	c := Config{
		App:  AppConfig{Env: "dev", Port: 8080, Store: StoreMemory},
		Auth: AuthConfig{JWTSecret: "secret"},
	}
	require.NoError(t, c.Validate())

	c.App.Env = "production"
	assert.Error(t, c.Validate())
}

func TestValidate_CallCapNeedsRedis(t *testing.T) {
	c := validLocal()
	c.Calls.MaxConcurrentPerCampaign = 5
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_HOST")

	c.Redis = RedisConfig{Host: "localhost", Port: 6379}
	assert.NoError(t, c.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("APP_STORE", "memory")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("TWILIO_WEBHOOK_BASE_URL", "https://hooks.example.org")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, c.App.Port)
	assert.Equal(t, StoreMemory, c.App.Store)
	assert.Equal(t, 5*time.Minute, c.Auth.AccessTokenTTL)
	assert.Equal(t, "https://hooks.example.org", c.Twilio.WebhookBaseURL)
	assert.Equal(t, ":9000", c.HTTPAddr())
}

func TestLoad_ParseErrors(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "eighty")
	t.Setenv("APP_STORE", "memory")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("JWT_REFRESH_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "APP_PORT must be an integer"))
	assert.True(t, strings.Contains(err.Error(), "JWT_REFRESH_TTL must be a duration"))
}
