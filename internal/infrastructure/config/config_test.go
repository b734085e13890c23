package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/erpledger/internal/infrastructure/config"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := config.LoadFrom(nil)
	require.NoError(t, err)

	assert.Equal(t, config.StoragePostgres, cfg.StorageDriver)
	assert.Contains(t, cfg.DatabaseURL, "/erpledger")
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "strict", cfg.StockPostingMode)
	assert.Equal(t, 30*time.Second, cfg.StockCacheTTL)
	assert.Equal(t, 8, cfg.BulkAdjustConcurrency)
	assert.Equal(t, 7*24*time.Hour, cfg.OutboxRetention)
	assert.Equal(t, "erpledger.events", cfg.OutboxChannel)
	assert.Empty(t, cfg.RedisURL)
	assert.False(t, cfg.AuthEnabled)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadFromOverrides(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{
		"APP_ENV":            "development",
		"STORAGE_DRIVER":     "memory",
		"DATABASE_URL":       "",
		"REDIS_URL":          "redis://cache:6379/1",
		"REDIS_TIMEOUT":      "500ms",
		"AUTH_ENABLED":       "true",
		"JWT_SECRET":         "top-secret",
		"STOCK_POSTING_MODE": "lenient",
		"OUTBOX_ENABLED":     "false",
		"RATE_LIMIT_RPS":     "2.5",
	})
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, config.StorageMemory, cfg.StorageDriver)
	assert.Equal(t, "redis://cache:6379/1", cfg.RedisURL)
	assert.Equal(t, 500*time.Millisecond, cfg.RedisTimeout)
	assert.Equal(t, "top-secret", cfg.JWTSecret)
	assert.Equal(t, "lenient", cfg.StockPostingMode)
	assert.False(t, cfg.OutboxEnabled)
	assert.InDelta(t, 2.5, cfg.RateLimitRPS, 1e-9)
}

func TestLoadReadsProcessEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("STOCK_CACHE_TTL", "1m")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, time.Minute, cfg.StockCacheTTL)
}

func TestLoadFromRejects(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		wantErr string
	}{
		{
			name:    "bad duration",
			environ: map[string]string{"HTTP_READ_TIMEOUT": "soon"},
			wantErr: "parse environment",
		},
		{
			name:    "bad integer",
			environ: map[string]string{"BULK_ADJUST_CONCURRENCY": "eight"},
			wantErr: "parse environment",
		},
		{
			name:    "unknown posting mode",
			environ: map[string]string{"STOCK_POSTING_MODE": "silent"},
			wantErr: "STOCK_POSTING_MODE must be one of strict, lenient",
		},
		{
			name:    "auth without secret",
			environ: map[string]string{"AUTH_ENABLED": "true"},
			wantErr: "JWT_SECRET is required when AUTH_ENABLED is set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadFrom(tt.environ)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() config.Config {
		return config.Config{
			Environment:           "production",
			StorageDriver:         config.StoragePostgres,
			DatabaseURL:           "postgres://example",
			DatabaseMaxConns:      10,
			DatabaseMinConns:      1,
			RedisPoolSize:         4,
			LogFormat:             "json",
			StockPostingMode:      "strict",
			BulkAdjustConcurrency: 4,
			OutboxBatchSize:       50,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *config.Config) {}},
		{name: "memory needs no database", mutate: func(c *config.Config) { c.StorageDriver = config.StorageMemory; c.DatabaseURL = "" }},
		{name: "auth with secret", mutate: func(c *config.Config) { c.AuthEnabled = true; c.JWTSecret = "s" }},
		{name: "unknown driver", mutate: func(c *config.Config) { c.StorageDriver = "sqlite" }, wantErr: "STORAGE_DRIVER must be one of postgres, memory"},
		{name: "postgres without url", mutate: func(c *config.Config) { c.DatabaseURL = "" }, wantErr: "DATABASE_URL is required for the postgres storage driver"},
		{name: "unknown environment", mutate: func(c *config.Config) { c.Environment = "staging" }, wantErr: "APP_ENV"},
		{name: "unknown log format", mutate: func(c *config.Config) { c.LogFormat = "xml" }, wantErr: "LOG_FORMAT"},
		{name: "zero concurrency", mutate: func(c *config.Config) { c.BulkAdjustConcurrency = 0 }, wantErr: "BULK_ADJUST_CONCURRENCY must be at least 1"},
		{name: "min above max conns", mutate: func(c *config.Config) { c.DatabaseMinConns = 20 }, wantErr: "DATABASE_MIN_CONNS must not exceed DATABASE_MAX_CONNS"},
		{name: "negative rate", mutate: func(c *config.Config) { c.RateLimitRPS = -1 }, wantErr: "RATE_LIMIT_RPS"},
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

func TestValidateReportsEveryFailure(t *testing.T) {
	cfg := config.Config{StorageDriver: "sqlite"}

	err := cfg.Validate()
	require.Error(t, err)
	for _, name := range []string{"APP_ENV", "STORAGE_DRIVER", "DATABASE_MAX_CONNS", "LOG_FORMAT", "STOCK_POSTING_MODE"} {
		assert.Contains(t, err.Error(), name)
	}
}
