package postgres

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     PoolConfig
		wantMax int32
		wantMin int32
		wantApp string
	}{
		{
			name:    "limits applied",
			cfg:     PoolConfig{DatabaseURL: "postgres://erp:erp@db:5432/erpledger", MaxConns: 20, MinConns: 5},
			wantMax: 20,
			wantMin: 5,
			wantApp: "erpledger",
		},
		{
			name:    "min capped by max",
			cfg:     PoolConfig{DatabaseURL: "postgres://erp:erp@db:5432/erpledger", MaxConns: 2, MinConns: 5},
			wantMax: 2,
			wantMin: 2,
			wantApp: "erpledger",
		},
		{
			name:    "url application name wins",
			cfg:     PoolConfig{DatabaseURL: "postgres://erp:erp@db:5432/erpledger?application_name=stocktake&pool_max_conns=7"},
			wantMax: 7,
			wantMin: 0,
			wantApp: "stocktake",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := poolConfig(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMax, pc.MaxConns)
			assert.Equal(t, tt.wantMin, pc.MinConns)
			assert.Equal(t, tt.wantApp, pc.ConnConfig.RuntimeParams["application_name"])
		})
	}
}

func TestNewPoolWithConfig_Failures(t *testing.T) {
	ctx := context.Background()

	_, err := NewPoolWithConfig(ctx, PoolConfig{DatabaseURL: "not-a-url"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse database URL")

	_, err = NewPoolWithConfig(ctx, PoolConfig{
		DatabaseURL:    "postgres://invalid:5432/db",
		MaxConns:       1,
		ConnectTimeout: 200 * time.Millisecond,
	})
	assert.Error(t, err)
}

func TestMigratorRejectsMissingSource(t *testing.T) {
	m := NewMigrator("postgres://invalid:5432/db", t.TempDir()+"/missing", zerolog.Nop())

	err := m.Up()
	if err == nil || !strings.Contains(err.Error(), "failed to create migrate instance") {
		t.Fatalf("expected migrate instance error, got %v", err)
	}
}
