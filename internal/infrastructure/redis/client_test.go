package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_AppliesOptions(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()

	client, err := NewClient(ctx, "redis://"+srv.Addr()+"/2",
		WithPoolSize(4), WithPoolSize(0), WithTimeouts(time.Second, 2*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	opts := client.Options()
	assert.Equal(t, 4, opts.PoolSize, "a zero pool size keeps the previous value")
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, time.Second, opts.DialTimeout)
	assert.Equal(t, 2*time.Second, opts.ReadTimeout)
	assert.Equal(t, 2*time.Second, opts.WriteTimeout)

	assert.NoError(t, Pinger{Client: client}.Ping(ctx))
}

func TestNewClient_Failures(t *testing.T) {
	down := miniredis.RunT(t)
	downURL := "redis://" + down.Addr()
	down.Close()

	tests := []struct {
		name    string
		url     string
		wantErr string
	}{
		{name: "malformed url", url: "://bad-url", wantErr: "failed to parse redis URL"},
		{name: "wrong scheme", url: "http://localhost:6379", wantErr: "failed to parse redis URL"},
		{name: "server down", url: downURL, wantErr: "failed to ping redis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(context.Background(), tt.url, WithTimeouts(100*time.Millisecond, 100*time.Millisecond))
			require.Error(t, err)
			assert.Nil(t, client)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPinger_ReportsOutage(t *testing.T) {
	srv := miniredis.RunT(t)
	client, err := NewClient(context.Background(), "redis://"+srv.Addr(), WithTimeouts(100*time.Millisecond, 100*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	srv.Close()
	assert.Error(t, Pinger{Client: client}.Ping(context.Background()))
}
