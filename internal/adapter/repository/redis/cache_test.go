package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	steelV1 = `{"material_id":"steel","quantity":"10","avg_unit_price":"150","version":1}`
	steelV2 = `{"material_id":"steel","quantity":"15","avg_unit_price":"150","version":2}`
)

func TestCache_RoundTrip(t *testing.T) {
	rdb, srv := startRedis(t)
	cache := NewCache(rdb)
	ctx := context.Background()

	miss, err := cache.Get(ctx, "stock:steel")
	require.NoError(t, err)
	assert.Nil(t, miss)

	stored, err := cache.SetIfNewer(ctx, "stock:steel", 1, []byte(steelV1), time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.True(t, srv.Exists("erpledger:cache:stock:steel"))
	assert.Equal(t, time.Minute, srv.TTL("erpledger:cache:stock:steel"))

	hit, err := cache.Get(ctx, "stock:steel")
	require.NoError(t, err)
	assert.JSONEq(t, steelV1, string(hit))
}

func TestCache_StaleVersionIsIgnored(t *testing.T) {
	rdb, _ := startRedis(t)
	cache := NewCache(rdb)
	ctx := context.Background()

	stored, err := cache.SetIfNewer(ctx, "stock:steel", 2, []byte(steelV2), time.Minute)
	require.NoError(t, err)
	require.True(t, stored)

	// A reader that loaded version 1 before the movement committed.
	stored, err = cache.SetIfNewer(ctx, "stock:steel", 1, []byte(steelV1), time.Minute)
	require.NoError(t, err)
	assert.False(t, stored)

	stored, err = cache.SetIfNewer(ctx, "stock:steel", 2, []byte(steelV1), time.Minute)
	require.NoError(t, err)
	assert.False(t, stored, "same version is not rewritten")

	got, err := cache.Get(ctx, "stock:steel")
	require.NoError(t, err)
	assert.JSONEq(t, steelV2, string(got))
}

func TestCache_Expiry(t *testing.T) {
	rdb, srv := startRedis(t)
	cache := NewCache(rdb)
	ctx := context.Background()

	_, err := cache.SetIfNewer(ctx, "stock:steel", 2, []byte(steelV2), time.Second)
	require.NoError(t, err)
	srv.FastForward(2 * time.Second)

	got, err := cache.Get(ctx, "stock:steel")
	require.NoError(t, err)
	assert.Nil(t, got)

	stored, err := cache.SetIfNewer(ctx, "stock:steel", 1, []byte(steelV1), time.Second)
	require.NoError(t, err)
	assert.True(t, stored, "expired entries keep no version")
}

func TestCache_Delete(t *testing.T) {
	rdb, srv := startRedis(t)
	cache := NewCache(rdb)
	ctx := context.Background()

	_, err := cache.SetIfNewer(ctx, "stock:steel", 1, []byte(steelV1), time.Minute)
	require.NoError(t, err)
	require.NoError(t, cache.Delete(ctx, "stock:steel"))
	assert.False(t, srv.Exists("erpledger:cache:stock:steel"))

	require.NoError(t, cache.Delete(ctx, "stock:never-cached"))
}

func TestCache_ConnectionErrors(t *testing.T) {
	rdb, srv := startRedis(t)
	cache := NewCache(rdb)
	srv.Close()

	_, err := cache.Get(context.Background(), "stock:steel")
	assert.Error(t, err)
	_, err = cache.SetIfNewer(context.Background(), "stock:steel", 1, nil, time.Minute)
	assert.Error(t, err)
}
