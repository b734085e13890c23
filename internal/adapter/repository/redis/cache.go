package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheNamespace = "erpledger:cache:"

// Entries are hashes holding the value (d) and its version (v).
var setIfNewerScript = redis.NewScript(`
local current = tonumber(redis.call("HGET", KEYS[1], "v") or "0")
if current >= tonumber(ARGV[1]) then
	return 0
end
redis.call("HSET", KEYS[1], "v", ARGV[1], "d", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1
`)

// Cache implements usecase.Cache. The stock ledger keeps material snapshots
// here; a miss is a nil value and no error.
type Cache struct {
	rdb redis.Cmdable
}

// NewCache creates a Cache on rdb.
func NewCache(rdb redis.Cmdable) *Cache {
	return &Cache{rdb: rdb}
}

func cacheKey(key string) string {
	return cacheNamespace + key
}

// Get returns the cached value for key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.rdb.HGet(ctx, cacheKey(key), "d").Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return data, nil
}

// SetIfNewer caches value under key for ttl unless the cached version is
// equal or higher. The check and the write are one script call.
func (c *Cache) SetIfNewer(ctx context.Context, key string, version int64, value []byte, ttl time.Duration) (bool, error) {
	stored, err := setIfNewerScript.Run(ctx, c.rdb, []string{cacheKey(key)}, version, value, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// Delete drops key. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.rdb.Unlink(ctx, cacheKey(key)).Err()
}
