package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iho/erpledger/internal/usecase"
)

const idempotencyNamespace = "erpledger:idempotency:"

// claimAttempts bounds the SETNX/GET loop when a held key expires between
// the two calls.
const claimAttempts = 3

// IdempotencyStore keeps idempotency records as JSON strings that expire
// with the key's TTL.
type IdempotencyStore struct {
	rdb redis.Cmdable
}

// NewIdempotencyStore creates an IdempotencyStore on rdb.
func NewIdempotencyStore(rdb redis.Cmdable) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb}
}

// Claim implements usecase.IdempotencyStore.
func (s *IdempotencyStore) Claim(ctx context.Context, key, fingerprint string, ttl time.Duration) (*usecase.StoredResponse, error) {
	claim, err := json.Marshal(usecase.StoredResponse{Fingerprint: fingerprint})
	if err != nil {
		return nil, err
	}

	for range claimAttempts {
		set, err := s.rdb.SetNX(ctx, idempotencyNamespace+key, claim, ttl).Result()
		if err != nil {
			return nil, err
		}
		if set {
			return nil, nil
		}

		held, err := s.load(ctx, key)
		if errors.Is(err, redis.Nil) {
			continue
		}
		return held, err
	}
	return nil, fmt.Errorf("claim idempotency key %q: key keeps expiring", key)
}

// Complete implements usecase.IdempotencyStore.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, resp *usecase.StoredResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, idempotencyNamespace+key, data, ttl).Err()
}

// Release implements usecase.IdempotencyStore.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, idempotencyNamespace+key).Err()
}

func (s *IdempotencyStore) load(ctx context.Context, key string) (*usecase.StoredResponse, error) {
	data, err := s.rdb.Get(ctx, idempotencyNamespace+key).Bytes()
	if err != nil {
		return nil, err
	}

	var held usecase.StoredResponse
	if err := json.Unmarshal(data, &held); err != nil {
		return nil, fmt.Errorf("decode idempotency record %q: %w", key, err)
	}
	return &held, nil
}
