package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "conversation:"

// RedisStore persists conversation state in Redis as JSON envelopes, letting
// state survive restarts and be shared across replicas. Retention is
// enforced with a key TTL refreshed on every Put.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(conversationID string) string {
	return redisKeyPrefix + conversationID
}

func (s *RedisStore) Get(ctx context.Context, conversationID string) (*StoredState, error) {
	raw, err := s.client.Get(ctx, redisKey(conversationID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get conversation: %w", err)
	}

	var state StoredState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode conversation state: %w", err)
	}
	return &state, nil
}

func (s *RedisStore) Put(ctx context.Context, conversationID string, state *StoredState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode conversation state: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(conversationID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set conversation: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, conversationID string) (bool, error) {
	deleted, err := s.client.Del(ctx, redisKey(conversationID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis del conversation: %w", err)
	}
	return deleted > 0, nil
}
