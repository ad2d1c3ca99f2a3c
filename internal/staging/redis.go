package staging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "staging-info:"

// RedisRepository shares staging records between workers through Redis.
// SETNX gives Save its claim semantics across processes.
type RedisRepository struct {
	client redis.UniversalClient
}

// NewRedisRepository creates a repository backed by the given Redis client.
func NewRedisRepository(client redis.UniversalClient) *RedisRepository {
	return &RedisRepository{client: client}
}

// Save claims the record's key with SETNX, failing when it is already held.
func (r *RedisRepository) Save(ctx context.Context, info Info) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode staging info: %w", err)
	}
	claimed, err := r.client.SetNX(ctx, redisKeyPrefix+info.key(), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to save staging info: %w", err)
	}
	if !claimed {
		return &FileDuplicationError{StagingAreaUUID: info.StagingAreaUUID, FileName: info.FileName}
	}
	return nil
}

// FindOne returns the record for a key, or ErrNotFound.
func (r *RedisRepository) FindOne(ctx context.Context, stagingAreaUUID, fileName string) (Info, error) {
	key := Info{StagingAreaUUID: stagingAreaUUID, FileName: fileName}.key()
	payload, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Info{}, ErrNotFound
	}
	if err != nil {
		return Info{}, fmt.Errorf("failed to load staging info: %w", err)
	}
	var info Info
	if err := json.Unmarshal(payload, &info); err != nil {
		return Info{}, fmt.Errorf("failed to decode staging info: %w", err)
	}
	return info, nil
}

// Update overwrites an existing record.
func (r *RedisRepository) Update(ctx context.Context, info Info) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode staging info: %w", err)
	}
	updated, err := r.client.SetXX(ctx, redisKeyPrefix+info.key(), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to update staging info: %w", err)
	}
	if !updated {
		return ErrNotFound
	}
	return nil
}

// Delete releases a record. Deleting an absent record is not an error.
func (r *RedisRepository) Delete(ctx context.Context, info Info) error {
	if err := r.client.Del(ctx, redisKeyPrefix+info.key()).Err(); err != nil {
		return fmt.Errorf("failed to delete staging info: %w", err)
	}
	return nil
}
