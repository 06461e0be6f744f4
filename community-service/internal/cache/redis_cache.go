package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chys-app/chys-live/community-service/internal/config"
	"github.com/chys-app/chys-live/community-service/internal/domain"
)

type RedisRecordingCache struct {
	client *redis.Client
	prefix string
}

func NewRedisRecordingCache(cfg config.RedisConfig) (*RedisRecordingCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisRecordingCache{
		client: client,
		prefix: cfg.Prefix,
	}, nil
}

func (c *RedisRecordingCache) BuildKeyByID(broadcastID string) string {
	return fmt.Sprintf("%s:id:%s", c.prefix, broadcastID)
}

func (c *RedisRecordingCache) Get(ctx context.Context, broadcastID string) (*domain.RecordingSession, error) {
	data, err := c.client.Get(ctx, c.BuildKeyByID(broadcastID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var rs domain.RecordingSession
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}

	return &rs, nil
}

func (c *RedisRecordingCache) Set(ctx context.Context, broadcastID string, rs *domain.RecordingSession, ttl time.Duration) error {
	data, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if err := c.client.Set(ctx, c.BuildKeyByID(broadcastID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	return nil
}

func (c *RedisRecordingCache) Delete(ctx context.Context, broadcastIDs ...string) error {
	if len(broadcastIDs) == 0 {
		return nil
	}

	keys := make([]string, len(broadcastIDs))
	for i, id := range broadcastIDs {
		keys[i] = c.BuildKeyByID(id)
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}

	return nil
}

func (c *RedisRecordingCache) Close() error {
	return c.client.Close()
}

var _ RecordingCache = (*RedisRecordingCache)(nil)
