package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/okarpenko/autoria-scraper/internal/types"
)

const redisHistoryLimit = 100

// RedisRunStore persists run summaries in a bounded Redis list so history
// survives restarts and is visible to other processes.
type RedisRunStore struct {
	client *redis.Client
	key    string
}

// NewRedisRunStore connects to Redis and verifies the connection.
func NewRedisRunStore(ctx context.Context, addr string, db int, keyPrefix string) (*RedisRunStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisRunStore{
		client: client,
		key:    keyPrefix + ":runs",
	}, nil
}

func (s *RedisRunStore) SaveRun(ctx context.Context, summary *types.RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, data)
	pipe.LTrim(ctx, s.key, 0, redisHistoryLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run summary: %w", err)
	}
	return nil
}

func (s *RedisRunStore) LatestRun(ctx context.Context) (*types.RunSummary, error) {
	data, err := s.client.LIndex(ctx, s.key, 0).Result()
	if err == redis.Nil {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest run: %w", err)
	}
	var summary types.RunSummary
	if err := json.Unmarshal([]byte(data), &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run summary: %w", err)
	}
	return &summary, nil
}

func (s *RedisRunStore) RecentRuns(ctx context.Context, limit int) ([]types.RunSummary, error) {
	if limit <= 0 {
		limit = redisHistoryLimit
	}
	items, err := s.client.LRange(ctx, s.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent runs: %w", err)
	}
	out := make([]types.RunSummary, 0, len(items))
	for _, item := range items {
		var summary types.RunSummary
		if err := json.Unmarshal([]byte(item), &summary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run summary: %w", err)
		}
		out = append(out, summary)
	}
	return out, nil
}

// Close releases the Redis connection.
func (s *RedisRunStore) Close() error {
	return s.client.Close()
}
