// Package redis stores cache entries in Redis, one JSON value per key.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/policy-rag/backend/internal/cache"
	"github.com/policy-rag/backend/pkg/logger"
)

const keyPrefix = "chunks:"

type Client struct {
	client *redis.Client
}

func NewClient(addr, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis chunk cache initialized", zap.String("addr", addr), zap.Int("db", db))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Put(ctx context.Context, entry cache.Entry) error {
	data, err := json.Marshal(entry.Record())
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := c.client.Set(ctx, keyPrefix+entry.Key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}

	logger.Debug("Chunks cached", zap.String("key", entry.Key), zap.Int("chunks", len(entry.Chunks)))
	return nil
}

// Get treats an undecodable value as a miss so the file is simply re-extracted.
func (c *Client) Get(ctx context.Context, key string) (*cache.Entry, bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cache entry: %w", err)
	}

	var rec cache.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		logger.Warn("Corrupt chunk cache entry ignored", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}

	return rec.Entry(key), true, nil
}

func (c *Client) Purge(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		deleted++
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Chunk cache purged", zap.Int("deleted", deleted))
	return nil
}
