package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisClient wraps the Redis client with the list and key operations the
// run history needs.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to redisURL and pings it.
func NewRedisClient(ctx context.Context, redisURL string) (*RedisClient, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"redis_addr": opts.Addr,
		"redis_db":   opts.DB,
	}).Info("Successfully connected to Redis")

	return NewRedisClientFrom(client), nil
}

// NewRedisClientFrom wraps an existing client.
func NewRedisClientFrom(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

// Get returns "" without error when the key does not exist.
func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	result := r.client.Get(ctx, key)
	if err := result.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		logrus.WithError(err).WithField("key", key).Error("Failed to get value from Redis")
		return "", err
	}
	return result.Val(), nil
}

// Set stores a value. A zero expiration keeps the key forever.
func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := r.client.Set(ctx, key, value, expiration).Err(); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"key":        key,
			"expiration": expiration,
		}).Error("Failed to set value in Redis")
		return err
	}
	return nil
}

// PushCapped prepends value to the list at key and trims the list to the
// newest limit entries in one pipeline.
func (r *RedisClient) PushCapped(ctx context.Context, key string, value interface{}, limit int64) error {
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, value)
	pipe.LTrim(ctx, key, 0, limit-1)

	if _, err := pipe.Exec(ctx); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"key":   key,
			"limit": limit,
		}).Error("Failed to push capped list entry in Redis")
		return err
	}
	return nil
}

// Range returns list entries between start and stop, newest first.
func (r *RedisClient) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	result := r.client.LRange(ctx, key, start, stop)
	if err := result.Err(); err != nil {
		logrus.WithError(err).WithField("key", key).Error("Failed to read list from Redis")
		return nil, err
	}
	return result.Val(), nil
}

// Health checks Redis connectivity.
func (r *RedisClient) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}
