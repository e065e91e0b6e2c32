package redisclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	pendingValue = "pending"
	keyPrefix    = "idempotency:"

	// DefaultIdempotencyTTL is how long a completed key answers retries
	DefaultIdempotencyTTL = 24 * time.Hour
)

// Client stores order idempotency keys in Redis
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewClient creates a new Redis client and checks the connection
func NewClient(addr, password string, db int, ttl time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromRedis(rdb, ttl), nil
}

// NewFromRedis wraps an existing go-redis client
func NewFromRedis(rdb *redis.Client, ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &Client{rdb: rdb, ttl: ttl}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Claim reserves key for a new request with SETNX. When the key exists it
// reports the order id stored by Complete, or 0 while the first request is
// still running.
func (c *Client) Claim(ctx context.Context, key string) (int64, bool, error) {
	redisKey := keyPrefix + key

	ok, err := c.rdb.SetNX(ctx, redisKey, pendingValue, c.ttl).Result()
	if err != nil {
		return 0, false, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return 0, true, nil
	}

	val, err := c.rdb.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		// Released between SETNX and GET; let the caller retry.
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read idempotency key: %w", err)
	}
	if val == pendingValue {
		return 0, false, nil
	}

	orderID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency key %q: %w", key, err)
	}
	return orderID, false, nil
}

// Complete records the order produced for key
func (c *Client) Complete(ctx context.Context, key string, orderID int64) error {
	return c.rdb.Set(ctx, keyPrefix+key, strconv.FormatInt(orderID, 10), c.ttl).Err()
}

// Release drops a claim so that the request can be retried
func (c *Client) Release(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, keyPrefix+key).Err()
}
