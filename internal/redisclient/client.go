package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"water-service/internal/models"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and checks connectivity
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// NewWithClient wraps an existing go-redis client
func NewWithClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func accessKey(firmID int64) string {
	return fmt.Sprintf("access:%d", firmID)
}

// GetAccessStatus returns a cached access status. A miss returns nil, nil.
func (c *Client) GetAccessStatus(ctx context.Context, firmID int64) (*models.AccessStatus, error) {
	raw, err := c.rdb.Get(ctx, accessKey(firmID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var status models.AccessStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		// corrupt entry, treat as a miss
		_ = c.rdb.Del(ctx, accessKey(firmID)).Err()
		return nil, nil
	}
	return &status, nil
}

// SetAccessStatus caches an access status for ttl
func (c *Client) SetAccessStatus(ctx context.Context, status *models.AccessStatus, ttl time.Duration) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, accessKey(status.FirmID), raw, ttl).Err()
}

// InvalidateAccessStatus drops the cached access status of a firm
func (c *Client) InvalidateAccessStatus(ctx context.Context, firmID int64) error {
	return c.rdb.Del(ctx, accessKey(firmID)).Err()
}

// NextOrderSequence increments the per-day order counter. The key outlives
// the day so late writers still see the counter.
func (c *Client) NextOrderSequence(ctx context.Context, day time.Time) (int64, error) {
	key := "order_seq:" + day.UTC().Format("20060102")

	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// MarkNotified records that a notification was delivered. It returns false
// when the key already existed, meaning the notification was a duplicate.
func (c *Client) MarkNotified(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("notified:%s", key), "1", ttl).Result()
}

// UnmarkNotified removes a dedupe key so a failed push can be retried
func (c *Client) UnmarkNotified(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("notified:%s", key)).Err()
}
